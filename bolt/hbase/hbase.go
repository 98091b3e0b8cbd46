// Package hbase provides a sink bolt that writes each message as one HBase
// row, keyed by message key or id, with one qualifier per ToMap entry.
package hbase

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/tsuna/gohbase"
	"github.com/tsuna/gohbase/hrpc"

	"github.com/c360/stormbridge/bolt"
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures the HBase sink.
type Config struct {
	bolt.SinkConfig

	Quorum        string `json:"quorum"                   schema:"type:string,description:ZooKeeper quorum host:port list,required"`
	ZookeeperRoot string `json:"zookeeper_root,omitempty" schema:"type:string,description:ZooKeeper root znode"`
	Table         string `json:"table"                    schema:"type:string,description:Table name,required"`
	Family        string `json:"family,omitempty"         schema:"type:string,default:cf,description:Column family"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.Quorum == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "quorum is required")
	}
	if c.Table == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "table is required")
	}
	if c.Family == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "family is required")
	}
	return nil
}

var hbaseSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Cells maps family to qualifier to value.
type Cells = map[string]map[string][]byte

type putFunc func(ctx context.Context, table, key string, cells Cells) error

// Writer puts one row per message.
type Writer struct {
	cfg    Config
	client gohbase.Client
	put    putFunc
}

var _ bolt.Writer = (*Writer)(nil)

// NewWriter returns a writer for a validated cfg.
func NewWriter(cfg Config) *Writer {
	return &Writer{cfg: cfg}
}

// Open implements bolt.Writer. gohbase connects lazily, so regions are
// located on the first put.
func (w *Writer) Open(_ context.Context) error {
	if w.put != nil {
		return nil
	}
	var opts []gohbase.Option
	if w.cfg.ZookeeperRoot != "" {
		opts = append(opts, gohbase.ZookeeperRoot(w.cfg.ZookeeperRoot))
	}
	client := gohbase.NewClient(w.cfg.Quorum, opts...)
	w.client = client
	w.put = func(ctx context.Context, table, key string, cells Cells) error {
		req, err := hrpc.NewPutStr(ctx, table, key, cells)
		if err != nil {
			return err
		}
		_, err = client.Put(req)
		return err
	}
	return nil
}

// Write implements bolt.Writer.
func (w *Writer) Write(ctx context.Context, msg *message.StreamMessage, row *message.OrderedMap) error {
	key := RowKey(msg)
	if key == "" {
		return errors.ConversionFailed(fmt.Errorf("%w: message has no key or id", errors.ErrFieldNotFound),
			"Writer", "Write", "row key")
	}
	cells, err := RowCells(w.cfg.Family, row)
	if err != nil {
		return err
	}
	if err := w.put(ctx, w.cfg.Table, key, cells); err != nil {
		return errors.WrapTransient(err, "Writer", "Write", "put row")
	}
	return nil
}

// Close implements bolt.Writer.
func (w *Writer) Close() error {
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
	w.put = nil
	return nil
}

// RowKey is the message key, or the message id when the key is empty.
func RowKey(msg *message.StreamMessage) string {
	if msg.Header.MessageKey != "" {
		return msg.Header.MessageKey
	}
	return msg.Header.MessageID
}

// RowCells encodes row under family. Strings are stored raw, numbers in
// decimal and anything else as JSON.
func RowCells(family string, row *message.OrderedMap) (Cells, error) {
	qualifiers := make(map[string][]byte, row.Len())
	var encodeErr error
	row.Range(func(key string, value any) bool {
		var data []byte
		switch v := value.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		case int64:
			data = strconv.AppendInt(nil, v, 10)
		case int:
			data = strconv.AppendInt(nil, int64(v), 10)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				encodeErr = errors.ConversionFailed(err, "Writer", "RowCells", "encode "+key)
				return false
			}
			data = encoded
		}
		qualifiers[key] = data
		return true
	})
	if encodeErr != nil {
		return nil, encodeErr
	}
	return Cells{family: qualifiers}, nil
}

// NewBolt is the component factory.
func NewBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg := Config{Family: "cf"}
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Bolt", "NewBolt", "config unmarshal")
	}
	return bolt.BuildSink("hbase", cfg.SinkConfig, NewWriter(cfg), deps)
}

// Register registers the HBase sink factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "hbase",
		Type:        types.ComponentTypeBolt,
		Protocol:    "hbase",
		Description: "Puts messages into an HBase table keyed by message key or id",
		Version:     "0.1.0",
		Schema:      hbaseSchema,
		Bolt:        NewBolt,
	})
}
