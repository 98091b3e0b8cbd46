// Package elasticsearch provides a sink bolt that indexes messages as
// documents, one document per message id.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/c360/stormbridge/bolt"
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures the Elasticsearch sink.
type Config struct {
	bolt.SinkConfig

	Addresses []string `json:"addresses"          schema:"type:array,description:Node URLs,required"`
	Index     string   `json:"index"              schema:"type:string,description:Target index,required"`
	Username  string   `json:"username,omitempty" schema:"type:string,description:Basic auth user"`
	Password  string   `json:"password,omitempty" schema:"type:string,description:Basic auth password"`
	APIKey    string   `json:"api_key,omitempty"  schema:"type:string,description:Base64 API key"`
	Refresh   string   `json:"refresh,omitempty"  schema:"type:enum,enum:true|false|wait_for,default:false,description:Refresh policy per write"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "addresses are required")
	}
	if c.Index == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "index is required")
	}
	switch c.Refresh {
	case "", "true", "false", "wait_for":
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: refresh %q", errors.ErrInvalidConfig, c.Refresh),
			"Config", "Validate", "refresh policy")
	}
	return nil
}

var elasticsearchSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Writer indexes one document per message.
type Writer struct {
	cfg       Config
	transport http.RoundTripper
	client    *es.Client
}

var _ bolt.Writer = (*Writer)(nil)

// NewWriter returns a writer. transport may be nil.
func NewWriter(cfg Config, transport http.RoundTripper) *Writer {
	return &Writer{cfg: cfg, transport: transport}
}

// Open implements bolt.Writer. The cluster must answer an info request.
func (w *Writer) Open(ctx context.Context) error {
	client, err := es.NewClient(es.Config{
		Addresses: w.cfg.Addresses,
		Username:  w.cfg.Username,
		Password:  w.cfg.Password,
		APIKey:    w.cfg.APIKey,
		Transport: w.transport,
	})
	if err != nil {
		return fmt.Errorf("create elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("reach elasticsearch %v: %w", w.cfg.Addresses, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch info: %s", res.Status())
	}

	w.client = client
	return nil
}

// Write implements bolt.Writer.
func (w *Writer) Write(ctx context.Context, msg *message.StreamMessage, row *message.OrderedMap) error {
	doc, err := row.MarshalJSON()
	if err != nil {
		return errors.ConversionFailed(err, "Writer", "Write", "encode document")
	}

	opts := []func(*esapi.IndexRequest){
		w.client.Index.WithContext(ctx),
		w.client.Index.WithDocumentID(msg.Header.MessageID),
	}
	if w.cfg.Refresh != "" {
		opts = append(opts, w.client.Index.WithRefresh(w.cfg.Refresh))
	}

	res, err := w.client.Index(w.cfg.Index, bytes.NewReader(doc), opts...)
	if err != nil {
		return errors.WrapTransient(err, "Writer", "Write", "index document")
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.WrapTransient(fmt.Errorf("%s: %s", res.Status(), body), "Writer", "Write", "index document")
	}
	return nil
}

// Close implements bolt.Writer.
func (w *Writer) Close() error {
	w.client = nil
	return nil
}

// NewBolt is the component factory.
func NewBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	var cfg Config
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Bolt", "NewBolt", "config unmarshal")
	}
	return bolt.BuildSink("elasticsearch", cfg.SinkConfig, NewWriter(cfg, nil), deps)
}

// Register registers the Elasticsearch sink factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "elasticsearch",
		Type:        types.ComponentTypeBolt,
		Protocol:    "http",
		Description: "Indexes messages as Elasticsearch documents keyed by message id",
		Version:     "0.1.0",
		Schema:      elasticsearchSchema,
		Bolt:        NewBolt,
	})
}
