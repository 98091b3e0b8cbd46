// Package cassandra provides a sink bolt that inserts messages into a
// Cassandra table with gocql.
package cassandra

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/c360/stormbridge/bolt"
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures the Cassandra sink.
type Config struct {
	bolt.SinkConfig

	Hosts       []string `json:"hosts"                 schema:"type:array,description:Contact points,required"`
	Port        int      `json:"port,omitempty"        schema:"type:int,default:9042,description:CQL native port"`
	Keyspace    string   `json:"keyspace"              schema:"type:string,description:Keyspace,required"`
	Table       string   `json:"table"                 schema:"type:string,description:Table,required"`
	Columns     []string `json:"columns"               schema:"type:array,description:Columns bound in ToMap order,required"`
	ExpandBody  bool     `json:"expand_body,omitempty" schema:"type:bool,default:false,description:Spread body elements into trailing columns"`
	Consistency string   `json:"consistency,omitempty" schema:"type:string,default:QUORUM,description:Write consistency level"`
	Username    string   `json:"username,omitempty"    schema:"type:string,description:Username"`
	Password    string   `json:"password,omitempty"    schema:"type:string,description:Password"`
	Timeout     string   `json:"timeout,omitempty"     schema:"type:string,default:10s,description:Connect and query timeout"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "hosts are required")
	}
	if len(c.Columns) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "columns are required")
	}
	if err := bolt.ValidateIdentifiers("keyspace", c.Keyspace); err != nil {
		return err
	}
	if err := bolt.ValidateIdentifiers("table", c.Table); err != nil {
		return err
	}
	if err := bolt.ValidateIdentifiers("column", c.Columns...); err != nil {
		return err
	}
	if _, err := c.consistency(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse timeout")
	}
	return nil
}

func (c *Config) consistency() (gocql.Consistency, error) {
	level, err := gocql.ParseConsistencyWrapper(strings.ToUpper(c.Consistency))
	if err != nil {
		return 0, errors.WrapInvalid(err, "Config", "Validate", "parse consistency")
	}
	return level, nil
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{
		Port:        9042,
		Consistency: "QUORUM",
		Timeout:     "10s",
	}
}

var cassandraSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// session is the part of *gocql.Session the writer uses.
type session interface {
	Exec(ctx context.Context, stmt string, values ...any) error
	Close()
}

type gocqlSession struct{ s *gocql.Session }

func (g gocqlSession) Exec(ctx context.Context, stmt string, values ...any) error {
	return g.s.Query(stmt, values...).WithContext(ctx).Exec()
}

func (g gocqlSession) Close() { g.s.Close() }

// Writer inserts one row per message.
type Writer struct {
	cfg    Config
	stmt   string
	dial   func(Config) (session, error)
	active session
}

var _ bolt.Writer = (*Writer)(nil)

// NewWriter returns a writer for a validated cfg.
func NewWriter(cfg Config) *Writer {
	return &Writer{
		cfg:  cfg,
		stmt: bolt.InsertStatement(cfg.Keyspace+"."+cfg.Table, cfg.Columns, func(int) string { return "?" }),
		dial: dial,
	}
}

func dial(cfg Config) (session, error) {
	timeout, _ := time.ParseDuration(cfg.Timeout)
	level, err := cfg.consistency()
	if err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = level
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	s, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to cassandra %v: %w", cfg.Hosts, err)
	}
	return gocqlSession{s: s}, nil
}

// Open implements bolt.Writer.
func (w *Writer) Open(_ context.Context) error {
	s, err := w.dial(w.cfg)
	if err != nil {
		return err
	}
	w.active = s
	return nil
}

// Write implements bolt.Writer.
func (w *Writer) Write(ctx context.Context, _ *message.StreamMessage, row *message.OrderedMap) error {
	values, err := bolt.FitColumns(bolt.RowValues(row, w.cfg.ExpandBody), w.cfg.Columns)
	if err != nil {
		return err
	}
	if err := w.active.Exec(ctx, w.stmt, values...); err != nil {
		return errors.WrapTransient(err, "Writer", "Write", "insert row")
	}
	return nil
}

// Close implements bolt.Writer.
func (w *Writer) Close() error {
	if w.active != nil {
		w.active.Close()
		w.active = nil
	}
	return nil
}

// NewBolt is the component factory.
func NewBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Bolt", "NewBolt", "config unmarshal")
	}
	return bolt.BuildSink("cassandra", cfg.SinkConfig, NewWriter(cfg), deps)
}

// Register registers the Cassandra sink factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "cassandra",
		Type:        types.ComponentTypeBolt,
		Protocol:    "cql",
		Description: "Inserts messages into a Cassandra table",
		Version:     "0.1.0",
		Schema:      cassandraSchema,
		Bolt:        NewBolt,
	})
}
