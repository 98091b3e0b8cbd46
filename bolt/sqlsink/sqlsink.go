// Package sqlsink provides a sink bolt that inserts messages into a
// relational table through database/sql and the pgx driver.
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/c360/stormbridge/bolt"
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// DriverName is the database/sql driver used for every connection.
const DriverName = "pgx"

// Config configures the SQL sink.
type Config struct {
	bolt.SinkConfig

	DSN          string   `json:"dsn"                      schema:"type:string,description:Connection string,required"`
	Table        string   `json:"table"                    schema:"type:string,description:Target table,required"`
	Schema       string   `json:"schema,omitempty"         schema:"type:string,description:Table schema"`
	Columns      []string `json:"columns"                  schema:"type:array,description:Columns bound in ToMap order,required"`
	ExpandBody   bool     `json:"expand_body,omitempty"    schema:"type:bool,default:false,description:Spread body elements into trailing columns"`
	MaxOpenConns int      `json:"max_open_conns,omitempty" schema:"type:int,default:4,description:Connection pool size"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "dsn is required")
	}
	if len(c.Columns) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "columns are required")
	}
	if err := bolt.ValidateIdentifiers("table", c.Table); err != nil {
		return err
	}
	if c.Schema != "" {
		if err := bolt.ValidateIdentifiers("schema", c.Schema); err != nil {
			return err
		}
	}
	if err := bolt.ValidateIdentifiers("column", c.Columns...); err != nil {
		return err
	}
	if c.MaxOpenConns < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_open_conns cannot be negative")
	}
	return nil
}

func (c *Config) qualifiedTable() string {
	if c.Schema == "" {
		return c.Table
	}
	return c.Schema + "." + c.Table
}

var sqlSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// db is the part of *sql.DB the writer uses.
type db interface {
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Writer inserts one row per message.
type Writer struct {
	cfg  Config
	stmt string
	open func(Config) (db, error)
	conn db
}

var _ bolt.Writer = (*Writer)(nil)

// NewWriter returns a writer for a validated cfg.
func NewWriter(cfg Config) *Writer {
	return &Writer{
		cfg: cfg,
		stmt: bolt.InsertStatement(cfg.qualifiedTable(), cfg.Columns, func(i int) string {
			return fmt.Sprintf("$%d", i)
		}),
		open: openDB,
	}
}

func openDB(cfg Config) (db, error) {
	conn, err := sql.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return conn, nil
}

// Open implements bolt.Writer. The database must answer a ping.
func (w *Writer) Open(ctx context.Context) error {
	conn, err := w.open(w.cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	w.conn = conn
	return nil
}

// Write implements bolt.Writer.
func (w *Writer) Write(ctx context.Context, _ *message.StreamMessage, row *message.OrderedMap) error {
	values, err := bolt.FitColumns(bolt.RowValues(row, w.cfg.ExpandBody), w.cfg.Columns)
	if err != nil {
		return err
	}
	if _, err := w.conn.ExecContext(ctx, w.stmt, values...); err != nil {
		return errors.WrapTransient(err, "Writer", "Write", "insert row")
	}
	return nil
}

// Close implements bolt.Writer.
func (w *Writer) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// NewBolt is the component factory.
func NewBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg := Config{MaxOpenConns: 4}
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Bolt", "NewBolt", "config unmarshal")
	}
	return bolt.BuildSink("sql", cfg.SinkConfig, NewWriter(cfg), deps)
}

// Register registers the SQL sink factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "sql",
		Type:        types.ComponentTypeBolt,
		Protocol:    "postgres",
		Description: "Inserts messages into a relational table",
		Version:     "0.1.0",
		Schema:      sqlSchema,
		Bolt:        NewBolt,
	})
}
