// Package convert provides the bolt that turns raw records into
// StreamMessages.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Tuple fields.
const (
	FieldRecord  = "record"
	FieldKey     = "key"
	FieldMessage = "message"
)

// Config configures the convert bolt.
type Config struct {
	Converter       string          `json:"converter"                  schema:"type:enum,enum:json|twitterjson|snmp|raw,default:raw,description:Converter applied to each record"`
	ConverterConfig json.RawMessage `json:"converter_config,omitempty" schema:"type:object,description:Converter configuration"`
	InputField      string          `json:"input_field,omitempty"      schema:"type:string,default:record,description:Tuple field holding the raw record"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if c.Converter == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "converter is required")
	}
	return nil
}

var convertSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Bolt converts the record in one tuple field and emits (messageKey, message).
// Records that fail conversion are logged and acked, never forwarded.
type Bolt struct {
	name      string
	field     string
	conv      converter.Converter
	logger    *slog.Logger
	registrar metric.MetricsRegistrar

	collector topology.Collector
	converted *prometheus.CounterVec
}

var _ topology.Bolt = (*Bolt)(nil)

// New returns a convert bolt. registrar may be nil.
func New(name, field string, conv converter.Converter, logger *slog.Logger, registrar metric.MetricsRegistrar) *Bolt {
	if field == "" {
		field = FieldRecord
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bolt{
		name:      name,
		field:     field,
		conv:      conv,
		logger:    logger.With("bolt", name),
		registrar: registrar,
		converted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "convert",
			Name:        "records_total",
			Help:        "Records seen by the convert bolt, by result",
			ConstLabels: prometheus.Labels{"bolt": name},
		}, []string{"result"}),
	}
}

// NewBolt is the component factory.
func NewBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg := Config{Converter: converter.TypeRaw}
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Bolt", "NewBolt", "config unmarshal")
	}
	conv, err := deps.GetConverters().Create(cfg.Converter, cfg.ConverterConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Bolt", "NewBolt", "create converter")
	}
	name := deps.Name("convert")
	return New(name, cfg.InputField, conv, deps.GetLoggerWithComponent(name), deps.Registrar()), nil
}

// Prepare implements topology.Bolt.
func (b *Bolt) Prepare(_ context.Context, collector topology.Collector) error {
	if b.conv == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "Bolt", "Prepare", "resolve converter")
	}
	if b.registrar != nil {
		if err := b.registrar.RegisterCounterVec(b.name, "convert_records", b.converted); err != nil {
			return errors.InitializationFailed(err, "Bolt", "Prepare", "register metrics")
		}
	}
	b.collector = collector
	return nil
}

// Execute implements topology.Bolt.
func (b *Bolt) Execute(_ context.Context, t *topology.Tuple) {
	defer b.collector.Ack(t)

	raw, ok := t.Value(b.field)
	if !ok {
		b.logger.Warn("Record field missing, tuple dropped", "field", b.field, "tuple", t.String())
		b.converted.WithLabelValues("failed").Inc()
		return
	}

	record, isRecord := asRecord(raw)
	if isRecord && b.conv.Type() != converter.TypeRaw {
		raw = record.Payload
	}

	msg, err := converter.Convert(b.conv, raw)
	if err != nil {
		b.logger.Warn("Conversion failed, tuple dropped", "tuple", t.String(), "error", err)
		b.converted.WithLabelValues("failed").Inc()
		return
	}
	if isRecord {
		if msg.Header.Source == "" {
			msg.Header.Source = record.Source
		}
		if msg.Header.MessageKey == "" {
			msg.Header.MessageKey = record.Key
		}
	}

	if err := b.collector.Emit(t, msg.Header.MessageKey, msg); err != nil {
		b.collector.ReportError(fmt.Errorf("emit %s: %w", msg.Header.MessageID, err))
		b.converted.WithLabelValues("failed").Inc()
		return
	}
	b.converted.WithLabelValues("converted").Inc()
}

// Cleanup implements topology.Bolt.
func (b *Bolt) Cleanup() {
	if b.registrar != nil {
		b.registrar.Unregister(b.name, "convert_records")
	}
}

// DeclareOutputFields implements topology.Bolt.
func (b *Bolt) DeclareOutputFields() topology.Fields {
	return topology.NewFields(FieldKey, FieldMessage)
}

func asRecord(raw any) (*converter.RawRecord, bool) {
	switch r := raw.(type) {
	case converter.RawRecord:
		return &r, true
	case *converter.RawRecord:
		return r, r != nil
	}
	return nil, false
}

// Register registers the convert bolt factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "convert",
		Type:        types.ComponentTypeBolt,
		Protocol:    "stream",
		Description: "Converts raw records into StreamMessages and emits (messageKey, message)",
		Version:     "0.1.0",
		Schema:      convertSchema,
		Bolt:        NewBolt,
	})
}
