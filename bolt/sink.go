package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/message"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
)

// FieldMessage is the tuple field sinks read by default.
const FieldMessage = "message"

// Writer stores one flattened message in an external system.
type Writer interface {
	// Open connects to the store.
	Open(ctx context.Context) error
	// Write stores row, the ToMap form of msg.
	Write(ctx context.Context, msg *message.StreamMessage, row *message.OrderedMap) error
	// Close releases the connection.
	Close() error
}

// SinkConfig is embedded in every sink's configuration.
type SinkConfig struct {
	Converter       string          `json:"converter,omitempty"        schema:"type:enum,enum:json|twitterjson|snmp|raw,default:raw,description:Converter whose ToMap flattens the message"`
	ConverterConfig json.RawMessage `json:"converter_config,omitempty" schema:"type:object,description:Converter configuration"`
	MessageField    string          `json:"message_field,omitempty"    schema:"type:string,default:message,description:Tuple field holding the message"`
	WriteTimeout    string          `json:"write_timeout,omitempty"    schema:"type:string,default:5s,description:Deadline for one write"`
}

// ApplyDefaults fills unset fields.
func (c *SinkConfig) ApplyDefaults() {
	if c.Converter == "" {
		c.Converter = converter.TypeRaw
	}
	if c.MessageField == "" {
		c.MessageField = FieldMessage
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "5s"
	}
}

// Timeout parses WriteTimeout.
func (c *SinkConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.WriteTimeout)
	if err != nil || d <= 0 {
		return 0, errors.WrapInvalid(fmt.Errorf("write_timeout %q: must be a positive duration", c.WriteTimeout),
			"SinkConfig", "Timeout", "parse write timeout")
	}
	return d, nil
}

// Sink is a bolt that writes each message through a Writer.
type Sink struct {
	name      string
	field     string
	timeout   time.Duration
	conv      converter.Converter
	writer    Writer
	logger    *slog.Logger
	registrar metric.MetricsRegistrar

	collector topology.Collector
	written   prometheus.Counter
	failures  *prometheus.CounterVec
}

var _ topology.Bolt = (*Sink)(nil)

// Failure stages.
const (
	stageConvert = "convert"
	stageWrite   = "write"
)

// NewSink builds a sink. registrar may be nil.
func NewSink(
	name string, cfg SinkConfig, conv converter.Converter, writer Writer,
	logger *slog.Logger, registrar metric.MetricsRegistrar,
) (*Sink, error) {
	cfg.ApplyDefaults()
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	labels := prometheus.Labels{"bolt": name}
	return &Sink{
		name:      name,
		field:     cfg.MessageField,
		timeout:   timeout,
		conv:      conv,
		writer:    writer,
		logger:    logger.With("bolt", name),
		registrar: registrar,
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "sink",
			Name:        "written_total",
			Help:        "Records written to the external store",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "sink",
			Name:        "failures_total",
			Help:        "Records dropped, by stage",
			ConstLabels: labels,
		}, []string{"stage"}),
	}, nil
}

// Prepare implements topology.Bolt.
func (s *Sink) Prepare(ctx context.Context, collector topology.Collector) error {
	if s.conv == nil || s.writer == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "Sink", "Prepare", "resolve converter and writer")
	}
	if err := s.writer.Open(ctx); err != nil {
		return errors.InitializationFailed(err, "Sink", "Prepare", "open writer")
	}
	if s.registrar != nil {
		if err := s.registrar.RegisterCounter(s.name, "sink_written", s.written); err != nil {
			_ = s.writer.Close()
			return errors.InitializationFailed(err, "Sink", "Prepare", "register metrics")
		}
		if err := s.registrar.RegisterCounterVec(s.name, "sink_failures", s.failures); err != nil {
			s.registrar.Unregister(s.name, "sink_written")
			_ = s.writer.Close()
			return errors.InitializationFailed(err, "Sink", "Prepare", "register metrics")
		}
	}
	s.collector = collector
	s.logger.Info("Sink prepared", "converter", s.conv.Type(), "field", s.field)
	return nil
}

// Execute implements topology.Bolt.
func (s *Sink) Execute(ctx context.Context, t *topology.Tuple) {
	defer s.collector.Ack(t)

	msg, err := MessageOf(t, s.field)
	if err != nil {
		s.logger.Warn("Message conversion failed, tuple dropped", "tuple", t.String(), "error", err)
		s.failures.WithLabelValues(stageConvert).Inc()
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.Write(writeCtx, msg, s.conv.ToMap(msg)); err != nil {
		s.logger.Error("Write failed, tuple dropped", "message", msg.String(), "error", err)
		s.failures.WithLabelValues(stageWrite).Inc()
		return
	}
	s.written.Inc()
}

// Cleanup implements topology.Bolt.
func (s *Sink) Cleanup() {
	if s.registrar != nil {
		s.registrar.Unregister(s.name, "sink_written")
		s.registrar.Unregister(s.name, "sink_failures")
	}
	if err := s.writer.Close(); err != nil {
		s.logger.Warn("Close failed", "error", err)
	}
}

// DeclareOutputFields implements topology.Bolt. Sinks emit nothing.
func (s *Sink) DeclareOutputFields() topology.Fields {
	return nil
}

// MessageOf reads the StreamMessage held in field. Generic JSON objects
// are decoded into the envelope.
func MessageOf(t *topology.Tuple, field string) (*message.StreamMessage, error) {
	v, ok := t.Value(field)
	if !ok || v == nil {
		return nil, errors.ConversionFailed(
			fmt.Errorf("%w: %q", errors.ErrFieldNotFound, field), "Sink", "MessageOf", "read field")
	}
	switch m := v.(type) {
	case *message.StreamMessage:
		return m, nil
	case message.StreamMessage:
		return &m, nil
	case map[string]any:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, errors.ConversionFailed(err, "Sink", "MessageOf", "encode generic message")
		}
		msg, err := message.Unmarshal(data)
		if err != nil {
			return nil, errors.ConversionFailed(err, "Sink", "MessageOf", "decode generic message")
		}
		return msg, nil
	default:
		return nil, errors.ConversionFailed(
			fmt.Errorf("%w: field %q holds %T", errors.ErrInvalidData, field, v), "Sink", "MessageOf", "read field")
	}
}
