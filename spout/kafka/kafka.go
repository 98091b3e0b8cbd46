// Package kafka provides a spout that reads a Kafka topic as part of a
// consumer group. Acked tuples commit their message offset; failed tuples
// are left uncommitted and are redelivered after a rebalance or restart.
package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/spout"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Start offsets for a group with no committed offset.
const (
	StartFirst  = "first"
	StartLatest = "latest"
)

// Config configures the Kafka spout.
type Config struct {
	spout.Config

	Brokers       []string `json:"brokers"                  schema:"type:array,description:Bootstrap broker addresses,required"`
	Topic         string   `json:"topic"                    schema:"type:string,description:Topic to read,required"`
	GroupID       string   `json:"group_id"                 schema:"type:string,description:Consumer group whose offsets are committed,required"`
	StartOffset   string   `json:"start_offset,omitempty"   schema:"type:enum,enum:first|latest,default:first,description:Where a new group starts reading"`
	MinBytes      int      `json:"min_bytes,omitempty"      schema:"type:int,default:1,description:Minimum fetch size"`
	MaxBytes      int      `json:"max_bytes,omitempty"      schema:"type:int,default:10485760,description:Maximum fetch size"`
	CommitTimeout string   `json:"commit_timeout,omitempty" schema:"type:string,default:5s,description:Timeout of an offset commit"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "brokers are required")
	}
	if c.Topic == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "topic is required")
	}
	if c.GroupID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "group_id is required")
	}
	if c.StartOffset != StartFirst && c.StartOffset != StartLatest {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "start_offset must be first or latest")
	}
	if c.MinBytes < 0 || c.MaxBytes < c.MinBytes {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "fetch size range")
	}
	if _, err := time.ParseDuration(c.CommitTimeout); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse commit timeout")
	}
	return c.Config.Validate()
}

// DefaultConfig returns the defaults applied under the user's config.
func DefaultConfig() Config {
	return Config{
		StartOffset:   StartFirst,
		MinBytes:      1,
		MaxBytes:      10 << 20,
		CommitTimeout: "5s",
	}
}

var kafkaSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// reader is the subset of *kafkago.Reader the spout uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Spout emits one record per fetched message.
type Spout struct {
	name          string
	cfg           Config
	wait          time.Duration
	throttle      *spout.Throttle
	commitTimeout time.Duration
	logger        *slog.Logger
	registrar     metric.MetricsRegistrar
	metrics       *spout.Metrics

	newReader func(kafkago.ReaderConfig) reader
	reader    reader
	pending   *spout.Pending[kafkago.Message]
	collector topology.SpoutCollector
}

var _ topology.Spout = (*Spout)(nil)

// New returns a spout for a validated cfg. registrar may be nil.
func New(name string, cfg Config, logger *slog.Logger, registrar metric.MetricsRegistrar) (*Spout, error) {
	wait, err := cfg.Wait()
	if err != nil {
		return nil, err
	}
	commitTimeout, err := time.ParseDuration(cfg.CommitTimeout)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "New", "parse commit timeout")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Spout{
		name:          name,
		cfg:           cfg,
		wait:          wait,
		throttle:      cfg.Throttle(),
		commitTimeout: commitTimeout,
		logger:        logger.With("spout", name),
		registrar:     registrar,
		metrics:       spout.NewMetrics(name),
		newReader: func(rc kafkago.ReaderConfig) reader {
			return kafkago.NewReader(rc)
		},
		pending: spout.NewPending[kafkago.Message](),
	}, nil
}

// NewSpout is the component factory.
func NewSpout(rawConfig json.RawMessage, deps component.Dependencies) (topology.Spout, error) {
	cfg := DefaultConfig()
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Spout", "NewSpout", "config unmarshal")
	}
	name := deps.Name("kafka")
	return New(name, cfg, deps.GetLoggerWithComponent(name), deps.Registrar())
}

// ReaderConfig maps cfg onto the kafka-go reader configuration.
func (c Config) ReaderConfig() kafkago.ReaderConfig {
	start := kafkago.FirstOffset
	if c.StartOffset == StartLatest {
		start = kafkago.LastOffset
	}
	return kafkago.ReaderConfig{
		Brokers:     c.Brokers,
		Topic:       c.Topic,
		GroupID:     c.GroupID,
		MinBytes:    c.MinBytes,
		MaxBytes:    c.MaxBytes,
		StartOffset: start,
	}
}

// Open implements topology.Spout. The reader connects lazily on the first
// fetch, so broker errors surface through ReportError.
func (s *Spout) Open(_ context.Context, collector topology.SpoutCollector) error {
	if err := s.metrics.Register(s.registrar); err != nil {
		return errors.InitializationFailed(err, "Spout", "Open", "register metrics")
	}
	s.reader = s.newReader(s.cfg.ReaderConfig())
	s.collector = collector
	s.logger.Info("Kafka spout reading", "topic", s.cfg.Topic, "group_id", s.cfg.GroupID)
	return nil
}

// NextTuple implements topology.Spout.
func (s *Spout) NextTuple(ctx context.Context) {
	wait, ready := s.throttle.Ready(ctx, s.wait)
	if !ready {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	msg, err := s.reader.FetchMessage(fetchCtx)
	cancel()
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
			return
		}
		s.collector.ReportError(errors.WrapTransient(err, "Spout", "NextTuple", "fetch message"))
		return
	}
	s.metrics.Inc(spout.OutcomeReceived)
	s.throttle.Take()

	id := uuid.NewString()
	s.pending.Put(id, msg)
	if err := s.collector.Emit(id, Record(id, msg)); err != nil {
		s.pending.Take(id)
		s.metrics.Inc(spout.OutcomeFailed)
		s.logger.Error("Emit failed, offset left uncommitted",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
	}
}

// Record converts a message. Source is the topic and Key the message key.
func Record(id string, msg kafkago.Message) converter.RawRecord {
	headers := map[string]string{
		"partition": strconv.Itoa(msg.Partition),
		"offset":    strconv.FormatInt(msg.Offset, 10),
	}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return converter.RawRecord{
		ID:        id,
		Source:    msg.Topic,
		Key:       string(msg.Key),
		Timestamp: ts,
		Payload:   msg.Value,
		Headers:   headers,
	}
}

// Ack implements topology.Spout.
func (s *Spout) Ack(id string) {
	msg, ok := s.pending.Take(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.commitTimeout)
	defer cancel()
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		s.logger.Warn("Offset commit failed",
			"partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	s.metrics.Inc(spout.OutcomeAcked)
}

// Fail implements topology.Spout.
func (s *Spout) Fail(id string) {
	msg, ok := s.pending.Take(id)
	if !ok {
		return
	}
	s.metrics.Inc(spout.OutcomeFailed)
	s.logger.Warn("Tuple failed, offset left uncommitted",
		"partition", msg.Partition, "offset", msg.Offset)
}

// Close implements topology.Spout.
func (s *Spout) Close() error {
	s.pending.Drain()
	s.metrics.Unregister(s.registrar)
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// DeclareOutputFields implements topology.Spout.
func (s *Spout) DeclareOutputFields() topology.Fields {
	return spout.OutputFields()
}

// Register registers the Kafka spout factory.
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "kafka",
		Type:        types.ComponentTypeSpout,
		Protocol:    "kafka",
		Description: "Reads a Kafka topic in a consumer group and commits acked offsets",
		Version:     "0.1.0",
		Schema:      kafkaSchema,
		Spout:       NewSpout,
	})
}
