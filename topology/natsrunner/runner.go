// Package natsrunner hosts topology bolts and spouts on NATS JetStream.
//
// Each hosted component gets one goroutine. A bolt reads tuples from a
// durable consumer on its input subject; Ack maps to msg.Ack and Fail to
// msg.Nak, so failed tuples are redelivered by the server. A spout is driven
// by calling NextTuple in a loop; a tuple it emits counts as acked once
// JetStream has stored it on the output subject, and as failed if the publish
// is rejected.
//
// Tuples are encoded with a topology.Codec, so the Go types of registered
// values survive the hop between components.
package natsrunner

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
)

// Wire kinds registered by DefaultCodec.
const (
	KindRawRecord = "raw_record"
	KindSNMPTrap  = "snmp_trap"
)

// Transport is the slice of natsclient.Client the runner uses.
type Transport interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
	Consume(ctx context.Context, streamName, durable, subject string, handler func(jetstream.Msg)) error
	StopConsumer(streamName, durable string)
}

// DefaultCodec knows stream messages, raw records and SNMP traps.
func DefaultCodec() *topology.Codec {
	codec := topology.NewCodec()
	topology.Register[converter.RawRecord](codec, KindRawRecord)
	topology.Register[*converter.SNMPTrap](codec, KindSNMPTrap)
	return codec
}

// Runner hosts components on one transport.
type Runner struct {
	transport Transport
	codec     *topology.Codec
	stream    string
	idleWait  time.Duration
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithCodec replaces DefaultCodec.
func WithCodec(codec *topology.Codec) Option {
	return func(r *Runner) { r.codec = codec }
}

// WithStream sets the JetStream stream bolts consume from.
func WithStream(name string) Option {
	return func(r *Runner) { r.stream = name }
}

// WithIdleWait sets how long a spout loop pauses after a NextTuple call
// that emitted nothing.
func WithIdleWait(d time.Duration) Option {
	return func(r *Runner) { r.idleWait = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records tuple metrics.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(r *Runner) { r.metrics = metrics }
}

// New returns a Runner publishing and consuming through transport.
func New(transport Transport, opts ...Option) *Runner {
	r := &Runner{
		transport: transport,
		codec:     DefaultCodec(),
		stream:    "STORMBRIDGE",
		idleWait:  topology.DefaultReceiveWait,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) publish(ctx context.Context, component, subject string, t *topology.Tuple) error {
	data, err := r.codec.Encode(t)
	if err != nil {
		return err
	}
	if err := r.transport.PublishToStream(ctx, subject, data); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordTupleEmitted(component, subject)
	}
	return nil
}

func (r *Runner) recordError(component string, err error) {
	if r.metrics != nil {
		r.metrics.RecordError(component, classOf(err))
	}
}

const (
	statusStopped  = metric.StatusStopped
	statusStarting = metric.StatusStarting
	statusRunning  = metric.StatusRunning
	statusFailed   = metric.StatusFailed
)

func (r *Runner) setStatus(component string, status int) {
	if r.metrics != nil {
		r.metrics.RecordComponentStatus(component, status)
	}
}

func classOf(err error) string {
	return errors.Classify(err).String()
}
