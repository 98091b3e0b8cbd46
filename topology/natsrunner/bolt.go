package natsrunner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology"
)

// BoltConfig wires a bolt to its subjects.
type BoltConfig struct {
	Name   string // instance name, also the durable consumer name
	Input  string // subject to consume
	Output string // subject to emit on; empty for sinks
}

// RunBolt prepares bolt and feeds it tuples until ctx is done.
// It returns an error only when the bolt cannot start.
func (r *Runner) RunBolt(ctx context.Context, cfg BoltConfig, bolt topology.Bolt) error {
	logger := r.logger.With("component", cfg.Name)

	collector := &boltCollector{
		runner:  r,
		cfg:     cfg,
		fields:  bolt.DeclareOutputFields(),
		pending: make(map[*topology.Tuple]jetstream.Msg),
		logger:  logger,
	}

	r.setStatus(cfg.Name, statusStarting)
	if err := bolt.Prepare(ctx, collector); err != nil {
		r.setStatus(cfg.Name, statusFailed)
		return errors.InitializationFailed(err, cfg.Name, "RunBolt", "prepare bolt")
	}
	defer bolt.Cleanup()

	durable := durableName(cfg.Name)
	work := make(chan jetstream.Msg)
	err := r.transport.Consume(ctx, r.stream, durable, cfg.Input, func(msg jetstream.Msg) {
		select {
		case work <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		r.setStatus(cfg.Name, statusFailed)
		return errors.InitializationFailed(err, cfg.Name, "RunBolt", "consume input")
	}
	defer r.transport.StopConsumer(r.stream, durable)

	r.setStatus(cfg.Name, statusRunning)
	logger.Info("Bolt started", "input", cfg.Input, "output", cfg.Output)

	for {
		select {
		case <-ctx.Done():
			r.setStatus(cfg.Name, statusStopped)
			logger.Info("Bolt stopped")
			return nil
		case msg := <-work:
			r.executeBolt(ctx, cfg, bolt, collector, msg)
		}
	}
}

// durableName maps an instance name onto the characters JetStream allows
// in consumer names.
func durableName(name string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(name)
}

func (r *Runner) executeBolt(
	ctx context.Context, cfg BoltConfig, bolt topology.Bolt, collector *boltCollector, msg jetstream.Msg,
) {
	tuple, err := r.codec.Decode(msg.Data())
	if err != nil {
		collector.logger.Error("Dropping undecodable tuple", "error", err)
		r.recordError(cfg.Name, err)
		_ = msg.Term()
		return
	}
	if r.metrics != nil {
		r.metrics.RecordTupleReceived(cfg.Name)
	}

	collector.track(tuple, msg)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			collector.logger.Error("Bolt panicked", "tuple", tuple.String(), "panic", p)
			r.recordError(cfg.Name, fmt.Errorf("panic: %v", p))
			collector.Fail(tuple)
		}
		if r.metrics != nil {
			r.metrics.RecordProcessingDuration(cfg.Name, "execute", time.Since(start))
		}
	}()

	bolt.Execute(ctx, tuple)
}

// boltCollector maps tuple outcomes onto JetStream acknowledgements.
type boltCollector struct {
	runner *Runner
	cfg    BoltConfig
	fields topology.Fields
	logger *slog.Logger

	mu      sync.Mutex
	pending map[*topology.Tuple]jetstream.Msg
}

func (c *boltCollector) track(t *topology.Tuple, msg jetstream.Msg) {
	c.mu.Lock()
	c.pending[t] = msg
	c.mu.Unlock()
}

func (c *boltCollector) take(t *topology.Tuple) (jetstream.Msg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.pending[t]
	if ok {
		delete(c.pending, t)
	}
	return msg, ok
}

// Emit publishes values on the output subject.
func (c *boltCollector) Emit(anchor *topology.Tuple, values ...any) error {
	if c.cfg.Output == "" {
		c.logger.Debug("No output subject, emit dropped")
		return nil
	}
	out := topology.NewTuple(uuid.New().String(), c.cfg.Name, c.fields, values...)
	if err := c.runner.publish(context.Background(), c.cfg.Name, c.cfg.Output, out); err != nil {
		anchorID := ""
		if anchor != nil {
			anchorID = anchor.ID
		}
		c.logger.Error("Emit failed", "anchor", anchorID, "error", err)
		c.runner.recordError(c.cfg.Name, err)
		return err
	}
	return nil
}

// Ack acknowledges the JetStream message behind t.
func (c *boltCollector) Ack(t *topology.Tuple) {
	msg, ok := c.take(t)
	if !ok {
		c.logger.Warn("Ack for unknown or settled tuple", "tuple", t.String())
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Error("JetStream ack failed", "tuple", t.ID, "error", err)
	}
	if c.runner.metrics != nil {
		c.runner.metrics.RecordTupleAcked(c.cfg.Name)
	}
}

// Fail naks the JetStream message behind t for redelivery.
func (c *boltCollector) Fail(t *topology.Tuple) {
	msg, ok := c.take(t)
	if !ok {
		c.logger.Warn("Fail for unknown or settled tuple", "tuple", t.String())
		return
	}
	if err := msg.Nak(); err != nil {
		c.logger.Error("JetStream nak failed", "tuple", t.ID, "error", err)
	}
	if c.runner.metrics != nil {
		c.runner.metrics.RecordTupleFailed(c.cfg.Name)
	}
}

// ReportError logs err against the component.
func (c *boltCollector) ReportError(err error) {
	c.logger.Error("Bolt reported error", "error", err)
	c.runner.recordError(c.cfg.Name, err)
}
