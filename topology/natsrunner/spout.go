package natsrunner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology"
)

// SpoutConfig wires a spout to its output subject.
type SpoutConfig struct {
	Name   string
	Output string
}

// RunSpout opens spout and drives NextTuple until ctx is done, then closes
// it. It returns an error only when the spout cannot open.
func (r *Runner) RunSpout(ctx context.Context, cfg SpoutConfig, spout topology.Spout) error {
	logger := r.logger.With("component", cfg.Name)

	collector := &spoutCollector{
		runner: r,
		ctx:    ctx,
		cfg:    cfg,
		fields: spout.DeclareOutputFields(),
		logger: logger,
	}

	r.setStatus(cfg.Name, statusStarting)
	if err := spout.Open(ctx, collector); err != nil {
		r.setStatus(cfg.Name, statusFailed)
		return errors.InitializationFailed(err, cfg.Name, "RunSpout", "open spout")
	}
	defer func() {
		if err := spout.Close(); err != nil {
			logger.Warn("Spout close failed", "error", err)
		}
	}()

	r.setStatus(cfg.Name, statusRunning)
	logger.Info("Spout started", "output", cfg.Output)

	for ctx.Err() == nil {
		emitted := r.nextTuple(ctx, cfg, spout, collector)
		if emitted > 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.idleWait):
		}
	}

	r.setStatus(cfg.Name, statusStopped)
	logger.Info("Spout stopped")
	return nil
}

// nextTuple runs one NextTuple call and settles what it emitted.
func (r *Runner) nextTuple(ctx context.Context, cfg SpoutConfig, spout topology.Spout, collector *spoutCollector) int {
	start := time.Now()
	func() {
		defer func() {
			if p := recover(); p != nil {
				collector.logger.Error("Spout panicked", "panic", p)
				r.recordError(cfg.Name, errors.New("spout panic"))
			}
		}()
		spout.NextTuple(ctx)
	}()
	if r.metrics != nil {
		r.metrics.RecordProcessingDuration(cfg.Name, "next_tuple", time.Since(start))
	}

	outcomes := collector.drain()
	for _, o := range outcomes {
		if o.id == "" {
			continue
		}
		if o.err != nil {
			spout.Fail(o.id)
			if r.metrics != nil {
				r.metrics.RecordTupleFailed(cfg.Name)
			}
			continue
		}
		spout.Ack(o.id)
		if r.metrics != nil {
			r.metrics.RecordTupleAcked(cfg.Name)
		}
	}
	return len(outcomes)
}

type emitOutcome struct {
	id  string
	err error
}

// spoutCollector publishes emitted tuples and queues their outcome so the
// spout's Ack and Fail run on the loop goroutine, outside NextTuple.
type spoutCollector struct {
	runner *Runner
	ctx    context.Context
	cfg    SpoutConfig
	fields topology.Fields
	logger *slog.Logger

	mu       sync.Mutex
	outcomes []emitOutcome
}

// Emit publishes values; id is the spout's message id, empty for unreliable
// emits that are never acked or failed.
func (c *spoutCollector) Emit(id string, values ...any) error {
	tupleID := id
	if tupleID == "" {
		tupleID = uuid.New().String()
	}
	out := topology.NewTuple(tupleID, c.cfg.Name, c.fields, values...)

	err := c.runner.publish(c.ctx, c.cfg.Name, c.cfg.Output, out)
	if err != nil {
		c.logger.Error("Emit failed", "id", id, "error", err)
		c.runner.recordError(c.cfg.Name, err)
	}

	c.mu.Lock()
	c.outcomes = append(c.outcomes, emitOutcome{id: id, err: err})
	c.mu.Unlock()
	return err
}

// ReportError logs err against the component.
func (c *spoutCollector) ReportError(err error) {
	c.logger.Error("Spout reported error", "error", err)
	c.runner.recordError(c.cfg.Name, err)
}

func (c *spoutCollector) drain() []emitOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.outcomes
	c.outcomes = nil
	return out
}
