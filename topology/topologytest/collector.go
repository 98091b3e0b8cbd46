// Package topologytest provides in-memory collectors for testing bolts and
// spouts without a runtime.
package topologytest

import (
	"sync"

	"github.com/c360/stormbridge/topology"
)

// Emission is one recorded Emit call.
type Emission struct {
	Anchor *topology.Tuple
	ID     string
	Values topology.Values
}

// Collector records every call made by a bolt, or by a spout through
// SpoutCollector.
type Collector struct {
	mu     sync.Mutex
	emits  []Emission
	acks   []*topology.Tuple
	fails  []*topology.Tuple
	errs   []error
	events []string

	// EmitErr, when set, is returned from every Emit.
	EmitErr error
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

var _ topology.Collector = (*Collector)(nil)

// Emit records a bolt emission.
func (c *Collector) Emit(anchor *topology.Tuple, values ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, Emission{Anchor: anchor, Values: values})
	c.events = append(c.events, "emit")
	return c.EmitErr
}

// Ack records an ack.
func (c *Collector) Ack(t *topology.Tuple) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks = append(c.acks, t)
	c.events = append(c.events, "ack")
}

// Fail records a fail.
func (c *Collector) Fail(t *topology.Tuple) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails = append(c.fails, t)
	c.events = append(c.events, "fail")
}

// ReportError records err.
func (c *Collector) ReportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// SpoutCollector adapts c to topology.SpoutCollector.
func (c *Collector) SpoutCollector() topology.SpoutCollector {
	return spoutCollector{c}
}

type spoutCollector struct{ c *Collector }

func (s spoutCollector) Emit(id string, values ...any) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.emits = append(s.c.emits, Emission{ID: id, Values: values})
	s.c.events = append(s.c.events, "emit")
	return s.c.EmitErr
}

func (s spoutCollector) ReportError(err error) { s.c.ReportError(err) }

// Emits returns the recorded emissions.
func (c *Collector) Emits() []Emission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emission(nil), c.emits...)
}

// Acks returns the acked tuples in order.
func (c *Collector) Acks() []*topology.Tuple {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*topology.Tuple(nil), c.acks...)
}

// Fails returns the failed tuples in order.
func (c *Collector) Fails() []*topology.Tuple {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*topology.Tuple(nil), c.fails...)
}

// Errors returns reported errors.
func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

// AckCount returns how many times t was acked.
func (c *Collector) AckCount(t *topology.Tuple) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.acks {
		if a == t {
			n++
		}
	}
	return n
}

// Events returns "emit", "ack" and "fail" in call order.
func (c *Collector) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

// Reset clears all recordings.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits, c.acks, c.fails, c.errs, c.events = nil, nil, nil, nil, nil
}
