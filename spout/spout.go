package spout

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
)

// FieldRecord is the single field every spout emits.
const FieldRecord = "record"

// OutputFields are the fields every spout declares.
func OutputFields() topology.Fields {
	return topology.NewFields(FieldRecord)
}

// Config is embedded in every spout's configuration.
type Config struct {
	ReceiveWait string  `json:"receive_wait,omitempty" schema:"type:string,default:10ms,description:Longest NextTuple waits for a record"`
	QueueSize   int     `json:"queue_size,omitempty"   schema:"type:int,default:1000,description:Records buffered between client and topology"`
	MaxRate     float64 `json:"max_rate,omitempty"     schema:"type:float,default:0,description:Records emitted per second (0 is unlimited)"`
}

// DefaultQueueSize bounds the hand-off queue when unset.
const DefaultQueueSize = 1000

// Wait parses ReceiveWait, defaulting to topology.DefaultReceiveWait.
func (c Config) Wait() (time.Duration, error) {
	if c.ReceiveWait == "" {
		return topology.DefaultReceiveWait, nil
	}
	d, err := time.ParseDuration(c.ReceiveWait)
	if err != nil || d <= 0 {
		return 0, errors.WrapInvalid(fmt.Errorf("receive_wait %q: must be a positive duration", c.ReceiveWait),
			"Config", "Wait", "parse receive wait")
	}
	return d, nil
}

// Size returns QueueSize or DefaultQueueSize.
func (c Config) Size() int {
	if c.QueueSize > 0 {
		return c.QueueSize
	}
	return DefaultQueueSize
}

// Validate checks the shared fields.
func (c Config) Validate() error {
	if _, err := c.Wait(); err != nil {
		return err
	}
	if c.QueueSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "queue_size cannot be negative")
	}
	if c.MaxRate < 0 || math.IsNaN(c.MaxRate) || math.IsInf(c.MaxRate, 0) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "max_rate must be a finite number >= 0")
	}
	return nil
}

// Throttle returns the emission limit for MaxRate, nil when unlimited.
func (c Config) Throttle() *Throttle {
	return NewThrottle(c.MaxRate)
}

// Throttle caps how many records per second a spout emits. A nil Throttle
// never limits. Only the NextTuple goroutine may use it.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows perSecond records per second with a burst of one
// second's worth. perSecond <= 0 returns nil.
func NewThrottle(perSecond float64) *Throttle {
	if perSecond <= 0 {
		return nil
	}
	burst := int(math.Ceil(perSecond))
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Ready waits, for at most wait, until the budget allows another record.
// It returns what is left of wait, and false when the budget does not
// recover in time. Ready does not spend the budget; call Take once a
// record is actually emitted.
func (t *Throttle) Ready(ctx context.Context, wait time.Duration) (time.Duration, bool) {
	if t == nil {
		return wait, true
	}
	missing := 1 - t.limiter.Tokens()
	if missing <= 0 {
		return wait, true
	}
	delay := time.Duration(missing / float64(t.limiter.Limit()) * float64(time.Second))
	if delay > wait {
		sleep(ctx, wait)
		return 0, false
	}
	if !sleep(ctx, delay) {
		return 0, false
	}
	return wait - delay, true
}

// Take spends one record of the budget.
func (t *Throttle) Take() {
	if t != nil {
		t.limiter.Allow()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Queue is a bounded hand-off from client callbacks to NextTuple.
type Queue[T any] struct {
	ch       chan T
	throttle *Throttle
}

// NewQueue returns a queue holding at most size items.
func NewQueue[T any](size int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, size)}
}

// Offer enqueues v without blocking. It reports false when the queue is full.
func (q *Queue[T]) Offer(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Throttled limits Poll to the budget of t and returns q.
func (q *Queue[T]) Throttled(t *Throttle) *Queue[T] {
	q.throttle = t
	return q
}

// Poll waits at most wait for an item.
func (q *Queue[T]) Poll(ctx context.Context, wait time.Duration) (T, bool) {
	var zero T
	wait, ready := q.throttle.Ready(ctx, wait)
	if !ready {
		return zero, false
	}
	v, ok := q.poll(ctx, wait)
	if ok {
		q.throttle.Take()
	}
	return v, ok
}

func (q *Queue[T]) poll(ctx context.Context, wait time.Duration) (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case v := <-q.ch:
		return v, true
	case <-timer.C:
	case <-ctx.Done():
	}
	var zero T
	return zero, false
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Pending tracks emitted records by tuple id until Ack or Fail.
type Pending[T any] struct {
	mu    sync.Mutex
	items map[string]T
}

// NewPending returns an empty table.
func NewPending[T any]() *Pending[T] {
	return &Pending[T]{items: make(map[string]T)}
}

// Put records v under id.
func (p *Pending[T]) Put(id string, v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[id] = v
}

// Take removes and returns the record under id.
func (p *Pending[T]) Take(id string) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.items[id]
	if ok {
		delete(p.items, id)
	}
	return v, ok
}

// Len returns the number of records in flight.
func (p *Pending[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Drain removes and returns every record.
func (p *Pending[T]) Drain() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, 0, len(p.items))
	for id, v := range p.items {
		out = append(out, v)
		delete(p.items, id)
	}
	return out
}

// Metrics counts a spout's records by outcome.
type Metrics struct {
	name    string
	records *prometheus.CounterVec
}

// Record outcomes.
const (
	OutcomeReceived = "received"
	OutcomeDropped  = "dropped"
	OutcomeAcked    = "acked"
	OutcomeFailed   = "failed"
)

// NewMetrics returns unregistered metrics for the spout called name.
func NewMetrics(name string) *Metrics {
	return &Metrics{
		name: name,
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "spout",
			Name:        "records_total",
			Help:        "Records handled by a spout, by outcome",
			ConstLabels: prometheus.Labels{"spout": name},
		}, []string{"outcome"}),
	}
}

// Register registers with registrar, which may be nil.
func (m *Metrics) Register(registrar metric.MetricsRegistrar) error {
	if registrar == nil {
		return nil
	}
	return registrar.RegisterCounterVec(m.name, "spout_records", m.records)
}

// Unregister undoes Register.
func (m *Metrics) Unregister(registrar metric.MetricsRegistrar) {
	if registrar != nil {
		registrar.Unregister(m.name, "spout_records")
	}
}

// Inc counts one record with outcome.
func (m *Metrics) Inc(outcome string) {
	m.records.WithLabelValues(outcome).Inc()
}
