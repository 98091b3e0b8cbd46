package cachebolt

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/stormbridge/metric"
)

// Failure stages.
const (
	stageKey    = "key"
	stageValue  = "value"
	stagePut    = "put"
	stageGet    = "get"
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
	resultNoKey = "no_key"
)

type boltMetrics struct {
	stored   prometheus.Counter
	lookups  *prometheus.CounterVec
	failures *prometheus.CounterVec

	registered []string
}

func newBoltMetrics(name string) *boltMetrics {
	labels := prometheus.Labels{"bolt": name}
	return &boltMetrics{
		stored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "stored_total",
			Help:        "Values written to the cache",
			ConstLabels: labels,
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "lookups_total",
			Help:        "Cache lookups by result",
			ConstLabels: labels,
		}, []string{"result"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "cache",
			Name:        "failures_total",
			Help:        "Tuples dropped or degraded by failing stage",
			ConstLabels: labels,
		}, []string{"stage"}),
	}
}

// register exposes the counters; a nil registrar leaves them unexported.
func (m *boltMetrics) register(registrar metric.MetricsRegistrar, name string) error {
	if registrar == nil {
		return nil
	}
	steps := []struct {
		metric string
		fn     func() error
	}{
		{"cache_stored", func() error { return registrar.RegisterCounter(name, "cache_stored", m.stored) }},
		{"cache_lookups", func() error { return registrar.RegisterCounterVec(name, "cache_lookups", m.lookups) }},
		{"cache_failures", func() error { return registrar.RegisterCounterVec(name, "cache_failures", m.failures) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			m.unregister(registrar, name)
			return err
		}
		m.registered = append(m.registered, step.metric)
	}
	return nil
}

func (m *boltMetrics) unregister(registrar metric.MetricsRegistrar, name string) {
	if registrar == nil {
		return
	}
	for _, metricName := range m.registered {
		registrar.Unregister(name, metricName)
	}
	m.registered = nil
}
