package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/stormbridge/metric"
)

var metricNames = []string{"cache_hits", "cache_misses", "cache_sets", "cache_deletes", "cache_evictions"}

type cacheMetrics struct {
	registrar  metric.MetricsRegistrar
	prefix     string
	registered []string

	hits      prometheus.Counter
	misses    prometheus.Counter
	sets      prometheus.Counter
	deletes   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCounter(prefix, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metric.Namespace,
		Subsystem:   "local_cache",
		Name:        name,
		ConstLabels: prometheus.Labels{"cache": prefix},
		Help:        help,
	})
}

// newCacheMetrics registers the cache's collectors under prefix.
func newCacheMetrics(registrar metric.MetricsRegistrar, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		registrar: registrar,
		prefix:    prefix,
		hits:      newCounter(prefix, "hits_total", "Total number of cache hits"),
		misses:    newCounter(prefix, "misses_total", "Total number of cache misses"),
		sets:      newCounter(prefix, "sets_total", "Total number of cache writes"),
		deletes:   newCounter(prefix, "deletes_total", "Total number of cache deletes"),
		evictions: newCounter(prefix, "evictions_total", "Total number of cache evictions"),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "local_cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"cache": prefix},
			Help:        "Current number of entries in cache",
		}),
	}

	counters := []prometheus.Counter{m.hits, m.misses, m.sets, m.deletes, m.evictions}
	for i, c := range counters {
		if err := registrar.RegisterCounter(prefix, metricNames[i], c); err != nil {
			m.unregister()
			return nil, err
		}
		m.registered = append(m.registered, metricNames[i])
	}
	if err := registrar.RegisterGauge(prefix, "cache_size", m.size); err != nil {
		m.unregister()
		return nil, err
	}
	m.registered = append(m.registered, "cache_size")
	return m, nil
}

func (m *cacheMetrics) unregister() {
	for _, name := range m.registered {
		m.registrar.Unregister(m.prefix, name)
	}
	m.registered = nil
}

func (m *cacheMetrics) recordHit() { m.hits.Inc() }
func (m *cacheMetrics) recordMiss() { m.misses.Inc() }
func (m *cacheMetrics) recordSet() { m.sets.Inc() }
func (m *cacheMetrics) recordDelete() { m.deletes.Inc() }
func (m *cacheMetrics) recordEviction() { m.evictions.Inc() }
func (m *cacheMetrics) updateSize(size int) { m.size.Set(float64(size)) }
