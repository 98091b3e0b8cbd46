package cachebolt

import (
	"context"
	"log/slog"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/topology"
)

// Options shared by both bolts.
type Options struct {
	Name      string
	Logger    *slog.Logger
	Registrar metric.MetricsRegistrar
	// OutputFields overrides the declared output fields.
	OutputFields topology.Fields
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// StoreBolt writes one (key, value) per tuple into a cache.
type StoreBolt[K comparable, V any] struct {
	cache  RemoteCache[K, V]
	mapper Mapper[K, V]
	hooks  StoreHooks[K, V]
	opts   Options

	collector topology.Collector
	logger    *slog.Logger
	metrics   *boltMetrics
}

var _ topology.Bolt = (*StoreBolt[string, string])(nil)

// NewStoreBolt returns a StoreBolt.
func NewStoreBolt[K comparable, V any](
	cache RemoteCache[K, V], mapper Mapper[K, V], hooks StoreHooks[K, V], opts Options,
) *StoreBolt[K, V] {
	return &StoreBolt[K, V]{
		cache:   cache,
		mapper:  mapper,
		hooks:   hooks,
		opts:    opts,
		logger:  opts.logger().With("bolt", opts.Name),
		metrics: newBoltMetrics(opts.Name),
	}
}

// Prepare implements topology.Bolt.
func (b *StoreBolt[K, V]) Prepare(_ context.Context, collector topology.Collector) error {
	if b.cache == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "StoreBolt", "Prepare", "resolve cache")
	}
	if b.mapper == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "StoreBolt", "Prepare", "resolve mapper")
	}
	if err := b.metrics.register(b.opts.Registrar, b.opts.Name); err != nil {
		return errors.InitializationFailed(err, "StoreBolt", "Prepare", "register metrics")
	}
	b.collector = collector
	return nil
}

// Execute implements topology.Bolt.
func (b *StoreBolt[K, V]) Execute(ctx context.Context, t *topology.Tuple) {
	defer b.collector.Ack(t)

	if b.hooks.PreStore != nil {
		b.hooks.PreStore(t)
	}

	key, err := b.mapper.Key(t)
	if err != nil {
		b.logger.Warn("Key conversion failed, tuple dropped", "tuple", t.String(), "error", err)
		b.metrics.failures.WithLabelValues(stageKey).Inc()
		return
	}

	value, err := b.mapper.Value(t)
	if err != nil {
		b.logger.Warn("Value conversion failed, tuple dropped", "tuple", t.String(), "error", err)
		b.metrics.failures.WithLabelValues(stageValue).Inc()
		return
	}

	if err := b.cache.Put(ctx, key, value); err != nil {
		err = errors.CacheOperationFailed(err, "StoreBolt", "Execute", "put")
		b.logger.Error("Cache put failed, tuple dropped", "tuple", t.String(), "error", err)
		b.metrics.failures.WithLabelValues(stagePut).Inc()
		return
	}
	b.metrics.stored.Inc()

	if b.hooks.PostStore != nil {
		b.hooks.PostStore(b.collector, t, key, value)
	}
}

// Cleanup implements topology.Bolt.
func (b *StoreBolt[K, V]) Cleanup() {
	b.metrics.unregister(b.opts.Registrar, b.opts.Name)
}

// DeclareOutputFields implements topology.Bolt. A store emits nothing
// unless a PostStore hook does.
func (b *StoreBolt[K, V]) DeclareOutputFields() topology.Fields {
	return b.opts.OutputFields
}
