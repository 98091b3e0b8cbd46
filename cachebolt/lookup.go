package cachebolt

import (
	"context"
	"log/slog"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology"
)

// LookupBolt reads one value per tuple from a cache.
type LookupBolt[K comparable, V any] struct {
	cache  RemoteCache[K, V]
	mapper Mapper[K, V]
	hooks  LookupHooks[K, V]
	opts   Options

	collector topology.Collector
	logger    *slog.Logger
	metrics   *boltMetrics
}

var _ topology.Bolt = (*LookupBolt[string, string])(nil)

// NewLookupBolt returns a LookupBolt. Only the mapper's Key is used.
func NewLookupBolt[K comparable, V any](
	cache RemoteCache[K, V], mapper Mapper[K, V], hooks LookupHooks[K, V], opts Options,
) *LookupBolt[K, V] {
	if hooks.PostLookup == nil {
		hooks.PostLookup = DefaultPostLookup[K, V]
	}
	return &LookupBolt[K, V]{
		cache:   cache,
		mapper:  mapper,
		hooks:   hooks,
		opts:    opts,
		logger:  opts.logger().With("bolt", opts.Name),
		metrics: newBoltMetrics(opts.Name),
	}
}

// Prepare implements topology.Bolt.
func (b *LookupBolt[K, V]) Prepare(_ context.Context, collector topology.Collector) error {
	if b.cache == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "LookupBolt", "Prepare", "resolve cache")
	}
	if b.mapper == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "LookupBolt", "Prepare", "resolve mapper")
	}
	if err := b.metrics.register(b.opts.Registrar, b.opts.Name); err != nil {
		return errors.InitializationFailed(err, "LookupBolt", "Prepare", "register metrics")
	}
	b.collector = collector
	return nil
}

// Execute implements topology.Bolt.
func (b *LookupBolt[K, V]) Execute(ctx context.Context, t *topology.Tuple) {
	defer b.collector.Ack(t)

	if b.hooks.PreLookup != nil {
		b.hooks.PreLookup(t)
	}

	var key *K
	if k, err := b.mapper.Key(t); err != nil {
		b.logger.Warn("Key conversion failed, lookup skipped", "tuple", t.String(), "error", err)
		b.metrics.failures.WithLabelValues(stageKey).Inc()
		b.metrics.lookups.WithLabelValues(resultNoKey).Inc()
	} else {
		key = &k
	}

	var value *V
	if key != nil {
		v, ok, err := b.cache.Get(ctx, *key)
		switch {
		case err != nil:
			err = errors.CacheOperationFailed(err, "LookupBolt", "Execute", "get")
			b.logger.Error("Cache get failed", "tuple", t.String(), "error", err)
			b.metrics.failures.WithLabelValues(stageGet).Inc()
			b.metrics.lookups.WithLabelValues(resultError).Inc()
		case !ok:
			b.metrics.lookups.WithLabelValues(resultMiss).Inc()
		default:
			value = &v
			b.metrics.lookups.WithLabelValues(resultHit).Inc()
		}
	}

	b.hooks.PostLookup(b.collector, t, key, value)
}

// Cleanup implements topology.Bolt.
func (b *LookupBolt[K, V]) Cleanup() {
	b.metrics.unregister(b.opts.Registrar, b.opts.Name)
}

// DeclareOutputFields implements topology.Bolt.
func (b *LookupBolt[K, V]) DeclareOutputFields() topology.Fields {
	if b.opts.OutputFields != nil {
		return b.opts.OutputFields
	}
	return LookupOutputFields()
}
