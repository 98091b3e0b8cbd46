// Package cachefactory registers the cache store and cache lookup bolts,
// backed by caches from the shared remotecache registry.
package cachefactory

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/c360/stormbridge/cachebolt"
	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/fieldpath"
	"github.com/c360/stormbridge/remotecache"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// Config configures both cache bolts.
type Config struct {
	Cache     string            `json:"cache,omitempty"      schema:"type:string,description:Name of a cache declared in the caches section"`
	Spec      *remotecache.Spec `json:"spec,omitempty"       schema:"type:cache,description:Inline cache definition"`
	KeyPath   string            `json:"key_path,omitempty"   schema:"type:string,description:Field path of the key"`
	ValuePath string            `json:"value_path,omitempty" schema:"type:string,default:message.body,description:Field path of the stored value"`
	Delimiter string            `json:"delimiter,omitempty"  schema:"type:string,default:.,description:Field path delimiter"`
}

// Validate implements component.Validatable.
func (c *Config) Validate() error {
	if (c.Cache == "") == (c.Spec == nil) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "exactly one of cache and spec is required")
	}
	if c.Spec != nil {
		if err := c.Spec.Validate(); err != nil {
			return err
		}
	}
	if c.Delimiter == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "delimiter cannot be empty")
	}
	return nil
}

// Default field paths.
const (
	DefaultStoreKeyPath  = "message.header.messageKey"
	DefaultLookupKeyPath = "key"
	DefaultValuePath     = "message.body"
)

var cacheSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

func parseConfig(rawConfig json.RawMessage, keyPath string) (Config, error) {
	cfg := Config{
		KeyPath:   keyPath,
		ValuePath: DefaultValuePath,
		Delimiter: fieldpath.DefaultDelimiter,
	}
	if err := component.SafeUnmarshal(rawConfig, &cfg); err != nil {
		return cfg, errors.WrapInvalid(err, "Config", "parseConfig", "config unmarshal")
	}
	return cfg, nil
}

// lazyCache resolves its handle on Prepare so connection errors surface as
// startup failures rather than factory errors.
type lazyCache struct {
	cfg    Config
	caches *remotecache.Registry
	inner  *remotecache.StringCache
}

var _ cachebolt.RemoteCache[string, string] = (*lazyCache)(nil)

func (l *lazyCache) resolve(ctx context.Context) error {
	if l.caches == nil {
		return errors.InitializationFailed(errors.ErrMissingConfig, "lazyCache", "resolve", "cache registry")
	}
	var (
		h   *remotecache.Handle
		err error
	)
	if l.cfg.Spec != nil {
		h, err = l.caches.Get(ctx, *l.cfg.Spec)
	} else {
		h, err = l.caches.Named(ctx, l.cfg.Cache)
	}
	if err != nil {
		return err
	}
	l.inner = remotecache.NewStringCache(h.Bytes())
	return nil
}

func (l *lazyCache) Get(ctx context.Context, key string) (string, bool, error) {
	return l.inner.Get(ctx, key)
}

func (l *lazyCache) Put(ctx context.Context, key, value string) error {
	return l.inner.Put(ctx, key, value)
}

// resolvingBolt resolves its cache before delegating Prepare.
type resolvingBolt struct {
	topology.Bolt
	cache *lazyCache
}

func (b *resolvingBolt) Prepare(ctx context.Context, collector topology.Collector) error {
	if err := b.cache.resolve(ctx); err != nil {
		return errors.InitializationFailed(err, "CacheBolt", "Prepare", "resolve cache")
	}
	return b.Bolt.Prepare(ctx, collector)
}

func options(name string, deps component.Dependencies) cachebolt.Options {
	return cachebolt.Options{
		Name:      name,
		Logger:    deps.GetLoggerWithComponent(name),
		Registrar: deps.Registrar(),
	}
}

// NewStoreBolt is the cache_store factory. It writes value_path under
// key_path and emits nothing.
func NewStoreBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg, err := parseConfig(rawConfig, DefaultStoreKeyPath)
	if err != nil {
		return nil, err
	}
	cache := &lazyCache{cfg: cfg, caches: deps.Caches}
	mapper := cachebolt.NewStringFieldMapper(cfg.KeyPath, cfg.ValuePath, cfg.Delimiter)
	inner := cachebolt.NewStoreBolt[string, string](cache, mapper, cachebolt.StoreHooks[string, string]{},
		options(deps.Name("cache_store"), deps))
	return &resolvingBolt{Bolt: inner, cache: cache}, nil
}

// NewLookupBolt is the cache_lookup factory. It emits (key, value) for hits.
func NewLookupBolt(rawConfig json.RawMessage, deps component.Dependencies) (topology.Bolt, error) {
	cfg, err := parseConfig(rawConfig, DefaultLookupKeyPath)
	if err != nil {
		return nil, err
	}
	cache := &lazyCache{cfg: cfg, caches: deps.Caches}
	mapper := cachebolt.NewStringFieldMapper(cfg.KeyPath, cfg.ValuePath, cfg.Delimiter)
	opts := options(deps.Name("cache_lookup"), deps)
	opts.OutputFields = cachebolt.LookupOutputFields()
	inner := cachebolt.NewLookupBolt[string, string](cache, mapper, cachebolt.LookupHooks[string, string]{}, opts)
	return &resolvingBolt{Bolt: inner, cache: cache}, nil
}

// Register registers the cache_store and cache_lookup factories.
func Register(registry *component.Registry) error {
	if err := registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "cache_store",
		Type:        types.ComponentTypeBolt,
		Protocol:    "cache",
		Description: "Stores one field of each tuple in a remote cache under another",
		Version:     "0.1.0",
		Schema:      cacheSchema,
		Bolt:        NewStoreBolt,
	}); err != nil {
		return err
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "cache_lookup",
		Type:        types.ComponentTypeBolt,
		Protocol:    "cache",
		Description: "Looks up a tuple field in a remote cache and emits (key, value) on a hit",
		Version:     "0.1.0",
		Schema:      cacheSchema,
		Bolt:        NewLookupBolt,
	})
}
