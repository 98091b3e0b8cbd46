package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
)

// Cache is a thread-safe string-keyed cache.
type Cache[V any] interface {
	// Get returns the value and true when key is present and not expired.
	Get(key string) (V, bool)

	// Set stores value. It returns true when a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes key and reports whether it existed.
	Delete(key string) (bool, error)

	// Size returns the number of live entries.
	Size() int

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close stops background expiry.
	Close() error
}

// EvictCallback is called with each entry removed by size or expiry.
type EvictCallback[V any] func(key string, value V)

// Config sizes a cache.
type Config struct {
	// MaxSize bounds the number of entries; least recently used entries go first.
	MaxSize int `json:"max_size" yaml:"max_size"`

	// TTL expires entries after they were last written. Zero disables expiry.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// CleanupInterval is how often expired entries are swept. Defaults to TTL.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig returns a 1000 entry cache without expiry.
func DefaultConfig() Config {
	return Config{MaxSize: 1000}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_size must be positive, got %d", c.MaxSize))
	}
	if c.TTL < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("ttl must not be negative, got %v", c.TTL))
	}
	if c.CleanupInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("cleanup_interval must not be negative, got %v", c.CleanupInterval))
	}
	return nil
}

// UnmarshalJSON accepts durations as strings ("5m") or integer nanoseconds.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	aux := &struct {
		TTL             json.RawMessage `json:"ttl,omitempty"`
		CleanupInterval json.RawMessage `json:"cleanup_interval,omitempty"`
		*alias
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	var err error
	if len(aux.TTL) > 0 {
		if c.TTL, err = parseDurationField(aux.TTL, "ttl"); err != nil {
			return err
		}
	}
	if len(aux.CleanupInterval) > 0 {
		if c.CleanupInterval, err = parseDurationField(aux.CleanupInterval, "cleanup_interval"); err != nil {
			return err
		}
	}
	return nil
}

func parseDurationField(data json.RawMessage, field string) (time.Duration, error) {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		d, err := time.ParseDuration(str)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", field, err)
		}
		return d, nil
	}

	var nsec int64
	if err := json.Unmarshal(data, &nsec); err != nil {
		return 0, fmt.Errorf("field %s must be either a duration string (e.g., '1h') or integer nanoseconds", field)
	}
	return time.Duration(nsec), nil
}

// Option configures a cache.
type Option[V any] func(*options[V])

type options[V any] struct {
	registrar metric.MetricsRegistrar
	prefix    string
	evictFn   EvictCallback[V]
}

// WithMetrics exports statistics through registrar under prefix.
// A nil registrar or empty prefix is ignored.
func WithMetrics[V any](registrar metric.MetricsRegistrar, prefix string) Option[V] {
	return func(o *options[V]) {
		if registrar != nil && prefix != "" {
			o.registrar = registrar
			o.prefix = prefix
		}
	}
}

// WithEvictionCallback sets fn to run for every evicted entry.
func WithEvictionCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(o *options[V]) {
		o.evictFn = fn
	}
}

// New returns a cache sized by cfg.
func New[V any](cfg Config, opts ...Option[V]) (Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options[V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	var m *cacheMetrics
	if o.registrar != nil {
		var err error
		m, err = newCacheMetrics(o.registrar, o.prefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "New", "metrics registration")
		}
	}

	return newLRUCache(cfg, m, o.evictFn), nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
