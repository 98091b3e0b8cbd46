package remotecache

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/pkg/cache"
)

// Kind selects a backend.
type Kind string

// Supported backends.
const (
	KindRedis  Kind = "redis"
	KindNATSKV Kind = "natskv"
	KindLocal  Kind = "local"
)

// Spec names a cache and how to reach it.
type Spec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Name is the cache name: a redis key prefix or a KV bucket.
	Name string `json:"name" yaml:"name"`

	// URLs lists redis servers as host:port or redis:// URLs.
	URLs []string `json:"urls,omitempty" yaml:"urls,omitempty"`

	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty"`

	// TTLSeconds expires entries; zero keeps them.
	TTLSeconds int `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`

	// MaxSize bounds a local cache.
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`
}

// TTL returns the entry lifetime.
func (s Spec) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Key identifies the connection a Spec resolves to. URL order is ignored.
func (s Spec) Key() string {
	urls := slices.Clone(s.URLs)
	slices.Sort(urls)
	return fmt.Sprintf("%s://%s@%s/%d/%s", s.Kind, s.Username, strings.Join(urls, ","), s.DB, s.Name)
}

// Validate checks the Spec for its backend.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Spec", "Validate", "cache name is required")
	}
	if s.TTLSeconds < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Spec", "Validate", "ttl_seconds must not be negative")
	}
	switch s.Kind {
	case KindRedis:
		if len(s.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Spec", "Validate", "redis cache needs at least one url")
		}
	case KindNATSKV:
	case KindLocal:
		if s.MaxSize < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Spec", "Validate", "max_size must not be negative")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Spec", "Validate", fmt.Sprintf("unknown cache kind %q", s.Kind))
	}
	return nil
}

func (s Spec) localConfig() cache.Config {
	cfg := cache.DefaultConfig()
	if s.MaxSize > 0 {
		cfg.MaxSize = s.MaxSize
	}
	cfg.TTL = s.TTL()
	return cfg
}
