package remotecache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/stormbridge/cachebolt"
	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/natsclient"
)

// ByteCache is the raw form every backend provides.
type ByteCache = cachebolt.RemoteCache[string, []byte]

// Opener connects a backend.
type Opener func(ctx context.Context, spec Spec, deps Deps) (ByteCache, io.Closer, error)

// Deps are the shared resources openers may use.
type Deps struct {
	NATS      *natsclient.Client
	Registrar metric.MetricsRegistrar
	Logger    *slog.Logger
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Handle is a shared, opened cache.
type Handle struct {
	spec   Spec
	bytes  ByteCache
	closer io.Closer
}

// Spec returns the Spec the handle was opened with.
func (h *Handle) Spec() Spec { return h.spec }

// Bytes returns the raw cache.
func (h *Handle) Bytes() ByteCache { return h.bytes }

// DefaultOpenTimeout bounds one backend initialization.
const DefaultOpenTimeout = 30 * time.Second

// Registry opens caches on first use and shares them afterwards.
type Registry struct {
	deps        Deps
	openers     map[Kind]Opener
	group       singleflight.Group
	openTimeout time.Duration

	mu      sync.Mutex
	named   map[string]Spec
	handles map[string]*Handle
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithNATS provides the connection natskv caches use.
func WithNATS(client *natsclient.Client) Option {
	return func(r *Registry) { r.deps.NATS = client }
}

// WithRegistrar exports local cache statistics.
func WithRegistrar(registrar metric.MetricsRegistrar) Option {
	return func(r *Registry) { r.deps.Registrar = registrar }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.deps.Logger = logger
		}
	}
}

// WithSpecs declares caches that components reference by name. A spec
// without a Name takes its map key.
func WithSpecs(specs map[string]Spec) Option {
	return func(r *Registry) {
		for name, spec := range specs {
			if spec.Name == "" {
				spec.Name = name
			}
			r.named[name] = spec
		}
	}
}

// WithOpener replaces or adds the backend for kind.
func WithOpener(kind Kind, opener Opener) Option {
	return func(r *Registry) { r.openers[kind] = opener }
}

// WithOpenTimeout bounds each backend initialization. d <= 0 keeps the default.
func WithOpenTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.openTimeout = d
		}
	}
}

// NewRegistry returns a Registry knowing the redis, natskv and local kinds.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		deps: Deps{Logger: slog.Default()},
		openers: map[Kind]Opener{
			KindRedis:  openRedis,
			KindNATSKV: openNATSKV,
			KindLocal:  openLocal,
		},
		named:       make(map[string]Spec),
		handles:     make(map[string]*Handle),
		openTimeout: DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.deps.Logger = r.deps.Logger.With("component", "remotecache")
	return r
}

// Get returns the shared handle for spec, opening it on first use.
// Concurrent callers share one initialization, which is bounded by the
// open timeout rather than by any one caller's cancellation.
func (r *Registry) Get(ctx context.Context, spec Spec) (*Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, errors.InitializationFailed(err, "Registry", "Get", "validate spec")
	}
	key := spec.Key()

	if h, err := r.lookup(key); h != nil || err != nil {
		return h, err
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if h, err := r.lookup(key); h != nil || err != nil {
			return h, err
		}
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.openTimeout)
		defer cancel()
		h, err := r.open(openCtx, spec)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			_ = h.closer.Close()
			return nil, errors.InitializationFailed(errors.ErrShuttingDown, "Registry", "Get", "store handle")
		}
		r.handles[key] = h
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Named returns the shared handle for a cache declared with WithSpecs.
func (r *Registry) Named(ctx context.Context, name string) (*Handle, error) {
	r.mu.Lock()
	spec, ok := r.named[name]
	r.mu.Unlock()
	if !ok {
		return nil, errors.InitializationFailed(
			fmt.Errorf("%w: cache %q is not declared", errors.ErrMissingConfig, name),
			"Registry", "Named", "resolve cache")
	}
	return r.Get(ctx, spec)
}

func (r *Registry) lookup(key string) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.InitializationFailed(errors.ErrShuttingDown, "Registry", "Get", "lookup handle")
	}
	return r.handles[key], nil
}

func (r *Registry) open(ctx context.Context, spec Spec) (*Handle, error) {
	opener, ok := r.openers[spec.Kind]
	if !ok {
		return nil, errors.InitializationFailed(
			fmt.Errorf("%w: no backend for kind %q", errors.ErrInvalidConfig, spec.Kind),
			"Registry", "Get", "resolve backend")
	}

	bytes, closer, err := opener(ctx, spec, r.deps)
	if err != nil {
		r.deps.Logger.Error("Cache initialization failed", "cache", spec.Name, "kind", spec.Kind, "error", err)
		return nil, errors.InitializationFailed(err, "Registry", "Get", fmt.Sprintf("open %s cache %s", spec.Kind, spec.Name))
	}
	r.deps.Logger.Info("Cache opened", "cache", spec.Name, "kind", spec.Kind)
	return &Handle{spec: spec, bytes: bytes, closer: closer}, nil
}

// Keys lists the identities of the open handles.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every handle. Later Gets fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for key, h := range handles {
		if err := h.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
