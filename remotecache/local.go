package remotecache

import (
	"context"
	"io"

	"github.com/c360/stormbridge/pkg/cache"
)

// localCache keeps entries in process.
type localCache struct {
	entries cache.Cache[[]byte]
}

func openLocal(_ context.Context, spec Spec, deps Deps) (ByteCache, io.Closer, error) {
	entries, err := cache.New(spec.localConfig(), cache.WithMetrics[[]byte](deps.Registrar, spec.Name))
	if err != nil {
		return nil, nil, err
	}
	return &localCache{entries: entries}, entries, nil
}

// Get implements cachebolt.RemoteCache.
func (c *localCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := c.entries.Get(key)
	return value, ok, nil
}

// Put implements cachebolt.RemoteCache.
func (c *localCache) Put(_ context.Context, key string, value []byte) error {
	_, err := c.entries.Set(key, value)
	return err
}
