package remotecache

import (
	"context"
	"io"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/natsclient"
)

// kvCache stores entries in a JetStream KV bucket named after the cache.
type kvCache struct {
	store *natsclient.KVStore
}

func openNATSKV(ctx context.Context, spec Spec, deps Deps) (ByteCache, io.Closer, error) {
	if deps.NATS == nil {
		return nil, nil, errors.WrapFatal(errors.ErrNoConnection, "kvCache", "open", "natskv cache needs a NATS client")
	}

	bucket, err := deps.NATS.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      spec.Name,
		Description: "stormbridge cache " + spec.Name,
		TTL:         spec.TTL(),
	})
	if err != nil {
		return nil, nil, err
	}
	return &kvCache{store: natsclient.NewKVStore(bucket)}, closerFunc(func() error { return nil }), nil
}

// Get implements cachebolt.RemoteCache.
func (c *kvCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.store.Get(ctx, key)
	if natsclient.IsKVNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put implements cachebolt.RemoteCache.
func (c *kvCache) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.store.Put(ctx, key, value)
	return err
}
