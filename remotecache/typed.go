package remotecache

import (
	"context"
	"encoding/json"

	"github.com/c360/stormbridge/cachebolt"
	"github.com/c360/stormbridge/errors"
)

// JSONCache stores values of type V as JSON.
type JSONCache[V any] struct {
	bytes ByteCache
}

var _ cachebolt.RemoteCache[string, map[string]any] = (*JSONCache[map[string]any])(nil)

// NewJSONCache wraps bytes.
func NewJSONCache[V any](bytes ByteCache) *JSONCache[V] {
	return &JSONCache[V]{bytes: bytes}
}

// Get implements cachebolt.RemoteCache. A stored value that does not decode
// into V is an error.
func (c *JSONCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var value V
	data, ok, err := c.bytes.Get(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, false, errors.WrapInvalid(err, "JSONCache", "Get", "decode value")
	}
	return value, true, nil
}

// Put implements cachebolt.RemoteCache.
func (c *JSONCache[V]) Put(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "JSONCache", "Put", "encode value")
	}
	return c.bytes.Put(ctx, key, data)
}

// StringCache stores strings as their raw bytes.
type StringCache struct {
	bytes ByteCache
}

var _ cachebolt.RemoteCache[string, string] = (*StringCache)(nil)

// NewStringCache wraps bytes.
func NewStringCache(bytes ByteCache) *StringCache {
	return &StringCache{bytes: bytes}
}

// Get implements cachebolt.RemoteCache.
func (c *StringCache) Get(ctx context.Context, key string) (string, bool, error) {
	data, ok, err := c.bytes.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	return string(data), true, nil
}

// Put implements cachebolt.RemoteCache.
func (c *StringCache) Put(ctx context.Context, key, value string) error {
	return c.bytes.Put(ctx, key, []byte(value))
}
