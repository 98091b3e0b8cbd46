package cachebolt

import (
	"context"

	"github.com/c360/stormbridge/topology"
)

// Output field names emitted by the default post-lookup hook.
const (
	FieldKey   = "key"
	FieldValue = "value"
)

// RemoteCache is a key-value cache reached over the network.
// Get reports a miss with ok=false and a nil error.
type RemoteCache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (value V, ok bool, err error)
	Put(ctx context.Context, key K, value V) error
}

// Mapper turns a tuple into a cache key and value.
type Mapper[K comparable, V any] interface {
	Key(t *topology.Tuple) (K, error)
	Value(t *topology.Tuple) (V, error)
}

// StoreHooks are optional callbacks around a store. Nil fields are no-ops.
type StoreHooks[K comparable, V any] struct {
	PreStore  func(t *topology.Tuple)
	PostStore func(c topology.Collector, t *topology.Tuple, key K, value V)
}

// LookupHooks are optional callbacks around a lookup.
// A nil PostLookup emits (key, value) when the value is present.
type LookupHooks[K comparable, V any] struct {
	PreLookup func(t *topology.Tuple)
	// PostLookup receives nil key when key extraction failed and nil value
	// on a miss or a cache error.
	PostLookup func(c topology.Collector, t *topology.Tuple, key *K, value *V)
}

// DefaultPostLookup emits (key, value) anchored to t when value is present.
func DefaultPostLookup[K comparable, V any](c topology.Collector, t *topology.Tuple, key *K, value *V) {
	if key == nil || value == nil {
		return
	}
	if err := c.Emit(t, *key, *value); err != nil {
		c.ReportError(err)
	}
}

// LookupOutputFields are the fields DefaultPostLookup emits.
func LookupOutputFields() topology.Fields {
	return topology.NewFields(FieldKey, FieldValue)
}
