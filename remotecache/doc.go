// Package remotecache opens and shares the key-value caches used by the
// cache bolts.
//
// A Registry is built once at process start and passed to every component
// that needs a cache. Get returns one shared Handle per connection identity;
// concurrent first requests for the same identity wait for a single
// initialization and reuse its result. A failed initialization is returned
// to every waiter and is not remembered, so a later Get tries again.
//
// Backends:
//
//	redis   go-redis; several URLs form a cluster, the cache name is a key prefix
//	natskv  a JetStream key-value bucket named after the cache
//	local   an in-process LRU from pkg/cache
//
// Handles expose raw bytes. JSONCache and StringCache adapt them to typed
// values for the cache bolts.
package remotecache
