// Package cachebolt provides bolts that write tuples into, and look tuples
// up in, a remote key-value cache.
//
// Both bolts follow a fixed sequence per tuple and acknowledge every tuple
// exactly once, whichever step fails. Failures are logged and counted;
// nothing is retried here. Retry policy, if any, belongs to the cache
// client.
//
// Store:
//
//	PreStore -> key -> value -> Put -> PostStore -> Ack
//
// A failing key, value or Put step logs, acks and stops.
//
// Lookup:
//
//	PreLookup -> key -> Get -> PostLookup -> Ack
//
// A failing key step continues with a nil key and skips Get. A failing Get
// continues with a nil value. The default PostLookup emits (key, value)
// anchored to the input tuple when the value is present.
package cachebolt
