// Package errors provides standardized error handling for stormbridge components.
//
// # Overview
//
// Every error a spout, bolt or cache produces falls into one of three classes:
// Transient (an external client hiccup), Invalid (a record or configuration that
// can never succeed) and Fatal (the component cannot start or continue).
//
// On top of the classes sit the three failure kinds adapters deal with:
//
//   - ConversionFailed: a field path could not be resolved, or a protocol
//     converter met malformed or missing input. Class Invalid. The record is
//     logged and acknowledged, never forwarded.
//   - CacheOperationFailed: a remote cache client returned an error on get or
//     put. Class Transient. Treated as "no value" or "write skipped".
//   - InitializationFailed: a cache handle, client session or producer could not
//     be established at startup. Class Fatal. The only error a component
//     propagates; it prevents the component from starting.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers set the class explicitly:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The kind constructors chain the matching sentinel so errors.Is works on both
// the kind and the original cause:
//
//	err := errors.CacheOperationFailed(redisErr, "StoreBolt", "Execute", "put")
//	errors.Is(err, errors.ErrCacheOperationFailed) // true
//	errors.Is(err, redisErr)                       // true
//	errors.IsTransient(err)                        // true
//
// # Propagation
//
// Per-record errors are always recovered where they occur. No error is retried
// by this module; retry policy, if any, belongs to the wrapped client.
package errors
