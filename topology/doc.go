// Package topology defines the contracts between stream components and the
// runtime that hosts them.
//
// A Spout pulls records from an external system and emits them as tuples.
// A Bolt receives tuples one at a time and emits, acks or fails each one
// through its Collector. The runtime owns scheduling and delivery: every
// hosted component is driven by a single goroutine, so implementations need
// no locking of their own state.
//
// Tuples carry ordered Values named by Fields. Tuple implements
// message.FieldGetter, so a field path such as "message.header.messageKey"
// can be resolved against a tuple with the fieldpath package.
//
// Tuples cross process boundaries through a Codec, which keeps the Go type of
// every registered value kind intact on the wire.
package topology
