// Package bolt holds the sink skeleton shared by the datastore bolts in its
// subpackages.
//
// A sink reads the StreamMessage carried in one tuple field, flattens it with
// a converter's ToMap and hands both to a Writer. Every tuple is acked
// exactly once. A record that cannot be converted or written is logged and
// dropped; only Prepare errors stop the bolt.
package bolt
