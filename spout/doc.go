// Package spout holds the pieces shared by the source spouts in its
// subpackages: the bounded hand-off queue between a client callback and
// NextTuple, the table of in-flight records awaiting Ack or Fail, and
// per-spout metrics.
//
// Every spout emits a single field, "record", holding a
// converter.RawRecord or a *converter.SNMPTrap.
package spout
