// Package message defines the envelope every stormbridge adapter reads and
// writes.
//
// A StreamMessage pairs a Header (message id, epoch-millis timestamp, source,
// type tag, message key and ordered additional headers) with an opaque Body:
// a string, a list, or a nested map. Converters build messages from raw
// inbound payloads; sinks flatten them back to ordered maps.
//
// # Field Access
//
// Envelope types are addressable by name without reflection. StreamMessage,
// *Header and *OrderedMap implement FieldGetter with a static table of
// accessors, so a path such as "header.messageKey" can be resolved by the
// fieldpath package against any of them:
//
//	msg.GetField("header")          // *Header, true
//	msg.Header.GetField("source")   // "sensor-1", true
//	msg.Header.GetField("history")  // nil, false
//
// # Wire Form
//
// Messages travel between topology stages as JSON:
//
//	{"header":{"messageId":"...","timestamp":1700000000000,"source":"...","type":"json"},"body":...}
//
// Additional headers keep their insertion order on the wire and after decoding.
package message
