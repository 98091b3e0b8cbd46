// Package stormbridge moves records between stream topologies and the
// systems around them.
//
// # Architecture
//
// A topology is a set of spouts and bolts connected by NATS JetStream
// subjects:
//
//	┌────────────────────────────────────┐
//	│  Spouts                            │  mqtt, rabbitmq, kafka, snmp,
//	│  (external broker → RawRecord)     │  websocket, udp
//	└────────────────────────────────────┘
//	           ↓ JetStream subject
//	┌────────────────────────────────────┐
//	│  convert bolt                      │  json, twitterjson, snmp, raw
//	│  (RawRecord → StreamMessage)       │
//	└────────────────────────────────────┘
//	           ↓ JetStream subject
//	┌────────────────────────────────────┐
//	│  cache and sink bolts              │  cache_store, cache_lookup,
//	│  (StreamMessage → external store)  │  cassandra, elasticsearch, sql,
//	└────────────────────────────────────┘  hbase
//
// Every converted record travels as a message.StreamMessage: a typed header
// plus a body. Converters build it from raw records; fieldpath reads values
// out of it with delimited paths such as "header.messageKey" or
// "header.additionalHeaders.device".
//
// # Packages
//
//   - message: the StreamMessage envelope
//   - fieldpath: dotted-path field extraction
//   - converter: raw record to StreamMessage converters
//   - topology: tuple, collector, spout and bolt contracts, plus the
//     natsrunner host and the topologytest recording collector
//   - spout, bolt: the built-in components
//   - cachebolt, remotecache: cache-backed lookup and store over Redis,
//     NATS KV or an in-process LRU
//   - component, componentregistry: factory registration and creation
//   - config, metric, health, natsclient, errors: process plumbing
//
// # Running
//
//	stormbridge --config topology.yaml
//	stormbridge --config base.json,prod.yaml --validate
//
// schema-exporter writes a JSON Schema for each component's config block and
// checks topology files against them.
package stormbridge
