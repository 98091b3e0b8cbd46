// Package componentregistry registers every built-in stormbridge bolt and
// spout factory.
package componentregistry

import (
	"errors"

	"github.com/c360/stormbridge/bolt/cachefactory"
	"github.com/c360/stormbridge/bolt/cassandra"
	"github.com/c360/stormbridge/bolt/convert"
	"github.com/c360/stormbridge/bolt/elasticsearch"
	"github.com/c360/stormbridge/bolt/hbase"
	"github.com/c360/stormbridge/bolt/sqlsink"
	"github.com/c360/stormbridge/component"
	pkgerrors "github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/spout/kafka"
	"github.com/c360/stormbridge/spout/mqtt"
	"github.com/c360/stormbridge/spout/rabbitmq"
	"github.com/c360/stormbridge/spout/snmp"
	"github.com/c360/stormbridge/spout/udp"
	"github.com/c360/stormbridge/spout/websocket"
)

type registerFunc func(*component.Registry) error

var builtins = []struct {
	what     string
	register registerFunc
}{
	// Sources
	{"MQTT spout", mqtt.Register},
	{"RabbitMQ spout", rabbitmq.Register},
	{"Kafka spout", kafka.Register},
	{"SNMP trap spout", snmp.Register},
	{"WebSocket spout", websocket.Register},
	{"UDP spout", udp.Register},

	// Conversion and caching
	{"convert bolt", convert.Register},
	{"cache bolts", cachefactory.Register},

	// Sinks
	{"Cassandra sink", cassandra.Register},
	{"Elasticsearch sink", elasticsearch.Register},
	{"SQL sink", sqlsink.Register},
	{"HBase sink", hbase.Register},
}

// Register registers all built-in components with registry:
//
// Spouts:
//   - mqtt, rabbitmq, kafka, snmp, websocket, udp
//
// Bolts:
//   - convert (raw record to StreamMessage)
//   - cache_store, cache_lookup (remote cache)
//   - cassandra, elasticsearch, sql, hbase (sinks)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error, not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	for _, b := range builtins {
		if err := b.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", b.what+" registration")
		}
	}
	return nil
}
