// Package component registers spout and bolt factories and creates
// component instances from configuration.
//
// Factories are registered explicitly: each spout or bolt package exports a
// Register(*Registry) error function and componentregistry.Register calls
// them all. Nothing registers itself from init, so tests can build isolated
// registries.
//
//	func Register(registry *component.Registry) error {
//		return registry.RegisterWithConfig(component.RegistrationConfig{
//			Name:        "cassandra",
//			Type:        types.ComponentTypeBolt,
//			Protocol:    "cql",
//			Description: "Writes messages into a Cassandra table",
//			Version:     "1.0.0",
//			Bolt:        NewBolt,
//		})
//	}
//
// Factories parse their own configuration, typically with SafeUnmarshal, and
// must not perform I/O: connections are opened in Prepare or Open, where a
// failure surfaces as an initialization error.
package component
