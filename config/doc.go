// Package config loads the stormbridge process configuration.
//
// A Config names the NATS connection and the JetStream stream tuples travel
// on, the metrics endpoint, the remote caches bolts may refer to by name and
// the component instances to host.
//
// # Loading
//
// Loader merges layers over Default. Each layer is a JSON or YAML file
// (chosen by extension); nested objects merge key by key while arrays and
// scalars replace. Environment variables are applied last:
//
//	STORMBRIDGE_NATS_URLS       comma separated server list
//	STORMBRIDGE_NATS_USERNAME
//	STORMBRIDGE_NATS_PASSWORD
//	STORMBRIDGE_NATS_TOKEN
//	STORMBRIDGE_METRICS_PORT
//
// Example:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.yaml")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// # File format
//
//	{
//	  "nats": {
//	    "urls": ["nats://localhost:4222"],
//	    "stream": {"name": "STORMBRIDGE", "subjects": ["stormbridge.>"]}
//	  },
//	  "caches": {
//	    "devices": {"kind": "redis", "urls": ["redis:6379"], "ttl_seconds": 300}
//	  },
//	  "components": {
//	    "mqtt-sensors": {
//	      "type": "spout", "name": "mqtt", "enabled": true,
//	      "output": "stormbridge.raw.sensors",
//	      "config": {"brokers": ["tcp://broker:1883"], "topics": ["sensors/#"]}
//	    }
//	  }
//	}
//
// Durations accept Go duration strings, a day count such as "14d", or
// nanoseconds.
//
// Config files are read only from regular files with a .json, .yaml or .yml
// extension, up to 10MB and 100 levels of nesting.
package config
