// Package metric provides Prometheus metrics for stormbridge.
//
// A MetricsRegistry owns a private Prometheus registry with the core runtime
// metrics already registered (namespace "stormbridge"):
//
//   - stormbridge_component_status{component}
//   - stormbridge_tuples_received_total{component}
//   - stormbridge_tuples_acked_total{component}
//   - stormbridge_tuples_failed_total{component}
//   - stormbridge_tuples_emitted_total{component,subject}
//   - stormbridge_processing_duration_seconds{component,operation}
//   - stormbridge_errors_total{component,class}
//   - stormbridge_nats_connected, stormbridge_nats_rtt_milliseconds,
//     stormbridge_nats_reconnects_total
//
// Components register their own collectors through MetricsRegistrar, keyed by
// component and metric name so the same name can be reused per instance:
//
//	stored := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace:   "stormbridge",
//	    Subsystem:   "cache",
//	    Name:        "stored_total",
//	    ConstLabels: prometheus.Labels{"component": name},
//	})
//	err := registry.RegisterCounter(name, "stored_total", stored)
//
// Server exposes the registry at /metrics and a health probe at /health:
//
//	server := metric.NewServer(9090, "/metrics", registry, client.IsHealthy)
//	go server.Start()
//	defer server.Stop()
package metric
