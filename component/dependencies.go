package component

import (
	"log/slog"

	"github.com/c360/stormbridge/converter"
	"github.com/c360/stormbridge/metric"
	"github.com/c360/stormbridge/natsclient"
	"github.com/c360/stormbridge/remotecache"
)

// Dependencies are the shared resources handed to every factory.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS connection (can be nil in tests)
	Caches          *remotecache.Registry   // shared remote cache handles
	Converters      *converter.Registry     // converter factories by name
	MetricsRegistry *metric.MetricsRegistry // Prometheus registry (can be nil)
	Logger          *slog.Logger            // defaults to slog.Default()

	// InstanceName is set by the registry before a factory runs.
	InstanceName string
}

// GetLogger returns the configured logger or the default logger.
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger tagged with componentName.
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// Name returns the instance name, or fallback when unset.
func (d *Dependencies) Name(fallback string) string {
	if d.InstanceName != "" {
		return d.InstanceName
	}
	return fallback
}

// GetConverters returns the configured converter registry or the built-in one.
func (d *Dependencies) GetConverters() *converter.Registry {
	if d.Converters != nil {
		return d.Converters
	}
	return converter.NewRegistry()
}

// Registrar returns the metrics registrar, or nil when metrics are off.
func (d *Dependencies) Registrar() metric.MetricsRegistrar {
	if d.MetricsRegistry == nil {
		return nil
	}
	return d.MetricsRegistry
}
