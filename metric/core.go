package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every core metric.
const Namespace = "stormbridge"

// Component status values recorded by RecordComponentStatus.
const (
	StatusStopped = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusFailed
)

// Metrics contains the runtime-level metrics shared by every hosted component
type Metrics struct {
	ComponentStatus    *prometheus.GaugeVec
	TuplesReceived     *prometheus.CounterVec
	TuplesAcked        *prometheus.CounterVec
	TuplesFailed       *prometheus.CounterVec
	TuplesEmitted      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec

	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates the core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		TuplesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "tuples",
				Name:      "received_total",
				Help:      "Tuples delivered to a bolt",
			},
			[]string{"component"},
		),

		TuplesAcked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "tuples",
				Name:      "acked_total",
				Help:      "Tuples acknowledged",
			},
			[]string{"component"},
		),

		TuplesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "tuples",
				Name:      "failed_total",
				Help:      "Tuples failed back to their source",
			},
			[]string{"component"},
		),

		TuplesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "tuples",
				Name:      "emitted_total",
				Help:      "Tuples emitted downstream",
			},
			[]string{"component", "subject"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Time spent in Execute or NextTuple",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"component", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by class",
			},
			[]string{"component", "class"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ComponentStatus,
		c.TuplesReceived,
		c.TuplesAcked,
		c.TuplesFailed,
		c.TuplesEmitted,
		c.ProcessingDuration,
		c.ErrorsTotal,
		c.NATSConnected,
		c.NATSRTT,
		c.NATSReconnects,
	}
}

// RecordComponentStatus updates component status
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordTupleReceived increments the received counter
func (c *Metrics) RecordTupleReceived(component string) {
	c.TuplesReceived.WithLabelValues(component).Inc()
}

// RecordTupleAcked increments the acked counter
func (c *Metrics) RecordTupleAcked(component string) {
	c.TuplesAcked.WithLabelValues(component).Inc()
}

// RecordTupleFailed increments the failed counter
func (c *Metrics) RecordTupleFailed(component string) {
	c.TuplesFailed.WithLabelValues(component).Inc()
}

// RecordTupleEmitted increments the emitted counter
func (c *Metrics) RecordTupleEmitted(component, subject string) {
	c.TuplesEmitted.WithLabelValues(component, subject).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(component, operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(component, operation).Observe(duration.Seconds())
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
