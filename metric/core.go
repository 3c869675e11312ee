package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains process-wide metrics shared by all components.
// Component-specific metrics are registered through MetricsRegistrar.
type Metrics struct {
	RecordsReceived  *prometheus.CounterVec
	RecordsDelivered *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	HealthStatus     *prometheus.GaugeVec

	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gazestream",
				Subsystem: "records",
				Name:      "received_total",
				Help:      "Total number of records decoded from a source",
			},
			[]string{"source"},
		),

		RecordsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gazestream",
				Subsystem: "records",
				Name:      "delivered_total",
				Help:      "Total number of records handed to an output",
			},
			[]string{"output"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gazestream",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),

		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gazestream",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health status (0=healthy, 1=degraded, 2=unhealthy)",
			},
			[]string{"component"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gazestream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gazestream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.RecordsReceived,
		c.RecordsDelivered,
		c.ErrorsTotal,
		c.HealthStatus,
		c.NATSConnected,
		c.NATSReconnects,
	}
}

// RecordReceived increments the received counter for source
func (c *Metrics) RecordReceived(source string) {
	c.RecordsReceived.WithLabelValues(source).Inc()
}

// RecordDelivered increments the delivered counter for output
func (c *Metrics) RecordDelivered(output string) {
	c.RecordsDelivered.WithLabelValues(output).Inc()
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordHealth sets the health gauge for component
func (c *Metrics) RecordHealth(component string, level int) {
	c.HealthStatus.WithLabelValues(component).Set(float64(level))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
