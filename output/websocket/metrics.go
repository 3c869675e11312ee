package websocket

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gazestream/metric"
)

// Metrics holds Prometheus metrics for the WebSocket output
type Metrics struct {
	messagesSent       *prometheus.CounterVec
	messagesDropped    *prometheus.CounterVec
	bytesSent          prometheus.Counter
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	broadcastDuration  prometheus.Histogram
	errorsTotal        *prometheus.CounterVec
	throttled          prometheus.Counter
}

// newMetrics creates and registers output metrics. A nil registry disables them.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total messages sent to WebSocket clients",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "messages_dropped_total",
			Help:      "Messages not queued because a client's send queue was full",
		}, []string{"type"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to WebSocket clients",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "client_connections_total",
			Help:      "Total client connections (including disconnected)",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "client_disconnections_total",
			Help:      "Total client disconnections",
		}, []string{"reason"}),
		broadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to queue one message for all clients",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "WebSocket output errors",
		}, []string{"error_type"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "websocket",
			Name:      "states_throttled_total",
			Help:      "State snapshots dropped by the broadcast rate limit",
		}),
	}

	regs := []func() error{
		func() error { return registry.RegisterCounterVec("websocket", "messages_sent", m.messagesSent) },
		func() error { return registry.RegisterCounterVec("websocket", "messages_dropped", m.messagesDropped) },
		func() error { return registry.RegisterCounter("websocket", "bytes_sent", m.bytesSent) },
		func() error { return registry.RegisterGauge("websocket", "clients_connected", m.clientsConnected) },
		func() error { return registry.RegisterCounter("websocket", "client_connections", m.connectionTotal) },
		func() error {
			return registry.RegisterCounterVec("websocket", "client_disconnections", m.disconnectionTotal)
		},
		func() error {
			return registry.RegisterHistogram("websocket", "broadcast_duration", m.broadcastDuration)
		},
		func() error { return registry.RegisterCounterVec("websocket", "errors", m.errorsTotal) },
		func() error { return registry.RegisterCounter("websocket", "states_throttled", m.throttled) },
	}
	for _, reg := range regs {
		if err := reg(); err != nil {
			return nil, err
		}
	}
	return m, nil
}
