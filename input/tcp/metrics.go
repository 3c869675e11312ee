package tcp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gazestream/metric"
)

// Metrics holds Prometheus metrics for the connection manager
type Metrics struct {
	framesDecoded     prometheus.Counter
	frameErrors       *prometheus.CounterVec
	streamErrors      prometheus.Counter
	handshakeFailures prometheus.Counter
	reconnects        prometheus.Counter
	reconnectAttempts prometheus.Gauge
	state             prometheus.Gauge
	lastActivity      prometheus.Gauge

	core *metric.Metrics

	registry    *metric.MetricsRegistry
	serviceName string
	registered  []string
}

// newMetrics creates and registers connection metrics labelled with the
// source address. A nil registry disables metrics.
func newMetrics(registry *metric.MetricsRegistry, addr string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	serviceName := "tcp_" + addr
	labels := prometheus.Labels{"addr": addr}

	m := &Metrics{
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "frames_decoded_total",
			Help:        "Frames decoded into records",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "frame_errors_total",
			Help:        "Frames rejected by the codec, by reason",
		}, []string{"reason"}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "stream_errors_total",
			Help:        "Read or write failures on an established stream",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "handshake_failures_total",
			Help:        "Failed connect handshakes, initial and reconnect",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "reconnects_total",
			Help:        "Successful reconnects",
		}),
		reconnectAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "reconnect_attempts",
			Help:        "Consecutive failed reconnect handshakes",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "state",
			Help:        "Connection state (0=disconnected, 1=connecting, 2=streaming, 3=reconnecting, 4=given_up)",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gazestream",
			Subsystem:   "tcp",
			ConstLabels: labels,
			Name:        "last_activity_timestamp",
			Help:        "Unix timestamp of the last decoded frame",
		}),
		core: registry.CoreMetrics(),
	}

	m.registry = registry
	m.serviceName = serviceName

	regs := []struct {
		name     string
		register func() error
	}{
		{"frames_decoded", func() error { return registry.RegisterCounter(serviceName, "frames_decoded", m.framesDecoded) }},
		{"frame_errors", func() error { return registry.RegisterCounterVec(serviceName, "frame_errors", m.frameErrors) }},
		{"stream_errors", func() error { return registry.RegisterCounter(serviceName, "stream_errors", m.streamErrors) }},
		{"handshake_failures", func() error {
			return registry.RegisterCounter(serviceName, "handshake_failures", m.handshakeFailures)
		}},
		{"reconnects", func() error { return registry.RegisterCounter(serviceName, "reconnects", m.reconnects) }},
		{"reconnect_attempts", func() error {
			return registry.RegisterGauge(serviceName, "reconnect_attempts", m.reconnectAttempts)
		}},
		{"state", func() error { return registry.RegisterGauge(serviceName, "state", m.state) }},
		{"last_activity", func() error { return registry.RegisterGauge(serviceName, "last_activity", m.lastActivity) }},
	}
	for _, r := range regs {
		if err := r.register(); err != nil {
			m.unregister()
			return nil, err
		}
		m.registered = append(m.registered, r.name)
	}

	return m, nil
}

// unregister removes every collector newMetrics registered, so a later
// manager for the same address can register again.
func (m *Metrics) unregister() {
	if m == nil || m.registry == nil {
		return
	}
	for _, name := range m.registered {
		m.registry.Unregister(m.serviceName, name)
	}
	m.registered = nil
}
