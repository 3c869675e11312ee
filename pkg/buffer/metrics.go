package buffer

import (
	"github.com/c360/gazestream/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics holds Prometheus metrics for buffer operations.
type bufferMetrics struct {
	writes   prometheus.Counter
	reads    prometheus.Counter
	timeouts prometheus.Counter
	size     prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"component": prefix}
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "buffer",
			Name:        "writes_total",
			ConstLabels: labels,
			Help:        "Total number of buffer write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "buffer",
			Name:        "reads_total",
			ConstLabels: labels,
			Help:        "Total number of buffer read operations",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gazestream",
			Subsystem:   "buffer",
			Name:        "read_timeouts_total",
			ConstLabels: labels,
			Help:        "Total number of timed reads that expired without an item",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gazestream",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of items in buffer",
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_read_timeouts", m.timeouts); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size int) {
	m.writes.Inc()
	m.size.Set(float64(size))
}

func (m *bufferMetrics) recordRead(size int) {
	m.reads.Inc()
	m.size.Set(float64(size))
}

func (m *bufferMetrics) recordReads(n, size int) {
	m.reads.Add(float64(n))
	m.size.Set(float64(size))
}

func (m *bufferMetrics) recordTimeout() {
	m.timeouts.Inc()
}

func (m *bufferMetrics) updateSize(size int) {
	m.size.Set(float64(size))
}
