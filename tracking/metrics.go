package tracking

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gazestream/metric"
)

// Metrics holds Prometheus metrics for the tracker
type Metrics struct {
	ticks     prometheus.Counter
	idleTicks prometheus.Counter
	applied   prometheus.Counter
	openness  *prometheus.GaugeVec
	pupil     *prometheus.GaugeVec
	minPupil  prometheus.Gauge
}

func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "ticks_total",
			Help:      "Consumer ticks",
		}),
		idleTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "idle_ticks_total",
			Help:      "Ticks whose read wait expired without a record",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "records_applied_total",
			Help:      "Records folded into the tracker state",
		}),
		openness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "openness",
			Help:      "Filtered eye openness",
		}, []string{"eye"}),
		pupil: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "pupil_diameter_mm",
			Help:      "Filtered pupil diameter",
		}, []string{"eye"}),
		minPupil: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gazestream",
			Subsystem: "tracker",
			Name:      "min_pupil_diameter_mm",
			Help:      "Smallest mean pupil diameter seen",
		}),
	}

	regs := []func() error{
		func() error { return registry.RegisterCounter("tracker", "ticks", m.ticks) },
		func() error { return registry.RegisterCounter("tracker", "idle_ticks", m.idleTicks) },
		func() error { return registry.RegisterCounter("tracker", "records_applied", m.applied) },
		func() error { return registry.RegisterGaugeVec("tracker", "openness", m.openness) },
		func() error { return registry.RegisterGaugeVec("tracker", "pupil_diameter", m.pupil) },
		func() error { return registry.RegisterGauge("tracker", "min_pupil_diameter", m.minPupil) },
	}
	for _, register := range regs {
		if err := register(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordApplied(s State) {
	m.applied.Inc()
	m.openness.WithLabelValues("left").Set(float64(s.Left.Openness))
	m.openness.WithLabelValues("right").Set(float64(s.Right.Openness))
	m.pupil.WithLabelValues("left").Set(float64(s.Left.PupilDiameterMm))
	m.pupil.WithLabelValues("right").Set(float64(s.Right.PupilDiameterMm))
	if s.MinPupilValid {
		m.minPupil.Set(float64(s.MinPupilDiameterMm))
	}
}
