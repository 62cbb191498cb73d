package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts step outcomes and times steps. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates Metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cibox",
			Name:      "steps_total",
			Help:      "Pipeline steps by outcome.",
		}, []string{"pipeline", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cibox",
			Name:      "step_duration_seconds",
			Help:      "Wall time of executed pipeline steps.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"pipeline"}),
	}
	m.registry.MustRegister(m.steps, m.duration)
	return m
}

func (m *Metrics) observe(pipeline string, o Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(pipeline, o.String()).Inc()
	if o != OutcomeSkipped {
		m.duration.WithLabelValues(pipeline).Observe(d.Seconds())
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node-exporter textfile format.
// The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
