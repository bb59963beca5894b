package opqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are shared by every queue of an engine.
type Metrics struct {
	tasks *prometheus.CounterVec
	depth *prometheus.GaugeVec
}

// NewMetrics registers the queue metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "superstate",
			Subsystem: "opqueue",
			Name:      "tasks_total",
			Help:      "Context mutations executed, by result.",
		}, []string{"result"}),
		depth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "superstate",
			Subsystem: "opqueue",
			Name:      "depth",
			Help:      "Pending context mutations per queue.",
		}, []string{"queue"}),
	}
}

func (m *Metrics) task(result string) {
	if m != nil {
		m.tasks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) setDepth(queue string, n int) {
	if m != nil {
		m.depth.WithLabelValues(queue).Set(float64(n))
	}
}
