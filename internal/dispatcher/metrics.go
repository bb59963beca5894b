package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatcher's prometheus collectors.
type Metrics struct {
	jobs      *prometheus.CounterVec
	debounced *prometheus.CounterVec
	depth     prometheus.Gauge
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the dispatcher metrics on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "superstate",
			Subsystem: "dispatcher",
			Name:      "jobs_total",
			Help:      "Jobs executed, by kind and result.",
		}, []string{"kind", "result"}),
		debounced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "superstate",
			Subsystem: "dispatcher",
			Name:      "debounced_total",
			Help:      "Submissions joined to an identical in-flight job.",
		}, []string{"kind"}),
		depth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "superstate",
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a free slot.",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "superstate",
			Subsystem: "dispatcher",
			Name:      "job_duration_seconds",
			Help:      "Job execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(kind Kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(kind), result).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) debounce(kind Kind) {
	if m != nil {
		m.debounced.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) setDepth(n int) {
	if m != nil {
		m.depth.Set(float64(n))
	}
}
