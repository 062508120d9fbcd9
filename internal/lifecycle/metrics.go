package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records lifecycle job outcomes.
type Metrics struct {
	RowsMutated *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Failures    *prometheus.CounterVec
	Skipped     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		RowsMutated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_lifecycle_rows_mutated_total",
			Help: "Identities changed or removed by lifecycle jobs",
		}, []string{"job"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elibrary_lifecycle_job_duration_seconds",
			Help:    "Wall time of lifecycle job runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		Failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_lifecycle_job_failures_total",
			Help: "Lifecycle job runs that rolled back",
		}, []string{"job"}),
		Skipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_lifecycle_job_skipped_total",
			Help: "Lifecycle job triggers that did not run",
		}, []string{"job", "reason"}),
	}
}

func (m *Metrics) observeRun(job Job, mutated int64, start time.Time) {
	if m == nil {
		return
	}
	m.RowsMutated.WithLabelValues(string(job)).Add(float64(mutated))
	m.Duration.WithLabelValues(string(job)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) incFailure(job Job) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(string(job)).Inc()
}

func (m *Metrics) incSkipped(job Job, reason string) {
	if m == nil {
		return
	}
	m.Skipped.WithLabelValues(string(job), reason).Inc()
}
