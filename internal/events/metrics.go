package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts publish outcomes per event type.
type Metrics struct {
	Published *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_user_events_published_total",
			Help: "User events acknowledged by the broker",
		}, []string{"event_type"}),
		Failed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_user_events_failed_total",
			Help: "User events that could not be delivered",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) incPublished(t Type) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) incFailed(t Type) {
	if m == nil {
		return
	}
	m.Failed.WithLabelValues(string(t)).Inc()
}
