package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
// Tracks registration outcomes, mutations and the registration critical path.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	RegistrationRejected *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	Mutations            *prometheus.CounterVec
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_registrations_total",
			Help: "Identities created through registration",
		}, []string{"account_type"}),
		RegistrationRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_registration_rejections_total",
			Help: "Registrations rejected, by error code",
		}, []string{"reason"}),
		RegistrationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "elibrary_registration_duration_seconds",
			Help:    "Duration of Register operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Mutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "elibrary_identity_mutations_total",
			Help: "Administrative identity mutations, by operation",
		}, []string{"operation"}),
	}
}

// IncrementRegistered records a successful registration.
func (m *Metrics) IncrementRegistered(accountType string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(accountType).Inc()
}

// IncrementRejected records a rejected registration.
func (m *Metrics) IncrementRejected(reason string) {
	if m == nil {
		return
	}
	m.RegistrationRejected.WithLabelValues(reason).Inc()
}

// ObserveRegistration records the duration of a Register call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegistration(start time.Time) {
	if m == nil {
		return
	}
	m.RegistrationDuration.Observe(time.Since(start).Seconds())
}

// IncrementMutation records a profile, role, status, login or delete edit.
func (m *Metrics) IncrementMutation(operation string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(operation).Inc()
}
