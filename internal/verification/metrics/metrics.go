package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module. A nil *Metrics
// is a no-op, so tests can pass nil without registering collectors.
type Metrics struct {
	// Attempt outcomes by kind and terminal status
	AttemptOutcome *prometheus.CounterVec

	// Image evaluation latency
	EvaluateLatency prometheus.Histogram

	// Cooldown rejections by kind
	CooldownRejections *prometheus.CounterVec
}

// New creates a Metrics instance with all verification module metrics registered.
func New() *Metrics {
	return &Metrics{
		AttemptOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zonegate_verification_outcomes_total",
			Help: "Total verification attempt outcomes by kind and status",
		}, []string{"kind", "status"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zonegate_verification_evaluate_duration_seconds",
			Help:    "Duration of proof image evaluation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),

		CooldownRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zonegate_verification_cooldown_rejections_total",
			Help: "Attempts rejected because a cooldown was still active",
		}, []string{"kind"}),
	}
}

// IncrementOutcome records a terminal attempt outcome.
func (m *Metrics) IncrementOutcome(kind, status string) {
	if m != nil {
		m.AttemptOutcome.WithLabelValues(kind, status).Inc()
	}
}

// ObserveEvaluateLatency records an image evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementCooldownRejection records an attempt blocked by an active cooldown.
func (m *Metrics) IncrementCooldownRejection(kind string) {
	if m != nil {
		m.CooldownRejections.WithLabelValues(kind).Inc()
	}
}
