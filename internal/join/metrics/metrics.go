package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the join module. A nil *Metrics is a
// no-op, so tests can pass nil without registering collectors.
type Metrics struct {
	// Join outcomes by result
	JoinOutcome *prometheus.CounterVec

	// End-to-end join latency including verification and the commit tx
	JoinLatency prometheus.Histogram

	// Duplicate resolutions by resolution branch
	DuplicateResolution *prometheus.CounterVec

	// Current occupancy pressure: conflict retries taken by the commit tx
	ConflictRetries prometheus.Counter
}

// New creates a Metrics instance with all join module metrics registered.
func New() *Metrics {
	return &Metrics{
		JoinOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zonegate_join_outcomes_total",
			Help: "Total join outcomes by result",
		}, []string{"result"}), // result: "committed", "duplicate", "rejected", "error"

		JoinLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zonegate_join_duration_seconds",
			Help:    "Duration of full join handling including verification and commit",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		DuplicateResolution: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zonegate_join_duplicate_resolutions_total",
			Help: "Duplicate join resolutions by branch",
		}, []string{"branch"}), // branch: "verified", "unverified", "conflict_retry"

		ConflictRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zonegate_join_conflict_retries_total",
			Help: "Commit transactions retried after a uniqueness conflict",
		}),
	}
}

// IncrementOutcome records a join outcome.
func (m *Metrics) IncrementOutcome(result string) {
	if m != nil {
		m.JoinOutcome.WithLabelValues(result).Inc()
	}
}

// ObserveJoinLatency records the total join handling duration.
func (m *Metrics) ObserveJoinLatency(d time.Duration) {
	if m != nil {
		m.JoinLatency.Observe(d.Seconds())
	}
}

// IncrementDuplicateResolution records which duplicate branch resolved a join.
func (m *Metrics) IncrementDuplicateResolution(branch string) {
	if m != nil {
		m.DuplicateResolution.WithLabelValues(branch).Inc()
	}
}

// IncrementConflictRetries records a commit retried after a unique violation.
func (m *Metrics) IncrementConflictRetries() {
	if m != nil {
		m.ConflictRetries.Inc()
	}
}
