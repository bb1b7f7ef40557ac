package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks lifecycle throughput. A nil *Metrics is a no-op.
type Metrics struct {
	Submissions     *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	ScoringFailures prometheus.Counter
	Duration        *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_applications_submitted_total",
			Help: "Applications accepted, by scheme",
		}, []string{"scheme_id"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_application_transitions_total",
			Help: "Lifecycle operations by name and outcome",
		}, []string{"operation", "outcome"}),
		ScoringFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_application_scoring_failures_total",
			Help: "Submissions stored without a score because the scorer failed",
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidledger_application_operation_duration_seconds",
			Help:    "Latency of lifecycle operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) incSubmission(schemeID string) {
	if m != nil {
		m.Submissions.WithLabelValues(schemeID).Inc()
	}
}

func (m *Metrics) observe(operation, outcome string, seconds float64) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, outcome).Inc()
		m.Duration.WithLabelValues(operation).Observe(seconds)
	}
}

func (m *Metrics) incScoringFailure() {
	if m != nil {
		m.ScoringFailures.Inc()
	}
}
