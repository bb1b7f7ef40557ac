package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "aidledger/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for the ledger writer.
type Metrics struct {
	EventsAppended  *prometheus.CounterVec
	PersistFailures prometheus.Counter
	FanoutDropped   prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers ledger metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_audit_events_appended_total",
			Help: "Audit events appended to the ledger, by type",
		}, []string{"type"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_persist_failures_total",
			Help: "Audit appends that failed and aborted their transition",
		}),
		FanoutDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_fanout_dropped_total",
			Help: "Stream copies dropped because the fan-out buffer was full",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidledger_audit_persist_duration_seconds",
			Help:    "Duration of synchronous ledger appends",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncEventsAppended(t audit.EventType) {
	m.EventsAppended.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) IncPersistFailures() { m.PersistFailures.Inc() }

func (m *Metrics) IncFanoutDropped() { m.FanoutDropped.Inc() }

func (m *Metrics) ObservePersistDuration(seconds float64) { m.PersistDuration.Observe(seconds) }
