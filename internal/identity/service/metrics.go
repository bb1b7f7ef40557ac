package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	id "aidledger/pkg/domain"
)

// Metrics counts identity outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	Logins        *prometheus.CounterVec
	Registrations prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_identity_logins_total",
			Help: "Login attempts by role and outcome",
		}, []string{"role", "outcome"}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_identity_registrations_total",
			Help: "Citizen accounts created",
		}),
	}
}

func (m *Metrics) incLogin(role id.Role, outcome string) {
	if m != nil {
		m.Logins.WithLabelValues(string(role), outcome).Inc()
	}
}

func (m *Metrics) incRegistration() {
	if m != nil {
		m.Registrations.Inc()
	}
}
