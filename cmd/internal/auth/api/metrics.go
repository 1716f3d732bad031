package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the auth/record counters exported on /metrics.
type Metrics struct {
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	upserts       prometheus.Counter
}

// NewMetrics registers the API counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustbridge_registrations_total",
			Help: "Account registration attempts by outcome.",
		}, []string{"outcome"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trustbridge_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		upserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustbridge_record_upserts_total",
			Help: "Record upserts accepted.",
		}),
	}
}

func (m *Metrics) registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) upsert() {
	if m == nil {
		return
	}
	m.upserts.Inc()
}
