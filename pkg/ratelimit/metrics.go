package ratelimit

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAllowed       = "allowed"
	outcomeDenied        = "denied"
	outcomeFailOpen      = "fail_open"
	outcomeFailClosed    = "fail_closed"
	outcomeUnknownPolicy = "unknown_policy"
)

// Metrics counts limiter decisions per policy and outcome.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_ratelimit_decisions_total",
				Help: "Total number of rate limit decisions.",
			},
			[]string{"policy", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions)
	}
	return m
}

func (m *Metrics) observe(policy, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(policy, outcome).Inc()
}
