package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconciliationMetrics counts how processor verdicts land on orders.
type ReconciliationMetrics struct {
	outcomes *prometheus.CounterVec
	verify   *prometheus.HistogramVec
	sessions *prometheus.CounterVec
}

// NewReconciliationMetrics registers the reconciliation metrics on the provided registerer.
func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return &ReconciliationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_outcomes_total",
		Help: "Reconciliation results by source (return, webhook, sweep) and outcome.",
	}, []string{"source", "outcome"})
	verify := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_verification_duration_seconds",
		Help:    "Latency of processor session status lookups.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session open attempts by result.",
	}, []string{"result"})
	reg.MustRegister(outcomes, verify, sessions)
	return &ReconciliationMetrics{outcomes: outcomes, verify: verify, sessions: sessions}
}

// IncOutcome records one reconciliation result.
func (m *ReconciliationMetrics) IncOutcome(source, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveVerification records a processor lookup latency.
func (m *ReconciliationMetrics) ObserveVerification(result string, d time.Duration) {
	if m == nil || m.verify == nil {
		return
	}
	m.verify.WithLabelValues(normalizeLabel(result)).Observe(d.Seconds())
}

// IncSession records a checkout session open attempt.
func (m *ReconciliationMetrics) IncSession(result string) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.WithLabelValues(normalizeLabel(result)).Inc()
}
