package claims

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for claim evaluation.
type Metrics struct {
	EvaluationsTotal prometheus.Counter
	ClaimOutcomes    *prometheus.CounterVec
}

// NewMetrics registers the claim metrics with registry (the default
// registerer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &Metrics{
		EvaluationsTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "trust_claim_evaluations_total",
			Help: "Total number of trust claim evaluations",
		}),
		ClaimOutcomes: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "trust_claim_outcomes_total",
			Help: "Trust claim outcomes by claim and verdict",
		}, []string{"claim", "verdict"}),
	}
}

// RecordEvaluation records the outcome of one evaluation.
func (m *Metrics) RecordEvaluation(v TrustVector) {
	m.EvaluationsTotal.Inc()
	m.ClaimOutcomes.WithLabelValues("executables", verdict(v.Executables)).Inc()
	m.ClaimOutcomes.WithLabelValues("configuration", verdict(v.Configuration)).Inc()
	m.ClaimOutcomes.WithLabelValues("file_system", verdict(v.FileSystem)).Inc()
}

func verdict(c Claim) string {
	if c.IsVerified() {
		return "verified"
	}
	return "unverified"
}
