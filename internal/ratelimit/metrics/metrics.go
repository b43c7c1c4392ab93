package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	CircuitOpen    prometheus.Gauge
	FallbackChecks *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalgate_ratelimit_decisions_total",
			Help: "Rate limit decisions by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "loyalgate_ratelimit_store_errors_total",
			Help: "Counter store calls that failed or timed out",
		}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "loyalgate_ratelimit_circuit_open",
			Help: "1 while the counter store circuit breaker is open",
		}),
		FallbackChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalgate_ratelimit_fallback_decisions_total",
			Help: "Decisions taken without the counter store, by fail policy",
		}, []string{"policy"}),
	}
}

func (m *Metrics) IncrementDecision(class string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "limited"
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementFallback(policy string) {
	m.FallbackChecks.WithLabelValues(policy).Inc()
}
