package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Admitted      *prometheus.CounterVec
	Rejected      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Degraded      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Admitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalgate_admission_admitted_total",
			Help: "Requests admitted by route class and principal kind",
		}, []string{"class", "principal_kind"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalgate_admission_rejected_total",
			Help: "Requests rejected by stage and failure kind",
		}, []string{"stage", "kind"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loyalgate_admission_stage_duration_seconds",
			Help:    "Time spent in each admission stage",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"stage"}),
		Degraded: f.NewCounter(prometheus.CounterOpts{
			Name: "loyalgate_admission_degraded_total",
			Help: "Requests admitted while the rate limit counter store was bypassed",
		}),
	}
}

func (m *Metrics) IncrementAdmitted(class, principalKind string) {
	m.Admitted.WithLabelValues(class, principalKind).Inc()
}

func (m *Metrics) IncrementRejected(stage, kind string) {
	m.Rejected.WithLabelValues(stage, kind).Inc()
}

func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDegraded() {
	m.Degraded.Inc()
}
