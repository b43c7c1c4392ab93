package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for tenant resolution on the admission path.
type Metrics struct {
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ResolveDuration  prometheus.Histogram
	ResolveFailures  *prometheus.CounterVec
	SuspendedRejects prometheus.Counter
}

// New registers tenant metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "loyalgate_tenant_cache_hits_total",
			Help: "Tenant lookups served from the short-lived cache",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "loyalgate_tenant_cache_misses_total",
			Help: "Tenant lookups that went to the store",
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "loyalgate_tenant_resolve_duration_seconds",
			Help:    "Duration of tenant resolution (admission critical path)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ResolveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "loyalgate_tenant_resolve_failures_total",
			Help: "Tenant resolution failures by reason",
		}, []string{"reason"}),
		SuspendedRejects: f.NewCounter(prometheus.CounterOpts{
			Name: "loyalgate_tenant_suspended_rejections_total",
			Help: "Requests rejected because their tenant is suspended",
		}),
	}
}

func (m *Metrics) IncrementCacheHit() {
	m.CacheHits.Inc()
}

func (m *Metrics) IncrementCacheMiss() {
	m.CacheMisses.Inc()
}

// ObserveResolve records the duration of a Resolve call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementFailure(reason string) {
	m.ResolveFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementSuspended() {
	m.SuspendedRejects.Inc()
}
