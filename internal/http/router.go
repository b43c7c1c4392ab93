// Package httpapi assembles the HTTP surface: platform middleware, infrastructure endpoints
// and admission-guarded routes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"loyalgate/internal/admission"
	authhandler "loyalgate/internal/auth/handler"
	"loyalgate/internal/platform/metrics"
	"loyalgate/internal/platform/middleware"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Pipeline    *admission.Pipeline
	APIKeys     authhandler.Service
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.Metrics
	Logger      *slog.Logger
	// Ready reports whether backing stores are reachable. nil means always ready.
	Ready func(r *http.Request) error
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool
}

var (
	contextRoute = admission.Route{Name: "loyalty.context", Class: ratelimitmodels.ClassRead}
	statusRoute  = admission.Route{Name: "public.status", Class: ratelimitmodels.ClassRead, Public: true}
)

// NewRouter builds the handler tree. Infrastructure endpoints (/healthz, /readyz, /metrics)
// bypass admission; everything under /api is admitted first.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata(d.TrustProxyHeaders))
	r.Use(middleware.AccessLog(d.Logger, d.HTTPMetrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(d.Ready))
	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Registry))
	}

	r.With(d.Pipeline.Middleware(statusRoute)).Get("/api/public/status", handleStatus)
	r.With(d.Pipeline.Middleware(contextRoute)).Get("/api/loyalty/context", handleContext)
	authhandler.New(d.APIKeys, d.Logger).Register(r, d.Pipeline)

	return otelhttp.NewHandler(r, "loyalgate",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" && r.URL.Path != "/metrics" }),
	)
}
