package httpapi

import (
	"net/http"
	"time"

	admissionmodels "loyalgate/internal/admission/models"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/httputil"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(ready func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r); err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "not ready"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// ContextResponse is what a downstream handler sees after admission.
type ContextResponse struct {
	RequestID     string   `json:"request_id"`
	TenantID      string   `json:"tenant_id"`
	IsolationKey  string   `json:"isolation_key"`
	Tier          string   `json:"tier"`
	PrincipalID   string   `json:"principal_id"`
	PrincipalKind string   `json:"principal_kind"`
	AuthMethod    string   `json:"auth_method"`
	Scopes        []string `json:"scopes"`
	RouteClass    string   `json:"route_class"`
	RateRemaining int      `json:"rate_remaining"`
	RateResetAt   string   `json:"rate_reset_at"`
}

func handleContext(w http.ResponseWriter, r *http.Request) {
	rc, ok := admissionmodels.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "admission context missing"))
		return
	}
	tenant, ok := rc.Tenant()
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "a tenant credential is required"))
		return
	}
	p := rc.Principal()
	decision := rc.RateLimit()
	httputil.WriteJSON(w, http.StatusOK, ContextResponse{
		RequestID:     rc.RequestID(),
		TenantID:      tenant.ID.String(),
		IsolationKey:  tenant.IsolationKey,
		Tier:          tenant.Tier,
		PrincipalID:   p.ID,
		PrincipalKind: string(p.Kind),
		AuthMethod:    string(p.Method),
		Scopes:        p.Scopes,
		RouteClass:    string(rc.RouteClass()),
		RateRemaining: decision.Remaining,
		RateResetAt:   decision.ResetAt.UTC().Format(time.RFC3339),
	})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if rc, ok := admissionmodels.FromContext(r.Context()); ok {
		p := rc.Principal()
		resp["authenticated"] = !p.IsAnonymous()
		resp["rate_remaining"] = rc.RateRemaining()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
