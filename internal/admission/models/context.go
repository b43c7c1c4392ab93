// Package models holds the admission outcome handed to downstream handlers.
package models

import (
	"context"
	"slices"
	"time"

	authmodels "loyalgate/internal/auth/models"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	tenantmodels "loyalgate/internal/tenant/models"
)

// Stage is a state of the per-request admission state machine.
type Stage string

const (
	StageUnauthenticated    Stage = "unauthenticated"
	StageCredentialResolved Stage = "credential_resolved"
	StageAuthenticated      Stage = "authenticated"
	StageTenantBound        Stage = "tenant_bound"
	StageRateChecked        Stage = "rate_checked"
	StageAdmitted           Stage = "admitted"
	StageRejected           Stage = "rejected"
)

// RequestContext is built once when a request is admitted and never changes afterwards.
// Accessors return copies, so handlers cannot alter what later handlers observe.
type RequestContext struct {
	requestID  string
	tenant     *tenantmodels.Tenant
	principal  authmodels.Principal
	decision   ratelimitmodels.Decision
	routeClass ratelimitmodels.EndpointClass
	admittedAt time.Time
}

// NewRequestContext copies its inputs. tenant is nil for anonymous callers on public routes.
func NewRequestContext(
	requestID string,
	tenant *tenantmodels.Tenant,
	principal *authmodels.Principal,
	decision *ratelimitmodels.Decision,
	class ratelimitmodels.EndpointClass,
	admittedAt time.Time,
) *RequestContext {
	rc := &RequestContext{
		requestID:  requestID,
		routeClass: class,
		admittedAt: admittedAt,
	}
	if tenant != nil {
		t := *tenant
		rc.tenant = &t
	}
	if principal != nil {
		rc.principal = *principal
		rc.principal.Scopes = slices.Clone(principal.Scopes)
	}
	if decision != nil {
		rc.decision = *decision
	}
	return rc
}

func (rc *RequestContext) RequestID() string { return rc.requestID }

// Tenant returns the bound tenant. ok is false for anonymous requests.
func (rc *RequestContext) Tenant() (tenantmodels.Tenant, bool) {
	if rc.tenant == nil {
		return tenantmodels.Tenant{}, false
	}
	return *rc.tenant, true
}

// Scope is the filter every tenant-bound query must use. ok is false for anonymous requests.
func (rc *RequestContext) Scope() (tenantmodels.Scope, bool) {
	if rc.tenant == nil {
		return tenantmodels.Scope{}, false
	}
	return rc.tenant.Scope(), true
}

func (rc *RequestContext) Principal() authmodels.Principal {
	p := rc.principal
	p.Scopes = slices.Clone(rc.principal.Scopes)
	return p
}

func (rc *RequestContext) RateLimit() ratelimitmodels.Decision { return rc.decision }

func (rc *RequestContext) RateRemaining() int { return rc.decision.Remaining }

func (rc *RequestContext) RouteClass() ratelimitmodels.EndpointClass { return rc.routeClass }

func (rc *RequestContext) AdmittedAt() time.Time { return rc.admittedAt }

type contextKey struct{}

// WithRequestContext attaches rc to ctx. Only the admission middleware calls it.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext returns the admitted request context. ok is false when the request did not
// pass admission, which handlers must treat as a wiring bug.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(contextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}
