package admission

import (
	"net/http"

	"loyalgate/internal/admission/models"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	dErrors "loyalgate/pkg/domain-errors"
)

// External error codes. Clients see only these; the internal kind goes to logs and audit.
const (
	ExternalAuthRequired         = "AUTH_REQUIRED"
	ExternalAuthInvalid          = "AUTH_INVALID"
	ExternalTenantBlocked        = "TENANT_BLOCKED"
	ExternalInsufficientScope    = "INSUFFICIENT_SCOPE"
	ExternalRateLimited          = "RATE_LIMITED"
	ExternalAuthUnavailable      = "AUTH_UNAVAILABLE"
	ExternalRateLimitUnavailable = "RATE_LIMIT_UNAVAILABLE"
	ExternalInternal             = "INTERNAL_ERROR"
)

// Rejection is the terminal outcome of a request that failed admission.
type Rejection struct {
	// Stage is the last state reached before the failure.
	Stage models.Stage
	// Kind is the internal failure kind, e.g. credential_revoked.
	Kind dErrors.Code
	// Decision is set when the rate limiter produced one, so limit headers can still be sent.
	Decision *ratelimitmodels.Decision
	Err      error
}

func (r *Rejection) Error() string {
	return "admission rejected at " + string(r.Stage) + ": " + string(r.Kind)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(stage models.Stage, err error) *Rejection {
	return &Rejection{Stage: stage, Kind: dErrors.CodeOf(err), Err: err}
}

type response struct {
	status  int
	code    string
	message string
}

// responses maps every failure kind to its wire response. Messages never distinguish
// unknown from revoked keys or missing from suspended tenants.
var responses = map[dErrors.Code]response{
	dErrors.CodeMissingCredential:      {http.StatusUnauthorized, ExternalAuthRequired, "authentication required"},
	dErrors.CodeMalformedCredential:    {http.StatusUnauthorized, ExternalAuthRequired, "authentication required"},
	dErrors.CodeAmbiguousCredential:    {http.StatusUnauthorized, ExternalAuthRequired, "supply exactly one credential"},
	dErrors.CodeInvalidCredential:      {http.StatusUnauthorized, ExternalAuthInvalid, "invalid credential"},
	dErrors.CodeCredentialExpired:      {http.StatusUnauthorized, ExternalAuthInvalid, "invalid credential"},
	dErrors.CodeCredentialRevoked:      {http.StatusUnauthorized, ExternalAuthInvalid, "invalid credential"},
	dErrors.CodeTenantNotFound:         {http.StatusForbidden, ExternalTenantBlocked, "tenant is not permitted"},
	dErrors.CodeTenantSuspended:        {http.StatusForbidden, ExternalTenantBlocked, "tenant is not permitted"},
	dErrors.CodeForbidden:              {http.StatusForbidden, ExternalInsufficientScope, "credential lacks a required scope"},
	dErrors.CodeRateLimitExceeded:      {http.StatusTooManyRequests, ExternalRateLimited, "rate limit exceeded"},
	dErrors.CodeAuthServiceUnavailable: {http.StatusServiceUnavailable, ExternalAuthUnavailable, "authentication temporarily unavailable"},
	dErrors.CodeRateLimiterUnavailable: {http.StatusServiceUnavailable, ExternalRateLimitUnavailable, "rate limiting temporarily unavailable"},
}

func responseFor(kind dErrors.Code) response {
	if r, ok := responses[kind]; ok {
		return r
	}
	return response{http.StatusInternalServerError, ExternalInternal, "internal error"}
}

// StatusFor returns the HTTP status and external code for an admission failure kind.
func StatusFor(kind dErrors.Code) (int, string) {
	r := responseFor(kind)
	return r.status, r.code
}
