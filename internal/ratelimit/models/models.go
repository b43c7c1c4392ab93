package models

import (
	"time"

	dErrors "loyalgate/pkg/domain-errors"
)

// EndpointClass categorizes routes for differentiated rate limiting.
type EndpointClass string

const (
	// ClassAuth: credential exchange and key management bootstrap.
	ClassAuth EndpointClass = "auth"
	// ClassSensitive: balance adjustments, redemptions, key revocation.
	ClassSensitive EndpointClass = "sensitive"
	// ClassRead: reads scoped to the tenant.
	ClassRead EndpointClass = "read"
	// ClassWrite: general mutations.
	ClassWrite EndpointClass = "write"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassAuth, ClassSensitive, ClassRead, ClassWrite:
		return true
	}
	return false
}

// ParseEndpointClass validates s as an endpoint class.
func ParseEndpointClass(s string) (EndpointClass, error) {
	c := EndpointClass(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid endpoint class: "+s)
	}
	return c, nil
}

func (c EndpointClass) String() string { return string(c) }

// QuotaTier is the tenant's commercial tier. Limits are configured per tier and class.
type QuotaTier string

const (
	QuotaTierFree       QuotaTier = "free"
	QuotaTierStarter    QuotaTier = "starter"
	QuotaTierBusiness   QuotaTier = "business"
	QuotaTierEnterprise QuotaTier = "enterprise"
)

// IsValid checks if the quota tier is one of the supported enum values.
func (t QuotaTier) IsValid() bool {
	switch t {
	case QuotaTierFree, QuotaTierStarter, QuotaTierBusiness, QuotaTierEnterprise:
		return true
	}
	return false
}

// ParseQuotaTier validates s as a quota tier.
func ParseQuotaTier(s string) (QuotaTier, error) {
	t := QuotaTier(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid quota tier: "+s)
	}
	return t, nil
}

func (t QuotaTier) String() string { return string(t) }

// Subject identifies whose budget a request draws from.
// Anonymous subjects (public routes without credentials) are keyed by client IP.
type Subject struct {
	TenantID    string
	PrincipalID string
	Anonymous   bool
	ClientIP    string
}

// Decision source values.
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
	SourceFailOpen = "fail_open"
	SourceDenied   = "policy_missing"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"-"`
	// Degraded is set when the counter store did not decide.
	Degraded bool   `json:"degraded,omitempty"`
	Source   string `json:"-"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1 when not allowed.
func (d *Decision) RetryAfterSeconds() int {
	if d == nil || d.Allowed {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
