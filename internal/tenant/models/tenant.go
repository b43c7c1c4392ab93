package models

import (
	"strings"
	"time"

	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
)

// TenantStatus is active or suspended.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

func (s TenantStatus) IsValid() bool {
	return s == TenantStatusActive || s == TenantStatusSuspended
}

// CanTransitionTo allows only active ↔ suspended.
func (s TenantStatus) CanTransitionTo(next TenantStatus) bool {
	return s.IsValid() && next.IsValid() && s != next
}

// ParseTenantStatus validates a stored status string.
func ParseTenantStatus(s string) (TenantStatus, error) {
	st := TenantStatus(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid tenant status: "+s)
	}
	return st, nil
}

// Tenant is a loyalty program operator. Read-only to the admission layer.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - IsolationKey is non-empty and unique; every tenant-scoped query filters on it
//   - Status transitions: active ↔ suspended only
//
// Suspension is enforced on every request by the tenant resolver, not by revoking the
// tenant's credentials. Reactivation needs no credential changes.
type Tenant struct {
	ID           id.TenantID  `json:"id"`
	Name         string       `json:"name"`
	Status       TenantStatus `json:"status"`
	IsolationKey string       `json:"isolation_key"`
	Tier         string       `json:"tier"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func NewTenant(tenantID id.TenantID, name, tier string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant id cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	if tier == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant tier cannot be empty")
	}
	return &Tenant{
		ID:           tenantID,
		Name:         name,
		Status:       TenantStatusActive,
		IsolationKey: "tnt_" + strings.ReplaceAll(tenantID.String(), "-", ""),
		Tier:         tier,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Suspend blocks every request bound to the tenant.
func (t *Tenant) Suspend(now time.Time) error {
	if !t.Status.CanTransitionTo(TenantStatusSuspended) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already suspended")
	}
	t.Status = TenantStatusSuspended
	t.UpdatedAt = now
	return nil
}

func (t *Tenant) Reactivate(now time.Time) error {
	if !t.Status.CanTransitionTo(TenantStatusActive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already active")
	}
	t.Status = TenantStatusActive
	t.UpdatedAt = now
	return nil
}

// Scope returns the tenant's data-access scope.
func (t *Tenant) Scope() Scope {
	return Scope{tenantID: t.ID, isolationKey: t.IsolationKey}
}

// Scope is the mandatory filter for tenant-bound data access. It can only be obtained from
// a resolved Tenant, so downstream code cannot fabricate access to another tenant.
type Scope struct {
	tenantID     id.TenantID
	isolationKey string
}

func (s Scope) TenantID() id.TenantID { return s.tenantID }

func (s Scope) IsolationKey() string { return s.isolationKey }

// IsZero reports a scope that was never bound. Stores reject it.
func (s Scope) IsZero() bool {
	return s.tenantID.IsNil() || s.isolationKey == ""
}
