package models

import (
	"strings"
	"time"

	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	pstrings "loyalgate/pkg/platform/strings"
)

// APIKey is the stored record of a tenant API key. The raw key is never stored.
type APIKey struct {
	ID       id.APIKeyID `json:"id"`
	TenantID id.TenantID `json:"tenant_id"`
	// KeyHash is the hex SHA-256 of the raw key.
	KeyHash   string     `json:"-"`
	Label     string     `json:"label"`
	LastFour  string     `json:"-"`
	Scopes    []string   `json:"scopes"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// NewAPIKey creates an APIKey with domain invariant validation.
func NewAPIKey(tenantID id.TenantID, keyHash, lastFour, label string, scopes []string, issuedAt time.Time, expiresAt *time.Time) (*APIKey, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant_id cannot be empty")
	}
	if len(keyHash) != 64 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "key_hash must be a hex sha-256 digest")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "label cannot be empty")
	}
	if expiresAt != nil && !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expires_at must be after issued_at")
	}
	return &APIKey{
		ID:        id.NewAPIKeyID(),
		TenantID:  tenantID,
		KeyHash:   keyHash,
		Label:     label,
		LastFour:  lastFour,
		Scopes:    pstrings.NormalizeScopes(scopes),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// ExpiryAt returns when the key stops authenticating: its own expiry, or issue time plus the
// global TTL, whichever is earlier. Zero means it never expires.
func (k *APIKey) ExpiryAt(globalTTL time.Duration) time.Time {
	var at time.Time
	if k.ExpiresAt != nil {
		at = *k.ExpiresAt
	}
	if globalTTL > 0 {
		ttlAt := k.IssuedAt.Add(globalTTL)
		if at.IsZero() || ttlAt.Before(at) {
			at = ttlAt
		}
	}
	return at
}

// IsExpired reports whether the key is past its expiry at now.
func (k *APIKey) IsExpired(now time.Time, globalTTL time.Duration) bool {
	at := k.ExpiryAt(globalTTL)
	return !at.IsZero() && !now.Before(at)
}

// Masked renders the key for listings.
func (k *APIKey) Masked() string {
	return "****" + k.LastFour
}

// Revoke marks the key revoked at now. Revoking twice keeps the first timestamp.
func (k *APIKey) Revoke(now time.Time) {
	if k.RevokedAt != nil {
		return
	}
	k.RevokedAt = &now
}
