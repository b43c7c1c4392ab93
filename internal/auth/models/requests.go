package models

import (
	"strings"
	"time"

	dErrors "loyalgate/pkg/domain-errors"
	pstrings "loyalgate/pkg/platform/strings"
)

// MaxAPIKeyLifetime bounds expires_in_seconds.
const MaxAPIKeyLifetime = 10 * 365 * 24 * time.Hour

// CreateAPIKeyRequest is the body of POST /api/auth/api-keys.
type CreateAPIKeyRequest struct {
	Label  string   `json:"label"`
	Scopes []string `json:"scopes"`
	// ExpiresInSeconds is optional; omitted means only the global TTL applies.
	ExpiresInSeconds *int64 `json:"expires_in_seconds,omitempty"`
}

// Validate normalizes and checks the request.
func (r *CreateAPIKeyRequest) Validate() error {
	r.Label = strings.TrimSpace(r.Label)
	r.Scopes = pstrings.NormalizeScopes(r.Scopes)
	if r.Label == "" {
		return dErrors.New(dErrors.CodeValidation, "label is required")
	}
	if len(r.Label) > 100 {
		return dErrors.New(dErrors.CodeValidation, "label must be 100 characters or less")
	}
	if r.ExpiresInSeconds != nil {
		if *r.ExpiresInSeconds <= 0 {
			return dErrors.New(dErrors.CodeValidation, "expires_in_seconds must be positive")
		}
		if *r.ExpiresInSeconds > int64(MaxAPIKeyLifetime/time.Second) {
			return dErrors.New(dErrors.CodeValidation, "expires_in_seconds must be at most 10 years")
		}
	}
	return nil
}

// APIKeyView is the listing shape; the key itself is masked.
type APIKeyView struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Key       string   `json:"key"`
	Scopes    []string `json:"scopes"`
	IssuedAt  string   `json:"issued_at"`
	ExpiresAt string   `json:"expires_at,omitempty"`
	Revoked   bool     `json:"revoked"`
}

// CreatedAPIKey is returned once at creation and is the only time the raw key is shown.
type CreatedAPIKey struct {
	APIKeyView
	APIKey string `json:"api_key"`
}

// View renders k for listings.
func (k *APIKey) View() APIKeyView {
	v := APIKeyView{
		ID:       k.ID.String(),
		Label:    k.Label,
		Key:      k.Masked(),
		Scopes:   k.Scopes,
		IssuedAt: k.IssuedAt.UTC().Format(time.RFC3339),
		Revoked:  k.IsRevoked(),
	}
	if k.ExpiresAt != nil {
		v.ExpiresAt = k.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return v
}
