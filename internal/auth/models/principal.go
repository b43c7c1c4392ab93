package models

import (
	"slices"
	"time"

	id "loyalgate/pkg/domain"
)

// PrincipalKind distinguishes who is calling.
type PrincipalKind string

const (
	// PrincipalUserSession is an end user holding a session token.
	PrincipalUserSession PrincipalKind = "user_session"
	// PrincipalAPIKeyClient is a server-to-server integration holding a tenant API key.
	PrincipalAPIKeyClient PrincipalKind = "api_key_client"
	// PrincipalAnonymous is a credential-less caller on a public route.
	PrincipalAnonymous PrincipalKind = "anonymous"
)

// AuthMethod records how the principal proved itself.
type AuthMethod string

const (
	AuthMethodBearer AuthMethod = "bearer"
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodNone   AuthMethod = "none"
)

// ScopeManageAPIKeys allows creating, listing and revoking the tenant's API keys.
const ScopeManageAPIKeys = "api_keys:manage"

// Principal is the authenticated caller for one request.
type Principal struct {
	// ID is the user id for sessions and the key id for API key clients.
	ID        string
	Kind      PrincipalKind
	Method    AuthMethod
	TenantID  id.TenantID
	SessionID id.SessionID
	Scopes    []string
	// ExpiresAt is when the presented credential stops being valid. Zero when unbounded.
	ExpiresAt time.Time
}

// NewUserSessionPrincipal builds a principal from verified token claims.
func NewUserSessionPrincipal(userID id.UserID, tenantID id.TenantID, sessionID id.SessionID, scopes []string, expiresAt time.Time) *Principal {
	return &Principal{
		ID:        userID.String(),
		Kind:      PrincipalUserSession,
		Method:    AuthMethodBearer,
		TenantID:  tenantID,
		SessionID: sessionID,
		Scopes:    slices.Clone(scopes),
		ExpiresAt: expiresAt,
	}
}

// NewAPIKeyPrincipal builds a principal from a live API key record.
func NewAPIKeyPrincipal(key *APIKey, expiresAt time.Time) *Principal {
	return &Principal{
		ID:        key.ID.String(),
		Kind:      PrincipalAPIKeyClient,
		Method:    AuthMethodAPIKey,
		TenantID:  key.TenantID,
		Scopes:    slices.Clone(key.Scopes),
		ExpiresAt: expiresAt,
	}
}

// NewAnonymousPrincipal is used on public routes when no credential was supplied.
// It carries no tenant and no scopes.
func NewAnonymousPrincipal(clientIP string) *Principal {
	return &Principal{
		ID:     clientIP,
		Kind:   PrincipalAnonymous,
		Method: AuthMethodNone,
		Scopes: []string{},
	}
}

func (p *Principal) IsAnonymous() bool {
	return p == nil || p.Kind == PrincipalAnonymous
}

func (p *Principal) HasScope(scope string) bool {
	return p != nil && slices.Contains(p.Scopes, scope)
}
