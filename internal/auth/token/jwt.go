// Package token issues and verifies HS256 session tokens carrying a tenant binding.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "loyalgate/pkg/domain-errors"
	pstrings "loyalgate/pkg/platform/strings"
)

// Claims represents the JWT claims of a session token.
type Claims struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"sid,omitempty"`
	// Scope is the space-delimited scope list.
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes returns the normalized scope list.
func (c *Claims) Scopes() []string {
	return pstrings.SplitScopes(c.Scope)
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithLeeway tolerates clock skew on exp/iat/nbf.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) {
		s.leeway = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(signingKey, issuer, audience string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueRequest describes a session token to mint.
type IssueRequest struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	SessionID uuid.UUID
	Scopes    []string
	TTL       time.Duration
}

// Issue signs a token for req. Used by the operator CLI and tests; production sessions are
// minted by the identity service with the same key.
func (s *Service) Issue(req IssueRequest) (string, error) {
	if req.UserID == uuid.Nil || req.TenantID == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user and tenant are required")
	}
	now := s.now()
	claims := Claims{
		TenantID: req.TenantID.String(),
		Scope:    strings.Join(pstrings.NormalizeScopes(req.Scopes), " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(req.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	}
	if req.SessionID != uuid.Nil {
		claims.SessionID = req.SessionID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry.
// Expired tokens yield CodeCredentialExpired; every other failure yields CodeInvalidCredential.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeCredentialExpired, "token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidCredential, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid token claims")
	}
	return claims, nil
}
