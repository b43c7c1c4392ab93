package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loyalgate/internal/auth/models"
	"loyalgate/internal/auth/token"
	"loyalgate/internal/credential"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/retry"
	"loyalgate/pkg/platform/sentinel"
	"loyalgate/pkg/requestcontext"
	"loyalgate/pkg/secrets"
)

// TokenVerifier checks a bearer token's signature and expiry.
type TokenVerifier interface {
	Verify(token string) (*token.Claims, error)
}

// APIKeyFinder looks API keys up by hash.
type APIKeyFinder interface {
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// Authenticator turns a resolved credential into a Principal. Bearer tokens are verified
// without a store round trip; API keys are looked up by hash.
type Authenticator struct {
	verifier     TokenVerifier
	keys         APIKeyFinder
	storeTimeout time.Duration
	apiKeyTTL    time.Duration
	retryPolicy  retry.Policy
	logger       *slog.Logger
}

type AuthenticatorOption func(*Authenticator)

func WithLogger(logger *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = logger }
}

// WithStoreTimeout bounds each API key lookup.
func WithStoreTimeout(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.storeTimeout = d
		}
	}
}

// WithAPIKeyTTL expires keys this long after issue, on top of any per-key expiry.
func WithAPIKeyTTL(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) { a.apiKeyTTL = d }
}

func WithRetryPolicy(p retry.Policy) AuthenticatorOption {
	return func(a *Authenticator) { a.retryPolicy = p }
}

func NewAuthenticator(verifier TokenVerifier, keys APIKeyFinder, opts ...AuthenticatorOption) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if keys == nil {
		return nil, errors.New("api key store is required")
	}
	a := &Authenticator{
		verifier:     verifier,
		keys:         keys,
		storeTimeout: 100 * time.Millisecond,
		retryPolicy:  retry.DefaultPolicy,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Authenticate validates cred. Failures carry one of the credential codes, or
// auth_service_unavailable when the key store cannot answer within the timeout.
func (a *Authenticator) Authenticate(ctx context.Context, cred credential.Credential) (*models.Principal, error) {
	switch c := cred.(type) {
	case credential.BearerToken:
		return a.authenticateBearer(c)
	case credential.APIKey:
		return a.authenticateAPIKey(ctx, c)
	case nil:
		return nil, dErrors.New(dErrors.CodeMissingCredential, "credential required")
	default:
		return nil, dErrors.New(dErrors.CodeInternal, "unsupported credential kind")
	}
}

func (a *Authenticator) authenticateBearer(c credential.BearerToken) (*models.Principal, error) {
	claims, err := a.verifier.Verify(c.Token)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "token subject is not a user id")
	}
	tenantID, err := id.ParseTenantID(claims.TenantID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "token carries no tenant")
	}
	var sessionID id.SessionID
	if claims.SessionID != "" {
		if sessionID, err = id.ParseSessionID(claims.SessionID); err != nil {
			return nil, dErrors.New(dErrors.CodeInvalidCredential, "token session id is malformed")
		}
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return models.NewUserSessionPrincipal(userID, tenantID, sessionID, claims.Scopes(), expiresAt), nil
}

func (a *Authenticator) authenticateAPIKey(ctx context.Context, c credential.APIKey) (*models.Principal, error) {
	hash, err := secrets.Hash(c.Key)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedCredential, "api key is malformed")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	key, err := retry.Once(lookupCtx, a.retryPolicy, func(ctx context.Context) (*models.APIKey, error) {
		return a.keys.FindByHash(ctx, hash)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid api key")
		}
		a.logger.ErrorContext(ctx, "api key lookup failed",
			"key", c.Redacted(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeAuthServiceUnavailable, "api key directory unavailable")
	}
	if !secrets.Equal(key.KeyHash, hash) {
		return nil, dErrors.New(dErrors.CodeInvalidCredential, "invalid api key")
	}

	if key.IsRevoked() {
		return nil, dErrors.New(dErrors.CodeCredentialRevoked, "api key revoked")
	}
	now := requestcontext.Now(ctx)
	if key.IsExpired(now, a.apiKeyTTL) {
		return nil, dErrors.New(dErrors.CodeCredentialExpired, "api key expired")
	}
	return models.NewAPIKeyPrincipal(key, key.ExpiryAt(a.apiKeyTTL)), nil
}
