package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loyalgate/internal/audit"
	"loyalgate/internal/auth/models"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/sentinel"
	"loyalgate/pkg/requestcontext"
	"loyalgate/pkg/secrets"
)

// APIKeyStore is the tenant-scoped management side of the key store.
type APIKeyStore interface {
	Create(ctx context.Context, scope tenantmodels.Scope, key *models.APIKey) error
	ListByTenant(ctx context.Context, scope tenantmodels.Scope) ([]*models.APIKey, error)
	Revoke(ctx context.Context, scope tenantmodels.Scope, keyID id.APIKeyID, at time.Time) (*models.APIKey, error)
}

// APIKeyService issues, lists and revokes keys for the tenant bound to the request.
type APIKeyService struct {
	store   APIKeyStore
	logger  *slog.Logger
	auditor audit.Emitter
}

type APIKeyOption func(*APIKeyService)

func WithAPIKeyLogger(logger *slog.Logger) APIKeyOption {
	return func(s *APIKeyService) { s.logger = logger }
}

func WithAuditPublisher(emitter audit.Emitter) APIKeyOption {
	return func(s *APIKeyService) { s.auditor = emitter }
}

func NewAPIKeyService(store APIKeyStore, opts ...APIKeyOption) *APIKeyService {
	s := &APIKeyService{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAPIKey generates a key for scope's tenant. The raw key is returned once and never
// stored.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, scope tenantmodels.Scope, req *models.CreateAPIKeyRequest) (*models.APIKey, string, error) {
	raw, err := secrets.Generate()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(raw)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}

	now := requestcontext.Now(ctx)
	var expiresAt *time.Time
	if req.ExpiresInSeconds != nil {
		at := now.Add(time.Duration(*req.ExpiresInSeconds) * time.Second)
		expiresAt = &at
	}
	key, err := models.NewAPIKey(scope.TenantID(), hash, raw[len(raw)-4:], req.Label, req.Scopes, now, expiresAt)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, "", dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, "", err
	}
	if err := s.store.Create(ctx, scope, key); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store api key")
	}

	audit.LogAudit(ctx, s.logger, s.auditor, audit.EventAPIKeyCreated,
		"tenant_id", scope.TenantID().String(),
		"principal_id", key.ID.String(),
		"key", key.Masked(),
	)
	return key, raw, nil
}

func (s *APIKeyService) ListAPIKeys(ctx context.Context, scope tenantmodels.Scope) ([]*models.APIKey, error) {
	keys, err := s.store.ListByTenant(ctx, scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list api keys")
	}
	return keys, nil
}

// RevokeAPIKey revokes a key of scope's tenant. Keys of other tenants are not found.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, scope tenantmodels.Scope, keyID id.APIKeyID) (*models.APIKey, error) {
	key, err := s.store.Revoke(ctx, scope, keyID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke api key")
	}
	audit.LogAudit(ctx, s.logger, s.auditor, audit.EventAPIKeyRevoked,
		"tenant_id", scope.TenantID().String(),
		"principal_id", key.ID.String(),
		"key", key.Masked(),
	)
	return key, nil
}
