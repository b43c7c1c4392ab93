package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loyalgate/internal/audit"
	"loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/sentinel"
	"loyalgate/pkg/requestcontext"
)

// TenantStore is the read/write store used by lifecycle operations.
type TenantStore interface {
	Store
	CreateIfNameAvailable(ctx context.Context, t *models.Tenant) error
	Save(ctx context.Context, t *models.Tenant) error
}

// Invalidator drops cached tenant records after a status change.
type Invalidator interface {
	Invalidate(tenantID id.TenantID)
}

// TenantService manages tenant status. Admission reads tenants through Resolver; this is
// the operator path used by bootstrap and the CLI.
type TenantService struct {
	tenants     TenantStore
	invalidator Invalidator
	logger      *slog.Logger
	auditor     audit.Emitter
}

type Option func(*TenantService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *TenantService) { s.logger = logger }
}

func WithAuditPublisher(emitter audit.Emitter) Option {
	return func(s *TenantService) { s.auditor = emitter }
}

// WithInvalidator makes status changes visible to the local resolver immediately instead of
// after the cache TTL.
func WithInvalidator(inv Invalidator) Option {
	return func(s *TenantService) { s.invalidator = inv }
}

func NewTenantService(tenants TenantStore, opts ...Option) *TenantService {
	s := &TenantService{tenants: tenants}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TenantService) CreateTenant(ctx context.Context, name, tier string) (*models.Tenant, error) {
	t, err := models.NewTenant(id.NewTenantID(), name, tier, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.tenants.CreateIfNameAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}
	audit.LogAudit(ctx, s.logger, s.auditor, audit.EventTenantCreated,
		"tenant_id", t.ID.String(),
		"tier", t.Tier,
	)
	return t, nil
}

func (s *TenantService) GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return t, nil
}

// SuspendTenant blocks every request bound to the tenant.
func (s *TenantService) SuspendTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, audit.EventTenantSuspended, (*models.Tenant).Suspend)
}

func (s *TenantService) ReactivateTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	return s.transition(ctx, tenantID, audit.EventTenantReactivated, (*models.Tenant).Reactivate)
}

func (s *TenantService) transition(
	ctx context.Context,
	tenantID id.TenantID,
	event audit.EventType,
	apply func(*models.Tenant, time.Time) error,
) (*models.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	if err := apply(t, requestcontext.Now(ctx)); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeConflict, err.Error())
		}
		return nil, err
	}
	if err := s.tenants.Save(ctx, t); err != nil {
		return nil, wrapTenantErr(err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(t.ID)
	}
	audit.LogAudit(ctx, s.logger, s.auditor, event,
		"tenant_id", t.ID.String(),
		"status", string(t.Status),
	)
	return t, nil
}

func wrapTenantErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
}
