package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loyalgate/internal/platform/postgres"
	"loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	"loyalgate/pkg/platform/sentinel"
)

// PostgresStore persists tenants in the tenants table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, status, isolation_key, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID.String(), t.Name, string(t.Status), t.IsolationKey, t.Tier, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("tenant name %q: %w", t.Name, sentinel.ErrConflict)
		}
		return postgres.Classify(fmt.Errorf("insert tenant: %w", err))
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	var (
		t      models.Tenant
		rawID  string
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, isolation_key, tier, created_at, updated_at
		FROM tenants WHERE id = $1`, tenantID.String(),
	).Scan(&rawID, &t.Name, &status, &t.IsolationKey, &t.Tier, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("find tenant: %w", err))
	}
	if t.ID, err = id.ParseTenantID(rawID); err != nil {
		return nil, fmt.Errorf("stored tenant id: %w", err)
	}
	if t.Status, err = models.ParseTenantStatus(status); err != nil {
		return nil, fmt.Errorf("stored tenant status: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) Save(ctx context.Context, t *models.Tenant) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, status = $3, tier = $4, updated_at = $5
		WHERE id = $1`,
		t.ID.String(), t.Name, string(t.Status), t.Tier, t.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("tenant name %q: %w", t.Name, sentinel.ErrConflict)
		}
		return postgres.Classify(fmt.Errorf("update tenant: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return postgres.Classify(fmt.Errorf("update tenant: %w", err))
	}
	if n == 0 {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrNotFound)
	}
	return nil
}
