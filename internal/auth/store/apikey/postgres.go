package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"loyalgate/internal/auth/models"
	"loyalgate/internal/platform/postgres"
	"loyalgate/internal/storage"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	"loyalgate/pkg/platform/sentinel"
)

// PostgresStore persists keys in api_keys. Tenant-scoped reads and revocation join tenants
// and filter on the isolation key.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `k.id, k.tenant_id, k.key_hash, k.label, k.last_four, k.scopes, k.issued_at, k.expires_at, k.revoked_at`

func (s *PostgresStore) Create(ctx context.Context, scope tenantmodels.Scope, key *models.APIKey) error {
	if err := checkOwner(scope, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, key_hash, label, last_four, scopes, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID.String(), key.TenantID.String(), key.KeyHash, key.Label, key.LastFour,
		pq.Array(key.Scopes), key.IssuedAt, key.ExpiresAt,
	)
	if err != nil {
		switch {
		case postgres.IsUniqueViolation(err):
			return fmt.Errorf("api key hash: %w", sentinel.ErrConflict)
		case postgres.IsForeignKeyViolation(err):
			return fmt.Errorf("tenant %s: %w", key.TenantID, sentinel.ErrNotFound)
		}
		return postgres.Classify(fmt.Errorf("insert api key: %w", err))
	}
	return nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM api_keys k WHERE k.key_hash = $1`, keyHash)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api key: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("find api key: %w", err))
	}
	return k, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, scope tenantmodels.Scope) ([]*models.APIKey, error) {
	if scope.IsZero() {
		return nil, storage.ErrUnscoped
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+keyColumns+`
		FROM api_keys k JOIN tenants t ON t.id = k.tenant_id
		WHERE t.isolation_key = $1
		ORDER BY k.issued_at, k.id`, scope.IsolationKey())
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("list api keys: %w", err))
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, postgres.Classify(fmt.Errorf("scan api key: %w", err))
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classify(fmt.Errorf("list api keys: %w", err))
	}
	return out, nil
}

// Revoke sets revoked_at once; later calls keep the original timestamp.
func (s *PostgresStore) Revoke(ctx context.Context, scope tenantmodels.Scope, keyID id.APIKeyID, at time.Time) (*models.APIKey, error) {
	if scope.IsZero() {
		return nil, storage.ErrUnscoped
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE api_keys k SET revoked_at = COALESCE(k.revoked_at, $3)
		FROM tenants t
		WHERE k.id = $1 AND t.id = k.tenant_id AND t.isolation_key = $2
		RETURNING `+keyColumns, keyID.String(), scope.IsolationKey(), at)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api key %s: %w", keyID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, postgres.Classify(fmt.Errorf("revoke api key: %w", err))
	}
	return k, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.APIKey, error) {
	var (
		k                  models.APIKey
		rawID, rawTenantID string
		scopes             []string
		expiresAt          sql.NullTime
		revokedAt          sql.NullTime
	)
	if err := row.Scan(&rawID, &rawTenantID, &k.KeyHash, &k.Label, &k.LastFour,
		pq.Array(&scopes), &k.IssuedAt, &expiresAt, &revokedAt); err != nil {
		return nil, err
	}
	var err error
	if k.ID, err = id.ParseAPIKeyID(rawID); err != nil {
		return nil, fmt.Errorf("stored api key id: %w", err)
	}
	if k.TenantID, err = id.ParseTenantID(rawTenantID); err != nil {
		return nil, fmt.Errorf("stored tenant id: %w", err)
	}
	k.Scopes = scopes
	if k.Scopes == nil {
		k.Scopes = []string{}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	return &k, nil
}
