// Package postgres opens the shared database/sql pool backed by the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"loyalgate/internal/platform/config"
	"loyalgate/pkg/platform/sentinel"
)

// Open connects and pings. The returned pool is shared by every Postgres store.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Schema creates the tables the admission stores read and write. Migrations proper are owned
// elsewhere; this keeps local and test databases usable.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL,
	isolation_key TEXT NOT NULL UNIQUE,
	tier          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id          UUID PRIMARY KEY,
	tenant_id   UUID NOT NULL REFERENCES tenants(id),
	key_hash    TEXT NOT NULL UNIQUE,
	label       TEXT NOT NULL,
	last_four   TEXT NOT NULL,
	scopes      TEXT[] NOT NULL DEFAULT '{}',
	issued_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	revoked_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys(tenant_id);

CREATE TABLE IF NOT EXISTS rate_limit_counters (
	key        TEXT PRIMARY KEY,
	count      BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_limit_counters_expires ON rate_limit_counters(expires_at);
`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsForeignKeyViolation reports a reference to a missing parent row.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// Classify maps driver failures onto store sentinels. Errors the server answered with a
// SQLSTATE outside class 08 (connection exception) are returned unchanged; everything else
// (network errors, deadlines, connection loss) becomes sentinel.ErrUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !strings.HasPrefix(pgErr.Code, "08") {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
}
