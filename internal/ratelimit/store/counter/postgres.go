package counter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loyalgate/internal/platform/postgres"
)

// PostgresStore counts in rate_limit_counters with a single upsert per call. The row lock
// taken by ON CONFLICT DO UPDATE serializes concurrent increments of one key.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const upsertCounter = `
INSERT INTO rate_limit_counters (key, count, expires_at)
VALUES ($1, 1, $2)
ON CONFLICT (key) DO UPDATE SET
	count = CASE WHEN rate_limit_counters.expires_at <= $3 THEN 1
	             ELSE rate_limit_counters.count + 1 END,
	expires_at = CASE WHEN rate_limit_counters.expires_at <= $3 THEN EXCLUDED.expires_at
	                  ELSE rate_limit_counters.expires_at END
RETURNING count`

func (s *PostgresStore) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	var n int64
	if err := s.db.QueryRowContext(ctx, upsertCounter, key, now.Add(ttl), now).Scan(&n); err != nil {
		return 0, postgres.Classify(fmt.Errorf("increment counter %s: %w", key, err))
	}
	return n, nil
}

// Sweep deletes expired counters.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, postgres.Classify(fmt.Errorf("sweep counters: %w", err))
	}
	return res.RowsAffected()
}

// RunJanitor sweeps every interval until ctx is done.
func (s *PostgresStore) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = s.Sweep(ctx)
		}
	}
}
