// Package ports defines the interfaces the rate limiter consumes.
package ports

import (
	"context"
	"time"
)

// CounterStore is the single atomic primitive the limiter relies on. IncrementAndGet adds
// one to key and returns the new value; a missing or expired key starts at 1 and lives
// for ttl. Implementations must never split this into a read and a write.
type CounterStore interface {
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
