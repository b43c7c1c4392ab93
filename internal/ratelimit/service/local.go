package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"loyalgate/internal/ratelimit/config"
)

// LocalLimiter is the in-process token bucket used while the shared counter store is
// unavailable. Each instance enforces the budget on its own, so the effective limit across
// a fleet is higher; it bounds abuse rather than enforcing the exact quota.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	idleTTL time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	limit    config.Limit
	lastSeen time.Time
}

func NewLocalLimiter(idleTTL time.Duration) *LocalLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &LocalLimiter{
		entries: make(map[string]*localEntry),
		idleTTL: idleTTL,
	}
}

// Allow takes one token for key under limit. When denied, retryAfter is the wait until the
// next token.
func (l *LocalLimiter) Allow(key string, limit config.Limit, now time.Time) (allowed bool, remaining int, retryAfter time.Duration) {
	lim := l.limiter(key, limit, now)
	if lim.AllowN(now, 1) {
		return true, int(lim.TokensAt(now)), 0
	}
	every := limit.Window / time.Duration(limit.RequestsPerWindow)
	return false, 0, every
}

func (l *LocalLimiter) limiter(key string, limit config.Limit, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok && e.limit == limit {
		e.lastSeen = now
		return e.lim
	}
	every := rate.Every(limit.Window / time.Duration(limit.RequestsPerWindow))
	e := &localEntry{
		lim:      rate.NewLimiter(every, limit.RequestsPerWindow),
		limit:    limit,
		lastSeen: now,
	}
	l.entries[key] = e
	return e.lim
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (l *LocalLimiter) Cleanup(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// RunJanitor cleans up every interval until ctx is done.
func (l *LocalLimiter) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Cleanup(now)
		}
	}
}
