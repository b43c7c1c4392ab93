package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	tenantmetrics "loyalgate/internal/tenant/metrics"
	"loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/retry"
	"loyalgate/pkg/platform/sentinel"
)

// MaxCacheTTL bounds how stale a suspension can be before it takes effect.
const MaxCacheTTL = 30 * time.Second

// Store is the read side the resolver needs.
type Store interface {
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
}

// Resolver maps a tenant id to the authoritative tenant record. Records are cached for at
// most MaxCacheTTL; misses are never cached so a newly created tenant is visible at once.
type Resolver struct {
	store        Store
	cache        *expirable.LRU[id.TenantID, models.Tenant]
	group        singleflight.Group
	storeTimeout time.Duration
	retryPolicy  retry.Policy
	logger       *slog.Logger
	metrics      *tenantmetrics.Metrics
}

type resolverConfig struct {
	cacheTTL     time.Duration
	cacheSize    int
	storeTimeout time.Duration
	retryPolicy  retry.Policy
	logger       *slog.Logger
	metrics      *tenantmetrics.Metrics
}

type ResolverOption func(*resolverConfig)

func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(c *resolverConfig) { c.cacheTTL = ttl }
}

func WithCacheSize(n int) ResolverOption {
	return func(c *resolverConfig) { c.cacheSize = n }
}

func WithStoreTimeout(d time.Duration) ResolverOption {
	return func(c *resolverConfig) { c.storeTimeout = d }
}

func WithRetryPolicy(p retry.Policy) ResolverOption {
	return func(c *resolverConfig) { c.retryPolicy = p }
}

func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(c *resolverConfig) { c.logger = logger }
}

func WithResolverMetrics(m *tenantmetrics.Metrics) ResolverOption {
	return func(c *resolverConfig) { c.metrics = m }
}

// NewResolver builds a Resolver. A cache TTL above MaxCacheTTL is rejected; zero disables
// caching.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("tenant store is required")
	}
	cfg := resolverConfig{
		cacheTTL:     15 * time.Second,
		cacheSize:    10_000,
		storeTimeout: 100 * time.Millisecond,
		retryPolicy:  retry.DefaultPolicy,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.cacheTTL < 0 || cfg.cacheTTL > MaxCacheTTL {
		return nil, fmt.Errorf("tenant cache ttl %s outside [0, %s]", cfg.cacheTTL, MaxCacheTTL)
	}
	if cfg.storeTimeout <= 0 {
		return nil, fmt.Errorf("tenant store timeout must be positive")
	}

	r := &Resolver{
		store:        store,
		storeTimeout: cfg.storeTimeout,
		retryPolicy:  cfg.retryPolicy,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
	}
	if cfg.cacheTTL > 0 {
		r.cache = expirable.NewLRU[id.TenantID, models.Tenant](cfg.cacheSize, nil, cfg.cacheTTL)
	}
	return r, nil
}

// Resolve returns the tenant for tenantID, or a coded error:
//   - tenant_not_found when no such tenant exists
//   - tenant_suspended when it exists but is suspended
//   - auth_service_unavailable when the store cannot answer in time
func (r *Resolver) Resolve(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	start := time.Now()
	defer r.observe(start)

	if tenantID.IsNil() {
		r.fail("not_found")
		return nil, dErrors.New(dErrors.CodeTenantNotFound, "tenant not found")
	}

	t, err := r.lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		if r.metrics != nil {
			r.metrics.IncrementSuspended()
		}
		return nil, dErrors.New(dErrors.CodeTenantSuspended, "tenant is suspended")
	}
	return &t, nil
}

// Invalidate drops a cached tenant so the next Resolve reads the store.
func (r *Resolver) Invalidate(tenantID id.TenantID) {
	if r.cache != nil {
		r.cache.Remove(tenantID)
	}
}

func (r *Resolver) lookup(ctx context.Context, tenantID id.TenantID) (models.Tenant, error) {
	if r.cache != nil {
		if t, ok := r.cache.Get(tenantID); ok {
			if r.metrics != nil {
				r.metrics.IncrementCacheHit()
			}
			return t, nil
		}
	}
	if r.metrics != nil {
		r.metrics.IncrementCacheMiss()
	}

	v, err, _ := r.group.Do(tenantID.String(), func() (any, error) {
		// Shared by every waiter, so detach from the first caller's cancellation.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeTimeout)
		defer cancel()
		t, err := retry.Once(loadCtx, r.retryPolicy, func(ctx context.Context) (*models.Tenant, error) {
			return r.store.FindByID(ctx, tenantID)
		})
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Add(tenantID, *t)
		}
		return *t, nil
	})
	if err != nil {
		return models.Tenant{}, r.translate(ctx, tenantID, err)
	}
	return v.(models.Tenant), nil
}

func (r *Resolver) translate(ctx context.Context, tenantID id.TenantID, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		r.fail("not_found")
		return dErrors.New(dErrors.CodeTenantNotFound, "tenant not found")
	}
	reason := "unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	r.fail(reason)
	r.logger.ErrorContext(ctx, "tenant lookup failed",
		"tenant_id", tenantID.String(),
		"reason", reason,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeAuthServiceUnavailable, "tenant directory unavailable")
}

func (r *Resolver) fail(reason string) {
	if r.metrics != nil {
		r.metrics.IncrementFailure(reason)
	}
}

func (r *Resolver) observe(start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveResolve(start)
	}
}
