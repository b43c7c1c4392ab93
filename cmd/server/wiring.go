package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"loyalgate/internal/admission"
	admissionmetrics "loyalgate/internal/admission/metrics"
	"loyalgate/internal/audit"
	authmodels "loyalgate/internal/auth/models"
	authservice "loyalgate/internal/auth/service"
	"loyalgate/internal/auth/store/apikey"
	"loyalgate/internal/auth/token"
	httpapi "loyalgate/internal/http"
	"loyalgate/internal/platform/config"
	"loyalgate/internal/platform/metrics"
	"loyalgate/internal/platform/postgres"
	"loyalgate/internal/platform/redis"
	ratelimitmetrics "loyalgate/internal/ratelimit/metrics"
	"loyalgate/internal/ratelimit/ports"
	ratelimitservice "loyalgate/internal/ratelimit/service"
	"loyalgate/internal/ratelimit/store/counter"
	tenantmetrics "loyalgate/internal/tenant/metrics"
	tenantmodels "loyalgate/internal/tenant/models"
	tenantservice "loyalgate/internal/tenant/service"
	tenantstore "loyalgate/internal/tenant/store/tenant"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/requestcontext"
	"loyalgate/pkg/secrets"
)

type apiKeyStore interface {
	authservice.APIKeyFinder
	authservice.APIKeyStore
}

// app is the assembled server.
type app struct {
	router     http.Handler
	log        *slog.Logger
	tenantSvc  *tenantservice.TenantService
	keys       apiKeyStore
	background []func(context.Context) error
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var db *sql.DB
	if cfg.UsesPostgres() {
		var err error
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
	}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	auditor, err := a.auditPublisher(cfg.Audit)
	if err != nil {
		return nil, err
	}

	// Tenants.
	var tenants tenantservice.TenantStore = tenantstore.NewInMemory()
	if cfg.Tenant.Store == "postgres" {
		tenants = tenantstore.NewPostgres(db)
	}
	resolver, err := tenantservice.NewResolver(tenants,
		tenantservice.WithCacheTTL(cfg.Tenant.CacheTTL),
		tenantservice.WithCacheSize(cfg.Tenant.CacheSize),
		tenantservice.WithStoreTimeout(cfg.Tenant.StoreTimeout),
		tenantservice.WithResolverLogger(log),
		tenantservice.WithResolverMetrics(tenantmetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}
	a.tenantSvc = tenantservice.NewTenantService(tenants,
		tenantservice.WithLogger(log),
		tenantservice.WithAuditPublisher(auditor),
		tenantservice.WithInvalidator(resolver),
	)

	// Credentials.
	a.keys = apikey.NewInMemory()
	if cfg.Auth.Store == "postgres" {
		a.keys = apikey.NewPostgres(db)
	}
	tokens := token.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, token.WithLeeway(cfg.Auth.Leeway))
	authn, err := authservice.NewAuthenticator(tokens, a.keys,
		authservice.WithLogger(log),
		authservice.WithStoreTimeout(cfg.Auth.StoreTimeout),
		authservice.WithAPIKeyTTL(cfg.Auth.APIKeyTTL),
	)
	if err != nil {
		return nil, err
	}
	keySvc := authservice.NewAPIKeyService(a.keys,
		authservice.WithAPIKeyLogger(log),
		authservice.WithAuditPublisher(auditor),
	)

	// Rate limiting.
	counters, err := a.counterStore(cfg, db, rdb)
	if err != nil {
		return nil, err
	}
	fallback := ratelimitservice.NewLocalLimiter(0)
	a.background = append(a.background, func(ctx context.Context) error {
		fallback.RunJanitor(ctx, janitorInterval)
		return nil
	})
	limiter, err := ratelimitservice.New(counters, &cfg.RateLimit,
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(ratelimitmetrics.New(reg)),
		ratelimitservice.WithAuditPublisher(auditor),
		ratelimitservice.WithLocalLimiter(fallback),
	)
	if err != nil {
		return nil, err
	}

	pipeline, err := admission.New(authn, resolver, limiter,
		admission.WithLogger(log),
		admission.WithAuditPublisher(auditor),
		admission.WithMetrics(admissionmetrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	a.router = httpapi.NewRouter(httpapi.Deps{
		Pipeline:          pipeline,
		APIKeys:           keySvc,
		Registry:          reg,
		HTTPMetrics:       metrics.New(reg),
		Logger:            log,
		Ready:             readiness(db, rdb),
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})
	ok = true
	return a, nil
}

// auditPublisher returns nil when no Kafka brokers are configured; audit events are then
// only logged.
func (a *app) auditPublisher(cfg config.AuditConfig) (audit.Emitter, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	sink, err := audit.NewKafkaSink(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("audit kafka sink: %w", err)
	}
	a.closers = append(a.closers, sink.Close)
	publisher := audit.NewPublisher(sink,
		audit.WithLogger(a.log),
		audit.WithBufferSize(cfg.BufferSize),
		audit.WithFlushInterval(cfg.FlushInterval),
	)
	a.background = append(a.background, publisher.Run)
	return publisher, nil
}

func (a *app) counterStore(cfg *config.Config, db *sql.DB, rdb *redis.Client) (ports.CounterStore, error) {
	switch cfg.RateLimit.Store {
	case "redis":
		if rdb == nil {
			return nil, errors.New("ratelimit.store is redis but no redis client is configured")
		}
		return counter.NewRedis(rdb.Client), nil
	case "postgres":
		store := counter.NewPostgres(db)
		a.background = append(a.background, func(ctx context.Context) error {
			store.RunJanitor(ctx, janitorInterval)
			return nil
		})
		return store, nil
	default:
		a.log.Warn("in-memory rate limit counters are local to this instance")
		store := counter.NewInMemory()
		a.background = append(a.background, func(ctx context.Context) error {
			store.RunJanitor(ctx, janitorInterval)
			return nil
		})
		return store, nil
	}
}

func readiness(db *sql.DB, rdb *redis.Client) func(*http.Request) error {
	return func(r *http.Request) error {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if rdb != nil {
			if err := rdb.Health(r.Context()); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

// bootstrap seeds a development tenant and, when configured, an API key with key
// management scope.
func (a *app) bootstrap(ctx context.Context, cfg config.BootstrapConfig) error {
	tenant, err := a.tenantSvc.CreateTenant(ctx, cfg.TenantName, cfg.Tier)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			a.log.Info("bootstrap tenant already exists", "name", cfg.TenantName)
			return nil
		}
		return err
	}
	a.log.Info("bootstrap tenant created", "tenant_id", tenant.ID.String(), "tier", tenant.Tier)

	if cfg.APIKey == "" {
		return nil
	}
	if !secrets.WellFormed(cfg.APIKey) {
		return errors.New("bootstrap.api_key is not a well-formed api key")
	}
	return a.seedKey(ctx, tenant, cfg.APIKey)
}

func (a *app) seedKey(ctx context.Context, tenant *tenantmodels.Tenant, raw string) error {
	hash, err := secrets.Hash(raw)
	if err != nil {
		return err
	}
	key, err := authmodels.NewAPIKey(tenant.ID, hash, raw[len(raw)-4:], "bootstrap",
		[]string{authmodels.ScopeManageAPIKeys}, requestcontext.Now(ctx), nil)
	if err != nil {
		return err
	}
	if err := a.keys.Create(ctx, tenant.Scope(), key); err != nil {
		return err
	}
	a.log.Info("bootstrap api key created", "tenant_id", tenant.ID.String(), "key", key.Masked())
	return nil
}
