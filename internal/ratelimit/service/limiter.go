package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loyalgate/internal/audit"
	"loyalgate/internal/ratelimit/config"
	ratelimitmetrics "loyalgate/internal/ratelimit/metrics"
	"loyalgate/internal/ratelimit/models"
	"loyalgate/internal/ratelimit/ports"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/circuit"
	"loyalgate/pkg/requestcontext"
)

// keyGrace keeps a counter alive slightly past its window so instances with skewed clocks
// still hit the same key instead of recreating it.
const keyGrace = time.Second

// Limiter applies fixed-window quotas through a shared CounterStore.
type Limiter struct {
	store    ports.CounterStore
	cfg      *config.Config
	breaker  *circuit.Breaker
	fallback *LocalLimiter
	logger   *slog.Logger
	auditor  audit.Emitter
	metrics  *ratelimitmetrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *ratelimitmetrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

func WithAuditPublisher(emitter audit.Emitter) Option {
	return func(l *Limiter) { l.auditor = emitter }
}

// WithBreaker replaces the breaker built from config. Used by tests to inject a clock.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) { l.breaker = b }
}

func WithLocalLimiter(local *LocalLimiter) Option {
	return func(l *Limiter) { l.fallback = local }
}

func New(store ports.CounterStore, cfg *config.Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	if cfg == nil {
		return nil, errors.New("rate limit config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		store: store,
		cfg:   cfg,
		breaker: circuit.New("ratelimit",
			circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
			circuit.WithCooldown(cfg.Breaker.Cooldown),
		),
		fallback: NewLocalLimiter(0),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check atomically counts one request for subject against the tier's budget for class.
//
// A nil error means a decision was made; callers inspect Decision.Allowed. Errors are
// rate_limiter_unavailable, when the store failed under a closed fail policy or no policy
// exists for the tier and class.
func (l *Limiter) Check(ctx context.Context, subject models.Subject, tier models.QuotaTier, class models.EndpointClass) (*models.Decision, error) {
	limit, ok := l.limitFor(subject, tier, class)
	if !ok {
		l.logger.ErrorContext(ctx, "no rate limit policy",
			"tier", string(tier),
			"route_class", string(class),
		)
		return &models.Decision{Source: models.SourceDenied},
			dErrors.New(dErrors.CodeRateLimiterUnavailable, "no rate limit policy for route")
	}

	now := requestcontext.Now(ctx)
	window := models.WindowAt(now, limit.Window)
	key := models.CounterKey(subject, class, window)

	if !l.breaker.ShouldProbe() {
		return l.degrade(ctx, subject, class, limit, window, now)
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()
	count, err := l.store.IncrementAndGet(storeCtx, key, window.End().Sub(now)+keyGrace)
	if err != nil {
		l.recordFailure(ctx, err)
		return l.degrade(ctx, subject, class, limit, window, now)
	}
	l.recordSuccess(ctx)

	d := &models.Decision{
		Allowed:   count <= int64(limit.RequestsPerWindow),
		Limit:     limit.RequestsPerWindow,
		Remaining: max(0, limit.RequestsPerWindow-int(count)),
		ResetAt:   window.End(),
		Source:    models.SourcePrimary,
	}
	if !d.Allowed {
		d.RetryAfter = window.End().Sub(now)
	}
	l.countDecision(class, d.Allowed)
	return d, nil
}

func (l *Limiter) limitFor(subject models.Subject, tier models.QuotaTier, class models.EndpointClass) (config.Limit, bool) {
	if subject.Anonymous {
		pl := l.cfg.PublicLimit
		return pl, pl.RequestsPerWindow > 0 && pl.Window > 0
	}
	return l.cfg.GetLimit(tier, class)
}

// degrade decides without the counter store according to the class's fail policy.
func (l *Limiter) degrade(ctx context.Context, subject models.Subject, class models.EndpointClass, limit config.Limit, window models.Window, now time.Time) (*models.Decision, error) {
	policy := l.cfg.FailPolicyFor(class)
	if l.metrics != nil {
		l.metrics.IncrementFallback(string(policy))
	}

	switch policy {
	case config.FailOpen:
		l.logger.WarnContext(ctx, "rate limit store unavailable, admitting",
			"route_class", string(class),
			"tenant_id", subject.TenantID,
			"principal_id", subject.PrincipalID,
		)
		l.countDecision(class, true)
		return &models.Decision{
			Allowed:   true,
			Limit:     limit.RequestsPerWindow,
			Remaining: limit.RequestsPerWindow,
			ResetAt:   window.End(),
			Degraded:  true,
			Source:    models.SourceFailOpen,
		}, nil

	case config.FailLocal:
		key := models.CounterKey(subject, class, models.Window{})
		allowed, remaining, retryAfter := l.fallback.Allow(key, limit, now)
		l.countDecision(class, allowed)
		return &models.Decision{
			Allowed:    allowed,
			Limit:      limit.RequestsPerWindow,
			Remaining:  remaining,
			ResetAt:    window.End(),
			RetryAfter: retryAfter,
			Degraded:   true,
			Source:     models.SourceFallback,
		}, nil

	default:
		return nil, dErrors.New(dErrors.CodeRateLimiterUnavailable, "rate limiter unavailable")
	}
}

func (l *Limiter) recordFailure(ctx context.Context, err error) {
	if l.metrics != nil {
		l.metrics.IncrementStoreErrors()
	}
	l.logger.WarnContext(ctx, "rate limit store call failed", "error", err)
	if _, change := l.breaker.RecordFailure(); change.Opened {
		if l.metrics != nil {
			l.metrics.SetCircuitOpen(true)
		}
		audit.LogAudit(ctx, l.logger, l.auditor, audit.EventRateLimitDegraded,
			"reason", "circuit_opened",
			"breaker", l.breaker.Name(),
		)
	}
}

func (l *Limiter) recordSuccess(ctx context.Context) {
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		if l.metrics != nil {
			l.metrics.SetCircuitOpen(false)
		}
		l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
	}
}

func (l *Limiter) countDecision(class models.EndpointClass, allowed bool) {
	if l.metrics != nil {
		l.metrics.IncrementDecision(string(class), allowed)
	}
}
