// Package admission runs the per-request admission state machine:
//
//	unauthenticated → credential_resolved → authenticated → tenant_bound → rate_checked → admitted
//
// Any stage may end the request as rejected. Stages run strictly in order, so a request that
// fails before the rate check never touches a counter.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	admissionmetrics "loyalgate/internal/admission/metrics"
	"loyalgate/internal/admission/models"
	"loyalgate/internal/audit"
	authmodels "loyalgate/internal/auth/models"
	"loyalgate/internal/credential"
	"loyalgate/internal/platform/middleware"
	"loyalgate/internal/platform/telemetry"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/requestcontext"
)

type Authenticator interface {
	Authenticate(ctx context.Context, cred credential.Credential) (*authmodels.Principal, error)
}

type TenantResolver interface {
	Resolve(ctx context.Context, tenantID id.TenantID) (*tenantmodels.Tenant, error)
}

type RateLimiter interface {
	Check(ctx context.Context, subject ratelimitmodels.Subject, tier ratelimitmodels.QuotaTier, class ratelimitmodels.EndpointClass) (*ratelimitmodels.Decision, error)
}

// Pipeline coordinates the admission stages. It is safe for concurrent use; each request
// runs its own pass with no shared mutable state.
type Pipeline struct {
	authn   Authenticator
	tenants TenantResolver
	limiter RateLimiter
	logger  *slog.Logger
	auditor audit.Emitter
	metrics *admissionmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithAuditPublisher(emitter audit.Emitter) Option {
	return func(p *Pipeline) { p.auditor = emitter }
}

func WithMetrics(m *admissionmetrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

func New(authn Authenticator, tenants TenantResolver, limiter RateLimiter, opts ...Option) (*Pipeline, error) {
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	if tenants == nil {
		return nil, errors.New("tenant resolver is required")
	}
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	p := &Pipeline{
		authn:   authn,
		tenants: tenants,
		limiter: limiter,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  otel.Tracer(telemetry.TracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// pass is the mutable state of one request while it moves through the stages.
type pass struct {
	route     Route
	stage     models.Stage
	clientIP  string
	principal *authmodels.Principal
	tenant    *tenantmodels.Tenant
	decision  *ratelimitmodels.Decision
}

// Admit runs every stage for r. On success the returned RequestContext is final; on failure
// the error is a *Rejection.
func (p *Pipeline) Admit(ctx context.Context, r *http.Request, route Route) (*models.RequestContext, error) {
	ctx, span := p.tracer.Start(ctx, "admission.admit", trace.WithAttributes(
		attribute.String("route", route.label()),
		attribute.String("route_class", string(route.Class)),
	))
	defer span.End()

	ps := &pass{route: route, stage: models.StageUnauthenticated, clientIP: requestcontext.ClientIP(ctx)}
	if ps.clientIP == "" {
		ps.clientIP = middleware.ClientIPFromRequest(r, false)
	}

	stages := []struct {
		name string
		run  func(context.Context, *http.Request, *pass) error
	}{
		{"authenticate", p.authenticate},
		{"bind_tenant", p.bindTenant},
		{"rate_check", p.checkRate},
	}
	for _, st := range stages {
		if err := p.runStage(ctx, r, ps, st.name, st.run); err != nil {
			rej := p.rejected(ctx, ps, err)
			span.SetStatus(codes.Error, string(rej.Kind))
			span.SetAttributes(attribute.String("admission.rejected_at", string(rej.Stage)))
			return nil, rej
		}
	}

	ps.stage = models.StageAdmitted
	rc := models.NewRequestContext(requestcontext.RequestID(ctx), ps.tenant, ps.principal, ps.decision, route.Class, requestcontext.Now(ctx))
	p.admitted(ctx, ps)
	span.SetAttributes(attribute.String("admission.principal_kind", string(ps.principal.Kind)))
	return rc, nil
}

func (p *Pipeline) runStage(ctx context.Context, r *http.Request, ps *pass, name string, run func(context.Context, *http.Request, *pass) error) error {
	ctx, span := p.tracer.Start(ctx, "admission."+name)
	defer span.End()
	start := time.Now()

	err := run(ctx, r, ps)
	if p.metrics != nil {
		p.metrics.ObserveStage(name, start)
	}
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return err
	}
	return nil
}

// authenticate covers credential_resolved and authenticated: a credential is classified and
// then proved. Public routes turn a missing credential into the anonymous principal.
func (p *Pipeline) authenticate(ctx context.Context, r *http.Request, ps *pass) error {
	cred, err := credential.Resolve(r.Header)
	if err != nil {
		if ps.route.Public && dErrors.HasCode(err, dErrors.CodeMissingCredential) {
			ps.principal = authmodels.NewAnonymousPrincipal(ps.clientIP)
			ps.stage = models.StageAuthenticated
			return nil
		}
		return err
	}
	ps.stage = models.StageCredentialResolved

	principal, err := p.authn.Authenticate(ctx, cred)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuthServiceUnavailable) {
			p.logger.ErrorContext(ctx, "authentication backend unavailable",
				"credential", cred.Redacted(),
				"error", err,
			)
		}
		return err
	}
	ps.principal = principal
	ps.stage = models.StageAuthenticated
	return nil
}

// bindTenant loads the authoritative tenant and enforces route scopes. Anonymous principals
// are bound to no tenant.
func (p *Pipeline) bindTenant(ctx context.Context, _ *http.Request, ps *pass) error {
	if !ps.principal.IsAnonymous() {
		tenant, err := p.tenants.Resolve(ctx, ps.principal.TenantID)
		if err != nil {
			return err
		}
		if tenant.ID != ps.principal.TenantID {
			return dErrors.New(dErrors.CodeTenantNotFound, "tenant does not match credential")
		}
		ps.tenant = tenant
	}
	for _, scope := range ps.route.Scopes {
		if !ps.principal.HasScope(scope) {
			return dErrors.New(dErrors.CodeForbidden, "missing scope "+scope)
		}
	}
	ps.stage = models.StageTenantBound
	return nil
}

func (p *Pipeline) checkRate(ctx context.Context, _ *http.Request, ps *pass) error {
	subject := ratelimitmodels.Subject{
		PrincipalID: ps.principal.ID,
		Anonymous:   ps.principal.IsAnonymous(),
		ClientIP:    ps.clientIP,
	}
	var tier ratelimitmodels.QuotaTier
	if ps.tenant != nil {
		subject.TenantID = ps.tenant.ID.String()
		tier = ratelimitmodels.QuotaTier(ps.tenant.Tier)
	}

	decision, err := p.limiter.Check(ctx, subject, tier, ps.route.Class)
	ps.decision = decision
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return dErrors.New(dErrors.CodeRateLimitExceeded, "rate limit exceeded")
	}
	ps.stage = models.StageRateChecked
	return nil
}

func (p *Pipeline) rejected(ctx context.Context, ps *pass, err error) *Rejection {
	rej := reject(ps.stage, err)
	if ps.decision != nil {
		rej.Decision = ps.decision
	}
	if p.metrics != nil {
		p.metrics.IncrementRejected(string(rej.Stage), string(rej.Kind))
	}

	event := audit.EventAdmissionRejected
	if rej.Kind == dErrors.CodeRateLimitExceeded {
		event = audit.EventRateLimitExceeded
	}
	attrs := []any{
		"stage", string(rej.Stage),
		"reason", string(rej.Kind),
		"route_class", string(ps.route.Class),
		"route", ps.route.label(),
		"client_ip", ps.clientIP,
	}
	if ps.principal != nil && !ps.principal.IsAnonymous() {
		attrs = append(attrs,
			"tenant_id", ps.principal.TenantID.String(),
			"principal_id", ps.principal.ID,
		)
	}
	audit.LogAudit(ctx, p.logger, p.auditor, event, attrs...)
	return rej
}

func (p *Pipeline) admitted(ctx context.Context, ps *pass) {
	if p.metrics != nil {
		p.metrics.IncrementAdmitted(string(ps.route.Class), string(ps.principal.Kind))
	}
	if ps.decision != nil && ps.decision.Degraded {
		if p.metrics != nil {
			p.metrics.IncrementDegraded()
		}
		p.logger.WarnContext(ctx, "admitted without shared rate limit",
			"source", ps.decision.Source,
			"route_class", string(ps.route.Class),
			"principal_id", ps.principal.ID,
		)
	}
	p.logger.DebugContext(ctx, "request admitted",
		"route", ps.route.label(),
		"principal_kind", string(ps.principal.Kind),
		"principal_id", ps.principal.ID,
	)
}
