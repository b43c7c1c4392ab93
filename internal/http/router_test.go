package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"loyalgate/internal/admission"
	authmodels "loyalgate/internal/auth/models"
	authservice "loyalgate/internal/auth/service"
	"loyalgate/internal/auth/store/apikey"
	"loyalgate/internal/auth/token"
	"loyalgate/internal/credential"
	"loyalgate/internal/platform/logger"
	"loyalgate/internal/platform/metrics"
	ratelimitconfig "loyalgate/internal/ratelimit/config"
	ratelimitservice "loyalgate/internal/ratelimit/service"
	"loyalgate/internal/ratelimit/store/counter"
	tenantmodels "loyalgate/internal/tenant/models"
	tenantservice "loyalgate/internal/tenant/service"
	tenantstore "loyalgate/internal/tenant/store/tenant"
	"loyalgate/pkg/platform/httputil"
)

type RouterSuite struct {
	suite.Suite
	ctx        context.Context
	tokens     *token.Service
	keySvc     *authservice.APIKeyService
	router     http.Handler
	ready      error
	acme       *tenantmodels.Tenant
	globex     *tenantmodels.Tenant
	adminKey   string
	adminKeyID string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	s.ready = nil
	s.tokens = token.NewService("router-test-secret-0123456789abcdef", "loyalgate", "loyalgate-api")

	tenants := tenantstore.NewInMemory()
	resolver, err := tenantservice.NewResolver(tenants)
	s.Require().NoError(err)
	tenantSvc := tenantservice.NewTenantService(tenants, tenantservice.WithInvalidator(resolver))
	s.acme, err = tenantSvc.CreateTenant(s.ctx, "Acme Rewards", "business")
	s.Require().NoError(err)
	s.globex, err = tenantSvc.CreateTenant(s.ctx, "Globex Points", "business")
	s.Require().NoError(err)

	keys := apikey.NewInMemory()
	s.keySvc = authservice.NewAPIKeyService(keys)
	authn, err := authservice.NewAuthenticator(s.tokens, keys)
	s.Require().NoError(err)
	limiter, err := ratelimitservice.New(counter.NewInMemory(), ratelimitconfig.DefaultConfig())
	s.Require().NoError(err)
	pipeline, err := admission.New(authn, resolver, limiter)
	s.Require().NoError(err)

	adminKey, raw := s.createKey(s.acme, authmodels.ScopeManageAPIKeys, "points:read")
	s.adminKey, s.adminKeyID = raw, adminKey.ID.String()

	reg := prometheus.NewRegistry()
	s.router = NewRouter(Deps{
		Pipeline:    pipeline,
		APIKeys:     s.keySvc,
		Registry:    reg,
		HTTPMetrics: metrics.New(reg),
		Logger:      logger.Discard(),
		Ready:       func(*http.Request) error { return s.ready },
	})
}

func (s *RouterSuite) createKey(tenant *tenantmodels.Tenant, scopes ...string) (*authmodels.APIKey, string) {
	req := &authmodels.CreateAPIKeyRequest{Label: "bootstrap", Scopes: scopes}
	s.Require().NoError(req.Validate())
	key, raw, err := s.keySvc.CreateAPIKey(s.ctx, tenant.Scope(), req)
	s.Require().NoError(err)
	return key, raw
}

func (s *RouterSuite) do(method, path, apiKey string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set(credential.HeaderAPIKey, apiKey)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestInfrastructureEndpointsBypassAdmission() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)

	s.ready = errors.New("redis down")
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/readyz", "", nil).Code)
}

func (s *RouterSuite) TestRequestIDEchoed() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.NotEmpty(rec.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestPublicStatus() {
	rec := s.do(http.MethodGet, "/api/public/status", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotEmpty(rec.Header().Get(admission.HeaderRateLimitLimit))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(false, body["authenticated"])
}

func (s *RouterSuite) TestContextEndpoint() {
	rec := s.do(http.MethodGet, "/api/loyalty/context", s.adminKey, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body ContextResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(s.acme.ID.String(), body.TenantID)
	s.Equal(s.acme.IsolationKey, body.IsolationKey)
	s.Equal("business", body.Tier)
	s.Equal(string(authmodels.PrincipalAPIKeyClient), body.PrincipalKind)
	s.Equal("read", body.RouteClass)
	s.Equal(1199, body.RateRemaining)

	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/loyalty/context", "", nil).Code)
}

func (s *RouterSuite) TestContextWithBearer() {
	tok, err := s.tokens.Issue(token.IssueRequest{
		UserID:   uuid.New(),
		TenantID: uuid.UUID(s.globex.ID),
		TTL:      time.Hour,
	})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/api/loyalty/context", nil)
	req.Header.Set(credential.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Require().Equal(http.StatusOK, rec.Code)
	var body ContextResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(s.globex.IsolationKey, body.IsolationKey)
	s.Equal(string(authmodels.PrincipalUserSession), body.PrincipalKind)
}

func (s *RouterSuite) TestAPIKeyLifecycle() {
	rec := s.do(http.MethodPost, "/api/auth/api-keys", s.adminKey, map[string]any{
		"label":  "checkout integration",
		"scopes": []string{"points:read"},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var created authmodels.CreatedAPIKey
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	s.NotEmpty(created.APIKey)
	s.Equal("****"+created.APIKey[len(created.APIKey)-4:], created.Key)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/api/loyalty/context", created.APIKey, nil).Code)

	rec = s.do(http.MethodGet, "/api/auth/api-keys", s.adminKey, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), created.APIKey)
	var listed struct {
		APIKeys []authmodels.APIKeyView `json:"api_keys"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &listed))
	s.Len(listed.APIKeys, 2)

	rec = s.do(http.MethodDelete, "/api/auth/api-keys/"+created.ID, s.adminKey, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/loyalty/context", created.APIKey, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	var errBody httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &errBody))
	s.Equal(admission.ExternalAuthInvalid, errBody.Error)
}

func (s *RouterSuite) TestKeyManagementIsTenantIsolated() {
	globexKey, _ := s.createKey(s.globex, "points:read")
	_, globexAdmin := s.createKey(s.globex, authmodels.ScopeManageAPIKeys)

	rec := s.do(http.MethodDelete, "/api/auth/api-keys/"+globexKey.ID.String(), s.adminKey, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/auth/api-keys", globexAdmin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var listed struct {
		APIKeys []authmodels.APIKeyView `json:"api_keys"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &listed))
	s.Require().Len(listed.APIKeys, 2)
	for _, v := range listed.APIKeys {
		s.NotEqual(s.adminKeyID, v.ID)
	}
}

func (s *RouterSuite) TestKeyManagementRequiresScope() {
	_, readOnly := s.createKey(s.acme, "points:read")
	rec := s.do(http.MethodGet, "/api/auth/api-keys", readOnly, nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestCannotGrantUnheldScope() {
	rec := s.do(http.MethodPost, "/api/auth/api-keys", s.adminKey, map[string]any{
		"label":  "escalation",
		"scopes": []string{"points:adjust"},
	})
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *RouterSuite) TestCreateValidation() {
	rec := s.do(http.MethodPost, "/api/auth/api-keys", s.adminKey, map[string]any{"label": "  "})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/api/auth/api-keys/not-a-uuid", s.adminKey, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/api-keys", s.adminKey, map[string]any{
		"label":              "forever",
		"expires_in_seconds": int64(18446744074),
	})
	s.Equal(http.StatusBadRequest, rec.Code, "lifetimes past the cap are rejected, not wrapped")
}
