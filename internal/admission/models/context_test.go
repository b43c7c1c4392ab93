package models

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmodels "loyalgate/internal/auth/models"
	ratelimitmodels "loyalgate/internal/ratelimit/models"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
)

func TestRequestContext_IsolatedFromInputs(t *testing.T) {
	tenant, err := tenantmodels.NewTenant(id.NewTenantID(), "Acme", "free", time.Now())
	require.NoError(t, err)
	principal := authmodels.NewUserSessionPrincipal(id.NewUserID(), tenant.ID, id.NewSessionID(), []string{"points:read"}, time.Now().Add(time.Hour))
	decision := &ratelimitmodels.Decision{Allowed: true, Limit: 5, Remaining: 4}

	rc := NewRequestContext("req-1", tenant, principal, decision, ratelimitmodels.ClassRead, time.Now())

	tenant.Status = tenantmodels.TenantStatusSuspended
	principal.Scopes[0] = "admin"
	decision.Remaining = 0

	bound, ok := rc.Tenant()
	require.True(t, ok)
	assert.True(t, bound.IsActive())
	assert.Equal(t, []string{"points:read"}, rc.Principal().Scopes)
	assert.Equal(t, 4, rc.RateRemaining())

	p := rc.Principal()
	p.Scopes[0] = "admin"
	assert.Equal(t, []string{"points:read"}, rc.Principal().Scopes)

	scope, ok := rc.Scope()
	require.True(t, ok)
	assert.Equal(t, tenant.IsolationKey, scope.IsolationKey())
	assert.Equal(t, "req-1", rc.RequestID())
	assert.Equal(t, ratelimitmodels.ClassRead, rc.RouteClass())
}

func TestRequestContext_Anonymous(t *testing.T) {
	rc := NewRequestContext("req-2", nil, authmodels.NewAnonymousPrincipal("203.0.113.1"), nil, ratelimitmodels.ClassRead, time.Now())

	_, ok := rc.Tenant()
	assert.False(t, ok)
	scope, ok := rc.Scope()
	assert.False(t, ok)
	assert.True(t, scope.IsZero())
	p := rc.Principal()
	assert.True(t, p.IsAnonymous())
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	rc := NewRequestContext("req-3", nil, nil, nil, ratelimitmodels.ClassRead, time.Now())
	got, ok := FromContext(WithRequestContext(context.Background(), rc))
	require.True(t, ok)
	assert.Same(t, rc, got)
}
