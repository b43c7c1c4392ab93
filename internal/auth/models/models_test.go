package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "loyalgate/pkg/domain"
	dErrors "loyalgate/pkg/domain-errors"
)

var hash = strings.Repeat("a", 64)

func TestNewAPIKey_Invariants(t *testing.T) {
	now := time.Now()
	tenantID := id.NewTenantID()
	past := now.Add(-time.Minute)

	tests := []struct {
		name      string
		tenant    id.TenantID
		hash      string
		label     string
		expiresAt *time.Time
	}{
		{"nil tenant", id.TenantID{}, hash, "pos", nil},
		{"short hash", tenantID, "abc", "pos", nil},
		{"blank label", tenantID, hash, "  ", nil},
		{"expiry before issue", tenantID, hash, "pos", &past},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAPIKey(tt.tenant, tt.hash, "WXYZ", tt.label, nil, now, tt.expiresAt)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	key, err := NewAPIKey(tenantID, hash, "WXYZ", " pos terminal ", []string{"Points:Read", "points:read"}, now, nil)
	require.NoError(t, err)
	assert.Equal(t, "pos terminal", key.Label)
	assert.Equal(t, []string{"points:read"}, key.Scopes)
	assert.Equal(t, "****WXYZ", key.Masked())
	assert.False(t, key.ID.IsNil())
}

func TestAPIKey_Expiry(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	own := issued.Add(48 * time.Hour)

	t.Run("never expires without ttl or expiry", func(t *testing.T) {
		k := &APIKey{IssuedAt: issued}
		assert.True(t, k.ExpiryAt(0).IsZero())
		assert.False(t, k.IsExpired(issued.Add(10000*time.Hour), 0))
	})

	t.Run("global ttl applies from issue time", func(t *testing.T) {
		k := &APIKey{IssuedAt: issued}
		assert.False(t, k.IsExpired(issued.Add(23*time.Hour), 24*time.Hour))
		assert.True(t, k.IsExpired(issued.Add(24*time.Hour), 24*time.Hour))
	})

	t.Run("earlier of own expiry and ttl wins", func(t *testing.T) {
		k := &APIKey{IssuedAt: issued, ExpiresAt: &own}
		assert.Equal(t, own, k.ExpiryAt(72*time.Hour))
		assert.Equal(t, issued.Add(24*time.Hour), k.ExpiryAt(24*time.Hour))
	})
}

func TestAPIKey_Revoke(t *testing.T) {
	k := &APIKey{}
	first := time.Now()
	k.Revoke(first)
	k.Revoke(first.Add(time.Hour))
	require.True(t, k.IsRevoked())
	assert.Equal(t, first, *k.RevokedAt)
}

func TestPrincipal(t *testing.T) {
	scopes := []string{"points:read"}
	p := NewUserSessionPrincipal(id.NewUserID(), id.NewTenantID(), id.NewSessionID(), scopes, time.Time{})
	scopes[0] = "tampered"

	assert.True(t, p.HasScope("points:read"), "principal keeps its own copy of scopes")
	assert.False(t, p.IsAnonymous())
	assert.Equal(t, AuthMethodBearer, p.Method)

	anon := NewAnonymousPrincipal("203.0.113.9")
	assert.True(t, anon.IsAnonymous())
	assert.True(t, anon.TenantID.IsNil())
	assert.False(t, anon.HasScope("points:read"))
}

func TestCreateAPIKeyRequest_Validate(t *testing.T) {
	seconds := func(n int64) *int64 { return &n }
	maxSeconds := int64(MaxAPIKeyLifetime / time.Second)
	tests := []struct {
		name    string
		expires *int64
		wantErr bool
	}{
		{name: "no expiry", expires: nil},
		{name: "one hour", expires: seconds(3600)},
		{name: "at the cap", expires: seconds(maxSeconds)},
		{name: "zero", expires: seconds(0), wantErr: true},
		{name: "negative", expires: seconds(-1), wantErr: true},
		{name: "past the cap", expires: seconds(maxSeconds + 1), wantErr: true},
		{name: "would overflow a duration", expires: seconds(18446744074), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateAPIKeyRequest{Label: "pos terminal", ExpiresInSeconds: tt.expires}
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}
