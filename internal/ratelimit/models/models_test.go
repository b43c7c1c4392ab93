package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAt(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 30, 42, 0, time.UTC)

	w := WindowAt(now, time.Minute)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 31, 0, 0, time.UTC), w.End())

	next := WindowAt(now.Add(18*time.Second), time.Minute)
	assert.Equal(t, w.Index+1, next.Index, "window boundary starts a new index")

	same := WindowAt(now.Add(17*time.Second), time.Minute)
	assert.Equal(t, w.Index, same.Index)
}

func TestCounterKey(t *testing.T) {
	w := Window{Index: 42}

	t.Run("authenticated subject", func(t *testing.T) {
		key := CounterKey(Subject{TenantID: "t1", PrincipalID: "p1"}, ClassRead, w)
		assert.Equal(t, "rl:t1:p1:read:42", key)
	})

	t.Run("delimiters in identifiers are escaped", func(t *testing.T) {
		key := CounterKey(Subject{TenantID: "t1", PrincipalID: "p1:read"}, ClassWrite, w)
		assert.Equal(t, "rl:t1:p1_read:write:42", key)
	})

	t.Run("anonymous subject keyed by ip", func(t *testing.T) {
		key := CounterKey(Subject{Anonymous: true, ClientIP: "::1"}, ClassAuth, w)
		assert.Equal(t, "rl:anon:__1:auth:42", key)
	})

	t.Run("tenants never share a key", func(t *testing.T) {
		a := CounterKey(Subject{TenantID: "t1", PrincipalID: "p"}, ClassRead, w)
		b := CounterKey(Subject{TenantID: "t2", PrincipalID: "p"}, ClassRead, w)
		assert.NotEqual(t, a, b)
	})
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	d := &Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}
	assert.Equal(t, 2, d.RetryAfterSeconds())

	d = &Decision{Allowed: false, RetryAfter: 0}
	assert.Equal(t, 1, d.RetryAfterSeconds())

	d = &Decision{Allowed: true, RetryAfter: time.Minute}
	assert.Equal(t, 0, d.RetryAfterSeconds())
}

func TestParsers(t *testing.T) {
	c, err := ParseEndpointClass("read")
	require.NoError(t, err)
	assert.Equal(t, ClassRead, c)

	_, err = ParseEndpointClass("admin")
	assert.Error(t, err)

	tier, err := ParseQuotaTier("business")
	require.NoError(t, err)
	assert.Equal(t, QuotaTierBusiness, tier)

	_, err = ParseQuotaTier("platinum")
	assert.Error(t, err)
}
