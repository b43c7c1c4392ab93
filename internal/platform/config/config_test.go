package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rlconfig "loyalgate/internal/ratelimit/config"
)

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOYALGATE_SERVER__ADDR", ":9090")
	t.Setenv("LOYALGATE_TENANT__CACHE_TTL", "20s")
	t.Setenv("LOYALGATE_AUTH__JWT_SECRET", "s3cret")
	t.Setenv("LOYALGATE_RATELIMIT__FAIL_POLICIES__READ", "open")
	t.Setenv("LOYALGATE_AUDIT__BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 20*time.Second, cfg.Tenant.CacheTTL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, rlconfig.FailOpen, cfg.RateLimit.FailPolicies["read"])
	assert.Equal(t, rlconfig.FailClosed, cfg.RateLimit.FailPolicies["sensitive"], "defaults survive partial overrides")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Audit.Brokers)
	assert.True(t, cfg.Audit.KafkaEnabled())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loyalgate.yaml")
	body := `
server:
  environment: staging
ratelimit:
  tiers:
    free:
      read:
        requests_per_window: 5
        window: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("LOYALGATE_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Server.Environment)

	l := cfg.RateLimit.Tiers["free"]["read"]
	assert.Equal(t, 5, l.RequestsPerWindow)
	assert.Equal(t, time.Minute, l.Window)

	defaults := Default().RateLimit.Tiers["free"]
	for _, class := range []string{"auth", "sensitive", "write"} {
		assert.Equal(t, defaults[class], cfg.RateLimit.Tiers["free"][class], "free.%s survives an override of free.read", class)
	}
	assert.Equal(t, Default().RateLimit.Tiers["business"], cfg.RateLimit.Tiers["business"])
}

func TestLoad_EnvOverridesSingleTierField(t *testing.T) {
	t.Setenv("LOYALGATE_RATELIMIT__TIERS__FREE__READ__REQUESTS_PER_WINDOW", "5")

	cfg, err := Load()
	require.NoError(t, err)

	free := cfg.RateLimit.Tiers["free"]
	assert.Equal(t, rlconfig.Limit{RequestsPerWindow: 5, Window: time.Minute}, free["read"], "window keeps its default")
	assert.Len(t, free, len(Default().RateLimit.Tiers["free"]))
	assert.Equal(t, Default().RateLimit.Tiers["free"]["write"], free["write"])
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("LOYALGATE_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tenant cache ttl above bound", func(c *Config) { c.Tenant.CacheTTL = 31 * time.Second }},
		{"tenant cache ttl zero", func(c *Config) { c.Tenant.CacheTTL = 0 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"dev secret in production", func(c *Config) { c.Server.Environment = "production" }},
		{"bootstrap in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Auth.JWTSecret = "real"
			c.Bootstrap.Enabled = true
		}},
		{"unknown auth store", func(c *Config) { c.Auth.Store = "dynamo" }},
		{"redis counter without url", func(c *Config) { c.RateLimit.Store = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Tenant.Store = "postgres" }},
		{"bad fail policy", func(c *Config) { c.RateLimit.FailPolicies["read"] = "sometimes" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
