// Package config loads server configuration.
//
// Sources, later ones winning: built-in defaults, an optional YAML file named by
// LOYALGATE_CONFIG_FILE, then LOYALGATE_* environment variables. A double underscore
// separates nesting levels, so LOYALGATE_TENANT__CACHE_TTL sets tenant.cache_ttl.
// A .env file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	rlconfig "loyalgate/internal/ratelimit/config"
)

const (
	envPrefix  = "LOYALGATE_"
	envFileVar = envPrefix + "CONFIG_FILE"

	// MaxTenantCacheTTL bounds how stale a tenant's suspension status may be.
	MaxTenantCacheTTL = 30 * time.Second

	devJWTSecret = "dev-secret-key-change-in-production"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Redis     RedisConfig     `koanf:"redis"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Auth      AuthConfig      `koanf:"auth"`
	Tenant    TenantConfig    `koanf:"tenant"`
	RateLimit rlconfig.Config `koanf:"ratelimit"`
	Audit     AuditConfig     `koanf:"audit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	Environment       string        `koanf:"environment"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP for client IP detection.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or text
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	Leeway    time.Duration `koanf:"leeway"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	// APIKeyTTL expires keys this long after issue. Zero disables the global TTL.
	APIKeyTTL    time.Duration `koanf:"api_key_ttl"`
	StoreTimeout time.Duration `koanf:"store_timeout"`
	// Store selects the API key backend: memory or postgres.
	Store string `koanf:"store"`
}

type TenantConfig struct {
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	CacheSize    int           `koanf:"cache_size"`
	StoreTimeout time.Duration `koanf:"store_timeout"`
	Store        string        `koanf:"store"`
}

type AuditConfig struct {
	Brokers       []string      `koanf:"brokers"`
	Topic         string        `koanf:"topic"`
	BufferSize    int           `koanf:"buffer_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// KafkaEnabled reports whether audit events are shipped to Kafka.
func (a AuditConfig) KafkaEnabled() bool {
	return len(a.Brokers) > 0
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// BootstrapConfig seeds one tenant (and optionally one API key) into in-memory stores for
// local development.
type BootstrapConfig struct {
	Enabled    bool   `koanf:"enabled"`
	TenantName string `koanf:"tenant_name"`
	Tier       string `koanf:"tier"`
	APIKey     string `koanf:"api_key"`
}

// Default returns the configuration used when no source overrides a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			Environment:       "development",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Redis: RedisConfig{
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			JWTSecret:    devJWTSecret,
			Issuer:       "loyalgate",
			Audience:     "loyalgate-api",
			Leeway:       5 * time.Second,
			TokenTTL:     15 * time.Minute,
			StoreTimeout: 100 * time.Millisecond,
			Store:        "memory",
		},
		Tenant: TenantConfig{
			CacheTTL:     15 * time.Second,
			CacheSize:    10_000,
			StoreTimeout: 100 * time.Millisecond,
			Store:        "memory",
		},
		RateLimit: *rlconfig.DefaultConfig(),
		Audit: AuditConfig{
			Topic:         "loyalgate.security-audit",
			BufferSize:    1000,
			FlushInterval: time.Second,
		},
		Telemetry: TelemetryConfig{ServiceName: "loyalgate"},
		Bootstrap: BootstrapConfig{TenantName: "demo", Tier: "free"},
	}
}

// Load reads .env, the optional config file and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	cfg := Default()
	if err := seedTierDefaults(k, cfg.RateLimit.Tiers); err != nil {
		return nil, err
	}
	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedTierDefaults writes every tier/class limit into k at leaf level. Decoding a nested map
// replaces the inner map wholesale, so without the seed an override of one class would drop
// the tier's other classes.
func seedTierDefaults(k *koanf.Koanf, tiers map[string]map[string]rlconfig.Limit) error {
	for tier, classes := range tiers {
		for class, limit := range classes {
			prefix := "ratelimit.tiers." + tier + "." + class + "."
			if err := k.Set(prefix+"requests_per_window", limit.RequestsPerWindow); err != nil {
				return fmt.Errorf("seed %s: %w", prefix, err)
			}
			if err := k.Set(prefix+"window", limit.Window.String()); err != nil {
				return fmt.Errorf("seed %s: %w", prefix, err)
			}
		}
	}
	return nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Validate rejects unsafe or unusable settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Tenant.CacheTTL <= 0 || c.Tenant.CacheTTL > MaxTenantCacheTTL {
		errs = append(errs, fmt.Errorf("tenant.cache_ttl must be in (0, %s], got %s", MaxTenantCacheTTL, c.Tenant.CacheTTL))
	}
	if c.Tenant.CacheSize <= 0 {
		errs = append(errs, errors.New("tenant.cache_size must be positive"))
	}
	if c.Tenant.StoreTimeout <= 0 || c.Auth.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeouts must be positive"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Server.IsProduction() && c.Auth.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("auth.jwt_secret must be overridden in production"))
	}
	if c.Server.IsProduction() && c.Bootstrap.Enabled {
		errs = append(errs, errors.New("bootstrap cannot be enabled in production"))
	}
	for name, store := range map[string]string{"auth.store": c.Auth.Store, "tenant.store": c.Tenant.Store} {
		if store != "memory" && store != "postgres" {
			errs = append(errs, fmt.Errorf("%s must be memory or postgres, got %q", name, store))
		}
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit.Store == "redis" && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when ratelimit.store is redis"))
	}
	if c.UsesPostgres() && c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required when a postgres store is selected"))
	}
	if c.Audit.KafkaEnabled() && c.Audit.Topic == "" {
		errs = append(errs, errors.New("audit.topic is required when audit.brokers is set"))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether any store needs the Postgres pool.
func (c *Config) UsesPostgres() bool {
	return c.Auth.Store == "postgres" || c.Tenant.Store == "postgres" || c.RateLimit.Store == "postgres"
}
