// Package config holds rate limit policy: per-tier limits, per-class failure policy
// and circuit breaker tuning.
package config

import (
	"fmt"
	"time"

	"loyalgate/internal/ratelimit/models"
)

// Limit is a fixed-window budget.
type Limit struct {
	RequestsPerWindow int           `koanf:"requests_per_window"`
	Window            time.Duration `koanf:"window"`
}

// FailPolicy decides what happens when the counter store cannot answer.
type FailPolicy string

const (
	// FailOpen admits the request and logs it.
	FailOpen FailPolicy = "open"
	// FailClosed rejects the request as unavailable.
	FailClosed FailPolicy = "closed"
	// FailLocal decides with an in-process token bucket.
	FailLocal FailPolicy = "local"
)

func (p FailPolicy) IsValid() bool {
	switch p {
	case FailOpen, FailClosed, FailLocal:
		return true
	}
	return false
}

// BreakerConfig tunes the counter store circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

// Config is the complete rate limit policy.
type Config struct {
	// Store selects the counter backend: memory, redis or postgres.
	Store        string        `koanf:"store"`
	StoreTimeout time.Duration `koanf:"store_timeout"`

	// Tiers maps tier -> endpoint class -> limit.
	Tiers map[string]map[string]Limit `koanf:"tiers"`
	// PublicLimit applies to anonymous principals on public routes, per client IP.
	PublicLimit Limit `koanf:"public_limit"`

	FailPolicies      map[string]FailPolicy `koanf:"fail_policies"`
	DefaultFailPolicy FailPolicy            `koanf:"default_fail_policy"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// DefaultConfig returns per-minute budgets that scale with tier.
func DefaultConfig() *Config {
	tier := func(auth, sensitive, read, write int) map[string]Limit {
		return map[string]Limit{
			string(models.ClassAuth):      {RequestsPerWindow: auth, Window: time.Minute},
			string(models.ClassSensitive): {RequestsPerWindow: sensitive, Window: time.Minute},
			string(models.ClassRead):      {RequestsPerWindow: read, Window: time.Minute},
			string(models.ClassWrite):     {RequestsPerWindow: write, Window: time.Minute},
		}
	}
	return &Config{
		Store:        "memory",
		StoreTimeout: 50 * time.Millisecond,
		Tiers: map[string]map[string]Limit{
			string(models.QuotaTierFree):       tier(10, 10, 60, 30),
			string(models.QuotaTierStarter):    tier(20, 30, 300, 150),
			string(models.QuotaTierBusiness):   tier(50, 100, 1200, 600),
			string(models.QuotaTierEnterprise): tier(100, 300, 6000, 3000),
		},
		PublicLimit: Limit{RequestsPerWindow: 30, Window: time.Minute},
		FailPolicies: map[string]FailPolicy{
			string(models.ClassAuth):      FailClosed,
			string(models.ClassSensitive): FailClosed,
			string(models.ClassRead):      FailLocal,
			string(models.ClassWrite):     FailLocal,
		},
		DefaultFailPolicy: FailClosed,
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Cooldown:         time.Second,
		},
	}
}

// GetLimit returns the budget for tier and class. ok is false when no policy is configured,
// which callers treat as deny.
func (c *Config) GetLimit(tier models.QuotaTier, class models.EndpointClass) (Limit, bool) {
	classes, ok := c.Tiers[string(tier)]
	if !ok {
		return Limit{}, false
	}
	l, ok := classes[string(class)]
	if !ok || l.RequestsPerWindow <= 0 || l.Window <= 0 {
		return Limit{}, false
	}
	return l, true
}

// FailPolicyFor returns the configured outage policy for class.
func (c *Config) FailPolicyFor(class models.EndpointClass) FailPolicy {
	if p, ok := c.FailPolicies[string(class)]; ok && p.IsValid() {
		return p
	}
	if c.DefaultFailPolicy.IsValid() {
		return c.DefaultFailPolicy
	}
	return FailClosed
}

// Validate rejects configurations the limiter cannot enforce.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("ratelimit.store must be memory, redis or postgres, got %q", c.Store)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("ratelimit.store_timeout must be positive")
	}
	for tier, classes := range c.Tiers {
		if !models.QuotaTier(tier).IsValid() {
			return fmt.Errorf("ratelimit.tiers: unknown tier %q", tier)
		}
		for class, l := range classes {
			if !models.EndpointClass(class).IsValid() {
				return fmt.Errorf("ratelimit.tiers.%s: unknown class %q", tier, class)
			}
			if l.RequestsPerWindow <= 0 || l.Window <= 0 {
				return fmt.Errorf("ratelimit.tiers.%s.%s: requests_per_window and window must be positive", tier, class)
			}
		}
	}
	if c.PublicLimit.RequestsPerWindow <= 0 || c.PublicLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.public_limit must be positive")
	}
	for class, p := range c.FailPolicies {
		if !p.IsValid() {
			return fmt.Errorf("ratelimit.fail_policies.%s: unknown policy %q", class, p)
		}
	}
	if c.DefaultFailPolicy != "" && !c.DefaultFailPolicy.IsValid() {
		return fmt.Errorf("ratelimit.default_fail_policy: unknown policy %q", c.DefaultFailPolicy)
	}
	return nil
}
