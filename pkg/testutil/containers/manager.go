//go:build integration

// Package containers starts shared testcontainers for integration suites.
//
// Containers are started lazily, once per test binary, and reused across suites. Ryuk
// removes them when the binary exits. Suites isolate themselves by truncating tables or
// flushing keys in SetupTest.
package containers

import (
	"sync"
	"testing"
)

// Manager hands out singleton containers.
type Manager struct {
	pgOnce   sync.Once
	postgres *PostgresContainer
	pgErr    error

	redisOnce sync.Once
	redis     *RedisContainer
	redisErr  error

	rpOnce   sync.Once
	redpanda *RedpandaContainer
	rpErr    error
}

var (
	managerOnce sync.Once
	manager     *Manager
)

// GetManager returns the process-wide container manager.
func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.pgOnce.Do(func() {
		m.postgres, m.pgErr = startPostgres()
	})
	if m.pgErr != nil {
		t.Fatalf("postgres container: %v", m.pgErr)
	}
	return m.postgres
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.redisOnce.Do(func() {
		m.redis, m.redisErr = startRedis()
	})
	if m.redisErr != nil {
		t.Fatalf("redis container: %v", m.redisErr)
	}
	return m.redis
}

func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.rpOnce.Do(func() {
		m.redpanda, m.rpErr = startRedpanda()
	})
	if m.rpErr != nil {
		t.Fatalf("redpanda container: %v", m.rpErr)
	}
	return m.redpanda
}
