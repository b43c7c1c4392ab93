// Package storage provides an in-memory map partitioned by tenant scope.
//
// Every operation takes a tenant Scope; there is no way to read or enumerate across
// partitions. Stores that keep tenant-owned data in process build on it.
package storage

import (
	"fmt"
	"sync"

	tenantmodels "loyalgate/internal/tenant/models"
	dErrors "loyalgate/pkg/domain-errors"
	"loyalgate/pkg/platform/sentinel"
)

// ErrUnscoped is returned when an operation is attempted with a zero Scope.
var ErrUnscoped = dErrors.New(dErrors.CodeForbidden, "tenant scope required")

// Partitioned is safe for concurrent use.
type Partitioned[K comparable, V any] struct {
	mu    sync.RWMutex
	parts map[string]map[K]V
}

func NewPartitioned[K comparable, V any]() *Partitioned[K, V] {
	return &Partitioned[K, V]{parts: make(map[string]map[K]V)}
}

func (p *Partitioned[K, V]) Get(scope tenantmodels.Scope, key K) (V, error) {
	var zero V
	if scope.IsZero() {
		return zero, ErrUnscoped
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.parts[scope.IsolationKey()][key]
	if !ok {
		return zero, fmt.Errorf("key %v: %w", key, sentinel.ErrNotFound)
	}
	return v, nil
}

func (p *Partitioned[K, V]) Put(scope tenantmodels.Scope, key K, v V) error {
	if scope.IsZero() {
		return ErrUnscoped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.parts[scope.IsolationKey()]
	if !ok {
		part = make(map[K]V)
		p.parts[scope.IsolationKey()] = part
	}
	part[key] = v
	return nil
}

// Update applies fn to the stored value under the write lock.
func (p *Partitioned[K, V]) Update(scope tenantmodels.Scope, key K, fn func(V) V) error {
	if scope.IsZero() {
		return ErrUnscoped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.parts[scope.IsolationKey()][key]
	if !ok {
		return fmt.Errorf("key %v: %w", key, sentinel.ErrNotFound)
	}
	p.parts[scope.IsolationKey()][key] = fn(v)
	return nil
}

// List returns the partition's values in unspecified order.
func (p *Partitioned[K, V]) List(scope tenantmodels.Scope) ([]V, error) {
	if scope.IsZero() {
		return nil, ErrUnscoped
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	part := p.parts[scope.IsolationKey()]
	out := make([]V, 0, len(part))
	for _, v := range part {
		out = append(out, v)
	}
	return out, nil
}

func (p *Partitioned[K, V]) Delete(scope tenantmodels.Scope, key K) error {
	if scope.IsZero() {
		return ErrUnscoped
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	part := p.parts[scope.IsolationKey()]
	if _, ok := part[key]; !ok {
		return fmt.Errorf("key %v: %w", key, sentinel.ErrNotFound)
	}
	delete(part, key)
	return nil
}
