package tenant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	"loyalgate/pkg/platform/sentinel"
)

// InMemory stores tenants in process for tests and local development.
// Returned tenants are copies; mutate and Save to persist.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]models.Tenant
	names   map[string]id.TenantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[id.TenantID]models.Tenant),
		names:   make(map[string]id.TenantID),
	}
}

// CreateIfNameAvailable inserts t unless its id or case-folded name is taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := strings.ToLower(t.Name)
	if _, ok := s.names[name]; ok {
		return fmt.Errorf("tenant name %q: %w", t.Name, sentinel.ErrConflict)
	}
	if _, ok := s.tenants[t.ID]; ok {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrConflict)
	}
	s.tenants[t.ID] = *t
	s.names[name] = t.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	return &t, nil
}

// Save updates an existing tenant's mutable fields.
func (s *InMemory) Save(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tenants[t.ID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", t.ID, sentinel.ErrNotFound)
	}
	newName := strings.ToLower(t.Name)
	if owner, taken := s.names[newName]; taken && owner != t.ID {
		return fmt.Errorf("tenant name %q: %w", t.Name, sentinel.ErrConflict)
	}
	delete(s.names, strings.ToLower(prev.Name))
	s.names[newName] = t.ID
	s.tenants[t.ID] = *t
	return nil
}
