// Package apikey stores API key records by hash. Admission reads them through FindByHash;
// management operations are tenant-scoped.
package apikey

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"loyalgate/internal/auth/models"
	"loyalgate/internal/storage"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	"loyalgate/pkg/platform/sentinel"
)

// InMemoryStore keeps keys in process. The per-tenant index is a storage.Partitioned, so
// listing and revoking cannot reach another tenant's keys.
type InMemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]models.APIKey
	index  *storage.Partitioned[id.APIKeyID, string]
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byHash: make(map[string]models.APIKey),
		index:  storage.NewPartitioned[id.APIKeyID, string](),
	}
}

func (s *InMemoryStore) Create(_ context.Context, scope tenantmodels.Scope, key *models.APIKey) error {
	if err := checkOwner(scope, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[key.KeyHash]; ok {
		return fmt.Errorf("api key hash: %w", sentinel.ErrConflict)
	}
	if err := s.index.Put(scope, key.ID, key.KeyHash); err != nil {
		return err
	}
	s.byHash[key.KeyHash] = cloneKey(*key)
	return nil
}

func (s *InMemoryStore) FindByHash(_ context.Context, keyHash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byHash[keyHash]
	if !ok {
		return nil, fmt.Errorf("api key: %w", sentinel.ErrNotFound)
	}
	out := cloneKey(k)
	return &out, nil
}

// ListByTenant returns the scope's keys, oldest first.
func (s *InMemoryStore) ListByTenant(_ context.Context, scope tenantmodels.Scope) ([]*models.APIKey, error) {
	hashes, err := s.index.List(scope)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.APIKey, 0, len(hashes))
	for _, h := range hashes {
		k := cloneKey(s.byHash[h])
		out = append(out, &k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

// Revoke marks a key revoked. Keys of other tenants are reported as not found.
func (s *InMemoryStore) Revoke(_ context.Context, scope tenantmodels.Scope, keyID id.APIKeyID, at time.Time) (*models.APIKey, error) {
	hash, err := s.index.Get(scope, keyID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.byHash[hash]
	k.Revoke(at)
	s.byHash[hash] = k
	out := cloneKey(k)
	return &out, nil
}

func checkOwner(scope tenantmodels.Scope, key *models.APIKey) error {
	if scope.IsZero() {
		return storage.ErrUnscoped
	}
	if scope.TenantID() != key.TenantID {
		return fmt.Errorf("api key belongs to another tenant: %w", storage.ErrUnscoped)
	}
	return nil
}

func cloneKey(k models.APIKey) models.APIKey {
	k.Scopes = append([]string(nil), k.Scopes...)
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		k.ExpiresAt = &t
	}
	if k.RevokedAt != nil {
		t := *k.RevokedAt
		k.RevokedAt = &t
	}
	return k
}
