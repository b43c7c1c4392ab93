package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"loyalgate/internal/auth/models"
	"loyalgate/internal/storage"
	tenantmodels "loyalgate/internal/tenant/models"
	id "loyalgate/pkg/domain"
	"loyalgate/pkg/platform/sentinel"
	"loyalgate/pkg/secrets"
)

type APIKeyStoreSuite struct {
	suite.Suite
	store   *InMemoryStore
	ctx     context.Context
	tenantA *tenantmodels.Tenant
	tenantB *tenantmodels.Tenant
}

func TestAPIKeyStoreSuite(t *testing.T) {
	suite.Run(t, new(APIKeyStoreSuite))
}

func (s *APIKeyStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	var err error
	s.tenantA, err = tenantmodels.NewTenant(id.NewTenantID(), "A", "free", time.Now())
	s.Require().NoError(err)
	s.tenantB, err = tenantmodels.NewTenant(id.NewTenantID(), "B", "free", time.Now())
	s.Require().NoError(err)
}

func (s *APIKeyStoreSuite) newKey(t *tenantmodels.Tenant, issuedAt time.Time) (*models.APIKey, string) {
	raw, err := secrets.Generate()
	s.Require().NoError(err)
	hash, err := secrets.Hash(raw)
	s.Require().NoError(err)
	k, err := models.NewAPIKey(t.ID, hash, raw[len(raw)-4:], "test", []string{"read"}, issuedAt, nil)
	s.Require().NoError(err)
	return k, raw
}

func (s *APIKeyStoreSuite) TestCreateAndFindByHash() {
	key, _ := s.newKey(s.tenantA, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, s.tenantA.Scope(), key))

	found, err := s.store.FindByHash(s.ctx, key.KeyHash)
	s.Require().NoError(err)
	s.Equal(key.ID, found.ID)
	s.Equal(s.tenantA.ID, found.TenantID)

	s.Run("unknown hash", func() {
		_, err := s.store.FindByHash(s.ctx, "deadbeef")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate hash", func() {
		s.ErrorIs(s.store.Create(s.ctx, s.tenantA.Scope(), key), sentinel.ErrConflict)
	})
}

func (s *APIKeyStoreSuite) TestCreateRejectsForeignScope() {
	key, _ := s.newKey(s.tenantA, time.Now())
	err := s.store.Create(s.ctx, s.tenantB.Scope(), key)
	s.ErrorIs(err, storage.ErrUnscoped)

	err = s.store.Create(s.ctx, tenantmodels.Scope{}, key)
	s.ErrorIs(err, storage.ErrUnscoped)
}

func (s *APIKeyStoreSuite) TestListIsIsolatedAndOrdered() {
	base := time.Now()
	second, _ := s.newKey(s.tenantA, base.Add(time.Minute))
	first, _ := s.newKey(s.tenantA, base)
	other, _ := s.newKey(s.tenantB, base)
	s.Require().NoError(s.store.Create(s.ctx, s.tenantA.Scope(), second))
	s.Require().NoError(s.store.Create(s.ctx, s.tenantA.Scope(), first))
	s.Require().NoError(s.store.Create(s.ctx, s.tenantB.Scope(), other))

	keys, err := s.store.ListByTenant(s.ctx, s.tenantA.Scope())
	s.Require().NoError(err)
	s.Require().Len(keys, 2)
	s.Equal(first.ID, keys[0].ID)
	s.Equal(second.ID, keys[1].ID)

	keys, err = s.store.ListByTenant(s.ctx, s.tenantB.Scope())
	s.Require().NoError(err)
	s.Require().Len(keys, 1)
	s.Equal(other.ID, keys[0].ID)
}

func (s *APIKeyStoreSuite) TestRevoke() {
	key, _ := s.newKey(s.tenantA, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, s.tenantA.Scope(), key))

	s.Run("other tenant cannot revoke", func() {
		_, err := s.store.Revoke(s.ctx, s.tenantB.Scope(), key.ID, time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)
		found, err := s.store.FindByHash(s.ctx, key.KeyHash)
		s.Require().NoError(err)
		s.False(found.IsRevoked())
	})

	s.Run("owner revokes once", func() {
		at := time.Now()
		revoked, err := s.store.Revoke(s.ctx, s.tenantA.Scope(), key.ID, at)
		s.Require().NoError(err)
		s.True(revoked.IsRevoked())

		again, err := s.store.Revoke(s.ctx, s.tenantA.Scope(), key.ID, at.Add(time.Hour))
		s.Require().NoError(err)
		s.True(again.RevokedAt.Equal(at))

		found, err := s.store.FindByHash(s.ctx, key.KeyHash)
		s.Require().NoError(err)
		s.True(found.IsRevoked())
	})
}

func (s *APIKeyStoreSuite) TestReturnsCopies() {
	key, _ := s.newKey(s.tenantA, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, s.tenantA.Scope(), key))

	found, err := s.store.FindByHash(s.ctx, key.KeyHash)
	s.Require().NoError(err)
	found.Scopes[0] = "admin"
	found.Revoke(time.Now())

	again, err := s.store.FindByHash(s.ctx, key.KeyHash)
	s.Require().NoError(err)
	s.Equal([]string{"read"}, again.Scopes)
	s.False(again.IsRevoked())
}
