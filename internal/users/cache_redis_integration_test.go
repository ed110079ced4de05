//go:build integration

package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cardkeep/internal/entities"
	"cardkeep/internal/entities/store"
	"cardkeep/internal/entities/store/memory"
	"cardkeep/internal/users"
	"cardkeep/pkg/requestcontext"
	"cardkeep/pkg/testutil/containers"
)

type CachedLookupSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	table  *memory.InMemory
	lookup *users.CachedLookup
}

func TestCachedLookupSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedLookupSuite))
}

func (s *CachedLookupSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedLookupSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.table = memory.NewInMemory()
	_, err := s.table.Create(ctx, store.Row{"email": "a@x.io", "name": "Ana"})
	s.Require().NoError(err)
	s.lookup = users.NewCachedLookup(users.NewModelLookup(s.table), s.redis.Client, time.Minute, nil)
}

func (s *CachedLookupSuite) TestServesCachedNameAfterFirstRead() {
	ctx := context.Background()

	name, err := s.lookup.DisplayName(ctx, "a@x.io")
	s.Require().NoError(err)
	s.Equal("Ana", name)

	// Renaming the row is invisible until the entry is invalidated.
	_, err = s.table.Update(ctx, 1, store.Row{"name": "Ana Maria"})
	s.Require().NoError(err)

	name, err = s.lookup.DisplayName(ctx, "A@X.IO")
	s.Require().NoError(err)
	s.Equal("Ana", name)

	s.Require().NoError(s.lookup.Invalidate(ctx, "a@x.io"))
	name, err = s.lookup.DisplayName(ctx, "a@x.io")
	s.Require().NoError(err)
	s.Equal("Ana Maria", name)
}

func (s *CachedLookupSuite) TestEntriesExpire() {
	ctx := context.Background()
	_, err := s.lookup.DisplayName(ctx, "a@x.io")
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(ctx, "cardkeep:user-name:a@x.io").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *CachedLookupSuite) TestUserRenameThroughServiceDropsCachedName() {
	ctx := context.Background()
	registry := entities.NewRegistry(entities.MemoryModels())
	cached := users.NewCachedLookup(users.NewModelLookup(registry.Model(entities.KindUser)), s.redis.Client, time.Minute, nil)
	svc, err := entities.New(registry, entities.WithUserChangeHook(cached.Invalidate))
	s.Require().NoError(err)

	admin := requestcontext.Actor{ID: 1, Email: "admin@x.io"}
	created, err := svc.Create(ctx, admin, "User", map[string]any{"email": "b@x.io", "name": "Ben"})
	s.Require().NoError(err)
	id, _ := created.ID()

	name, err := cached.DisplayName(ctx, "b@x.io")
	s.Require().NoError(err)
	s.Equal("Ben", name)

	_, err = svc.Update(ctx, admin, "User", id, map[string]any{"name": "Benjamin"})
	s.Require().NoError(err)

	name, err = cached.DisplayName(ctx, "b@x.io")
	s.Require().NoError(err)
	s.Equal("Benjamin", name)
}
