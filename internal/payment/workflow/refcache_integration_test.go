//go:build integration

package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"catcher/internal/payment/workflow"
	"catcher/internal/platform/redis"
	"catcher/pkg/testutil/containers"
)

type ReferenceCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *workflow.ReferenceCache
	ctx   context.Context
}

func TestReferenceCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ReferenceCacheSuite))
}

func (s *ReferenceCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ctx = context.Background()

	client, err := redis.New(s.redis.Addr)
	s.Require().NoError(err)
	s.cache = workflow.NewReferenceCache(client)
}

func (s *ReferenceCacheSuite) TearDownSuite() {
	s.redis.Terminate(s.T())
}

func (s *ReferenceCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *ReferenceCacheSuite) TestLookupMissesUnknownReference() {
	_, ok, err := s.cache.Lookup(s.ctx, "reg_never_stored")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ReferenceCacheSuite) TestStoreThenLookup() {
	s.Require().NoError(s.cache.Store(s.ctx, "reg_cached", "SN-CACHED-1"))

	serial, ok, err := s.cache.Lookup(s.ctx, "reg_cached")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("SN-CACHED-1", serial)
}

func (s *ReferenceCacheSuite) TestReferencesAreIndependent() {
	s.Require().NoError(s.cache.Store(s.ctx, "reg_a", "SN-A"))
	s.Require().NoError(s.cache.Store(s.ctx, "reg_b", "SN-B"))

	serial, ok, err := s.cache.Lookup(s.ctx, "reg_a")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("SN-A", serial)
}

func (s *ReferenceCacheSuite) TestNilCacheDegradesSafely() {
	var cache *workflow.ReferenceCache

	s.Require().NoError(cache.Store(s.ctx, "reg_nil", "SN-NIL"))
	_, ok, err := cache.Lookup(s.ctx, "reg_nil")
	s.Require().NoError(err)
	s.False(ok)
}
