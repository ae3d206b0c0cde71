//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"persona/pkg/platform/sentinel"
	"persona/pkg/testutil/containers"
)

type RedisStoreIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.RedisContainer
	store     *Store
}

func TestRedisStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreIntegrationSuite))
}

func (s *RedisStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewRedisContainer(s.T())
	s.store = New(s.container.Client)
}

func (s *RedisStoreIntegrationSuite) SetupTest() {
	s.Require().NoError(s.container.FlushAll(s.ctx))
}

func (s *RedisStoreIntegrationSuite) TestRoundTrip() {
	s.Require().NoError(s.store.Put(s.ctx, "identity-1", []byte(`{"name":"work"}`), time.Hour))

	value, err := s.store.Get(s.ctx, "identity-1")
	s.Require().NoError(err)
	s.JSONEq(`{"name":"work"}`, string(value))
}

func (s *RedisStoreIntegrationSuite) TestMissingKey() {
	_, err := s.store.Get(s.ctx, "absent")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreIntegrationSuite) TestTTLExpiry() {
	s.Require().NoError(s.store.Put(s.ctx, "short", []byte("v"), 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	_, err := s.store.Get(s.ctx, "short")
	s.ErrorIs(err, sentinel.ErrNotFound, "redis expires server-side")
}

func (s *RedisStoreIntegrationSuite) TestDelete() {
	s.Require().NoError(s.store.Put(s.ctx, "k", []byte("v"), time.Hour))
	s.Require().NoError(s.store.Delete(s.ctx, "k"))

	_, err := s.store.Get(s.ctx, "k")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreIntegrationSuite) TestCount() {
	for _, key := range []string{"a", "b", "c"} {
		s.Require().NoError(s.store.Put(s.ctx, key, []byte("v"), time.Hour))
	}
	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, count)
}
