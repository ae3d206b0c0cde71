package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
	"persona/pkg/platform/sentinel"

	"persona/internal/identity/models"
	"persona/internal/identity/store/memory"
	"persona/internal/identity/store/mocks"
)

const (
	testTTL        = 24 * time.Hour
	testMaxEntries = 3
)

type CacheManagerSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *memory.Store
	cache *Manager
}

func TestCacheManagerSuite(t *testing.T) {
	suite.Run(t, new(CacheManagerSuite))
}

func (s *CacheManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = memory.New(memory.WithClock(clock))
	s.cache = NewManager(s.store, testTTL, testMaxEntries, WithClock(clock))
}

func (s *CacheManagerSuite) newIdentity(name string) *models.Identity {
	identityID := id.NewIdentityID()
	return &models.Identity{
		ID:     identityID,
		Type:   models.TypeDAO,
		Name:   name,
		RootID: identityID,
		Status: models.StatusActive,
	}
}

func (s *CacheManagerSuite) TestRoundTrip() {
	identity := s.newIdentity("work")
	s.Require().NoError(s.cache.Put(s.ctx, identity))

	got, ok := s.cache.Get(s.ctx, identity.ID)
	s.Require().True(ok)
	s.Equal(identity.ID, got.ID)
	s.Equal("work", got.Name)
}

func (s *CacheManagerSuite) TestMissOnUnknownID() {
	_, ok := s.cache.Get(s.ctx, id.NewIdentityID())
	s.False(ok)
}

func (s *CacheManagerSuite) TestReturnedIdentityIsACopy() {
	identity := s.newIdentity("original")
	s.Require().NoError(s.cache.Put(s.ctx, identity))

	first, ok := s.cache.Get(s.ctx, identity.ID)
	s.Require().True(ok)
	first.Name = "mutated"

	second, ok := s.cache.Get(s.ctx, identity.ID)
	s.Require().True(ok)
	s.Equal("original", second.Name)
}

func (s *CacheManagerSuite) TestPersistentTierPromotion() {
	identity := s.newIdentity("cold")
	raw, err := json.Marshal(identity)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Put(s.ctx, identity.ID.String(), raw, testTTL))

	got, ok := s.cache.Get(s.ctx, identity.ID)
	s.Require().True(ok)
	s.Equal("cold", got.Name)

	stats := s.cache.Stats()
	s.Equal(1, stats.TotalEntries, "promoted into memory tier")
}

func (s *CacheManagerSuite) TestTTLExpiry() {
	identity := s.newIdentity("ephemeral")
	s.Require().NoError(s.cache.Put(s.ctx, identity))

	s.now = s.now.Add(testTTL + time.Minute)
	_, ok := s.cache.Get(s.ctx, identity.ID)
	s.False(ok, "expired in both tiers")
}

func (s *CacheManagerSuite) TestLRUEvictsExactlyLeastRecent() {
	a := s.newIdentity("a")
	b := s.newIdentity("b")
	c := s.newIdentity("c")
	for _, identity := range []*models.Identity{a, b, c} {
		s.Require().NoError(s.cache.Put(s.ctx, identity))
		s.now = s.now.Add(time.Second)
	}

	// Touch a and c so b becomes the least recently used.
	_, ok := s.cache.Get(s.ctx, a.ID)
	s.Require().True(ok)
	s.now = s.now.Add(time.Second)
	_, ok = s.cache.Get(s.ctx, c.ID)
	s.Require().True(ok)
	s.now = s.now.Add(time.Second)

	d := s.newIdentity("d")
	s.Require().NoError(s.cache.Put(s.ctx, d))

	s.Equal(testMaxEntries, s.cache.Stats().TotalEntries)
	s.cache.mu.Lock()
	_, bPresent := s.cache.tier1[b.ID.String()]
	_, aPresent := s.cache.tier1[a.ID.String()]
	_, cPresent := s.cache.tier1[c.ID.String()]
	_, dPresent := s.cache.tier1[d.ID.String()]
	s.cache.mu.Unlock()
	s.False(bPresent, "least recently used entry evicted")
	s.True(aPresent)
	s.True(cPresent)
	s.True(dPresent)
}

func (s *CacheManagerSuite) TestEvictExpiredBeforeLRU() {
	stale := s.newIdentity("stale")
	s.Require().NoError(s.cache.Put(s.ctx, stale))

	s.now = s.now.Add(testTTL + time.Minute)
	fresh := s.newIdentity("fresh")
	s.Require().NoError(s.cache.Put(s.ctx, fresh))

	s.cache.Evict(s.ctx)

	s.cache.mu.Lock()
	_, stalePresent := s.cache.tier1[stale.ID.String()]
	_, freshPresent := s.cache.tier1[fresh.ID.String()]
	s.cache.mu.Unlock()
	s.False(stalePresent)
	s.True(freshPresent)

	// The sweep also clears the expired persistent record.
	_, err := s.store.Get(s.ctx, stale.ID.String())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CacheManagerSuite) TestInvalidateRemovesBothTiers() {
	identity := s.newIdentity("gone")
	s.Require().NoError(s.cache.Put(s.ctx, identity))
	s.Require().NoError(s.cache.Invalidate(s.ctx, identity.ID))

	_, ok := s.cache.Get(s.ctx, identity.ID)
	s.False(ok)
	_, err := s.store.Get(s.ctx, identity.ID.String())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *CacheManagerSuite) TestHitRate() {
	identity := s.newIdentity("popular")
	s.Require().NoError(s.cache.Put(s.ctx, identity))

	for range 7 {
		_, ok := s.cache.Get(s.ctx, identity.ID)
		s.Require().True(ok)
	}
	for range 3 {
		_, ok := s.cache.Get(s.ctx, id.NewIdentityID())
		s.Require().False(ok)
	}

	stats := s.cache.Stats()
	s.Equal(uint64(7), stats.TotalHits)
	s.Equal(uint64(3), stats.TotalMisses)
	s.InDelta(0.7, stats.HitRate, 1e-9)
}

type PersistentFailureSuite struct {
	suite.Suite
	ctx  context.Context
	ctrl *gomock.Controller
	tier *mocks.MockPersistentStore
}

func TestPersistentFailureSuite(t *testing.T) {
	suite.Run(t, new(PersistentFailureSuite))
}

func (s *PersistentFailureSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.tier = mocks.NewMockPersistentStore(s.ctrl)
}

func (s *PersistentFailureSuite) TestPutSurfacesStorageOutage() {
	cache := NewManager(s.tier, testTTL, testMaxEntries)
	identity := &models.Identity{ID: id.NewIdentityID(), Name: "x", Status: models.StatusActive}

	s.tier.EXPECT().
		Put(gomock.Any(), identity.ID.String(), gomock.Any(), testTTL).
		Return(errors.Join(sentinel.ErrUnavailable, errors.New("connection refused")))

	err := cache.Put(s.ctx, identity)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// The memory tier accepted the write, so reads still succeed.
	got, ok := cache.Get(s.ctx, identity.ID)
	s.Require().True(ok)
	s.Equal("x", got.Name)
}

func (s *PersistentFailureSuite) TestGetDegradesOutageToMiss() {
	cache := NewManager(s.tier, testTTL, testMaxEntries)
	identityID := id.NewIdentityID()

	s.tier.EXPECT().
		Get(gomock.Any(), identityID.String()).
		Return(nil, errors.Join(sentinel.ErrUnavailable, errors.New("timeout")))

	_, ok := cache.Get(s.ctx, identityID)
	s.False(ok)
}
