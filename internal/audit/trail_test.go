package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
)

type memStore struct {
	entries map[id.IdentityID][]Entry
	failing bool
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[id.IdentityID][]Entry)}
}

func (m *memStore) Append(_ context.Context, entry Entry) error {
	if m.failing {
		return errors.New("disk full")
	}
	m.entries[entry.IdentityID] = append(m.entries[entry.IdentityID], entry)
	return nil
}

func (m *memStore) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]Entry, error) {
	return append([]Entry(nil), m.entries[identityID]...), nil
}

type TrailSuite struct {
	suite.Suite
	ctx   context.Context
	store *memStore
	trail *Trail
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newMemStore()
	s.trail = NewTrail(s.store)
}

func (s *TrailSuite) TestAppend() {
	identityID := id.NewIdentityID()

	s.Run("nil identity rejected", func() {
		_, err := s.trail.Append(s.ctx, id.IdentityID{}, ActionCreated, "alice", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("sequences are dense per identity", func() {
		for range 3 {
			_, err := s.trail.Append(s.ctx, identityID, ActionSwitched, "alice", nil)
			s.Require().NoError(err)
		}
		other := id.NewIdentityID()
		entry, err := s.trail.Append(s.ctx, other, ActionCreated, "alice", nil)
		s.Require().NoError(err)
		s.Equal(uint64(1), entry.Sequence, "each identity owns its own sequence")
	})

	s.Run("entry carries the action's security level", func() {
		entry, err := s.trail.Append(s.ctx, identityID, ActionSwitchFailed, "alice", nil)
		s.Require().NoError(err)
		s.Equal(LevelSecurity, entry.Level)
	})

	s.Run("store failure surfaces as unavailable", func() {
		s.store.failing = true
		defer func() { s.store.failing = false }()
		_, err := s.trail.Append(s.ctx, identityID, ActionUpdated, "alice", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func (s *TrailSuite) TestHistoryOrder() {
	identityID := id.NewIdentityID()
	actions := []Action{ActionCreated, ActionSwitched, ActionPrivacyChanged, ActionDeleted}
	for _, action := range actions {
		_, err := s.trail.Append(s.ctx, identityID, action, "alice", nil)
		s.Require().NoError(err)
	}

	entries, err := s.trail.History(s.ctx, identityID)
	s.Require().NoError(err)
	s.Require().Len(entries, len(actions))
	for i, entry := range entries {
		s.Equal(actions[i], entry.Action)
		s.Equal(uint64(i+1), entry.Sequence)
	}
}

func (s *TrailSuite) TestHashChain() {
	identityID := id.NewIdentityID()
	for range 5 {
		_, err := s.trail.Append(s.ctx, identityID, ActionSwitched, "alice", nil)
		s.Require().NoError(err)
	}

	s.Run("intact chain verifies", func() {
		s.NoError(s.trail.Verify(s.ctx, identityID))
	})

	s.Run("first entry links to genesis", func() {
		entries, err := s.trail.History(s.ctx, identityID)
		s.Require().NoError(err)
		s.Equal(genesisHash, entries[0].PrevHash)
		s.Equal(entries[0].Hash, entries[1].PrevHash)
	})

	s.Run("tampered actor detected", func() {
		s.store.entries[identityID][2].Actor = "mallory"
		err := s.trail.Verify(s.ctx, identityID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.store.entries[identityID][2].Actor = "alice"
	})

	s.Run("dropped entry detected", func() {
		tampered := append([]Entry(nil), s.store.entries[identityID][:2]...)
		tampered = append(tampered, s.store.entries[identityID][3:]...)
		original := s.store.entries[identityID]
		s.store.entries[identityID] = tampered
		err := s.trail.Verify(s.ctx, identityID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.store.entries[identityID] = original
	})
}

func (s *TrailSuite) TestOutbox() {
	outbox := make(chan Entry, 1)
	trail := NewTrail(s.store, WithOutbox(outbox))
	identityID := id.NewIdentityID()

	s.Run("entries ship through the outbox", func() {
		entry, err := trail.Append(s.ctx, identityID, ActionCreated, "alice", nil)
		s.Require().NoError(err)
		shipped := <-outbox
		s.Equal(entry.ID, shipped.ID)
	})

	s.Run("full outbox never blocks append", func() {
		outbox <- Entry{}
		_, err := trail.Append(s.ctx, identityID, ActionSwitched, "alice", nil)
		s.NoError(err)
	})
}
