package memory

import (
	"context"
	"sync"

	"persona/internal/audit"
	id "persona/pkg/domain"
)

// Store is the in-memory audit store. Appended entries are copied so callers
// can never mutate history afterwards.
type Store struct {
	mu      sync.RWMutex
	entries map[id.IdentityID][]audit.Entry
}

func New() *Store {
	return &Store{entries: make(map[id.IdentityID][]audit.Entry)}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.IdentityID] = append(s.entries[entry.IdentityID], entry)
	return nil
}

func (s *Store) ListByIdentity(_ context.Context, identityID id.IdentityID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries[identityID]...), nil
}
