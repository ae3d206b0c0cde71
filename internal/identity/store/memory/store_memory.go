package memory

import (
	"context"
	"sync"
	"time"

	"persona/pkg/platform/sentinel"
)

type record struct {
	value     []byte
	expiresAt time.Time
}

// Store is the in-memory PersistentStore implementation. It keeps expired
// records until swept so ListExpired has something to report, matching how
// the disk-backed tiers behave between cleanups.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
	clock   func() time.Time
}

type Option func(*Store)

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func New(opts ...Option) *Store {
	s := &Store{records: make(map[string]record), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = record{
		value:     append([]byte(nil), value...),
		expiresAt: s.clock().Add(ttl),
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if s.clock().After(rec.expiresAt) {
		return nil, sentinel.ErrExpired
	}
	return append([]byte(nil), rec.value...), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Store) ListExpired(_ context.Context, before time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key, rec := range s.records {
		if !rec.expiresAt.After(before) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
