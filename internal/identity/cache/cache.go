// Package cache implements the tiered identity cache: a memory tier that is
// authoritative for the running session, backed by a persistent tier with
// TTL expiry. Capacity bounds the memory tier; the persistent tier relies on
// TTL plus the periodic sweep.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"persona/internal/identity/metrics"
	"persona/internal/identity/models"
	id "persona/pkg/domain"
	dErrors "persona/pkg/domain-errors"
	"persona/pkg/platform/sentinel"
)

// Entry is one cached identity snapshot with its access bookkeeping.
type Entry struct {
	Identity     *models.Identity
	CachedAt     time.Time
	LastAccessed time.Time
	AccessCount  int64
	ExpiresAt    time.Time
}

// Stats is the read-only cache statistics view.
type Stats struct {
	TotalEntries int       `json:"total_entries"`
	TotalHits    uint64    `json:"total_hits"`
	TotalMisses  uint64    `json:"total_misses"`
	HitRate      float64   `json:"hit_rate"`
	LastCleanup  time.Time `json:"last_cleanup"`
}

// Manager is the tiered cache. All tier-1 writes and eviction sweeps hold
// the manager mutex, so a sweep can never race a put on the same key.
type Manager struct {
	mu    sync.Mutex
	tier1 map[string]*Entry
	tier2 Tier2

	ttl        time.Duration
	maxEntries int

	hits   atomic.Uint64
	misses atomic.Uint64

	group       singleflight.Group
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
	lastCleanup time.Time
}

// Tier2 is the slice of the persistent store contract the cache consumes.
type Tier2 interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
	Count(ctx context.Context) (int, error)
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds a cache over the given persistent tier.
func NewManager(tier2 Tier2, ttl time.Duration, maxEntries int, opts ...Option) *Manager {
	m := &Manager{
		tier1:      make(map[string]*Entry),
		tier2:      tier2,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get resolves an identity, preferring the memory tier and promoting
// persistent-tier hits. Concurrent misses for one key collapse into a single
// persistent-tier lookup.
func (m *Manager) Get(ctx context.Context, identityID id.IdentityID) (*models.Identity, bool) {
	key := identityID.String()
	now := m.clock()

	m.mu.Lock()
	if entry, ok := m.tier1[key]; ok && entry.ExpiresAt.After(now) {
		entry.LastAccessed = now
		entry.AccessCount++
		ident := entry.Identity.Clone()
		m.mu.Unlock()
		m.recordHit()
		return ident, true
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key, func() (any, error) {
		raw, err := m.tier2.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var snapshot models.Identity
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt identity snapshot")
		}
		return &snapshot, nil
	})
	if err != nil {
		if !dErrors.Is(err, sentinel.ErrNotFound) && !dErrors.Is(err, sentinel.ErrExpired) {
			// Persistent-tier trouble degrades to a miss; the memory tier
			// stays authoritative for the session.
			m.logger.WarnContext(ctx, "persistent tier read failed", "key", key, "error", err)
		}
		m.recordMiss()
		return nil, false
	}

	ident := v.(*models.Identity)
	m.promote(ident, now)
	m.recordHit()
	return ident.Clone(), true
}

// Put writes through both tiers, resetting the entry's TTL and touching its
// access bookkeeping. The persistent write completes before Put returns so
// callers can rely on durability; its error is returned for the caller to
// degrade or surface as the operation demands.
func (m *Manager) Put(ctx context.Context, identity *models.Identity) error {
	key := identity.ID.String()
	now := m.clock()

	m.mu.Lock()
	var accessCount int64 = 1
	if prev, ok := m.tier1[key]; ok {
		accessCount = prev.AccessCount + 1
	}
	m.tier1[key] = &Entry{
		Identity:     identity.Clone(),
		CachedAt:     now,
		LastAccessed: now,
		AccessCount:  accessCount,
		ExpiresAt:    now.Add(m.ttl),
	}
	if len(m.tier1) > m.maxEntries {
		m.evictLocked(ctx, now)
	}
	m.mu.Unlock()

	raw, err := json.Marshal(identity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal identity snapshot")
	}
	if err := m.tier2.Put(ctx, key, raw, m.ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "persist identity snapshot")
	}
	return nil
}

// Invalidate removes the id from both tiers immediately. Mutations call this
// before reporting success so no stale read can follow.
func (m *Manager) Invalidate(ctx context.Context, identityID id.IdentityID) error {
	key := identityID.String()
	m.mu.Lock()
	delete(m.tier1, key)
	m.mu.Unlock()
	if err := m.tier2.Delete(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "invalidate identity snapshot")
	}
	return nil
}

// Evict removes expired entries first, then trims the memory tier down to
// capacity in least-recently-used order, and sweeps expired persistent-tier
// records.
func (m *Manager) Evict(ctx context.Context) {
	now := m.clock()
	m.mu.Lock()
	m.evictLocked(ctx, now)
	m.lastCleanup = now
	m.mu.Unlock()
}

func (m *Manager) evictLocked(ctx context.Context, now time.Time) {
	evicted := 0
	for key, entry := range m.tier1 {
		if !entry.ExpiresAt.After(now) {
			delete(m.tier1, key)
			evicted++
		}
	}
	if over := len(m.tier1) - m.maxEntries; over > 0 {
		type aged struct {
			key          string
			lastAccessed time.Time
		}
		entries := make([]aged, 0, len(m.tier1))
		for key, entry := range m.tier1 {
			entries = append(entries, aged{key: key, lastAccessed: entry.LastAccessed})
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].lastAccessed.Before(entries[j].lastAccessed)
		})
		for _, candidate := range entries[:over] {
			delete(m.tier1, candidate.key)
			evicted++
		}
	}

	expired, err := m.tier2.ListExpired(ctx, now)
	if err != nil {
		m.logger.WarnContext(ctx, "persistent tier sweep failed", "error", err)
	}
	for _, key := range expired {
		if err := m.tier2.Delete(ctx, key); err != nil {
			m.logger.WarnContext(ctx, "persistent tier delete failed", "key", key, "error", err)
		}
	}

	if evicted > 0 && m.metrics != nil {
		m.metrics.CacheEvictions.Add(float64(evicted))
	}
}

// Run sweeps the cache on the given interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Evict(ctx)
		}
	}
}

// Stats returns the read-only statistics view.
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	m.mu.Lock()
	entries := len(m.tier1)
	lastCleanup := m.lastCleanup
	m.mu.Unlock()
	return Stats{
		TotalEntries: entries,
		TotalHits:    hits,
		TotalMisses:  misses,
		HitRate:      rate,
		LastCleanup:  lastCleanup,
	}
}

func (m *Manager) promote(identity *models.Identity, now time.Time) {
	key := identity.ID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.tier1[key]
	if !ok {
		entry = &Entry{Identity: identity.Clone(), CachedAt: now, ExpiresAt: now.Add(m.ttl)}
		m.tier1[key] = entry
	}
	entry.LastAccessed = now
	entry.AccessCount++
	if len(m.tier1) > m.maxEntries {
		m.evictLocked(context.Background(), now)
	}
}

func (m *Manager) recordHit() {
	m.hits.Add(1)
	if m.metrics != nil {
		m.metrics.CacheHits.Inc()
	}
}

func (m *Manager) recordMiss() {
	m.misses.Add(1)
	if m.metrics != nil {
		m.metrics.CacheMisses.Inc()
	}
}
