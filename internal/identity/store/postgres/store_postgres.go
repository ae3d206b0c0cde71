package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"persona/pkg/platform/sentinel"
)

// schema is applied by EnsureSchema; deployments with managed migrations can
// skip the call and own the DDL themselves.
const schema = `
CREATE TABLE IF NOT EXISTS identity_snapshots (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS identity_snapshots_expires_at_idx
    ON identity_snapshots (expires_at);
`

// Store is the PostgreSQL-backed PersistentStore. Writes are synchronous
// single-statement upserts, so durability holds by the time Put returns.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const q = `
		INSERT INTO identity_snapshots (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, q, key, value, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value, expires_at FROM identity_snapshots WHERE key = $1`
	var value []byte
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, q, key).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	if time.Now().After(expiresAt) {
		return nil, sentinel.ErrExpired
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM identity_snapshots WHERE key = $1`
	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *Store) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	const q = `SELECT key FROM identity_snapshots WHERE expires_at <= $1`
	rows, err := s.pool.Query(ctx, q, before)
	if err != nil {
		return nil, fmt.Errorf("list expired snapshots: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired snapshot key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM identity_snapshots`
	var n int
	if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return n, nil
}
