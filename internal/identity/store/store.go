// Package store defines the persistent tier contract behind the identity
// cache and registry. Backing technology is swappable; implementations live
// in subpackages and return sentinel errors for infrastructure facts.
package store

import (
	"context"
	"time"
)

// PersistentStore is the tier-2 contract consumed by the cache manager.
//
// Get returns sentinel.ErrNotFound for absent keys and sentinel.ErrExpired
// for keys whose TTL has lapsed but which have not been swept yet; callers
// treat both as a miss. Put must be durable (or durably queued) before it
// returns, so registry mutations can wait on it.
type PersistentStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ListExpired(ctx context.Context, before time.Time) ([]string, error)
	Count(ctx context.Context) (int, error)
}
