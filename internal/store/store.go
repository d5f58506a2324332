package store

import (
	"context"
	"time"
)

// Clock abstracts time so TTL behavior is testable with a deterministic clock.
type Clock func() time.Time

// Store is a keyed store with per-entry TTL. The nonce ledger and the
// idempotency cache both sit on top of it, so swapping the in-memory backend
// for Redis (or Postgres) changes nothing above this interface.
//
// SetNX is the atomic check-and-insert primitive: it writes the entry only if
// the key does not already hold a live value, and reports whether the write
// happened. Exactly one of N concurrent SetNX calls for the same key succeeds.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	PruneExpired(ctx context.Context) (int, error)
}
