package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/store"
)

const (
	// DefaultTTL bounds how long a cached response can be replayed; after
	// that the key may legitimately be reused for a new action.
	DefaultTTL = 30 * time.Minute
	// DefaultMaxEntries is the size ceiling; crossing it triggers a TTL
	// prune before the next insert. Strict TTL policy, not LRU.
	DefaultMaxEntries = 10000
)

// Cache maps a request fingerprint to the exact response that was first
// computed for it.
type Cache struct {
	store      store.Store
	ttl        time.Duration
	maxEntries int
}

func NewCache(s store.Store, ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{store: s, ttl: ttl, maxEntries: maxEntries}
}

// DeriveKey builds the request fingerprint. An explicit client token wins;
// nonce-bound actions fall back to (signer, nonce) so the cached response is
// linked to the same unrepeatable authorization.
func DeriveKey(scope, clientToken, signer, nonceValue string) string {
	if clientToken != "" {
		return fmt.Sprintf("idem:%s:%s", scope, clientToken)
	}
	if signer != "" && nonceValue != "" {
		return fmt.Sprintf("idem:%s:%s:%s", scope, strings.ToLower(signer), nonceValue)
	}
	return ""
}

// Get returns the original payload for key, or nil once the TTL has elapsed.
func (c *Cache) Get(ctx context.Context, key string) json.RawMessage {
	if key == "" {
		return nil
	}
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Errorf("idempotency cache read error: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	return value
}

// Put caches payload under key. When the store has grown past the ceiling,
// entries older than TTL are evicted before insertion.
func (c *Cache) Put(ctx context.Context, key string, payload json.RawMessage) {
	if key == "" {
		return
	}
	if n, err := c.store.Len(ctx); err == nil && n >= c.maxEntries {
		if removed, err := c.store.PruneExpired(ctx); err == nil && removed > 0 {
			log.Infof("idempotency cache pruned %d expired entries", removed)
		}
	}
	if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
		// A failed write only costs replay protection for this key; the
		// response itself already happened.
		log.Errorf("idempotency cache write error: %v", err)
	}
}
