package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbcontrol/internal/store"
)

func TestDeriveKey(t *testing.T) {
	t.Run("explicit token wins", func(t *testing.T) {
		key := DeriveKey("arbitrage:execute", "client-token-1", "0xAbC", "n-1")
		assert.Equal(t, "idem:arbitrage:execute:client-token-1", key)
	})

	t.Run("falls back to signer and nonce", func(t *testing.T) {
		key := DeriveKey("arbitrage:execute", "", "0xAbC", "n-1")
		assert.Equal(t, "idem:arbitrage:execute:0xabc:n-1", key)
	})

	t.Run("no fingerprint without token or nonce", func(t *testing.T) {
		assert.Empty(t, DeriveKey("arbitrage:execute", "", "0xAbC", ""))
		assert.Empty(t, DeriveKey("arbitrage:execute", "", "", "n-1"))
	})
}

func TestCacheReplaysExactPayload(t *testing.T) {
	now := time.Now()
	current := now
	cache := NewCache(store.NewMemoryStore(func() time.Time { return current }), 0, 0)
	ctx := context.Background()

	payload := json.RawMessage(`{"trade_id":"t-1","status":"confirmed"}`)
	cache.Put(ctx, "idem:test:k1", payload)

	got := cache.Get(ctx, "idem:test:k1")
	assert.JSONEq(t, string(payload), string(got), "replay must be byte-identical")

	assert.Nil(t, cache.Get(ctx, "idem:test:other"))
	assert.Nil(t, cache.Get(ctx, ""))
}

func TestCacheExpiry(t *testing.T) {
	now := time.Now()
	current := now
	cache := NewCache(store.NewMemoryStore(func() time.Time { return current }), time.Minute, 0)
	ctx := context.Background()

	cache.Put(ctx, "k", json.RawMessage(`{"a":1}`))
	assert.NotNil(t, cache.Get(ctx, "k"))

	current = now.Add(2 * time.Minute)
	assert.Nil(t, cache.Get(ctx, "k"), "expired entries must not replay")
}

func TestCachePrunesAtCeiling(t *testing.T) {
	now := time.Now()
	current := now
	backing := store.NewMemoryStore(func() time.Time { return current })
	cache := NewCache(backing, time.Minute, 4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cache.Put(ctx, fmt.Sprintf("k-%d", i), json.RawMessage(`{}`))
	}

	// All four have expired by the time the ceiling is hit; the next Put
	// triggers a prune instead of unbounded growth.
	current = now.Add(2 * time.Minute)
	cache.Put(ctx, "fresh", json.RawMessage(`{}`))

	n, err := backing.Len(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, cache.Get(ctx, "fresh"))
}
