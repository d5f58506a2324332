package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Now()
	current := now
	s := NewMemoryStore(func() time.Time { return current })
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

	value, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	// One second before expiry the entry is still readable.
	current = now.Add(time.Minute - time.Second)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	// At expiry it is gone.
	current = now.Add(time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreSetNX(t *testing.T) {
	now := time.Now()
	current := now
	s := NewMemoryStore(func() time.Time { return current })
	ctx := context.Background()

	inserted, err := s.SetNX(ctx, "k", []byte("first"), time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.SetNX(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.False(t, inserted)

	// The original value survives the losing insert.
	value, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), value)

	// After expiry the key can be claimed again.
	current = now.Add(2 * time.Minute)
	inserted, err = s.SetNX(ctx, "k", []byte("second"), time.Minute)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestMemoryStoreSetNXConcurrent(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	wins := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.SetNX(ctx, "contested", []byte("x"), time.Minute)
			require.NoError(t, err)
			wins <- inserted
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for inserted := range wins {
		if inserted {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent SetNX must win")
}

func TestMemoryStorePruneExpired(t *testing.T) {
	now := time.Now()
	current := now
	s := NewMemoryStore(func() time.Time { return current })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("short-%d", i), []byte("v"), time.Minute))
	}
	require.NoError(t, s.Set(ctx, "long", []byte("v"), time.Hour))

	current = now.Add(5 * time.Minute)
	removed, err := s.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
