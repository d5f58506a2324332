package schedule

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/store"
)

// RunStorePrune evicts expired nonce and idempotency entries so the replay
// guard tables stay bounded. Expired entries are already invisible to reads;
// this only reclaims space.
func RunStorePrune(stores ...store.Store) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, s := range stores {
			removed, err := s.PruneExpired(ctx)
			if err != nil {
				log.Errorf("store prune failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Infof("store prune removed %d expired entries", removed)
			}
		}
	}
}
