package nonce

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/store"
)

// MaxClockSkew is the tolerated distance between the signed timestamp and
// server time.
const MaxClockSkew = 5 * time.Minute

// record is what gets written into the store; the value is never read back,
// the key's existence alone is the replay guard, but keeping the original
// timestamp helps when debugging a rejected replay.
type record struct {
	Scope     string `json:"scope"`
	Signer    string `json:"signer"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// Ledger is the single-use replay guard per (scope, signer, nonce). It rides
// on the shared store so the guarantee holds across API instances.
type Ledger struct {
	store store.Store
	skew  time.Duration
	now   store.Clock
}

func NewLedger(s store.Store, clock store.Clock) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{store: s, skew: MaxClockSkew, now: clock}
}

func key(scope, signer, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s:%s", scope, strings.ToLower(signer), nonce)
}

// Consume returns true and records the tuple only if no prior record exists
// for (scope, signer, nonce) and the timestamp is within the skew window.
// The store-level SetNX makes this atomic: exactly one of two concurrent
// calls for the same tuple succeeds. The entry lives for twice the skew
// window so GC can never make a nonce consumable again inside its original
// validity window.
func (l *Ledger) Consume(ctx context.Context, scope, signer, nonceValue string, timestamp time.Time) bool {
	if nonceValue == "" || signer == "" {
		return false
	}

	drift := l.now().Sub(timestamp)
	if drift < 0 {
		drift = -drift
	}
	if drift > l.skew {
		return false
	}

	value, _ := json.Marshal(record{
		Scope:     scope,
		Signer:    strings.ToLower(signer),
		Nonce:     nonceValue,
		Timestamp: timestamp.Unix(),
	})

	inserted, err := l.store.SetNX(ctx, key(scope, signer, nonceValue), value, 2*l.skew)
	if err != nil {
		// Fail closed: an unreachable store must not open a replay window.
		log.Errorf("nonce ledger store error for scope %s: %v", scope, err)
		return false
	}
	return inserted
}
