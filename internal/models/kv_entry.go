package models

import (
	"time"
)

// KvEntry is the durable row behind the TTL keyed store (nonce records and
// idempotency entries). The primary key constraint is what makes the store's
// check-and-insert atomic.
type KvEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)" json:"key"`
	Value     []byte    `gorm:"type:bytea" json:"value"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (KvEntry) TableName() string {
	return "kv_entries"
}
