package models

import (
	"time"
)

// VaultSnapshot is a periodic point-in-time capture of the derived vault
// metrics, written by the schedule worker for dashboard history reads. The
// live values are always recomputed from the deposit and trade ledgers, never
// from these rows.
type VaultSnapshot struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	TotalDeposited string    `gorm:"type:varchar(64);not null" json:"total_deposited"`
	CumulativePnl  string    `gorm:"type:varchar(64);not null" json:"cumulative_pnl"`
	TotalShares    string    `gorm:"type:varchar(64);not null" json:"total_shares"`
	SharePrice     string    `gorm:"type:varchar(64);not null" json:"share_price"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (VaultSnapshot) TableName() string {
	return "vault_snapshots"
}
