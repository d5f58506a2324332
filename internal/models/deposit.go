package models

import (
	"time"
)

const (
	DepositStatusActive    = "active"
	DepositStatusWithdrawn = "withdrawn"
)

// Deposit is created only after the deposit verifier confirms the on-chain
// transfer. SharePriceAtEntry is frozen at creation time; the unique index on
// (depositor, tx_hash) is what makes resubmission idempotent.
type Deposit struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Depositor         string    `gorm:"type:varchar(42);not null;uniqueIndex:idx_depositor_tx" json:"depositor"`
	TxHash            string    `gorm:"type:varchar(66);not null;uniqueIndex:idx_depositor_tx" json:"tx_hash"`
	Amount            string    `gorm:"type:varchar(64);not null" json:"amount"`
	SharesIssued      string    `gorm:"type:varchar(64);not null" json:"shares_issued"`
	SharePriceAtEntry string    `gorm:"type:varchar(64);not null" json:"share_price_at_entry"`
	Status            string    `gorm:"type:varchar(20);not null;index" json:"status"`
	WithdrawTxHash    string    `gorm:"type:varchar(66)" json:"withdraw_tx_hash,omitempty"`
	Timestamp         time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Deposit) TableName() string {
	return "deposits"
}
