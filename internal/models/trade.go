package models

import (
	"time"
)

// Trade status lifecycle: created as pending before any chain submission,
// then exactly one terminal transition to confirmed or failed.
const (
	TradeStatusPending   = "pending"
	TradeStatusConfirmed = "confirmed"
	TradeStatusFailed    = "failed"
)

// Trade kinds.
const (
	TradeKindArbitrage  = "arbitrage"
	TradeKindRemittance = "remittance"
)

// Trade records one orchestrated execution. The per-leg transaction hashes are
// kept separate so a partial failure shows exactly which leg completed.
type Trade struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind               string    `gorm:"type:varchar(20);not null" json:"kind"`
	Pair               string    `gorm:"type:varchar(20);not null" json:"pair"`
	FromToken          string    `gorm:"type:varchar(64);not null" json:"from_token"`
	ToToken            string    `gorm:"type:varchar(64);not null" json:"to_token"`
	AmountIn           string    `gorm:"type:varchar(64);not null" json:"amount_in"`
	AmountOut          string    `gorm:"type:varchar(64)" json:"amount_out"`
	Rate               string    `gorm:"type:varchar(64)" json:"rate"`
	SpreadPct          string    `gorm:"type:varchar(32)" json:"spread_pct"`
	BuyVenue           string    `gorm:"type:varchar(40)" json:"buy_venue"`
	SellVenue          string    `gorm:"type:varchar(40)" json:"sell_venue"`
	Status             string    `gorm:"type:varchar(20);not null;index" json:"status"`
	BuyApprovalTxHash  string    `gorm:"type:varchar(66)" json:"buy_approval_tx_hash,omitempty"`
	BuySwapTxHash      string    `gorm:"type:varchar(66)" json:"buy_swap_tx_hash,omitempty"`
	SellApprovalTxHash string    `gorm:"type:varchar(66)" json:"sell_approval_tx_hash,omitempty"`
	SellSwapTxHash     string    `gorm:"type:varchar(66)" json:"sell_swap_tx_hash,omitempty"`
	TransferTxHash     string    `gorm:"type:varchar(66)" json:"transfer_tx_hash,omitempty"`
	Recipient          string    `gorm:"type:varchar(42)" json:"recipient,omitempty"`
	Pnl                string    `gorm:"type:varchar(64)" json:"pnl,omitempty"`
	Error              string    `gorm:"type:text" json:"error,omitempty"`
	Timestamp          time.Time `gorm:"not null" json:"timestamp"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
