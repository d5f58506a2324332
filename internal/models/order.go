package models

import (
	"time"
)

const (
	OrderStatusOpen      = "open"
	OrderStatusCancelled = "cancelled"
)

// Order is a wallet-signed standing order created through the signed order
// endpoints. The creating signature and nonce are stored for audit.
type Order struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Creator   string    `gorm:"type:varchar(42);not null;index" json:"creator"`
	Pair      string    `gorm:"type:varchar(20);not null" json:"pair"`
	Side      string    `gorm:"type:varchar(10);not null" json:"side"`
	Amount    string    `gorm:"type:varchar(64);not null" json:"amount"`
	LimitRate string    `gorm:"type:varchar(64)" json:"limit_rate,omitempty"`
	Status    string    `gorm:"type:varchar(20);not null;index" json:"status"`
	Nonce     string    `gorm:"type:varchar(64);not null" json:"nonce"`
	Signature string    `gorm:"type:text;not null" json:"signature"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
