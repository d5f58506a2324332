package executor

import (
	"context"

	"gorm.io/gorm"

	"arbcontrol/internal/models"
)

// GormTradeStore persists trades through the shared gorm connection.
type GormTradeStore struct {
	db *gorm.DB
}

var _ TradeStore = (*GormTradeStore)(nil)

func NewGormTradeStore(db *gorm.DB) *GormTradeStore {
	return &GormTradeStore{db: db}
}

func (s *GormTradeStore) Create(ctx context.Context, trade *models.Trade) error {
	return s.db.WithContext(ctx).Create(trade).Error
}

func (s *GormTradeStore) Update(ctx context.Context, trade *models.Trade) error {
	return s.db.WithContext(ctx).Save(trade).Error
}
