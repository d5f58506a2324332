package vault

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"arbcontrol/internal/models"
)

// GormLedger reads the deposit and trade tables. Amounts are stored as
// decimal strings, so aggregation walks the rows instead of SQL SUM.
type GormLedger struct {
	db *gorm.DB
}

var _ Ledger = (*GormLedger)(nil)

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) activeDeposits(ctx context.Context) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := l.db.WithContext(ctx).Where("status = ?", models.DepositStatusActive).Find(&deposits).Error
	return deposits, err
}

func (l *GormLedger) TotalDeposited(ctx context.Context) (decimal.Decimal, error) {
	deposits, err := l.activeDeposits(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, d := range deposits {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			continue
		}
		total = total.Add(amount)
	}
	return total, nil
}

func (l *GormLedger) TotalShares(ctx context.Context) (decimal.Decimal, error) {
	deposits, err := l.activeDeposits(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, d := range deposits {
		shares, err := decimal.NewFromString(d.SharesIssued)
		if err != nil {
			continue
		}
		total = total.Add(shares)
	}
	return total, nil
}

// CumulativePnl is realized PnL only: confirmed trades, nothing else.
func (l *GormLedger) CumulativePnl(ctx context.Context) (decimal.Decimal, error) {
	var trades []models.Trade
	err := l.db.WithContext(ctx).
		Where("status = ? AND pnl <> ''", models.TradeStatusConfirmed).
		Find(&trades).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range trades {
		pnl, err := decimal.NewFromString(t.Pnl)
		if err != nil {
			continue
		}
		total = total.Add(pnl)
	}
	return total, nil
}

func (l *GormLedger) FindByTx(ctx context.Context, depositor, txHash string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := l.db.WithContext(ctx).
		Where("LOWER(depositor) = ? AND LOWER(tx_hash) = ?", strings.ToLower(depositor), strings.ToLower(txHash)).
		First(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (l *GormLedger) FindByID(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := l.db.WithContext(ctx).Where("id = ?", id).First(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (l *GormLedger) Create(ctx context.Context, deposit *models.Deposit) error {
	return l.db.WithContext(ctx).Create(deposit).Error
}

func (l *GormLedger) Update(ctx context.Context, deposit *models.Deposit) error {
	return l.db.WithContext(ctx).Save(deposit).Error
}
