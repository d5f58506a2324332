package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/models"
)

var one = decimal.NewFromInt(1)

// SharePrice is a pure function of the ledger aggregates and is never stored
// or set directly:
//
//	sharePrice = (totalDeposited + cumulativePnl) / totalShares
//
// An empty vault prices at 1.
func SharePrice(totalDeposited, cumulativePnl, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return one
	}
	return totalDeposited.Add(cumulativePnl).DivRound(totalShares, 8)
}

// SharesFor converts a deposit amount to shares at the given price.
func SharesFor(amount, sharePrice decimal.Decimal) decimal.Decimal {
	return amount.DivRound(sharePrice, 8)
}

// Ledger is the deposit/trade ledger the accountant reads and writes.
type Ledger interface {
	TotalDeposited(ctx context.Context) (decimal.Decimal, error)
	TotalShares(ctx context.Context) (decimal.Decimal, error)
	CumulativePnl(ctx context.Context) (decimal.Decimal, error)
	FindByTx(ctx context.Context, depositor, txHash string) (*models.Deposit, error)
	FindByID(ctx context.Context, id string) (*models.Deposit, error)
	Create(ctx context.Context, deposit *models.Deposit) error
	Update(ctx context.Context, deposit *models.Deposit) error
}

// Custody moves pooled funds out of the custody wallet.
type Custody interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
	PayOut(ctx context.Context, to common.Address, amount decimal.Decimal) (string, error)
}

// Metrics are the derived vault numbers; computed on demand, never mutated.
type Metrics struct {
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	CumulativePnl  decimal.Decimal `json:"cumulative_pnl"`
	TotalShares    decimal.Decimal `json:"total_shares"`
	SharePrice     decimal.Decimal `json:"share_price"`
	TotalValue     decimal.Decimal `json:"total_value_locked"`
}

// Accountant maintains the share-price invariant for pooled capital.
type Accountant struct {
	ledger  Ledger
	custody Custody
}

func NewAccountant(ledger Ledger, custody Custody) *Accountant {
	return &Accountant{ledger: ledger, custody: custody}
}

// Metrics recomputes the derived vault numbers from the ledgers.
func (a *Accountant) Metrics(ctx context.Context) (*Metrics, error) {
	deposited, err := a.ledger.TotalDeposited(ctx)
	if err != nil {
		return nil, fmt.Errorf("total deposited: %w", err)
	}
	shares, err := a.ledger.TotalShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("total shares: %w", err)
	}
	pnl, err := a.ledger.CumulativePnl(ctx)
	if err != nil {
		return nil, fmt.Errorf("cumulative pnl: %w", err)
	}
	return &Metrics{
		TotalDeposited: deposited,
		CumulativePnl:  pnl,
		TotalShares:    shares,
		SharePrice:     SharePrice(deposited, pnl, shares),
		TotalValue:     deposited.Add(pnl),
	}, nil
}

// IssueShares records a verified deposit, freezing the share price at entry.
// Resubmission of the same (depositor, txHash) returns the original record.
func (a *Accountant) IssueShares(ctx context.Context, depositor string, amount decimal.Decimal, txHash string) (*models.Deposit, error) {
	if existing, err := a.ledger.FindByTx(ctx, depositor, txHash); err == nil && existing != nil {
		return existing, nil
	}

	metrics, err := a.Metrics(ctx)
	if err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("vault ledger unavailable: %v", err))
	}

	deposit := &models.Deposit{
		ID:                uuid.NewString(),
		Depositor:         depositor,
		TxHash:            txHash,
		Amount:            amount.String(),
		SharesIssued:      SharesFor(amount, metrics.SharePrice).String(),
		SharePriceAtEntry: metrics.SharePrice.String(),
		Status:            models.DepositStatusActive,
		Timestamp:         time.Now(),
	}
	if err := a.ledger.Create(ctx, deposit); err != nil {
		// The unique (depositor, tx_hash) index closes the race with a
		// concurrent identical submission; fetch what won.
		if existing, ferr := a.ledger.FindByTx(ctx, depositor, txHash); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, apperrors.Transient(fmt.Sprintf("could not record deposit: %v", err))
	}
	return deposit, nil
}

// RedeemShares pays out sharesIssued at the current share price and marks
// the deposit withdrawn. The custody balance is checked before any payout
// transaction is submitted; insufficient balance fails fast with no partial
// payout.
func (a *Accountant) RedeemShares(ctx context.Context, depositID, depositor string) (*models.Deposit, decimal.Decimal, error) {
	deposit, err := a.ledger.FindByID(ctx, depositID)
	if err != nil || deposit == nil {
		return nil, decimal.Zero, apperrors.NotFound("deposit")
	}
	if deposit.Depositor != depositor {
		return nil, decimal.Zero, apperrors.Unauthorized()
	}
	if deposit.Status != models.DepositStatusActive {
		return nil, decimal.Zero, apperrors.Validation("deposit %s already withdrawn", depositID)
	}

	metrics, err := a.Metrics(ctx)
	if err != nil {
		return nil, decimal.Zero, apperrors.Transient(fmt.Sprintf("vault ledger unavailable: %v", err))
	}
	shares, err := decimal.NewFromString(deposit.SharesIssued)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("corrupt shares on deposit %s: %w", depositID, err)
	}
	payout := shares.Mul(metrics.SharePrice).Round(8)

	available, err := a.custody.Balance(ctx)
	if err != nil {
		return nil, decimal.Zero, apperrors.Transient(fmt.Sprintf("custody balance unavailable: %v", err))
	}
	if available.LessThan(payout) {
		return nil, decimal.Zero, apperrors.Execution(
			fmt.Sprintf("custody balance %s below payout %s", available, payout),
			fmt.Sprintf("fund the custody wallet with at least %s before retrying", payout.Sub(available)),
		)
	}

	txHash, err := a.custody.PayOut(ctx, common.HexToAddress(depositor), payout)
	if err != nil {
		return nil, decimal.Zero, apperrors.Transient(fmt.Sprintf("payout submission failed: %v", err))
	}

	deposit.Status = models.DepositStatusWithdrawn
	deposit.WithdrawTxHash = txHash
	if err := a.ledger.Update(ctx, deposit); err != nil {
		// The payout already happened; surface the record even if the
		// status write lagged.
		log.Errorf("deposit %s: payout %s confirmed but status update failed: %v", depositID, txHash, err)
	}
	return deposit, payout, nil
}
