package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/models"
)

type fakeLedger struct {
	deposited    decimal.Decimal
	shares       decimal.Decimal
	pnl          decimal.Decimal
	byTx         map[string]*models.Deposit
	byID         map[string]*models.Deposit
	createErr    error
	onCreateFail func()
}

func newFakeLedger(deposited, shares, pnl string) *fakeLedger {
	return &fakeLedger{
		deposited: decimal.RequireFromString(deposited),
		shares:    decimal.RequireFromString(shares),
		pnl:       decimal.RequireFromString(pnl),
		byTx:      make(map[string]*models.Deposit),
		byID:      make(map[string]*models.Deposit),
	}
}

func (l *fakeLedger) TotalDeposited(ctx context.Context) (decimal.Decimal, error) {
	return l.deposited, nil
}
func (l *fakeLedger) TotalShares(ctx context.Context) (decimal.Decimal, error) { return l.shares, nil }
func (l *fakeLedger) CumulativePnl(ctx context.Context) (decimal.Decimal, error) { return l.pnl, nil }

func (l *fakeLedger) FindByTx(ctx context.Context, depositor, txHash string) (*models.Deposit, error) {
	return l.byTx[depositor+":"+txHash], nil
}

func (l *fakeLedger) FindByID(ctx context.Context, id string) (*models.Deposit, error) {
	return l.byID[id], nil
}

func (l *fakeLedger) Create(ctx context.Context, deposit *models.Deposit) error {
	if l.createErr != nil {
		if l.onCreateFail != nil {
			l.onCreateFail()
		}
		return l.createErr
	}
	l.byTx[deposit.Depositor+":"+deposit.TxHash] = deposit
	l.byID[deposit.ID] = deposit
	return nil
}

func (l *fakeLedger) Update(ctx context.Context, deposit *models.Deposit) error {
	l.byID[deposit.ID] = deposit
	return nil
}

type fakeCustody struct {
	balance decimal.Decimal
	payouts []decimal.Decimal
	payErr  error
}

func (c *fakeCustody) Balance(ctx context.Context) (decimal.Decimal, error) {
	return c.balance, nil
}

func (c *fakeCustody) PayOut(ctx context.Context, to common.Address, amount decimal.Decimal) (string, error) {
	if c.payErr != nil {
		return "", c.payErr
	}
	c.payouts = append(c.payouts, amount)
	return "0xpayout", nil
}

func TestSharePrice(t *testing.T) {
	t.Run("empty vault prices at one", func(t *testing.T) {
		price := SharePrice(decimal.Zero, decimal.Zero, decimal.Zero)
		assert.True(t, price.Equal(decimal.NewFromInt(1)))
	})

	t.Run("profit raises the price", func(t *testing.T) {
		// 1000 deposited, 12 pnl, 1000 shares -> 1.012
		price := SharePrice(decimal.NewFromInt(1000), decimal.NewFromInt(12), decimal.NewFromInt(1000))
		assert.True(t, price.Equal(decimal.RequireFromString("1.012")), "got %s", price)
	})

	t.Run("loss lowers the price", func(t *testing.T) {
		price := SharePrice(decimal.NewFromInt(1000), decimal.NewFromInt(-50), decimal.NewFromInt(1000))
		assert.True(t, price.Equal(decimal.RequireFromString("0.95")), "got %s", price)
	})
}

func TestSharesFor(t *testing.T) {
	// 50 at price 1.012 -> 49.40711462 (8 dp)
	shares := SharesFor(decimal.NewFromInt(50), decimal.RequireFromString("1.012"))
	assert.True(t, shares.Equal(decimal.RequireFromString("49.40711462")), "got %s", shares)
}

func TestIssueSharesFreezesEntryPrice(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "12")
	a := NewAccountant(ledger, &fakeCustody{})
	ctx := context.Background()

	deposit, err := a.IssueShares(ctx, "0xdepositor", decimal.NewFromInt(50), "0xtx1")
	require.NoError(t, err)
	assert.Equal(t, "1.012", deposit.SharePriceAtEntry)
	assert.Equal(t, "49.40711462", deposit.SharesIssued)
	assert.Equal(t, models.DepositStatusActive, deposit.Status)
}

func TestIssueSharesIdempotentOnResubmission(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "0")
	a := NewAccountant(ledger, &fakeCustody{})
	ctx := context.Background()

	first, err := a.IssueShares(ctx, "0xdepositor", decimal.NewFromInt(50), "0xtx1")
	require.NoError(t, err)

	// Vault state moved between the two submissions; the original record
	// must come back unchanged, not a second issuance.
	ledger.pnl = decimal.NewFromInt(100)
	second, err := a.IssueShares(ctx, "0xdepositor", decimal.NewFromInt(50), "0xtx1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SharesIssued, second.SharesIssued)
}

func TestIssueSharesRecoversLostRace(t *testing.T) {
	// A concurrent identical submission lands between the pre-check and the
	// insert: Create hits the unique index, and the retry lookup must return
	// the row that won.
	ledger := newFakeLedger("1000", "1000", "0")
	winner := &models.Deposit{ID: "winner", Depositor: "0xdepositor", TxHash: "0xtx1"}
	ledger.createErr = errors.New("duplicated key not allowed")
	ledger.onCreateFail = func() { ledger.byTx["0xdepositor:0xtx1"] = winner }
	a := NewAccountant(ledger, &fakeCustody{})

	deposit, err := a.IssueShares(context.Background(), "0xdepositor", decimal.NewFromInt(50), "0xtx1")
	require.NoError(t, err)
	assert.Equal(t, "winner", deposit.ID)
}

func TestRedeemSharesPayout(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "12")
	custody := &fakeCustody{balance: decimal.NewFromInt(500)}
	a := NewAccountant(ledger, custody)
	ctx := context.Background()

	ledger.byID["d-1"] = &models.Deposit{
		ID:           "d-1",
		Depositor:    "0xdepositor",
		SharesIssued: "100",
		Status:       models.DepositStatusActive,
	}

	deposit, payout, err := a.RedeemShares(ctx, "d-1", "0xdepositor")
	require.NoError(t, err)
	// 100 shares at 1.012 = 101.2
	assert.True(t, payout.Equal(decimal.RequireFromString("101.2")), "got %s", payout)
	assert.Equal(t, models.DepositStatusWithdrawn, deposit.Status)
	assert.Equal(t, "0xpayout", deposit.WithdrawTxHash)
	require.Len(t, custody.payouts, 1)
}

func TestRedeemSharesOwnership(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "0")
	a := NewAccountant(ledger, &fakeCustody{balance: decimal.NewFromInt(500)})
	ctx := context.Background()

	ledger.byID["d-1"] = &models.Deposit{
		ID: "d-1", Depositor: "0xowner", SharesIssued: "100", Status: models.DepositStatusActive,
	}

	_, _, err := a.RedeemShares(ctx, "d-1", "0xsomeoneelse")
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindUnauthorized, ae.Kind)
}

func TestRedeemSharesAlreadyWithdrawn(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "0")
	a := NewAccountant(ledger, &fakeCustody{balance: decimal.NewFromInt(500)})
	ctx := context.Background()

	ledger.byID["d-1"] = &models.Deposit{
		ID: "d-1", Depositor: "0xowner", SharesIssued: "100", Status: models.DepositStatusWithdrawn,
	}

	_, _, err := a.RedeemShares(ctx, "d-1", "0xowner")
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, ae.Kind)
}

func TestRedeemSharesInsufficientCustodyFailsFast(t *testing.T) {
	ledger := newFakeLedger("1000", "1000", "0")
	custody := &fakeCustody{balance: decimal.NewFromInt(10)}
	a := NewAccountant(ledger, custody)
	ctx := context.Background()

	ledger.byID["d-1"] = &models.Deposit{
		ID: "d-1", Depositor: "0xowner", SharesIssued: "100", Status: models.DepositStatusActive,
	}

	_, _, err := a.RedeemShares(ctx, "d-1", "0xowner")
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindExecution, ae.Kind)
	assert.Contains(t, ae.NextStep, "fund the custody wallet")
	assert.Empty(t, custody.payouts, "no payout may be attempted on insufficient balance")

	// The deposit stays active and redeemable.
	assert.Equal(t, models.DepositStatusActive, ledger.byID["d-1"].Status)
}

func TestRedeemSharesNotFound(t *testing.T) {
	a := NewAccountant(newFakeLedger("0", "0", "0"), &fakeCustody{})
	_, _, err := a.RedeemShares(context.Background(), "missing", "0xowner")
	ae, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindNotFound, ae.Kind)
}

func TestMetrics(t *testing.T) {
	a := NewAccountant(newFakeLedger("1000", "1000", "12"), &fakeCustody{})
	metrics, err := a.Metrics(context.Background())
	require.NoError(t, err)
	assert.True(t, metrics.SharePrice.Equal(decimal.RequireFromString("1.012")))
	assert.True(t, metrics.TotalValue.Equal(decimal.NewFromInt(1012)))
}
