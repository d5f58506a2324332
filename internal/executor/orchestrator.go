package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/models"
	"arbcontrol/internal/quotes"
	"arbcontrol/pkg/evm"
)

const tokenDecimals = 18

var weiPerToken = decimal.New(1, tokenDecimals)

// slippageGuard caps how much worse than quoted a swap may fill: minAmountOut
// is 99% of the quoted output.
var slippageGuard = decimal.RequireFromString("0.99")

// ChainClient is the slice of the chain client the orchestrator needs.
type ChainClient interface {
	SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TradeStore persists trade records.
type TradeStore interface {
	Create(ctx context.Context, trade *models.Trade) error
	Update(ctx context.Context, trade *models.Trade) error
}

// EventSink receives trade lifecycle transitions; implementations must not
// block.
type EventSink interface {
	TradeUpdated(trade *models.Trade)
}

// Orchestrator sequences dependent on-chain operations: each leg is an
// approval followed by the operation that spends it, and confirmation of each
// submission is awaited before the next begins. There is no automatic retry
// of a failed leg; retries are the caller's responsibility via a fresh
// idempotency key.
type Orchestrator struct {
	chain  ChainClient
	trades TradeStore
	events EventSink
}

func NewOrchestrator(chain ChainClient, trades TradeStore, events EventSink) *Orchestrator {
	return &Orchestrator{chain: chain, trades: trades, events: events}
}

// ArbitrageParams is a thresholded, quoted two-venue opportunity. Amount is
// the base-token notional.
type ArbitrageParams struct {
	Pair      string
	Amount    decimal.Decimal
	BuyVenue  *quotes.ChainVenue
	SellVenue *quotes.ChainVenue
	BuyRate   decimal.Decimal
	SellRate  decimal.Decimal
	SpreadPct decimal.Decimal
}

// RemittanceParams is a quoted single-venue conversion plus delivery.
type RemittanceParams struct {
	FromToken string
	ToToken   string
	Amount    decimal.Decimal
	Recipient common.Address
	Venue     *quotes.ChainVenue
	Rate      decimal.Decimal
}

type legResult struct {
	ApproveTxHash string
	SwapTxHash    string
}

func toWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerToken).BigInt()
}

// markFailed writes the terminal failed state before the error is returned,
// so no trade is ever left pending by a failure path.
func (o *Orchestrator) markFailed(ctx context.Context, trade *models.Trade, reason string) {
	trade.Status = models.TradeStatusFailed
	trade.Error = reason
	if err := o.trades.Update(ctx, trade); err != nil {
		log.Errorf("trade %s: failed to persist terminal state: %v", trade.ID, err)
	}
	o.events.TradeUpdated(trade)
}

// ExecuteArbitrage runs the two-leg flow: buy the base token on the cheap
// venue, then sell it on the rich one. If leg 1 succeeds and leg 2 fails the
// record keeps leg 1's hashes so the operator can tell "failed after the
// first leg" apart from "failed before any funds moved".
func (o *Orchestrator) ExecuteArbitrage(ctx context.Context, p ArbitrageParams) (*models.Trade, error) {
	base, quote, err := quotes.SplitPair(p.Pair)
	if err != nil {
		return nil, apperrors.Validation("%v", err)
	}

	baseToken, ok := p.BuyVenue.Token(base)
	if !ok {
		return nil, apperrors.Validation("token %s not available on venue %s", base, p.BuyVenue.Name())
	}
	quoteToken, ok := p.BuyVenue.Token(quote)
	if !ok {
		return nil, apperrors.Validation("token %s not available on venue %s", quote, p.BuyVenue.Name())
	}
	if _, ok := p.SellVenue.Token(base); !ok {
		return nil, apperrors.Validation("token %s not available on venue %s", base, p.SellVenue.Name())
	}

	quoteSpend := p.Amount.Mul(p.BuyRate)
	expectedOut := p.Amount.Mul(p.SellRate)

	trade := &models.Trade{
		ID:        uuid.NewString(),
		Kind:      models.TradeKindArbitrage,
		Pair:      p.Pair,
		FromToken: quote,
		ToToken:   quote,
		AmountIn:  quoteSpend.String(),
		Rate:      p.SellRate.String(),
		SpreadPct: p.SpreadPct.String(),
		BuyVenue:  p.BuyVenue.Name(),
		SellVenue: p.SellVenue.Name(),
		Status:    models.TradeStatusPending,
		Timestamp: time.Now(),
	}
	if err := o.trades.Create(ctx, trade); err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("could not record trade: %v", err))
	}

	// Leg 1: acquire the base token on the buy venue.
	minBaseOut := toWei(p.Amount.Mul(slippageGuard))
	leg1, err := o.runLeg(ctx, p.BuyVenue.Router(), quoteToken, baseToken, toWei(quoteSpend), minBaseOut)
	if leg1 != nil {
		trade.BuyApprovalTxHash = leg1.ApproveTxHash
		trade.BuySwapTxHash = leg1.SwapTxHash
	}
	if err != nil {
		o.markFailed(ctx, trade, fmt.Sprintf("failed before any funds moved (buy leg): %v", err))
		return trade, classify(err, "buy leg failed")
	}

	// Leg 2: sell the acquired base on the sell venue. Strictly after leg 1
	// confirmation; the input depends on its effect.
	minQuoteOut := toWei(expectedOut.Mul(slippageGuard))
	leg2, err := o.runLeg(ctx, p.SellVenue.Router(), baseToken, quoteToken, toWei(p.Amount), minQuoteOut)
	if leg2 != nil {
		trade.SellApprovalTxHash = leg2.ApproveTxHash
		trade.SellSwapTxHash = leg2.SwapTxHash
	}
	if err != nil {
		o.markFailed(ctx, trade, fmt.Sprintf("failed after first leg completed (sell leg): %v", err))
		return trade, apperrors.PartialExecution(1, trade.BuySwapTxHash,
			fmt.Sprintf("buy leg confirmed but sell leg failed: %v", err))
	}

	trade.AmountOut = expectedOut.String()
	trade.Pnl = expectedOut.Sub(quoteSpend).String()
	trade.Status = models.TradeStatusConfirmed
	if err := o.trades.Update(ctx, trade); err != nil {
		log.Errorf("trade %s: confirmed on-chain but persisting failed: %v", trade.ID, err)
	}
	o.events.TradeUpdated(trade)
	return trade, nil
}

// ExecuteRemittance converts fromToken to toToken on a single venue and
// delivers the proceeds to the recipient.
func (o *Orchestrator) ExecuteRemittance(ctx context.Context, p RemittanceParams) (*models.Trade, error) {
	tokenIn, ok := p.Venue.Token(p.FromToken)
	if !ok {
		return nil, apperrors.Validation("token %s not available on venue %s", p.FromToken, p.Venue.Name())
	}
	tokenOut, ok := p.Venue.Token(p.ToToken)
	if !ok {
		return nil, apperrors.Validation("token %s not available on venue %s", p.ToToken, p.Venue.Name())
	}

	delivered := p.Amount.Mul(p.Rate)

	trade := &models.Trade{
		ID:        uuid.NewString(),
		Kind:      models.TradeKindRemittance,
		Pair:      p.FromToken + "/" + p.ToToken,
		FromToken: p.FromToken,
		ToToken:   p.ToToken,
		AmountIn:  p.Amount.String(),
		Rate:      p.Rate.String(),
		Recipient: p.Recipient.Hex(),
		BuyVenue:  p.Venue.Name(),
		Status:    models.TradeStatusPending,
		Timestamp: time.Now(),
	}
	if err := o.trades.Create(ctx, trade); err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("could not record trade: %v", err))
	}

	minOut := toWei(delivered.Mul(slippageGuard))
	leg1, err := o.runLeg(ctx, p.Venue.Router(), tokenIn, tokenOut, toWei(p.Amount), minOut)
	if leg1 != nil {
		trade.BuyApprovalTxHash = leg1.ApproveTxHash
		trade.BuySwapTxHash = leg1.SwapTxHash
	}
	if err != nil {
		o.markFailed(ctx, trade, fmt.Sprintf("failed before any funds moved (conversion): %v", err))
		return trade, classify(err, "conversion failed")
	}

	// Delivery depends on the conversion's output, so it waits for it.
	transferData, err := evm.PackTransfer(p.Recipient, toWei(delivered))
	if err != nil {
		o.markFailed(ctx, trade, fmt.Sprintf("failed after conversion (encode transfer): %v", err))
		return trade, apperrors.PartialExecution(1, trade.BuySwapTxHash, err.Error())
	}
	transferHash, err := o.submitAndConfirm(ctx, tokenOut, transferData)
	if transferHash != (common.Hash{}) {
		trade.TransferTxHash = transferHash.Hex()
	}
	if err != nil {
		o.markFailed(ctx, trade, fmt.Sprintf("failed after conversion (delivery transfer): %v", err))
		return trade, apperrors.PartialExecution(1, trade.BuySwapTxHash,
			fmt.Sprintf("conversion confirmed but delivery failed: %v", err))
	}

	trade.AmountOut = delivered.String()
	trade.Status = models.TradeStatusConfirmed
	if err := o.trades.Update(ctx, trade); err != nil {
		log.Errorf("trade %s: confirmed on-chain but persisting failed: %v", trade.ID, err)
	}
	o.events.TradeUpdated(trade)
	return trade, nil
}

// runLeg executes one dependent pair: approve the router, then swap through
// it. The swap is only submitted once the approval is confirmed.
func (o *Orchestrator) runLeg(ctx context.Context, router, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (*legResult, error) {
	result := &legResult{}

	approveData, err := evm.PackApprove(router, amountIn)
	if err != nil {
		return result, fmt.Errorf("encode approve: %w", err)
	}
	approveHash, err := o.submitAndConfirm(ctx, tokenIn, approveData)
	if approveHash != (common.Hash{}) {
		result.ApproveTxHash = approveHash.Hex()
	}
	if err != nil {
		return result, fmt.Errorf("approve: %w", err)
	}

	swapData, err := evm.PackSwap(tokenIn, tokenOut, amountIn, minAmountOut)
	if err != nil {
		return result, fmt.Errorf("encode swap: %w", err)
	}
	swapHash, err := o.submitAndConfirm(ctx, router, swapData)
	if swapHash != (common.Hash{}) {
		result.SwapTxHash = swapHash.Hex()
	}
	if err != nil {
		return result, fmt.Errorf("swap: %w", err)
	}

	return result, nil
}

func (o *Orchestrator) submitAndConfirm(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	txHash, err := o.chain.SubmitTransaction(ctx, to, data)
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := o.chain.WaitForReceipt(ctx, txHash)
	if err != nil {
		return txHash, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("transaction %s reverted", txHash.Hex())
	}
	return txHash, nil
}
