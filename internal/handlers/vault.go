package handlers

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/auth"
	"arbcontrol/internal/idempotency"
)

const (
	scopeDeposit  = "vault:deposit"
	scopeWithdraw = "vault:withdraw"
)

// DepositRequest claims a settlement-token transfer into custody.
type DepositRequest struct {
	Depositor      string       `json:"depositor" binding:"required"`
	Amount         string       `json:"amount" binding:"required"`
	TxHash         string       `json:"tx_hash" binding:"required"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Auth           auth.Payload `json:"auth" binding:"required"`
}

// WithdrawRequest redeems a deposit's shares at the current share price.
type WithdrawRequest struct {
	DepositID      string       `json:"deposit_id" binding:"required"`
	Depositor      string       `json:"depositor,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Auth           auth.Payload `json:"auth" binding:"required"`
}

// Deposit verifies the claimed on-chain transfer and issues shares at the
// current share price. Only the depositor's own wallet can claim it.
func Deposit(c *gin.Context) {
	var request DepositRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	idemKey := idempotency.DeriveKey(scopeDeposit,
		idempotencyToken(c, request.IdempotencyKey), request.Auth.Signer, request.Auth.Nonce)
	if cached := svc.Idem.Get(ctx, idemKey); cached != nil {
		serveCached(c, cached)
		return
	}

	amount, err := parseAmount(request.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	if !common.IsHexAddress(request.Depositor) {
		respondError(c, apperrors.Validation("malformed depositor address"))
		return
	}

	fields := []auth.Field{
		{Name: "depositor", Value: request.Depositor},
		{Name: "amount", Value: request.Amount},
		{Name: "tx_hash", Value: request.TxHash},
	}
	identity, err := svc.Auth.Authenticate(ctx, scopeDeposit, request.Auth, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	if identity.Mode == auth.ModeWallet && !strings.EqualFold(identity.Address, request.Depositor) {
		respondError(c, apperrors.Unauthorized())
		return
	}

	depositor := common.HexToAddress(request.Depositor)
	if err := svc.Verifier.VerifyDeposit(ctx, depositor, amount, common.HexToHash(request.TxHash)); err != nil {
		respondError(c, err)
		return
	}

	deposit, err := svc.Accountant.IssueShares(ctx, strings.ToLower(request.Depositor), amount, request.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	svc.Notifier.DepositRecorded(deposit)

	body := gin.H{
		"deposit":              deposit,
		"shares_issued":        deposit.SharesIssued,
		"share_price_at_entry": deposit.SharePriceAtEntry,
	}
	cacheResponse(c, idemKey, http.StatusOK, body)
	c.JSON(http.StatusOK, body)
}

// Withdraw redeems a deposit for its share of the vault at the current price.
func Withdraw(c *gin.Context) {
	var request WithdrawRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	idemKey := idempotency.DeriveKey(scopeWithdraw,
		idempotencyToken(c, request.IdempotencyKey), request.Auth.Signer, request.Auth.Nonce)
	if cached := svc.Idem.Get(ctx, idemKey); cached != nil {
		serveCached(c, cached)
		return
	}

	fields := []auth.Field{
		{Name: "deposit_id", Value: request.DepositID},
	}
	identity, err := svc.Auth.Authenticate(ctx, scopeWithdraw, request.Auth, fields)
	if err != nil {
		respondError(c, err)
		return
	}

	// The redeeming identity must be the deposit's owner. The agent may
	// trigger a redemption on a depositor's behalf; the payout still goes to
	// the depositor's wallet.
	depositor := identity.Address
	if identity.Mode == auth.ModeAgent {
		if !common.IsHexAddress(request.Depositor) {
			respondError(c, apperrors.Validation("agent withdrawals must name the depositor"))
			return
		}
		depositor = strings.ToLower(request.Depositor)
	} else if request.Depositor != "" && !strings.EqualFold(request.Depositor, identity.Address) {
		respondError(c, apperrors.Unauthorized())
		return
	}

	deposit, payout, err := svc.Accountant.RedeemShares(ctx, request.DepositID, depositor)
	if err != nil {
		respondError(c, err)
		return
	}
	svc.Notifier.DepositRecorded(deposit)

	body := gin.H{
		"deposit":          deposit,
		"amount_paid":      payout.String(),
		"withdraw_tx_hash": deposit.WithdrawTxHash,
	}
	cacheResponse(c, idemKey, http.StatusOK, body)
	c.JSON(http.StatusOK, body)
}

// VaultMetrics reports the derived vault numbers.
func VaultMetrics(c *gin.Context) {
	metrics, err := svc.Accountant.Metrics(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Transient(err.Error()))
		return
	}
	c.JSON(http.StatusOK, metrics)
}
