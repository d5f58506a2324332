package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/auth"
	"arbcontrol/internal/executor"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/quotes"
)

const scopeRemittance = "remittance:execute"

// RemittanceRequest is the request body for executing a remittance.
type RemittanceRequest struct {
	FromToken      string       `json:"from_token" binding:"required"`
	ToToken        string       `json:"to_token" binding:"required"`
	Amount         string       `json:"amount" binding:"required"`
	Recipient      string       `json:"recipient" binding:"required"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Auth           auth.Payload `json:"auth" binding:"required"`
}

// ExecuteRemittance converts and delivers funds: quote the conversion on
// every venue, convert on the best one, transfer the proceeds.
func ExecuteRemittance(c *gin.Context) {
	var request RemittanceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	idemKey := idempotency.DeriveKey(scopeRemittance,
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
	if !common.IsHexAddress(request.Recipient) {
		respondError(c, apperrors.Validation("malformed recipient address"))
		return
	}

	fields := []auth.Field{
		{Name: "from_token", Value: request.FromToken},
		{Name: "to_token", Value: request.ToToken},
		{Name: "amount", Value: request.Amount},
		{Name: "recipient", Value: request.Recipient},
	}
	if _, err := svc.Auth.Authenticate(ctx, scopeRemittance, request.Auth, fields); err != nil {
		respondError(c, err)
		return
	}

	pair := request.FromToken + "/" + request.ToToken
	collected := svc.Quotes.Collect(ctx, pair, amount)

	// Conversion executes on the venue delivering the most output; only
	// chain venues qualify.
	var best *quotes.Quote
	for _, q := range collected {
		if q == nil {
			continue
		}
		if _, ok := svc.Venues[q.Venue]; !ok {
			continue
		}
		if best == nil || q.Rate.GreaterThan(best.Rate) {
			best = q
		}
	}
	if best == nil {
		respondError(c, apperrors.Transient("no venue could quote "+pair))
		return
	}

	trade, execErr := svc.Exec.ExecuteRemittance(ctx, executor.RemittanceParams{
		FromToken: request.FromToken,
		ToToken:   request.ToToken,
		Amount:    amount,
		Recipient: common.HexToAddress(request.Recipient),
		Venue:     svc.Venues[best.Venue],
		Rate:      best.Rate,
	})

	body := gin.H{
		"trade": trade,
		"venue": best.Venue,
	}
	if trade != nil {
		body["trade_id"] = trade.ID
		body["amount_delivered"] = trade.AmountOut
	}

	if execErr != nil {
		if ae, ok := apperrors.As(execErr); ok {
			body["error"] = ae
			if trade != nil {
				cacheResponse(c, idemKey, ae.HTTPStatus(), body)
			}
			c.JSON(ae.HTTPStatus(), body)
			return
		}
		respondError(c, execErr)
		return
	}

	cacheResponse(c, idemKey, http.StatusOK, body)
	c.JSON(http.StatusOK, body)
}
