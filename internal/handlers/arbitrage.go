package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/auth"
	"arbcontrol/internal/executor"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/quotes"
)

const scopeArbitrage = "arbitrage:execute"

// ArbitrageRequest is the request body for executing an arbitrage.
type ArbitrageRequest struct {
	Pair           string       `json:"pair" binding:"required"`
	Amount         string       `json:"amount" binding:"required"`
	BuyVenue       string       `json:"buy_venue,omitempty"`
	SellVenue      string       `json:"sell_venue,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Auth           auth.Payload `json:"auth" binding:"required"`
}

// ExecuteArbitrage runs the full pipeline: idempotency short-circuit, auth,
// quoting, the profitability gate, then the two-leg orchestration.
func ExecuteArbitrage(c *gin.Context) {
	var request ArbitrageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// The cache is checked before the nonce is consumed so a retried
	// request (same signature, same nonce) gets its original response
	// instead of a replay rejection.
	idemKey := idempotency.DeriveKey(scopeArbitrage,
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

	fields := []auth.Field{
		{Name: "pair", Value: request.Pair},
		{Name: "amount", Value: request.Amount},
	}
	if _, err := svc.Auth.Authenticate(ctx, scopeArbitrage, request.Auth, fields); err != nil {
		respondError(c, err)
		return
	}

	collected := svc.Quotes.Collect(ctx, request.Pair, amount)
	buy, sell, spreadPct, err := quotes.Best(collected)
	if err != nil {
		respondError(c, apperrors.Transient(err.Error()))
		return
	}
	if request.BuyVenue != "" && request.SellVenue != "" {
		buy, sell, spreadPct, err = pickVenues(collected, request.BuyVenue, request.SellVenue)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	notionalUSD := amount.Mul(buy.Rate)
	threshold := svc.Threshold.MinSpreadPct(svc.GasCostUSD, notionalUSD)
	if spreadPct.Abs().LessThan(threshold) {
		respondError(c, apperrors.NotProfitable(spreadPct.StringFixed(4), threshold.StringFixed(4)))
		return
	}

	buyVenue, ok := svc.Venues[buy.Venue]
	if !ok {
		respondError(c, apperrors.Validation("venue %s cannot execute swaps", buy.Venue))
		return
	}
	sellVenue, ok := svc.Venues[sell.Venue]
	if !ok {
		respondError(c, apperrors.Validation("venue %s cannot execute swaps", sell.Venue))
		return
	}

	trade, execErr := svc.Exec.ExecuteArbitrage(ctx, executor.ArbitrageParams{
		Pair:      request.Pair,
		Amount:    amount,
		BuyVenue:  buyVenue,
		SellVenue: sellVenue,
		BuyRate:   buy.Rate,
		SellRate:  sell.Rate,
		SpreadPct: spreadPct,
	})

	expectedPnlPct := spreadPct
	body := gin.H{
		"trade":            trade,
		"buy_venue":        buy.Venue,
		"sell_venue":       sell.Venue,
		"venue_spread_pct": spreadPct.StringFixed(4),
		"expected_pnl_pct": expectedPnlPct.StringFixed(4),
	}
	if trade != nil {
		body["trade_id"] = trade.ID
	}

	if execErr != nil {
		if ae, ok := apperrors.As(execErr); ok {
			body["error"] = ae
			// Chain state may have moved; the failure response is cached
			// so a retry with the same key cannot double-submit.
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

// pickVenues honors an explicit venue selection from the caller.
func pickVenues(collected []*quotes.Quote, buyName, sellName string) (*quotes.Quote, *quotes.Quote, decimal.Decimal, error) {
	var buy, sell *quotes.Quote
	for _, q := range collected {
		if q == nil {
			continue
		}
		if q.Venue == buyName {
			buy = q
		}
		if q.Venue == sellName {
			sell = q
		}
	}
	if buy == nil {
		return nil, nil, decimal.Zero, apperrors.Transient("no quote available from venue " + buyName)
	}
	if sell == nil {
		return nil, nil, decimal.Zero, apperrors.Transient("no quote available from venue " + sellName)
	}
	return buy, sell, quotes.Spread(sell.Rate, buy.Rate), nil
}
