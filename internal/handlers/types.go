package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/auth"
	"arbcontrol/internal/executor"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/notify"
	"arbcontrol/internal/quotes"
	"arbcontrol/internal/vault"
)

// IdempotencyKeyHeader carries the client-supplied idempotency token; a body
// field with the same meaning is accepted too.
const IdempotencyKeyHeader = "Idempotency-Key"

// Services wires the pipeline pieces into the handler package. Set once at
// startup via Init.
type Services struct {
	Auth        *auth.Authenticator
	Idem        *idempotency.Cache
	Quotes      *quotes.Aggregator
	Threshold   quotes.ThresholdConfig
	Exec        *executor.Orchestrator
	Accountant  *vault.Accountant
	Verifier    *vault.Verifier
	Notifier    *notify.Notifier
	Venues      map[string]*quotes.ChainVenue
	GasCostUSD  decimal.Decimal
	MaxNotional decimal.Decimal
}

var svc *Services

// Init installs the service wiring for all handlers.
func Init(s *Services) {
	svc = s
}

// respondError maps an error into the taxonomy response.
func respondError(c *gin.Context, err error) {
	if ae, ok := apperrors.As(err); ok {
		c.JSON(ae.HTTPStatus(), gin.H{"error": ae})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "internal", "message": err.Error()}})
}

// idempotencyToken resolves the explicit client token from header or body.
func idempotencyToken(c *gin.Context, bodyToken string) string {
	if header := c.GetHeader(IdempotencyKeyHeader); header != "" {
		return header
	}
	return bodyToken
}

// cachedResponse is the envelope stored in the idempotency cache. The status
// code rides along with the body so a cached failure replays as the same
// failure, not as a 200.
type cachedResponse struct {
	Status int                    `json:"status"`
	Body   map[string]interface{} `json:"body"`
}

// serveCached replays a cached response with its original status code,
// flagged so the caller can tell.
func serveCached(c *gin.Context, payload json.RawMessage) {
	var cached cachedResponse
	if err := json.Unmarshal(payload, &cached); err != nil || cached.Status == 0 || cached.Body == nil {
		c.Data(http.StatusOK, "application/json", payload)
		return
	}
	cached.Body["idempotent"] = true
	c.JSON(cached.Status, cached.Body)
}

// cacheResponse stores the response payload and its status code under the
// request fingerprint.
func cacheResponse(c *gin.Context, key string, status int, body gin.H) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(cachedResponse{Status: status, Body: body})
	if err != nil {
		return
	}
	svc.Idem.Put(c.Request.Context(), key, payload)
}

// parseAmount validates a positive decimal amount within the notional cap.
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.Validation("malformed amount %q", raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Validation("amount must be positive")
	}
	if svc.MaxNotional.IsPositive() && amount.GreaterThan(svc.MaxNotional) {
		return decimal.Zero, apperrors.Validation("amount exceeds maximum notional %s", svc.MaxNotional)
	}
	return amount, nil
}
