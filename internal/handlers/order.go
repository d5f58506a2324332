package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/auth"
	"arbcontrol/internal/idempotency"
	"arbcontrol/internal/models"
	"arbcontrol/pkg/config"
)

const (
	scopeOrderCreate = "order:create"
	scopeOrderCancel = "order:cancel"
)

// OrderRequest creates a wallet-signed standing order.
type OrderRequest struct {
	Pair           string       `json:"pair" binding:"required"`
	Side           string       `json:"side" binding:"required"`
	Amount         string       `json:"amount" binding:"required"`
	LimitRate      string       `json:"limit_rate,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
	Auth           auth.Payload `json:"auth" binding:"required"`
}

// CancelOrderRequest cancels an open order; only its creator can.
type CancelOrderRequest struct {
	Auth auth.Payload `json:"auth" binding:"required"`
}

// CreateOrder records a standing order. The creating signature and nonce are
// stored with the order for audit.
func CreateOrder(c *gin.Context) {
	var request OrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	idemKey := idempotency.DeriveKey(scopeOrderCreate,
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
	side := strings.ToLower(request.Side)
	if side != "buy" && side != "sell" {
		respondError(c, apperrors.Validation("side must be buy or sell"))
		return
	}
	if request.LimitRate != "" {
		rate, err := decimal.NewFromString(request.LimitRate)
		if err != nil || !rate.IsPositive() {
			respondError(c, apperrors.Validation("malformed limit_rate %q", request.LimitRate))
			return
		}
	}

	fields := []auth.Field{
		{Name: "pair", Value: request.Pair},
		{Name: "side", Value: side},
		{Name: "amount", Value: request.Amount},
		{Name: "limit_rate", Value: request.LimitRate},
	}
	identity, err := svc.Auth.Authenticate(ctx, scopeOrderCreate, request.Auth, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	if identity.Mode != auth.ModeWallet {
		respondError(c, apperrors.Unauthorized())
		return
	}

	order := models.Order{
		ID:        uuid.NewString(),
		Creator:   identity.Address,
		Pair:      request.Pair,
		Side:      side,
		Amount:    amount.String(),
		LimitRate: request.LimitRate,
		Status:    models.OrderStatusOpen,
		Nonce:     request.Auth.Nonce,
		Signature: request.Auth.Signature,
	}
	if err := config.DB.WithContext(ctx).Create(&order).Error; err != nil {
		respondError(c, apperrors.Transient("could not record order: "+err.Error()))
		return
	}

	body := gin.H{"order": order, "order_id": order.ID}
	cacheResponse(c, idemKey, http.StatusOK, body)
	c.JSON(http.StatusOK, body)
}

// CancelOrder marks an open order cancelled. Only the creating wallet can
// cancel it, and cancellation is idempotent on already-cancelled orders.
func CancelOrder(c *gin.Context) {
	var request CancelOrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	orderID := c.Param("id")

	fields := []auth.Field{
		{Name: "order_id", Value: orderID},
	}
	identity, err := svc.Auth.Authenticate(ctx, scopeOrderCancel, request.Auth, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	if identity.Mode != auth.ModeWallet {
		respondError(c, apperrors.Unauthorized())
		return
	}

	var order models.Order
	if err := config.DB.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		respondError(c, apperrors.NotFound("order"))
		return
	}
	if !strings.EqualFold(order.Creator, identity.Address) {
		respondError(c, apperrors.Unauthorized())
		return
	}
	if order.Status != models.OrderStatusCancelled {
		order.Status = models.OrderStatusCancelled
		if err := config.DB.WithContext(ctx).Save(&order).Error; err != nil {
			respondError(c, apperrors.Transient("could not cancel order: "+err.Error()))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListOrders returns orders, newest first, optionally filtered by creator or
// status.
func ListOrders(c *gin.Context) {
	query := config.DB.WithContext(c.Request.Context()).Order("created_at desc")
	if creator := c.Query("creator"); creator != "" {
		query = query.Where("creator = ?", strings.ToLower(creator))
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []models.Order
	if err := query.Limit(listLimit(c)).Find(&orders).Error; err != nil {
		respondError(c, apperrors.Transient("could not list orders: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
