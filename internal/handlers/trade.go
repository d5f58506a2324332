package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"arbcontrol/internal/apperrors"
	"arbcontrol/internal/models"
	"arbcontrol/pkg/config"
)

const defaultListLimit = 50

// listLimit reads the caller's limit query parameter, capped at 500.
func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// ListTrades returns trades, newest first, optionally filtered by status,
// kind or pair.
func ListTrades(c *gin.Context) {
	query := config.DB.WithContext(c.Request.Context()).Order("created_at desc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if pair := c.Query("pair"); pair != "" {
		query = query.Where("pair = ?", pair)
	}

	var trades []models.Trade
	if err := query.Limit(listLimit(c)).Find(&trades).Error; err != nil {
		respondError(c, apperrors.Transient("could not list trades: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// GetTrade returns one trade by id.
func GetTrade(c *gin.Context) {
	var trade models.Trade
	if err := config.DB.WithContext(c.Request.Context()).First(&trade, "id = ?", c.Param("id")).Error; err != nil {
		respondError(c, apperrors.NotFound("trade"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

// ListDeposits returns deposits, newest first, optionally filtered by
// depositor or status.
func ListDeposits(c *gin.Context) {
	query := config.DB.WithContext(c.Request.Context()).Order("created_at desc")
	if depositor := c.Query("depositor"); depositor != "" {
		query = query.Where("depositor = ?", strings.ToLower(depositor))
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var deposits []models.Deposit
	if err := query.Limit(listLimit(c)).Find(&deposits).Error; err != nil {
		respondError(c, apperrors.Transient("could not list deposits: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deposits, "count": len(deposits)})
}
