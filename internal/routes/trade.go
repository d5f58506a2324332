package routes

import (
	"arbcontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupTradeRoutes sets up the trade and deposit history routes
func SetupTradeRoutes(r *gin.Engine) {
	trades := r.Group("/trades")
	{
		trades.GET("", handlers.ListTrades)
		trades.GET("/:id", handlers.GetTrade)
	}

	deposits := r.Group("/deposits")
	{
		deposits.GET("", handlers.ListDeposits)
	}
}
