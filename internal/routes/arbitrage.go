package routes

import (
	"arbcontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupArbitrageRoutes sets up the arbitrage execution routes
func SetupArbitrageRoutes(r *gin.Engine) {
	arbitrage := r.Group("/arbitrage")
	{
		arbitrage.POST("/execute", handlers.ExecuteArbitrage)
	}
}
