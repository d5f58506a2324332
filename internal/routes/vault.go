package routes

import (
	"arbcontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupVaultRoutes sets up the pooled vault routes
func SetupVaultRoutes(r *gin.Engine) {
	vault := r.Group("/vault")
	{
		vault.POST("/deposit", handlers.Deposit)
		vault.POST("/withdraw", handlers.Withdraw)
		vault.GET("/metrics", handlers.VaultMetrics)
	}
}
