package routes

import (
	"arbcontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRemittanceRoutes sets up the remittance execution routes
func SetupRemittanceRoutes(r *gin.Engine) {
	remittance := r.Group("/remittance")
	{
		remittance.POST("/execute", handlers.ExecuteRemittance)
	}
}
