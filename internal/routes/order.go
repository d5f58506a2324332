package routes

import (
	"arbcontrol/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupOrderRoutes sets up the signed standing-order routes
func SetupOrderRoutes(r *gin.Engine) {
	orders := r.Group("/orders")
	{
		orders.GET("", handlers.ListOrders)
		orders.POST("", handlers.CreateOrder)
		orders.POST("/:id/cancel", handlers.CancelOrder)
	}
}
