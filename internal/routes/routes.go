package routes

import (
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"arbcontrol/internal/middleware"
	"arbcontrol/internal/notify"
)

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(broadcaster *notify.Broadcaster) *gin.Engine {
	r := gin.Default()

	// Add health check endpoint
	r.Any("/health", func(c *gin.Context) {
		c.String(200, "ok")
	})

	// Configure CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Get allowed origins from environment variable
		// Format: comma-separated list, e.g., "http://localhost:3000,http://localhost:3001"
		allowedOriginsStr := os.Getenv("ALLOWED_ORIGINS")
		var allowedOrigins []string

		if allowedOriginsStr != "" {
			origins := strings.Split(allowedOriginsStr, ",")
			for _, o := range origins {
				trimmed := strings.TrimSpace(o)
				if trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		}

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Cache-Control, X-Requested-With, Idempotency-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		// Handle preflight requests
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Rate limit everything below the health check
	rps := 10.0
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	r.Use(middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: rps,
		Burst:             int(rps * 2),
	}))

	// Websocket live event stream
	if broadcaster != nil {
		r.GET("/ws", func(c *gin.Context) {
			broadcaster.Handle(c.Writer, c.Request)
		})
	}

	// Setup routes for each module
	SetupArbitrageRoutes(r)
	SetupRemittanceRoutes(r)
	SetupVaultRoutes(r)
	SetupOrderRoutes(r)
	SetupTradeRoutes(r)

	return r
}
