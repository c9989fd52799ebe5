package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/taxigo/dispatch/internal/api/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"connections": h.Hub.GetActiveConnections(),
			"sessions":    h.Directory.Count(),
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Development token helper
		v1.POST("/auth/token", h.IssueToken)

		// Ride endpoints
		rides := v1.Group("/rides")
		{
			rides.GET("", h.ListRides)
			rides.GET("/:id", h.GetRide)
			rides.POST("/estimate", h.EstimateFare)
		}

		// Driver endpoints
		drivers := v1.Group("/drivers")
		{
			drivers.GET("/active", h.GetActiveDrivers)
			drivers.GET("/available", h.GetAvailableDrivers)
		}

		// Payment endpoints
		payments := v1.Group("/payments")
		{
			payments.POST("", h.ProcessPayment)
			payments.GET("", h.ListPayments)
			payments.GET("/ride/:ride_id", h.GetRidePayment)
		}
	}
}
