package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetActiveDrivers handles GET /v1/drivers/active
func (h *Handlers) GetActiveDrivers(c *gin.Context) {
	drivers := h.Registry.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"drivers": drivers,
		"count":   len(drivers),
	})
}

// GetAvailableDrivers handles GET /v1/drivers/available
func (h *Handlers) GetAvailableDrivers(c *gin.Context) {
	drivers := h.Registry.ListAvailable()
	c.JSON(http.StatusOK, gin.H{
		"drivers": drivers,
		"count":   len(drivers),
	})
}
