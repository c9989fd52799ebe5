package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/api/dto"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
)

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errors.Validation("malformed ride id"))
		return
	}

	r, err := h.Lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// ListRides handles GET /v1/rides
func (h *Handlers) ListRides(c *gin.Context) {
	filter := ride.Filter{
		CustomerID: c.Query("customer_id"),
	}

	if raw := c.Query("status"); raw != "" {
		status, ok := ride.ParseStatus(raw)
		if !ok {
			h.respondError(c, errors.Validation("unknown ride status: "+raw))
			return
		}
		filter.Status = status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.respondError(c, errors.Validation("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	rides, err := h.Rides.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, errors.Dependency("failed to list rides", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"rides": rides, "count": len(rides)})
}

// EstimateFare handles POST /v1/rides/estimate
func (h *Handlers) EstimateFare(c *gin.Context) {
	var req dto.EstimateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Validation("invalid estimate payload"))
		return
	}

	pickup := ride.Location{Address: req.Pickup.Address, Latitude: req.Pickup.Latitude, Longitude: req.Pickup.Longitude}
	destination := ride.Location{Address: req.Destination.Address, Latitude: req.Destination.Latitude, Longitude: req.Destination.Longitude}
	if !pickup.IsValid() || !destination.IsValid() {
		h.respondError(c, errors.Validation("coordinates out of range"))
		return
	}

	region := req.Region
	if region == "" {
		region = "default"
	}

	estimate := h.Pricing.Estimate(c.Request.Context(), pickup, destination, region)
	c.JSON(http.StatusOK, estimate)
}
