package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/api/dto"
	"github.com/taxigo/dispatch/internal/domain/payment"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

// ProcessPayment handles POST /v1/payments
func (h *Handlers) ProcessPayment(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Validation("invalid payment payload"))
		return
	}

	idempotencyKey := c.GetHeader("Idempotency-Key")
	if idempotencyKey == "" {
		h.respondError(c, errors.Validation("Idempotency-Key header required"))
		return
	}

	// A replayed request returns the original response untouched.
	if h.Idempotency != nil {
		if cached, ok := h.Idempotency.Lookup(ctx, idempotencyKey); ok {
			h.Logger.Info("Returning cached payment response",
				logger.String("idempotency_key", idempotencyKey))
			var response map[string]interface{}
			if err := json.Unmarshal(cached, &response); err == nil {
				c.JSON(http.StatusOK, response)
				return
			}
		}
	}

	rideID := uuid.MustParse(req.RideID)
	rd, err := h.Rides.GetByID(ctx, rideID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rd.Status != ride.StatusCompleted {
		h.respondError(c, errors.IllegalTransition("only completed rides can be paid"))
		return
	}
	if rd.PaymentStatus == ride.PaymentPaid {
		h.respondError(c, errors.Validation("ride is already paid"))
		return
	}
	if rd.FinalFare != nil && math.Abs(*rd.FinalFare-req.Amount) > 0.01 {
		h.respondError(c, errors.Validation(
			fmt.Sprintf("amount mismatch: fare is %.2f", *rd.FinalFare)))
		return
	}

	// Reserve the key after validation but before the charge: two
	// concurrent requests with the same key must not both reach the
	// provider.
	if h.Idempotency != nil && !h.Idempotency.Reserve(ctx, idempotencyKey) {
		h.respondError(c, errors.DuplicateRequest(
			"a payment with this idempotency key is already in flight"))
		return
	}

	h.Logger.Info("Processing payment",
		logger.String("ride_id", req.RideID),
		logger.Float64("amount", req.Amount),
		logger.String("method", req.Method),
	)

	// Card payments go through the PSP; wallet and cash settle internally.
	providerRef := ""
	if req.Method == string(payment.MethodCard) && h.Provider != nil {
		amountCents := int64(math.Round(req.Amount * 100))
		ref, err := h.Provider.Charge(ctx, amountCents, "",
			fmt.Sprintf("taxigo ride %s", req.RideID))
		if err != nil {
			h.releaseIdempotency(ctx, idempotencyKey)
			h.recordFailedPayment(c, rd, req, err)
			return
		}
		providerRef = ref
	}

	driverID := ""
	if rd.DriverID != nil {
		driverID = *rd.DriverID
	}
	p := &payment.Payment{
		ID:          uuid.New(),
		RideID:      rideID,
		CustomerID:  rd.CustomerID,
		DriverID:    driverID,
		Amount:      req.Amount,
		Method:      payment.Method(req.Method),
		Status:      payment.StatusCompleted,
		ProviderRef: providerRef,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Payments.Create(ctx, p); err != nil {
		h.releaseIdempotency(ctx, idempotencyKey)
		h.respondError(c, errors.Dependency("failed to record payment", err))
		return
	}
	if err := h.Rides.UpdatePayment(ctx, rideID, ride.PaymentPaid, req.Amount); err != nil {
		h.Logger.Error("Failed to mark ride paid", logger.Err(err),
			logger.String("ride_id", req.RideID))
	}

	response := gin.H{
		"payment_id":   p.ID,
		"ride_id":      req.RideID,
		"amount":       req.Amount,
		"method":       req.Method,
		"status":       p.Status,
		"provider_ref": providerRef,
		"processed_at": p.CreatedAt,
	}

	if h.Idempotency != nil {
		if responseJSON, err := json.Marshal(response); err == nil {
			h.Idempotency.Store(ctx, idempotencyKey, responseJSON)
		}
	}

	h.Monitor.RecordPaymentProcessed(req.Amount, req.Method, string(p.Status))
	h.Logger.Info("Payment processed",
		logger.String("payment_id", p.ID.String()),
		logger.String("ride_id", req.RideID),
	)

	c.JSON(http.StatusOK, response)
}

func (h *Handlers) releaseIdempotency(ctx context.Context, key string) {
	if h.Idempotency != nil {
		h.Idempotency.Release(ctx, key)
	}
}

func (h *Handlers) recordFailedPayment(c *gin.Context, rd *ride.Ride, req dto.CreatePaymentRequest, chargeErr error) {
	ctx := c.Request.Context()

	driverID := ""
	if rd.DriverID != nil {
		driverID = *rd.DriverID
	}
	p := &payment.Payment{
		ID:         uuid.New(),
		RideID:     rd.ID,
		CustomerID: rd.CustomerID,
		DriverID:   driverID,
		Amount:     req.Amount,
		Method:     payment.Method(req.Method),
		Status:     payment.StatusFailed,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Payments.Create(ctx, p); err != nil {
		h.Logger.Error("Failed to record failed payment", logger.Err(err))
	}
	if err := h.Rides.UpdatePayment(ctx, rd.ID, ride.PaymentFailed, req.Amount); err != nil {
		h.Logger.Error("Failed to mark ride payment failed", logger.Err(err))
	}

	h.Monitor.RecordPaymentProcessed(req.Amount, req.Method, string(payment.StatusFailed))
	h.respondError(c, errors.Dependency("payment provider rejected the charge", chargeErr))
}

// GetRidePayment handles GET /v1/payments/ride/:ride_id
func (h *Handlers) GetRidePayment(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("ride_id"))
	if err != nil {
		h.respondError(c, errors.Validation("malformed ride id"))
		return
	}

	p, err := h.Payments.GetByRideID(c.Request.Context(), rideID)
	if err == payment.ErrPaymentNotFound {
		h.respondError(c, errors.NotFound("payment not found"))
		return
	}
	if err != nil {
		h.respondError(c, errors.Dependency("failed to load payment", err))
		return
	}

	c.JSON(http.StatusOK, p)
}

// ListPayments handles GET /v1/payments
func (h *Handlers) ListPayments(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		h.respondError(c, errors.Validation("customer_id is required"))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(c, errors.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	payments, err := h.Payments.ListByCustomer(c.Request.Context(), customerID, limit)
	if err != nil {
		h.respondError(c, errors.Dependency("failed to list payments", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}
