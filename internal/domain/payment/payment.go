package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents payment record status
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Method is how the customer paid.
type Method string

const (
	MethodCard   Method = "card"
	MethodWallet Method = "wallet"
	MethodCash   Method = "cash"
)

// Payment records a settled (or attempted) charge for a ride. Monetary logic
// lives with the payment provider; this is bookkeeping only.
type Payment struct {
	ID          uuid.UUID `json:"id"`
	RideID      uuid.UUID `json:"ride_id"`
	CustomerID  string    `json:"customer_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	Amount      float64   `json:"amount"`
	Method      Method    `json:"method"`
	Status      Status    `json:"status"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository defines durable storage for payments.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByRideID(ctx context.Context, rideID uuid.UUID) (*Payment, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Payment, error)
}

var (
	ErrPaymentNotFound = errors.New("payment not found")
)
