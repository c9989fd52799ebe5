package ride

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus tracks whether the ride's fare has been settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Location is an address with coordinates.
type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsValid checks the coordinates are in range and an address is present.
func (l Location) IsValid() bool {
	return l.Address != "" &&
		l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Ride represents a ride from request to completion or cancellation.
type Ride struct {
	ID            uuid.UUID     `json:"id"`
	CustomerID    string        `json:"customer_id"`
	DriverID      *string       `json:"driver_id,omitempty"`
	Pickup        Location      `json:"pickup"`
	Destination   Location      `json:"destination"`
	Status        Status        `json:"status"`
	EstimatedFare float64       `json:"estimated_fare"`
	FinalFare     *float64      `json:"final_fare,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	DistanceKM    *float64      `json:"distance_km,omitempty"`
	RequestedAt   time.Time     `json:"requested_at"`
	AcceptedAt    *time.Time    `json:"accepted_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Clone returns a deep copy. The lifecycle mutates copies so that a failed
// persistence never leaves a half-applied ride in memory.
func (r *Ride) Clone() *Ride {
	c := *r
	if r.DriverID != nil {
		v := *r.DriverID
		c.DriverID = &v
	}
	if r.FinalFare != nil {
		v := *r.FinalFare
		c.FinalFare = &v
	}
	if r.DistanceKM != nil {
		v := *r.DistanceKM
		c.DistanceKM = &v
	}
	if r.AcceptedAt != nil {
		v := *r.AcceptedAt
		c.AcceptedAt = &v
	}
	if r.CompletedAt != nil {
		v := *r.CompletedAt
		c.CompletedAt = &v
	}
	if r.CancelledAt != nil {
		v := *r.CancelledAt
		c.CancelledAt = &v
	}
	return &c
}

// Filter narrows a ride listing.
type Filter struct {
	Status     Status
	CustomerID string
	Limit      int
}

// Repository defines durable storage for rides. The store is a downstream
// mirror; in-flight concurrency decisions are owned by the dispatch core.
type Repository interface {
	Create(ctx context.Context, r *Ride) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	Update(ctx context.Context, r *Ride) error
	UpdatePayment(ctx context.Context, id uuid.UUID, status PaymentStatus, finalFare float64) error
	List(ctx context.Context, f Filter) ([]*Ride, error)
}
