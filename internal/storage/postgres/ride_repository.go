// Package postgres persists rides and payments. The store is a downstream
// mirror of the dispatch core's in-memory state: it must observe committed
// transitions, never decide races.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

const rideColumns = `
	id, customer_id, driver_id,
	pickup_address, pickup_latitude, pickup_longitude,
	destination_address, destination_latitude, destination_longitude,
	status, estimated_fare, final_fare, payment_status, distance_km,
	requested_at, accepted_at, completed_at, cancelled_at,
	created_at, updated_at`

// RideRepository stores rides in PostgreSQL.
type RideRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRideRepository creates a ride repository over db.
func NewRideRepository(db *sql.DB, log *logger.Logger) *RideRepository {
	return &RideRepository{db: db, logger: log}
}

// Create inserts a new ride row.
func (r *RideRepository) Create(ctx context.Context, rd *ride.Ride) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, customer_id,
			pickup_address, pickup_latitude, pickup_longitude,
			destination_address, destination_latitude, destination_longitude,
			status, estimated_fare, payment_status,
			requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rd.ID, rd.CustomerID,
		rd.Pickup.Address, rd.Pickup.Latitude, rd.Pickup.Longitude,
		rd.Destination.Address, rd.Destination.Latitude, rd.Destination.Longitude,
		rd.Status, rd.EstimatedFare, rd.PaymentStatus,
		rd.RequestedAt, rd.CreatedAt, rd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}
	return nil
}

// GetByID loads a ride by id.
func (r *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)

	rd, err := scanRide(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("ride not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ride: %w", err)
	}
	return rd, nil
}

// Update writes the ride's mutable fields. The status guard is a
// compare-and-set backstop: the dispatch core has already serialized
// transitions, so a zero-row update means a diverged mirror.
func (r *RideRepository) Update(ctx context.Context, rd *ride.Ride) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rides SET
			driver_id = $2,
			status = $3,
			final_fare = $4,
			payment_status = $5,
			distance_km = $6,
			accepted_at = $7,
			completed_at = $8,
			cancelled_at = $9,
			updated_at = $10
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, rd.ID, rd.DriverID, rd.Status, rd.FinalFare, rd.PaymentStatus,
		rd.DistanceKM, rd.AcceptedAt, rd.CompletedAt, rd.CancelledAt, rd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update ride: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return errors.NotFound("ride not found or already finalized")
	}
	return nil
}

// UpdatePayment records the settlement outcome for a completed ride.
func (r *RideRepository) UpdatePayment(ctx context.Context, id uuid.UUID, status ride.PaymentStatus, finalFare float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rides SET
			payment_status = $2,
			final_fare = $3,
			updated_at = NOW()
		WHERE id = $1
	`, id, status, finalFare)
	if err != nil {
		return fmt.Errorf("failed to update ride payment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return errors.NotFound("ride not found")
	}
	return nil
}

// List returns rides matching the filter, newest first.
func (r *RideRepository) List(ctx context.Context, f ride.Filter) ([]*ride.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE 1=1`
	args := []interface{}{}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		query += fmt.Sprintf(" AND customer_id = $%d", len(args))
	}

	query += " ORDER BY requested_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	defer rows.Close()

	var out []*ride.Ride
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var rd ride.Ride
	err := row.Scan(
		&rd.ID, &rd.CustomerID, &rd.DriverID,
		&rd.Pickup.Address, &rd.Pickup.Latitude, &rd.Pickup.Longitude,
		&rd.Destination.Address, &rd.Destination.Latitude, &rd.Destination.Longitude,
		&rd.Status, &rd.EstimatedFare, &rd.FinalFare, &rd.PaymentStatus, &rd.DistanceKM,
		&rd.RequestedAt, &rd.AcceptedAt, &rd.CompletedAt, &rd.CancelledAt,
		&rd.CreatedAt, &rd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}
