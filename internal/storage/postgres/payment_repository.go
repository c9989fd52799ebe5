package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/domain/payment"
	"github.com/taxigo/dispatch/pkg/logger"
)

// PaymentRepository stores payment records in PostgreSQL.
type PaymentRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPaymentRepository creates a payment repository over db.
func NewPaymentRepository(db *sql.DB, log *logger.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: log}
}

// Create inserts a payment record. One payment per ride; a duplicate ride_id
// violates the unique constraint and surfaces as an error.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, ride_id, customer_id, driver_id,
			amount, method, status, provider_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.RideID, p.CustomerID, p.DriverID,
		p.Amount, p.Method, p.Status, p.ProviderRef, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// GetByRideID loads the payment for a ride.
func (r *PaymentRepository) GetByRideID(ctx context.Context, rideID uuid.UUID) (*payment.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, ride_id, customer_id, driver_id,
		       amount, method, status, provider_ref, created_at
		FROM payments WHERE ride_id = $1
	`, rideID)

	var p payment.Payment
	err := row.Scan(&p.ID, &p.RideID, &p.CustomerID, &p.DriverID,
		&p.Amount, &p.Method, &p.Status, &p.ProviderRef, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, payment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &p, nil
}

// ListByCustomer returns a customer's payment history, newest first.
func (r *PaymentRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*payment.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ride_id, customer_id, driver_id,
		       amount, method, status, provider_ref, created_at
		FROM payments
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		var p payment.Payment
		if err := rows.Scan(&p.ID, &p.RideID, &p.CustomerID, &p.DriverID,
			&p.Amount, &p.Method, &p.Status, &p.ProviderRef, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
