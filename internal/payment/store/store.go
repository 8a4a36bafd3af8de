// Package store persists payment attempts in PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staypay/internal/booking"
	"staypay/internal/common/database"
	"staypay/internal/payment"
)

// PostgresStore implements payment.Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateAttempt inserts a new payment attempt.
func (s *PostgresStore) CreateAttempt(ctx context.Context, attempt *payment.Attempt) error {
	query := `
		INSERT INTO payment_attempts (
			id, receipt_id, property_id, booking_context,
			amount_minor, currency, status,
			order_id, payment_id, booking_ref, error_kind, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	bookingJSON, _ := json.Marshal(attempt.Booking)

	_, err := s.pool.Exec(ctx, query,
		attempt.ID, attempt.ReceiptID, attempt.Booking.PropertyID, bookingJSON,
		attempt.Amount.AmountMinor, attempt.Amount.Currency, attempt.Status,
		nullStr(attempt.OrderID), nullStr(attempt.PaymentID),
		nullStr(attempt.BookingRef), nullStr(string(attempt.ErrorKind)), nullStr(attempt.ErrorMessage),
		attempt.CreatedAt, attempt.UpdatedAt, attempt.CompletedAt,
	)
	return err
}

// UpdateAttempt updates a payment attempt.
func (s *PostgresStore) UpdateAttempt(ctx context.Context, attempt *payment.Attempt) error {
	query := `
		UPDATE payment_attempts SET
			status = $2, order_id = $3, payment_id = $4, booking_ref = $5,
			error_kind = $6, error_message = $7, updated_at = $8, completed_at = $9
		WHERE id = $1
	`

	attempt.UpdatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx, query,
		attempt.ID, attempt.Status, nullStr(attempt.OrderID), nullStr(attempt.PaymentID),
		nullStr(attempt.BookingRef), nullStr(string(attempt.ErrorKind)), nullStr(attempt.ErrorMessage),
		attempt.UpdatedAt, attempt.CompletedAt,
	)
	return err
}

// GetAttempt retrieves a payment attempt by ID.
func (s *PostgresStore) GetAttempt(ctx context.Context, attemptID string) (*payment.Attempt, error) {
	query := `
		SELECT id, receipt_id, booking_context,
			   amount_minor, currency, status,
			   order_id, payment_id, booking_ref, error_kind, error_message,
			   created_at, updated_at, completed_at
		FROM payment_attempts WHERE id = $1
	`

	row := s.pool.QueryRow(ctx, query, attemptID)
	return s.scanAttempt(row)
}

// GetAttemptByReceipt retrieves a payment attempt by receipt ID.
func (s *PostgresStore) GetAttemptByReceipt(ctx context.Context, receiptID string) (*payment.Attempt, error) {
	query := `
		SELECT id, receipt_id, booking_context,
			   amount_minor, currency, status,
			   order_id, payment_id, booking_ref, error_kind, error_message,
			   created_at, updated_at, completed_at
		FROM payment_attempts WHERE receipt_id = $1
	`

	row := s.pool.QueryRow(ctx, query, receiptID)
	return s.scanAttempt(row)
}

// ListAttemptsByProperty lists attempts for a property, newest first.
func (s *PostgresStore) ListAttemptsByProperty(ctx context.Context, propertyID string, limit int) ([]*payment.Attempt, error) {
	query := `
		SELECT id, receipt_id, booking_context,
			   amount_minor, currency, status,
			   order_id, payment_id, booking_ref, error_kind, error_message,
			   created_at, updated_at, completed_at
		FROM payment_attempts
		WHERE property_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, propertyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*payment.Attempt
	for rows.Next() {
		attempt, err := s.scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

func (s *PostgresStore) scanAttempt(row pgx.Row) (*payment.Attempt, error) {
	var a payment.Attempt
	var orderID, paymentID, bookingRef, errorKind, errorMsg *string
	var bookingJSON []byte

	err := row.Scan(
		&a.ID, &a.ReceiptID, &bookingJSON,
		&a.Amount.AmountMinor, &a.Amount.Currency, &a.Status,
		&orderID, &paymentID, &bookingRef, &errorKind, &errorMsg,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	if orderID != nil {
		a.OrderID = *orderID
	}
	if paymentID != nil {
		a.PaymentID = *paymentID
	}
	if bookingRef != nil {
		a.BookingRef = *bookingRef
	}
	if errorKind != nil {
		a.ErrorKind = payment.Kind(*errorKind)
	}
	if errorMsg != nil {
		a.ErrorMessage = *errorMsg
	}

	var bctx booking.Context
	json.Unmarshal(bookingJSON, &bctx)
	a.Booking = bctx

	return &a, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
