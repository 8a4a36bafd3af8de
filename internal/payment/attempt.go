// Package payment orchestrates the booking payment flow across the
// order backend, the external gateway, and the validation backend.
package payment

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"staypay/internal/booking"
	"staypay/internal/common/money"
)

// Status represents the stage of a payment attempt.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusCreatingOrder   Status = "creating_order"
	StatusAwaitingGateway Status = "awaiting_gateway"
	StatusValidating      Status = "validating"
	StatusSucceeded       Status = "succeeded"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Attempt is the orchestration's own record of one payment attempt.
// Exactly one exists per pay() invocation; a retry after failure or
// cancellation mints a new Attempt with a fresh receipt ID.
type Attempt struct {
	ID        string          `json:"id"`
	ReceiptID string          `json:"receipt_id"`
	Booking   booking.Context `json:"booking"`
	Amount    money.Money     `json:"amount"`
	Status    Status          `json:"status"`

	// Gateway linkage. The signature is forwarded to validation once and
	// never stored.
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`

	// Outcome
	BookingRef   string `json:"booking_ref,omitempty"`
	ErrorKind    Kind   `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAttempt creates an attempt in the order-creation stage with a
// freshly minted receipt ID.
func NewAttempt(bctx booking.Context, amount money.Money) (*Attempt, error) {
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	if err := bctx.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Attempt{
		ID:        ulid.Make().String(),
		ReceiptID: NewReceiptID(),
		Booking:   bctx,
		Amount:    amount,
		Status:    StatusCreatingOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewReceiptID mints a receipt identifier unique per attempt. ULIDs
// carry a millisecond timestamp plus 80 bits of randomness, so a
// retried order can never be conflated with a prior attempt.
func NewReceiptID() string {
	return "rcpt_" + ulid.Make().String()
}

// MarkAwaitingGateway records the server-issued order and moves the
// attempt to the gateway wait.
func (a *Attempt) MarkAwaitingGateway(orderID string) error {
	if a.Status != StatusCreatingOrder {
		return errors.New("can only await gateway from creating_order")
	}
	a.Status = StatusAwaitingGateway
	a.OrderID = orderID
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkValidating records the gateway payment ID and enters validation.
// Past this point the attempt can no longer be cancelled client-side.
func (a *Attempt) MarkValidating(paymentID string) error {
	if a.Status != StatusAwaitingGateway {
		return errors.New("can only validate from awaiting_gateway")
	}
	a.Status = StatusValidating
	a.PaymentID = paymentID
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSucceeded finalizes the attempt with the confirmed booking.
func (a *Attempt) MarkSucceeded(bookingRef string) error {
	if a.Status != StatusValidating {
		return errors.New("can only succeed from validating")
	}
	now := time.Now().UTC()
	a.Status = StatusSucceeded
	a.BookingRef = bookingRef
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// MarkFailed records a classified failure.
func (a *Attempt) MarkFailed(kind Kind, message string) error {
	if a.IsTerminal() {
		return errors.New("attempt already terminal")
	}
	now := time.Now().UTC()
	a.Status = StatusFailed
	a.ErrorKind = kind
	a.ErrorMessage = message
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// MarkCancelled records a user cancellation at the gateway wait.
func (a *Attempt) MarkCancelled() error {
	if a.Status != StatusAwaitingGateway {
		return errors.New("can only cancel from awaiting_gateway")
	}
	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// IsTerminal returns true if the attempt reached an end state.
func (a *Attempt) IsTerminal() bool {
	return a.Status == StatusSucceeded || a.Status == StatusFailed || a.Status == StatusCancelled
}
