package payment

import (
	"context"

	"staypay/internal/booking"
	"staypay/internal/common/money"
)

// OrderHandle is the server-issued order the gateway collects against.
type OrderHandle struct {
	OrderID string      `json:"order_id"`
	Amount  money.Money `json:"amount"`
}

// Credentials are returned by the gateway on a successful collection.
// They are forwarded once to validation and then discarded.
type Credentials struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// Prefill carries customer details into the gateway checkout surface.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CheckoutSession is the user-facing collection surface bound to an
// order. The UI collaborator opens URL; the outcome arrives through the
// gateway callback.
type CheckoutSession struct {
	OrderID    string      `json:"order_id"`
	URL        string      `json:"url"`
	Amount     money.Money `json:"amount"`
	Prefill    Prefill     `json:"prefill"`
	ThemeColor string      `json:"theme_color"`
}

// Confirmation is the validation backend's answer for a verified
// payment.
type Confirmation struct {
	BookingRef string `json:"booking_ref"`
	Status     string `json:"status"`
}

// CreateOrderRequest is the input to order creation. The amount is the
// single source of truth, always in integer minor units.
type CreateOrderRequest struct {
	Amount    money.Money
	ReceiptID string
	Booking   booking.Context
}

// ValidateRequest submits gateway credentials plus the original booking
// context for cryptographic verification and booking finalization.
type ValidateRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Booking   booking.Context
}

// OrderService creates payment orders on the booking backend.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error)
}

// GatewayAdapter opens the external payment collection surface and
// resolves it with credentials, a user cancellation, or a gateway
// failure. Collect may take unbounded wall-clock time; cancelling ctx
// abandons the wait.
type GatewayAdapter interface {
	OpenCheckout(order *OrderHandle, prefill Prefill) (*CheckoutSession, error)
	Collect(ctx context.Context, session *CheckoutSession) (*Credentials, error)
}

// ValidationService verifies credentials and finalizes the booking.
// This is the only step with exactly-once financial consequence.
type ValidationService interface {
	Validate(ctx context.Context, req ValidateRequest) (*Confirmation, error)
}

// Store persists payment attempts for support and reconciliation.
type Store interface {
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	UpdateAttempt(ctx context.Context, attempt *Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (*Attempt, error)
}

// Publisher publishes attempt lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, subject string, env *Envelope) error
}
