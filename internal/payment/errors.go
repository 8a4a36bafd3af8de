package payment

import (
	"errors"
	"fmt"
)

// Kind classifies a payment failure. Every error crossing a component
// boundary is normalized into one of these; raw transport errors never
// reach the caller.
type Kind string

const (
	// KindOrderCreation covers backend rejection or unreachability while
	// creating the payment order. Retryable with a fresh receipt.
	KindOrderCreation Kind = "ORDER_CREATION"

	// KindGateway covers gateway-side or transport failures during
	// collection, including protocol-violating responses. Retryable.
	KindGateway Kind = "GATEWAY"

	// KindValidation covers explicit backend rejection of the payment
	// credentials (bad signature, already-used order, business rule).
	KindValidation Kind = "VALIDATION"

	// KindAmbiguous marks a validation attempt with no definite answer:
	// the payment may have succeeded server-side. Never auto-retried;
	// the user must confirm booking status before paying again.
	KindAmbiguous Kind = "AMBIGUOUS_OUTCOME"
)

// Error is a classified payment failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified payment error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind from an error, or "" if the error is
// not a classified payment error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether a fresh pay() after this failure is safe
// without out-of-band checks. Ambiguous outcomes are not: retrying
// could double-charge a payment that already went through.
func Retryable(kind Kind) bool {
	return kind == KindOrderCreation || kind == KindGateway || kind == KindValidation
}

// Sentinel conditions that are not payment failures.
var (
	// ErrUserCancelled is returned by the gateway when the user backs
	// out of the checkout. A first-class outcome, not an error state.
	ErrUserCancelled = errors.New("payment cancelled by user")

	// ErrInvalidGatewayResponse marks a gateway success callback missing
	// payment credentials. A protocol defect, surfaced as a gateway
	// failure rather than a cancellation.
	ErrInvalidGatewayResponse = errors.New("gateway returned incomplete payment credentials")

	// ErrAttemptInFlight rejects a pay() while another attempt is
	// between CreatingOrder and a terminal state.
	ErrAttemptInFlight = errors.New("a payment attempt is already in progress")

	// ErrAlreadyPaid rejects a pay() after a succeeded attempt.
	ErrAlreadyPaid = errors.New("payment already completed")

	// ErrPendingReview rejects a pay() while an ambiguous outcome is
	// unacknowledged.
	ErrPendingReview = errors.New("previous attempt is unresolved; confirm booking status before retrying")

	// ErrNotCancellable rejects a cancel() outside the gateway wait.
	ErrNotCancellable = errors.New("attempt is not at a cancellable stage")
)
