package payment

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"staypay/internal/common/money"
)

// NATS subjects for payment attempt events
const (
	SubjectAttemptCreated  = "payments.attempt.created"
	SubjectAttemptFinished = "payments.attempt.finished"
)

// EventType identifies the type of payment event.
type EventType string

const (
	EventAttemptCreated   EventType = "payments.attempt.created"
	EventAttemptSucceeded EventType = "payments.attempt.succeeded"
	EventAttemptFailed    EventType = "payments.attempt.failed"
	EventAttemptCancelled EventType = "payments.attempt.cancelled"
	EventAttemptAmbiguous EventType = "payments.attempt.ambiguous"
)

// Envelope wraps all payment events with common metadata.
type Envelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(eventType EventType, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// AttemptCreatedEvent is published when a payment attempt starts.
type AttemptCreatedEvent struct {
	AttemptID  string      `json:"attempt_id"`
	ReceiptID  string      `json:"receipt_id"`
	PropertyID string      `json:"property_id"`
	Amount     money.Money `json:"amount"`
}

// AttemptFinishedEvent is published when an attempt reaches a terminal
// state.
type AttemptFinishedEvent struct {
	AttemptID    string      `json:"attempt_id"`
	ReceiptID    string      `json:"receipt_id"`
	OrderID      string      `json:"order_id,omitempty"`
	Status       Status      `json:"status"`
	Amount       money.Money `json:"amount"`
	BookingRef   string      `json:"booking_ref,omitempty"`
	ErrorKind    Kind        `json:"error_kind,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}
