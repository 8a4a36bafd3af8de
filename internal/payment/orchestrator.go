package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"staypay/internal/booking"
	"staypay/internal/common/money"
	"staypay/internal/pricing"
)

// Config holds orchestrator configuration.
type Config struct {
	Currency          money.Currency `envconfig:"PAYMENT_CURRENCY" default:"INR"`
	OrderTimeout      time.Duration  `envconfig:"PAYMENT_ORDER_TIMEOUT" default:"15s"`
	ValidationTimeout time.Duration  `envconfig:"PAYMENT_VALIDATION_TIMEOUT" default:"30s"`
}

// Snapshot is the read-only view of the orchestrator the UI collaborator
// polls. It never exposes the state machine for mutation.
type Snapshot struct {
	AttemptID        string             `json:"attempt_id,omitempty"`
	Status           Status             `json:"status"`
	Processing       bool               `json:"processing"`
	ReceiptID        string             `json:"receipt_id,omitempty"`
	OrderID          string             `json:"order_id,omitempty"`
	Amount           money.Money        `json:"amount"`
	AmountDisplay    string             `json:"amount_display,omitempty"`
	Breakdown        *pricing.Breakdown `json:"breakdown,omitempty"`
	CheckoutURL      string             `json:"checkout_url,omitempty"`
	BookingRef       string             `json:"booking_ref,omitempty"`
	LastErrorKind    Kind               `json:"last_error_kind,omitempty"`
	LastErrorMessage string             `json:"last_error_message,omitempty"`
	PayDisabled      bool               `json:"pay_disabled"`
}

// Orchestrator drives one booking payment through order creation,
// gateway collection, and validation. At most one attempt is in flight
// per instance at any time; failed and cancelled attempts can be
// retried with a fresh receipt ID via another Pay.
type Orchestrator struct {
	cfg       Config
	calc      *pricing.Calculator
	orders    OrderService
	gateway   GatewayAdapter
	validator ValidationService
	store     Store
	publisher Publisher
	logger    *slog.Logger

	mu            sync.Mutex
	status        Status
	attempt       *Attempt
	breakdown     *pricing.Breakdown
	session       *CheckoutSession
	cancelCollect context.CancelFunc
	latched       bool
	usedReceipts  map[string]struct{}
}

// NewOrchestrator creates a payment orchestrator. Store and publisher
// may be nil for embedded/library use; all other collaborators are
// required.
func NewOrchestrator(
	cfg Config,
	calc *pricing.Calculator,
	orders OrderService,
	gateway GatewayAdapter,
	validator ValidationService,
	store Store,
	publisher Publisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		calc:         calc,
		orders:       orders,
		gateway:      gateway,
		validator:    validator,
		store:        store,
		publisher:    publisher,
		logger:       logger,
		status:       StatusIdle,
		usedReceipts: make(map[string]struct{}),
	}
}

// Pay runs a full payment attempt for the booking: pricing, order
// creation, gateway collection, validation. It blocks until a terminal
// state. The returned error is nil for success and user cancellation;
// failures return the classified *Error alongside the final snapshot.
func (o *Orchestrator) Pay(ctx context.Context, bctx booking.Context, ratePerUnit money.Money) (*Snapshot, error) {
	if _, err := o.Begin(ctx, bctx, ratePerUnit); err != nil {
		return nil, err
	}
	return o.Run(ctx)
}

// Begin guards and registers a new attempt, leaving the orchestrator in
// the order-creation stage. Run must be called afterwards to execute
// the flow; splitting the two lets an HTTP handler return the attempt
// ID immediately and run the I/O asynchronously.
func (o *Orchestrator) Begin(ctx context.Context, bctx booking.Context, ratePerUnit money.Money) (*Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.latched {
		return nil, ErrPendingReview
	}
	switch o.status {
	case StatusIdle, StatusFailed, StatusCancelled:
		// re-enterable
	case StatusSucceeded:
		return nil, ErrAlreadyPaid
	default:
		return nil, ErrAttemptInFlight
	}

	if ratePerUnit.Currency != o.cfg.Currency {
		return nil, fmt.Errorf("unsupported currency %s, platform charges in %s", ratePerUnit.Currency, o.cfg.Currency)
	}
	if !ratePerUnit.IsPositive() {
		return nil, errors.New("rate must be positive")
	}

	breakdown := o.calc.Compute(ratePerUnit)

	attempt, err := NewAttempt(bctx, breakdown.TotalPayment)
	if err != nil {
		return nil, err
	}
	for {
		if _, used := o.usedReceipts[attempt.ReceiptID]; !used {
			break
		}
		attempt.ReceiptID = NewReceiptID()
	}
	o.usedReceipts[attempt.ReceiptID] = struct{}{}

	o.attempt = attempt
	o.breakdown = &breakdown
	o.session = nil
	o.status = StatusCreatingOrder

	if o.store != nil {
		if err := o.store.CreateAttempt(ctx, attempt); err != nil {
			o.logger.Error("failed to store payment attempt", "attempt_id", attempt.ID, "error", err)
		}
	}
	o.publish(ctx, EventAttemptCreated, attempt.ID, &AttemptCreatedEvent{
		AttemptID:  attempt.ID,
		ReceiptID:  attempt.ReceiptID,
		PropertyID: bctx.PropertyID,
		Amount:     attempt.Amount,
	})

	o.logger.Info("payment attempt started",
		"attempt_id", attempt.ID,
		"receipt_id", attempt.ReceiptID,
		"property_id", bctx.PropertyID,
		"amount", attempt.Amount.AmountMinor,
		"currency", attempt.Amount.Currency,
	)

	return o.snapshotLocked(), nil
}

// Run executes a begun attempt to a terminal state.
func (o *Orchestrator) Run(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	if o.attempt == nil || o.status != StatusCreatingOrder {
		o.mu.Unlock()
		return nil, errors.New("no attempt pending execution")
	}
	attempt := o.attempt
	o.mu.Unlock()

	// Step 1: create the order server-side.
	orderCtx, cancelOrder := context.WithTimeout(ctx, o.cfg.OrderTimeout)
	order, err := o.orders.CreateOrder(orderCtx, CreateOrderRequest{
		Amount:    attempt.Amount,
		ReceiptID: attempt.ReceiptID,
		Booking:   attempt.Booking,
	})
	cancelOrder()
	if err != nil {
		return o.fail(ctx, classify(err, KindOrderCreation))
	}
	if !order.Amount.Equal(attempt.Amount) {
		// The order amount is the single source of truth; a divergent
		// backend response must never reach the gateway.
		return o.fail(ctx, NewError(KindOrderCreation,
			fmt.Sprintf("order amount %s does not match requested %s", order.Amount, attempt.Amount), nil))
	}

	// Step 2: open the gateway surface and wait for the user.
	session, err := o.gateway.OpenCheckout(order, prefillFrom(attempt.Booking))
	if err != nil {
		return o.fail(ctx, classify(err, KindGateway))
	}

	o.mu.Lock()
	if err := attempt.MarkAwaitingGateway(order.OrderID); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, NewError(KindGateway, err.Error(), err))
	}
	o.status = StatusAwaitingGateway
	o.session = session
	collectCtx, cancelCollect := context.WithCancel(ctx)
	o.cancelCollect = cancelCollect
	o.mu.Unlock()
	o.persist(ctx, attempt)

	creds, err := o.gateway.Collect(collectCtx, session)
	o.mu.Lock()
	o.cancelCollect = nil
	o.mu.Unlock()
	cancelCollect()

	if err != nil {
		switch {
		case errors.Is(err, ErrUserCancelled), errors.Is(err, context.Canceled):
			return o.cancelled(ctx)
		case errors.Is(err, ErrInvalidGatewayResponse):
			return o.fail(ctx, NewError(KindGateway, err.Error(), err))
		default:
			return o.fail(ctx, classify(err, KindGateway))
		}
	}
	if creds == nil || creds.PaymentID == "" || creds.Signature == "" {
		return o.fail(ctx, NewError(KindGateway, ErrInvalidGatewayResponse.Error(), ErrInvalidGatewayResponse))
	}

	// Step 3: validate credentials and finalize the booking. Past this
	// point the attempt cannot be cancelled client-side.
	o.mu.Lock()
	if err := attempt.MarkValidating(creds.PaymentID); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, NewError(KindValidation, err.Error(), err))
	}
	o.status = StatusValidating
	o.mu.Unlock()
	o.persist(ctx, attempt)

	valCtx, cancelVal := context.WithTimeout(ctx, o.cfg.ValidationTimeout)
	conf, err := o.validator.Validate(valCtx, ValidateRequest{
		OrderID:   order.OrderID,
		PaymentID: creds.PaymentID,
		Signature: creds.Signature,
		Booking:   attempt.Booking,
	})
	cancelVal()
	if err != nil {
		pe := classify(err, KindValidation)
		if errors.Is(err, context.DeadlineExceeded) {
			pe = NewError(KindAmbiguous,
				"no response from validation; the payment may have gone through. Check booking history before retrying", err)
		}
		return o.fail(ctx, pe)
	}

	o.mu.Lock()
	if err := attempt.MarkSucceeded(conf.BookingRef); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, NewError(KindValidation, err.Error(), err))
	}
	o.status = StatusSucceeded
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.persist(ctx, attempt)
	o.publishFinished(ctx, attempt, EventAttemptSucceeded)

	o.logger.Info("payment attempt succeeded",
		"attempt_id", attempt.ID,
		"order_id", attempt.OrderID,
		"booking_ref", attempt.BookingRef,
	)

	return snap, nil
}

// Cancel aborts the gateway wait. Only effective while the attempt is
// at AwaitingGateway; order creation and validation run to completion.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status != StatusAwaitingGateway || o.cancelCollect == nil {
		return ErrNotCancellable
	}
	o.cancelCollect()
	return nil
}

// Acknowledge re-arms pay after an ambiguous outcome, once the user has
// confirmed booking status out of band.
func (o *Orchestrator) Acknowledge() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.latched {
		return errors.New("no unresolved outcome to acknowledge")
	}
	o.latched = false
	return nil
}

// Snapshot returns the current read-only view.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		Status:      o.status,
		Processing:  o.status == StatusCreatingOrder || o.status == StatusAwaitingGateway || o.status == StatusValidating,
		PayDisabled: o.latched,
	}
	if o.attempt != nil {
		snap.AttemptID = o.attempt.ID
		snap.ReceiptID = o.attempt.ReceiptID
		snap.OrderID = o.attempt.OrderID
		snap.Amount = o.attempt.Amount
		snap.AmountDisplay = o.attempt.Amount.String()
		snap.BookingRef = o.attempt.BookingRef
		snap.LastErrorKind = o.attempt.ErrorKind
		snap.LastErrorMessage = o.attempt.ErrorMessage
	}
	if o.breakdown != nil {
		b := *o.breakdown
		snap.Breakdown = &b
	}
	if o.session != nil {
		snap.CheckoutURL = o.session.URL
	}
	return snap
}

func (o *Orchestrator) fail(ctx context.Context, pe *Error) (*Snapshot, error) {
	o.mu.Lock()
	attempt := o.attempt
	if err := attempt.MarkFailed(pe.Kind, pe.Message); err != nil {
		o.logger.Error("failed to mark attempt failed", "attempt_id", attempt.ID, "error", err)
	}
	o.status = StatusFailed
	if pe.Kind == KindAmbiguous {
		o.latched = true
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.persist(ctx, attempt)
	eventType := EventAttemptFailed
	if pe.Kind == KindAmbiguous {
		eventType = EventAttemptAmbiguous
	}
	o.publishFinished(ctx, attempt, eventType)

	o.logger.Warn("payment attempt failed",
		"attempt_id", attempt.ID,
		"receipt_id", attempt.ReceiptID,
		"kind", pe.Kind,
		"message", pe.Message,
	)

	return snap, pe
}

func (o *Orchestrator) cancelled(ctx context.Context) (*Snapshot, error) {
	o.mu.Lock()
	attempt := o.attempt
	if err := attempt.MarkCancelled(); err != nil {
		o.logger.Error("failed to mark attempt cancelled", "attempt_id", attempt.ID, "error", err)
	}
	o.status = StatusCancelled
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.persist(ctx, attempt)
	o.publishFinished(ctx, attempt, EventAttemptCancelled)

	o.logger.Info("payment attempt cancelled by user",
		"attempt_id", attempt.ID,
		"order_id", attempt.OrderID,
	)

	return snap, nil
}

// persist writes the attempt even when ctx was cancelled mid-flow, so
// terminal states always reach the store.
func (o *Orchestrator) persist(ctx context.Context, attempt *Attempt) {
	if o.store == nil {
		return
	}
	if err := o.store.UpdateAttempt(context.WithoutCancel(ctx), attempt); err != nil {
		o.logger.Error("failed to update payment attempt", "attempt_id", attempt.ID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType EventType, correlationID string, data any) {
	if o.publisher == nil {
		return
	}
	env, err := NewEnvelope(eventType, correlationID, data)
	if err != nil {
		return
	}
	subject := SubjectAttemptCreated
	if eventType != EventAttemptCreated {
		subject = SubjectAttemptFinished
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), subject, env); err != nil {
		o.logger.Error("failed to publish payment event", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) publishFinished(ctx context.Context, attempt *Attempt, eventType EventType) {
	o.publish(ctx, eventType, attempt.ID, &AttemptFinishedEvent{
		AttemptID:    attempt.ID,
		ReceiptID:    attempt.ReceiptID,
		OrderID:      attempt.OrderID,
		Status:       attempt.Status,
		Amount:       attempt.Amount,
		BookingRef:   attempt.BookingRef,
		ErrorKind:    attempt.ErrorKind,
		ErrorMessage: attempt.ErrorMessage,
		CompletedAt:  attempt.CompletedAt,
	})
}

func classify(err error, fallback Kind) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return NewError(fallback, err.Error(), err)
}

func prefillFrom(bctx booking.Context) Prefill {
	return Prefill{
		Name:    bctx.PrimaryContact.Name,
		Email:   bctx.PrimaryContact.Email,
		Contact: bctx.PrimaryContact.Phone,
	}
}
