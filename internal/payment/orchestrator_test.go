package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staypay/internal/common/money"
	"staypay/internal/pricing"
)

type stubOrders struct {
	mu       sync.Mutex
	receipts []string
	createFn func(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error)
}

func (s *stubOrders) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error) {
	s.mu.Lock()
	s.receipts = append(s.receipts, req.ReceiptID)
	s.mu.Unlock()
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return &OrderHandle{OrderID: "order_" + req.ReceiptID, Amount: req.Amount}, nil
}

type stubGateway struct {
	collectFn func(ctx context.Context, session *CheckoutSession) (*Credentials, error)
}

func (g *stubGateway) OpenCheckout(order *OrderHandle, prefill Prefill) (*CheckoutSession, error) {
	return &CheckoutSession{
		OrderID: order.OrderID,
		URL:     "https://checkout.test/" + order.OrderID,
		Amount:  order.Amount,
		Prefill: prefill,
	}, nil
}

func (g *stubGateway) Collect(ctx context.Context, session *CheckoutSession) (*Credentials, error) {
	if g.collectFn != nil {
		return g.collectFn(ctx, session)
	}
	return &Credentials{PaymentID: "pay_1", Signature: "sig_1"}, nil
}

type stubValidator struct {
	validateFn func(ctx context.Context, req ValidateRequest) (*Confirmation, error)
}

func (v *stubValidator) Validate(ctx context.Context, req ValidateRequest) (*Confirmation, error) {
	if v.validateFn != nil {
		return v.validateFn(ctx, req)
	}
	return &Confirmation{BookingRef: "bkng_99", Status: "confirmed"}, nil
}

type memStore struct {
	mu       sync.Mutex
	created  int
	statuses []Status
}

func (s *memStore) CreateAttempt(ctx context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return nil
}

func (s *memStore) UpdateAttempt(ctx context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, a.Status)
	return nil
}

func (s *memStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	return nil, errors.New("not found")
}

func (s *memStore) lastStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

type memPublisher struct {
	mu    sync.Mutex
	types []EventType
}

func (p *memPublisher) Publish(ctx context.Context, subject string, env *Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, env.Type)
	return nil
}

func (p *memPublisher) events() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EventType(nil), p.types...)
}

func newTestOrchestrator(orders OrderService, gw GatewayAdapter, val ValidationService) (*Orchestrator, *memStore, *memPublisher) {
	store := &memStore{}
	publisher := &memPublisher{}
	orch := NewOrchestrator(
		Config{Currency: money.INR, OrderTimeout: 5 * time.Second, ValidationTimeout: 5 * time.Second},
		pricing.NewCalculator(pricing.Config{PlatformFeeBps: 500, GSTBps: 1800}),
		orders, gw, val, store, publisher,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return orch, store, publisher
}

func TestPaySuccess(t *testing.T) {
	orch, store, publisher := newTestOrchestrator(&stubOrders{}, &stubGateway{}, &stubValidator{})

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, snap.Status)
	assert.Equal(t, "bkng_99", snap.BookingRef)
	assert.False(t, snap.Processing)
	assert.Equal(t, int64(100000), snap.Amount.AmountMinor)
	require.NotNil(t, snap.Breakdown)
	assert.Equal(t, int64(5000), snap.Breakdown.PlatformFee.AmountMinor)

	assert.Equal(t, 1, store.created)
	assert.Equal(t, StatusSucceeded, store.lastStatus())
	assert.Equal(t, []EventType{EventAttemptCreated, EventAttemptSucceeded}, publisher.events())
}

func TestPayOrderCreationFailureKeepsBackendMessage(t *testing.T) {
	orders := &stubOrders{createFn: func(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error) {
		return nil, NewError(KindOrderCreation, "property not open for bookings", nil)
	}}
	orch, store, publisher := newTestOrchestrator(orders, &stubGateway{}, &stubValidator{})

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	assert.Equal(t, KindOrderCreation, KindOf(err))
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "property not open for bookings", snap.LastErrorMessage)
	assert.True(t, Retryable(snap.LastErrorKind))
	assert.Equal(t, StatusFailed, store.lastStatus())
	assert.Equal(t, []EventType{EventAttemptCreated, EventAttemptFailed}, publisher.events())
}

func TestPayRejectsOrderAmountMismatch(t *testing.T) {
	orders := &stubOrders{createFn: func(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error) {
		return &OrderHandle{OrderID: "order_1", Amount: money.New(req.Amount.AmountMinor+1, req.Amount.Currency)}, nil
	}}
	orch, _, _ := newTestOrchestrator(orders, &stubGateway{}, &stubValidator{})

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	assert.Equal(t, KindOrderCreation, KindOf(err))
	assert.Equal(t, StatusFailed, snap.Status)
}

func TestPayIncompleteGatewayCredentials(t *testing.T) {
	gw := &stubGateway{collectFn: func(ctx context.Context, session *CheckoutSession) (*Credentials, error) {
		return &Credentials{PaymentID: "pay_1"}, nil
	}}
	orch, _, _ := newTestOrchestrator(&stubOrders{}, gw, &stubValidator{})

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	assert.Equal(t, KindGateway, KindOf(err))
	assert.Equal(t, StatusFailed, snap.Status)
}

func TestPayValidationRejected(t *testing.T) {
	val := &stubValidator{validateFn: func(ctx context.Context, req ValidateRequest) (*Confirmation, error) {
		return nil, NewError(KindValidation, "signature mismatch", nil)
	}}
	orch, _, _ := newTestOrchestrator(&stubOrders{}, &stubGateway{}, val)

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "signature mismatch", snap.LastErrorMessage)
	assert.False(t, snap.PayDisabled)
}

func TestPayValidationTimeoutLatchesAmbiguous(t *testing.T) {
	val := &stubValidator{validateFn: func(ctx context.Context, req ValidateRequest) (*Confirmation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	orch, _, publisher := newTestOrchestrator(&stubOrders{}, &stubGateway{}, val)
	orch.cfg.ValidationTimeout = 20 * time.Millisecond

	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	assert.Equal(t, KindAmbiguous, KindOf(err))
	assert.Equal(t, StatusFailed, snap.Status)
	assert.True(t, snap.PayDisabled)
	assert.False(t, Retryable(snap.LastErrorKind))
	assert.Equal(t, []EventType{EventAttemptCreated, EventAttemptAmbiguous}, publisher.events())

	// Latched until the user confirms booking status out of band.
	_, err = orch.Begin(context.Background(), testBooking(), money.New(100000, money.INR))
	require.ErrorIs(t, err, ErrPendingReview)

	require.NoError(t, orch.Acknowledge())
	require.Error(t, orch.Acknowledge())

	orch.cfg.ValidationTimeout = 5 * time.Second
	val.validateFn = nil
	snap, err = orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, snap.Status)
}

func TestCancelDuringGatewayWait(t *testing.T) {
	gw := &stubGateway{collectFn: func(ctx context.Context, session *CheckoutSession) (*Credentials, error) {
		<-ctx.Done()
		return nil, ErrUserCancelled
	}}
	orch, store, publisher := newTestOrchestrator(&stubOrders{}, gw, &stubValidator{})

	require.Error(t, orch.Cancel())

	var (
		snap *Snapshot
		err  error
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		snap, err = orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	}()

	require.Eventually(t, func() bool {
		return orch.Snapshot().Status == StatusAwaitingGateway
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, orch.Cancel())
	<-done

	require.NoError(t, err, "user cancellation is an outcome, not a failure")
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Empty(t, snap.LastErrorKind)
	assert.Equal(t, StatusCancelled, store.lastStatus())
	assert.Equal(t, []EventType{EventAttemptCreated, EventAttemptCancelled}, publisher.events())

	require.Error(t, orch.Cancel())
}

func TestBeginRejectsConcurrentAttempt(t *testing.T) {
	gw := &stubGateway{collectFn: func(ctx context.Context, session *CheckoutSession) (*Credentials, error) {
		<-ctx.Done()
		return nil, ErrUserCancelled
	}}
	orch, _, _ := newTestOrchestrator(&stubOrders{}, gw, &stubValidator{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	}()

	require.Eventually(t, func() bool {
		return orch.Snapshot().Status == StatusAwaitingGateway
	}, time.Second, 5*time.Millisecond)

	_, err := orch.Begin(context.Background(), testBooking(), money.New(100000, money.INR))
	require.ErrorIs(t, err, ErrAttemptInFlight)

	require.NoError(t, orch.Cancel())
	<-done
}

func TestRetryMintsFreshReceipt(t *testing.T) {
	fail := true
	orders := &stubOrders{}
	orders.createFn = func(ctx context.Context, req CreateOrderRequest) (*OrderHandle, error) {
		if fail {
			return nil, NewError(KindOrderCreation, "temporarily unavailable", nil)
		}
		return &OrderHandle{OrderID: "order_2", Amount: req.Amount}, nil
	}
	orch, _, _ := newTestOrchestrator(orders, &stubGateway{}, &stubValidator{})

	_, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.Error(t, err)

	fail = false
	snap, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, snap.Status)

	require.Len(t, orders.receipts, 2)
	assert.NotEqual(t, orders.receipts[0], orders.receipts[1])
}

func TestPayAfterSuccessRejected(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&stubOrders{}, &stubGateway{}, &stubValidator{})

	_, err := orch.Pay(context.Background(), testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	_, err = orch.Begin(context.Background(), testBooking(), money.New(100000, money.INR))
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestBeginRejectsWrongCurrency(t *testing.T) {
	orch, _, _ := newTestOrchestrator(&stubOrders{}, &stubGateway{}, &stubValidator{})

	_, err := orch.Begin(context.Background(), testBooking(), money.New(100, money.USD))
	require.Error(t, err)
	assert.Equal(t, StatusIdle, orch.Snapshot().Status)
}
