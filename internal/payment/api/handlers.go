// Package api exposes the payment flow over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"staypay/internal/booking"
	"staypay/internal/common/api"
	"staypay/internal/common/database"
	"staypay/internal/common/money"
	"staypay/internal/payment"
	"staypay/internal/payment/gateway"
)

// OrchestratorFactory builds a fresh orchestrator for a new checkout
// session.
type OrchestratorFactory func() *payment.Orchestrator

// Handler handles payment HTTP requests. Each checkout session owns one
// orchestrator; the session ID comes from the booking client and keys
// the in-flight guard.
type Handler struct {
	runCtx   context.Context
	factory  OrchestratorFactory
	registry *gateway.CompletionRegistry
	store    payment.Store
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*payment.Orchestrator
}

// NewHandler creates a new payment handler. runCtx bounds the lifetime
// of background attempt execution; it should be the application context,
// not a request context.
func NewHandler(runCtx context.Context, factory OrchestratorFactory, registry *gateway.CompletionRegistry, store payment.Store, logger *slog.Logger) *Handler {
	return &Handler{
		runCtx:   runCtx,
		factory:  factory,
		registry: registry,
		store:    store,
		logger:   logger,
		sessions: make(map[string]*payment.Orchestrator),
	}
}

// Routes returns the payment routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/payments", h.StartPayment)
	r.Get("/payments/{sessionID}", h.GetPayment)
	r.Post("/payments/{sessionID}/cancel", h.CancelPayment)
	r.Post("/payments/{sessionID}/ack", h.AcknowledgeOutcome)
	r.Get("/attempts/{id}", h.GetAttempt)

	r.Post("/gateway/callback", h.GatewayCallback)

	return r
}

// StartPaymentRequest is the API request for starting a payment attempt
type StartPaymentRequest struct {
	SessionID string          `json:"session_id" validate:"required,max=64"`
	RateMinor int64           `json:"rate_minor" validate:"required,gt=0"`
	Currency  string          `json:"currency" validate:"required,len=3"`
	Booking   booking.Context `json:"booking" validate:"required"`
}

// StartPayment handles POST /payments
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req StartPaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	orch := h.session(req.SessionID)
	rate := money.New(req.RateMinor, money.Currency(req.Currency))

	snap, err := orch.Begin(r.Context(), req.Booking, rate)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrAttemptInFlight),
			errors.Is(err, payment.ErrAlreadyPaid),
			errors.Is(err, payment.ErrPendingReview):
			api.Conflict(w, err.Error())
		default:
			api.BadRequest(w, err.Error())
		}
		return
	}

	go func() {
		// Outcome is recorded on the orchestrator and in the store; the
		// caller polls GET /payments/{sessionID}.
		_, _ = orch.Run(h.runCtx)
	}()

	api.WriteData(w, http.StatusAccepted, snap)
}

// GetPayment handles GET /payments/{sessionID}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	orch := h.lookup(chi.URLParam(r, "sessionID"))
	if orch == nil {
		api.NotFound(w, "unknown payment session")
		return
	}
	api.WriteData(w, http.StatusOK, orch.Snapshot())
}

// CancelPayment handles POST /payments/{sessionID}/cancel
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	orch := h.lookup(chi.URLParam(r, "sessionID"))
	if orch == nil {
		api.NotFound(w, "unknown payment session")
		return
	}
	if err := orch.Cancel(); err != nil {
		api.Conflict(w, err.Error())
		return
	}
	api.WriteData(w, http.StatusAccepted, orch.Snapshot())
}

// AcknowledgeOutcome handles POST /payments/{sessionID}/ack
func (h *Handler) AcknowledgeOutcome(w http.ResponseWriter, r *http.Request) {
	orch := h.lookup(chi.URLParam(r, "sessionID"))
	if orch == nil {
		api.NotFound(w, "unknown payment session")
		return
	}
	if err := orch.Acknowledge(); err != nil {
		api.Conflict(w, err.Error())
		return
	}
	api.WriteData(w, http.StatusOK, orch.Snapshot())
}

// GetAttempt handles GET /attempts/{id}
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		api.NotFound(w, "attempt storage not configured")
		return
	}
	attempt, err := h.store.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "attempt not found")
			return
		}
		h.logger.Error("failed to load attempt", "error", err)
		api.InternalError(w, "failed to load attempt")
		return
	}
	api.WriteData(w, http.StatusOK, attempt)
}

// GatewayCallbackRequest is the gateway's checkout completion report
type GatewayCallbackRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=success cancelled failed"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// GatewayCallback handles POST /gateway/callback
func (h *Handler) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	var req GatewayCallbackRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	var outcome gateway.Outcome
	switch req.Status {
	case "success":
		outcome.Credentials = &payment.Credentials{
			PaymentID: req.PaymentID,
			Signature: req.Signature,
		}
	case "cancelled":
		outcome.Cancelled = true
	case "failed":
		msg := req.Error
		if msg == "" {
			msg = "gateway reported a failed checkout"
		}
		outcome.Err = payment.NewError(payment.KindGateway, msg, nil)
	}

	if err := h.registry.Resolve(req.OrderID, outcome); err != nil {
		api.NotFound(w, err.Error())
		return
	}
	api.WriteData(w, http.StatusOK, map[string]string{"order_id": req.OrderID, "resolved": req.Status})
}

func (h *Handler) session(sessionID string) *payment.Orchestrator {
	h.mu.Lock()
	defer h.mu.Unlock()

	if orch, ok := h.sessions[sessionID]; ok {
		return orch
	}
	orch := h.factory()
	h.sessions[sessionID] = orch
	return orch
}

func (h *Handler) lookup(sessionID string) *payment.Orchestrator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[sessionID]
}
