// Package backend is the HTTP client for the booking platform's order
// and validation endpoints.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"staypay/internal/common/money"
	"staypay/internal/payment"
)

// Config holds booking backend client configuration.
type Config struct {
	BaseURL string        `envconfig:"BACKEND_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"BACKEND_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"30s"`
}

// Client implements payment.OrderService and payment.ValidationService
// against the booking backend. All failures come back classified; raw
// transport errors never cross the package boundary.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

type createOrderPayload struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	ReceiptID   string `json:"receipt_id"`
	PropertyID  string `json:"property_id"`
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type validatePayload struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Signature  string `json:"signature"`
	PropertyID string `json:"property_id"`
}

type validateResponse struct {
	BookingRef string `json:"booking_ref"`
	Status     string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
}

func (e *apiError) text() string {
	if e != nil && e.Message != "" {
		return e.Message
	}
	return "backend request failed"
}

// CreateOrder registers a payment order for the attempt's exact amount.
// The backend's rejection message is surfaced verbatim so support can
// see the real reason, not a paraphrase.
func (c *Client) CreateOrder(ctx context.Context, req payment.CreateOrderRequest) (*payment.OrderHandle, error) {
	var (
		out    orderResponse
		outErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createOrderPayload{
			AmountMinor: req.Amount.AmountMinor,
			Currency:    string(req.Amount.Currency),
			ReceiptID:   req.ReceiptID,
			PropertyID:  req.Booking.PropertyID,
		}).
		SetResult(&out).
		SetError(&outErr).
		Post("/v1/orders")
	if err != nil {
		return nil, payment.NewError(payment.KindOrderCreation,
			fmt.Sprintf("order backend unreachable: %v", err), err)
	}
	if resp.IsError() {
		c.logger.Warn("order creation rejected",
			"receipt_id", req.ReceiptID,
			"status", resp.StatusCode(),
			"message", outErr.text(),
		)
		return nil, payment.NewError(payment.KindOrderCreation, outErr.text(), nil)
	}
	if out.OrderID == "" {
		return nil, payment.NewError(payment.KindOrderCreation, "backend returned order without an id", nil)
	}

	return &payment.OrderHandle{
		OrderID: out.OrderID,
		Amount:  money.New(out.AmountMinor, money.Currency(out.Currency)),
	}, nil
}

// Validate submits the gateway credentials for verification and booking
// finalization. Only an explicit backend rejection becomes a validation
// failure; a timeout or server-side error leaves the outcome ambiguous
// because the booking may already be finalized.
func (c *Client) Validate(ctx context.Context, req payment.ValidateRequest) (*payment.Confirmation, error) {
	var (
		out    validateResponse
		outErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(validatePayload{
			OrderID:    req.OrderID,
			PaymentID:  req.PaymentID,
			Signature:  req.Signature,
			PropertyID: req.Booking.PropertyID,
		}).
		SetResult(&out).
		SetError(&outErr).
		Post("/v1/payments/validate")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, payment.NewError(payment.KindAmbiguous,
				"validation timed out; the payment may have gone through", err)
		}
		return nil, payment.NewError(payment.KindAmbiguous,
			fmt.Sprintf("validation backend unreachable: %v", err), err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, payment.NewError(payment.KindAmbiguous,
			fmt.Sprintf("validation backend error (%d); the payment may have gone through", resp.StatusCode()), nil)
	}
	if resp.IsError() {
		c.logger.Warn("payment validation rejected",
			"order_id", req.OrderID,
			"payment_id", req.PaymentID,
			"status", resp.StatusCode(),
			"message", outErr.text(),
		)
		return nil, payment.NewError(payment.KindValidation, outErr.text(), nil)
	}
	if out.BookingRef == "" {
		return nil, payment.NewError(payment.KindAmbiguous,
			"validation succeeded without a booking reference", nil)
	}

	return &payment.Confirmation{
		BookingRef: out.BookingRef,
		Status:     out.Status,
	}, nil
}
