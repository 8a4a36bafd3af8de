package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"staypay/internal/payment"
)

// Config holds gateway checkout configuration.
type Config struct {
	KeyID           string `envconfig:"GATEWAY_KEY_ID" required:"true"`
	CheckoutBaseURL string `envconfig:"GATEWAY_CHECKOUT_URL" default:"https://checkout.gateway.example/v1/pay"`
	ThemeColor      string `envconfig:"GATEWAY_THEME_COLOR" default:"#F83254"`
}

// Adapter implements payment.GatewayAdapter against a hosted checkout
// page. OpenCheckout builds the session URL and registers a completion
// waiter; the gateway calls back through the registry when the user
// finishes or abandons the page.
type Adapter struct {
	cfg      Config
	registry *CompletionRegistry
	logger   *slog.Logger
}

func NewAdapter(cfg Config, registry *CompletionRegistry, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
}

// OpenCheckout binds a checkout session to the order. No gateway I/O
// happens here; the hosted page is parameterized entirely through the
// URL.
func (a *Adapter) OpenCheckout(order *payment.OrderHandle, prefill payment.Prefill) (*payment.CheckoutSession, error) {
	if order == nil || order.OrderID == "" {
		return nil, fmt.Errorf("checkout requires a server-issued order")
	}

	q := url.Values{}
	q.Set("key_id", a.cfg.KeyID)
	q.Set("order_id", order.OrderID)
	q.Set("amount", fmt.Sprintf("%d", order.Amount.AmountMinor))
	q.Set("currency", string(order.Amount.Currency))
	q.Set("theme", a.cfg.ThemeColor)
	if prefill.Name != "" {
		q.Set("prefill_name", prefill.Name)
	}
	if prefill.Email != "" {
		q.Set("prefill_email", prefill.Email)
	}
	if prefill.Contact != "" {
		q.Set("prefill_contact", prefill.Contact)
	}

	return &payment.CheckoutSession{
		OrderID:    order.OrderID,
		URL:        a.cfg.CheckoutBaseURL + "?" + q.Encode(),
		Amount:     order.Amount,
		Prefill:    prefill,
		ThemeColor: a.cfg.ThemeColor,
	}, nil
}

// Collect blocks until the checkout resolves. Cancelling ctx abandons
// the wait and reports a user cancellation.
func (a *Adapter) Collect(ctx context.Context, session *payment.CheckoutSession) (*payment.Credentials, error) {
	ch, err := a.registry.Register(session.OrderID)
	if err != nil {
		return nil, err
	}

	a.logger.Info("awaiting gateway checkout", "order_id", session.OrderID)

	select {
	case <-ctx.Done():
		a.registry.Drop(session.OrderID)
		return nil, payment.ErrUserCancelled
	case outcome := <-ch:
		switch {
		case outcome.Cancelled:
			return nil, payment.ErrUserCancelled
		case outcome.Err != nil:
			return nil, outcome.Err
		case outcome.Credentials == nil || outcome.Credentials.PaymentID == "" || outcome.Credentials.Signature == "":
			return nil, payment.ErrInvalidGatewayResponse
		default:
			return outcome.Credentials, nil
		}
	}
}
