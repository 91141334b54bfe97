// Package payments creates Stripe payment intents for card and upi
// checkouts. Amounts are already in minor currency units end to end.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/client"
)

// ErrDisabled means no Stripe key is configured. Card and upi checkouts
// then report offline payment collection; cash is unaffected.
var ErrDisabled = errors.New("payments: no api key configured")

// Intent is the slice of a Stripe payment intent the gateway reports.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// IntentRequest describes one payment to collect.
type IntentRequest struct {
	Amount   int64
	Currency string
	Method   string // card or upi
	Metadata map[string]string
}

// Client wraps the Stripe API for payment-intent creation.
type Client struct {
	apiKey   string
	backends *stripe.Backends
	api      *client.API
}

type Option func(*Client)

// WithBackends overrides the Stripe transport. Used by tests.
func WithBackends(b *stripe.Backends) Option {
	return func(c *Client) { c.backends = b }
}

// New returns a client. An empty key yields a disabled client whose
// CreateIntent returns ErrDisabled.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{apiKey: strings.TrimSpace(apiKey)}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		return c
	}

	api := &client.API{}
	api.Init(c.apiKey, c.backends)
	c.api = api
	return c
}

// Enabled reports whether a Stripe key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// CreateIntent creates a payment intent for the given minor-unit amount.
func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if !c.Enabled() {
		return Intent{}, ErrDisabled
	}
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("payments: non-positive amount %d", req.Amount)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "inr"
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = "card"
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{method}),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("payments: create intent: %w", err)
	}

	return Intent{ID: pi.ID, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}
