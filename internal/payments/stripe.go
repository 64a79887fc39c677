// Package payments is the hosted checkout adapter. It creates Stripe
// Checkout sessions, looks up their status, and verifies webhook payloads.
// Crediting users is not done here; see services.PaymentService.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Event types that carry a completed checkout.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncPaymentOK = "checkout.session.async_payment_succeeded"
)

var (
	// ErrNotConfigured means no API key (or webhook secret) was provided.
	ErrNotConfigured = errors.New("payments: gateway not configured")
	// ErrInvalidWebhook covers signature and payload failures.
	ErrInvalidWebhook = errors.New("payments: invalid webhook")
)

// CheckoutRequest describes a one-off purchase of Quantity units at
// UnitAmount minor currency units each.
type CheckoutRequest struct {
	ProductName       string
	UnitAmount        int64
	Quantity          int64
	Currency          string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

// Session is a created hosted checkout.
type Session struct {
	ID  string
	URL string
}

// Status is the gateway's view of a checkout session.
type Status struct {
	SessionID     string
	Status        string
	PaymentStatus string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
}

// WebhookEvent is the verified, reduced form of a webhook delivery.
// SessionID is empty for event types that do not concern checkout sessions.
type WebhookEvent struct {
	ID            string
	Type          string
	SessionID     string
	PaymentStatus string
	Metadata      map[string]string
}

// Completed reports whether the event signals a settled checkout payment.
func (e *WebhookEvent) Completed() bool {
	if e.SessionID == "" {
		return false
	}
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentOK:
		return e.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
	}
	return false
}

// Options configures a StripeGateway. BaseURL and HTTPClient exist so tests
// can point the SDK at a local server.
type Options struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

// StripeGateway implements the gateway on stripe-go.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	configured    bool
}

// NewStripeGateway builds a gateway. Network retries are disabled: a failed
// call fails the request and the client resubmits.
func NewStripeGateway(opts Options) *StripeGateway {
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if opts.BaseURL != "" {
		cfg.URL = stripe.String(opts.BaseURL)
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	sc := client.New(opts.APIKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeGateway{
		sc:            sc,
		webhookSecret: opts.WebhookSecret,
		configured:    strings.TrimSpace(opts.APIKey) != "",
	}
}

// CreateSession opens a payment-mode checkout session.
func (g *StripeGateway) CreateSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}
	if req.Quantity < 1 || req.UnitAmount < 1 {
		return nil, fmt.Errorf("payments: invalid line item %d x %d", req.Quantity, req.UnitAmount)
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(req.UnitAmount),
			},
			Quantity: stripe.Int64(req.Quantity),
		}},
	}
	if req.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ClientReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("payments: create session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// GetStatus fetches the current state of a checkout session.
func (g *StripeGateway) GetStatus(ctx context.Context, sessionID string) (*Status, error) {
	if !g.configured {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("payments: get session: %w", err)
	}
	return statusFrom(s), nil
}

// VerifyAndParseWebhook checks the Stripe-Signature header against the
// webhook secret and decodes checkout session events.
func (g *StripeGateway) VerifyAndParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	out := &WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || ev.Data == nil {
		return out, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", ErrInvalidWebhook, err)
	}
	out.SessionID = s.ID
	out.PaymentStatus = string(s.PaymentStatus)
	out.Metadata = s.Metadata
	return out, nil
}

func statusFrom(s *stripe.CheckoutSession) *Status {
	return &Status{
		SessionID:     s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
}
