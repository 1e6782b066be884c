package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"idurar.org/internal/domain"
)

// EventPaymentSucceeded is the only event kind that changes state.
const EventPaymentSucceeded = string(stripe.EventTypePaymentIntentSucceeded)

// StripeProvider verifies Stripe webhooks and creates payment intents.
type StripeProvider struct {
	webhookSecret string
	tolerance     time.Duration
	intents       paymentintent.Client
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithBackend routes API calls through b instead of the default Stripe backend.
func WithBackend(b stripe.Backend) StripeOption {
	return func(p *StripeProvider) {
		if b != nil {
			p.intents.B = b
		}
	}
}

// WithTolerance sets how old a signed webhook timestamp may be.
func WithTolerance(d time.Duration) StripeOption {
	return func(p *StripeProvider) {
		if d > 0 {
			p.tolerance = d
		}
	}
}

// NewStripeProvider returns a provider. secretKey may be empty when only webhooks are used.
func NewStripeProvider(secretKey, webhookSecret string, opts ...StripeOption) (*StripeProvider, error) {
	webhookSecret = strings.TrimSpace(webhookSecret)
	if webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	p := &StripeProvider{
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
		intents: paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: strings.TrimSpace(secretKey),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ParseEvent verifies the signature over the raw payload and decodes the event.
// Signature problems wrap domain.ErrInvalidSignature, undecodable bodies domain.ErrInvalidInput.
func (p *StripeProvider) ParseEvent(payload []byte, sigHeader string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	out := WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type != EventPaymentSucceeded {
		return out, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return WebhookEvent{}, fmt.Errorf("%w: event has no data object", domain.ErrInvalidInput)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", domain.ErrInvalidInput, err)
	}
	if pi.ID == "" {
		return WebhookEvent{}, fmt.Errorf("%w: payment intent id missing", domain.ErrInvalidInput)
	}
	out.TransactionID = pi.ID
	out.Amount = Money(pi.Amount)
	out.Currency = strings.ToLower(string(pi.Currency))
	out.InvoiceID = strings.TrimSpace(pi.Metadata["invoiceId"])
	out.ClientID = strings.TrimSpace(pi.Metadata["clientId"])
	return out, nil
}

// CreatePaymentIntent asks Stripe for a new payment intent.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p.intents.Key == "" {
		return Intent{}, errors.New("stripe secret key is not configured")
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(req.Amount)),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
