package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"idurar.org/internal/alert"
	"idurar.org/internal/audit"
	"idurar.org/internal/domain"
	"idurar.org/internal/ids"
	"idurar.org/internal/obs"
	"idurar.org/internal/stream"
)

var (
	// ErrNotConfigured is returned when the payment provider was not set up.
	ErrNotConfigured = errors.New("payment provider is not configured")
	// ErrRefConflict is returned when a reference is reused for a different invoice or amount.
	ErrRefConflict = fmt.Errorf("%w: payment reference already recorded for a different invoice or amount", domain.ErrInvalidOperation)
)

// Webhook outcomes.
const (
	OutcomeApplied         = "applied"
	OutcomeDuplicate       = "duplicate"
	OutcomeIgnored         = "ignored"
	OutcomeInvoiceNotFound = "invoice_not_found"
	OutcomeUnmatched       = "unmatched"
	OutcomeConflict        = "conflict"
	OutcomeFailed          = "failed"
)

// EventParser verifies and decodes provider webhooks.
type EventParser interface {
	ParseEvent(payload []byte, sigHeader string) (WebhookEvent, error)
}

// IntentCreator creates provider payment intents.
type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// Publisher receives applied payments.
type Publisher interface {
	Publish(evt stream.PaymentEvent)
}

// Engine applies payments to invoices exactly once per external reference.
type Engine struct {
	store     Store
	parser    EventParser
	intents   IntentCreator
	notifier  alert.Notifier
	publisher Publisher
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithParser(p EventParser) Option { return func(e *Engine) { e.parser = p } }
func WithIntents(c IntentCreator) Option { return func(e *Engine) { e.intents = c } }
func WithNotifier(n alert.Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine returns an Engine over store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("payments store is required")
	}
	e := &Engine{
		store:    store,
		notifier: alert.LogNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	EventType string
	Outcome   string
	Payment   *Payment
}

// HandleWebhook verifies and applies one provider delivery.
//
// Errors are returned only for a bad signature (domain.ErrInvalidSignature), an
// undecodable payload (domain.ErrInvalidInput) or a store failure while applying a
// recognised event, which the provider should retry. Every other case is acknowledged.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (WebhookResult, error) {
	if e.parser == nil {
		return WebhookResult{}, ErrNotConfigured
	}
	evt, err := e.parser.ParseEvent(payload, sigHeader)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, domain.ErrInvalidSignature) {
			outcome = "bad_signature"
		}
		obs.WebhookEvents.WithLabelValues("unknown", outcome).Inc()
		return WebhookResult{}, err
	}

	res := WebhookResult{EventType: evt.Type}
	if evt.Type != EventPaymentSucceeded {
		res.Outcome = OutcomeIgnored
		obs.WebhookEvents.WithLabelValues(evt.Type, res.Outcome).Inc()
		return res, nil
	}

	defer func() {
		obs.WebhookEvents.WithLabelValues(evt.Type, res.Outcome).Inc()
	}()

	if evt.InvoiceID == "" || !evt.Amount.Valid() {
		res.Outcome = OutcomeUnmatched
		e.raise(ctx, "Unmatched payment", "payment event carries no invoice or an unusable amount", map[string]string{
			"event":       evt.ID,
			"transaction": evt.TransactionID,
			"amount":      evt.Amount.String(),
		})
		return res, nil
	}

	p, _, replayed, err := e.apply(ctx, Payment{
		Ref:         evt.TransactionID,
		InvoiceID:   evt.InvoiceID,
		ClientID:    evt.ClientID,
		Amount:      evt.Amount,
		Currency:    evt.Currency,
		Mode:        ModeStripe,
		Description: "Payment processed via Stripe",
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res.Outcome = OutcomeInvoiceNotFound
		e.raise(ctx, "Invoice not found", "payment received for an unknown invoice", map[string]string{
			"event":       evt.ID,
			"transaction": evt.TransactionID,
			"invoiceId":   evt.InvoiceID,
			"amount":      evt.Amount.String(),
		})
		return res, nil
	case errors.Is(err, ErrRefConflict), errors.Is(err, ErrCreditOverflow):
		res.Outcome = OutcomeConflict
		e.raise(ctx, "Payment not applied", err.Error(), map[string]string{
			"event":       evt.ID,
			"transaction": evt.TransactionID,
			"invoiceId":   evt.InvoiceID,
			"amount":      evt.Amount.String(),
		})
		return res, nil
	case err != nil:
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("apply payment %s: %w", evt.TransactionID, err)
	}

	res.Payment = &p
	res.Outcome = OutcomeApplied
	if replayed {
		res.Outcome = OutcomeDuplicate
	}
	return res, nil
}

// ManualPayment is a payment recorded by an operator.
type ManualPayment struct {
	InvoiceID   string
	Amount      Money
	Ref         string
	Mode        string
	Description string
	CreatedBy   string
}

// Record applies an operator-entered payment through the same atomic path as webhooks.
// A repeated Ref returns the original payment with replayed set.
func (e *Engine) Record(ctx context.Context, in ManualPayment) (Payment, Invoice, bool, error) {
	in.InvoiceID = strings.TrimSpace(in.InvoiceID)
	if in.InvoiceID == "" {
		return Payment{}, Invoice{}, false, fmt.Errorf("%w: invoice is required", domain.ErrInvalidInput)
	}
	if !in.Amount.Valid() {
		return Payment{}, Invoice{}, false, fmt.Errorf("%w: amount must be positive and at most %s", domain.ErrInvalidInput, MaxAmount)
	}
	mode := strings.TrimSpace(strings.ToLower(in.Mode))
	switch mode {
	case "":
		mode = ModeManual
	case ModeStripe:
		return Payment{}, Invoice{}, false, fmt.Errorf("%w: stripe payments are applied from provider webhooks", domain.ErrInvalidInput)
	}
	ref := strings.TrimSpace(in.Ref)
	if ref == "" {
		ref = "manual_" + ids.New()
	}
	return e.apply(ctx, Payment{
		Ref:         ref,
		InvoiceID:   in.InvoiceID,
		Amount:      in.Amount,
		Mode:        mode,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   in.CreatedBy,
	})
}

// CreateIntent opens a provider payment intent for an existing invoice.
func (e *Engine) CreateIntent(ctx context.Context, invoiceID string, amount Money) (Intent, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" || !amount.Valid() {
		return Intent{}, fmt.Errorf("%w: Invoice ID and amount are required", domain.ErrInvalidInput)
	}
	if e.intents == nil {
		return Intent{}, ErrNotConfigured
	}
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Intent{}, err
	}
	currency := strings.ToLower(strings.TrimSpace(inv.Currency))
	if currency == "" {
		currency = "usd"
	}
	return e.intents.CreatePaymentIntent(ctx, IntentRequest{
		Amount:      amount,
		Currency:    currency,
		Description: fmt.Sprintf("Payment for Invoice #%d/%d", inv.Number, inv.Year),
		Metadata: map[string]string{
			"invoiceId": inv.ID,
			"clientId":  inv.ClientID,
		},
	})
}

// CreateInvoice stores a new unpaid invoice.
func (e *Engine) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	inv.ClientID = strings.TrimSpace(inv.ClientID)
	if inv.ClientID == "" {
		return Invoice{}, fmt.Errorf("%w: client is required", domain.ErrInvalidInput)
	}
	if inv.Number <= 0 {
		return Invoice{}, fmt.Errorf("%w: number must be positive", domain.ErrInvalidInput)
	}
	if inv.Total < 0 || inv.Total > MaxAmount {
		return Invoice{}, fmt.Errorf("%w: total must be between 0 and %s", domain.ErrInvalidInput, MaxAmount)
	}
	now := e.now()
	if inv.Year == 0 {
		inv.Year = now.Year()
	}
	inv.Currency = strings.ToUpper(strings.TrimSpace(inv.Currency))
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	inv.ID = ids.New()
	inv.Credit = 0
	inv.Payments = []string{}
	inv.PaymentStatus = StatusFor(0, inv.Total)
	inv.Removed = false
	inv.CreatedAt = now
	inv.UpdatedAt = now
	return e.store.CreateInvoice(ctx, inv)
}

func (e *Engine) Invoice(ctx context.Context, id string) (Invoice, error) {
	return e.store.GetInvoice(ctx, strings.TrimSpace(id))
}

func (e *Engine) Payment(ctx context.Context, id string) (Payment, error) {
	return e.store.GetPayment(ctx, strings.TrimSpace(id))
}

func (e *Engine) apply(ctx context.Context, p Payment) (Payment, Invoice, bool, error) {
	p.ID = ids.New()
	p.Date = e.now()
	stored, inv, replayed, err := e.store.ApplyPayment(ctx, p)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrNotFound) {
			outcome = "invoice_not_found"
		}
		obs.PaymentsApplied.WithLabelValues(p.Mode, outcome).Inc()
		return Payment{}, Invoice{}, false, err
	}
	if replayed && (stored.InvoiceID != p.InvoiceID || stored.Amount != p.Amount) {
		obs.PaymentsApplied.WithLabelValues(p.Mode, "conflict").Inc()
		obs.Logger().Warn("payment reference conflict",
			zap.String("ref", p.Ref),
			zap.String("mode", p.Mode),
			zap.String("stored_invoice_id", stored.InvoiceID),
			zap.String("invoice_id", p.InvoiceID),
		)
		return Payment{}, Invoice{}, false, ErrRefConflict
	}
	if replayed {
		obs.PaymentsApplied.WithLabelValues(p.Mode, "duplicate").Inc()
		obs.Logger().Info("payment replay ignored",
			zap.String("ref", stored.Ref),
			zap.String("payment_id", stored.ID),
			zap.String("invoice_id", stored.InvoiceID),
		)
		return stored, inv, true, nil
	}

	obs.PaymentsApplied.WithLabelValues(p.Mode, "applied").Inc()
	_ = audit.LogEvent(ctx, "payment.apply", map[string]any{
		"paymentId":     stored.ID,
		"invoiceId":     inv.ID,
		"ref":           stored.Ref,
		"amount":        stored.Amount.String(),
		"mode":          stored.Mode,
		"paymentStatus": string(inv.PaymentStatus),
	})
	if e.publisher != nil {
		e.publisher.Publish(stream.PaymentEvent{
			PaymentID:     stored.ID,
			InvoiceID:     inv.ID,
			ClientID:      stored.ClientID,
			Amount:        int64(stored.Amount),
			Currency:      inv.Currency,
			Mode:          stored.Mode,
			PaymentStatus: string(inv.PaymentStatus),
			Timestamp:     stored.Date,
		})
	}
	return stored, inv, false, nil
}

func (e *Engine) raise(ctx context.Context, title, msg string, fields map[string]string) {
	if e.notifier == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.notifier.Notify(actx, alert.Alert{Title: title, Message: msg, Fields: fields}); err != nil {
		obs.Logger().Warn("alert delivery failed", zap.String("title", title), zap.Error(err))
	}
}
