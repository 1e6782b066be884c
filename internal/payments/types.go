package payments

import (
	"fmt"
	"math"
	"time"

	"idurar.org/internal/domain"
)

// ErrCreditOverflow is returned when a payment would push an invoice credit past the representable range.
var ErrCreditOverflow = fmt.Errorf("%w: payment would overflow the invoice credit", domain.ErrInvalidOperation)

// PaymentStatus of an invoice is derived from credit and total.
type PaymentStatus string

const (
	StatusUnpaid    PaymentStatus = "unpaid"
	StatusPartially PaymentStatus = "partially"
	StatusPaid      PaymentStatus = "paid"
)

// Payment modes.
const (
	ModeStripe = "stripe"
	ModeManual = "manual"
)

// StatusFor computes the payment status for the given credit against total.
func StatusFor(credit, total Money) PaymentStatus {
	switch {
	case credit >= total:
		return StatusPaid
	case credit > 0:
		return StatusPartially
	default:
		return StatusUnpaid
	}
}

// Invoice is the subset of an invoice the payment engine works with.
type Invoice struct {
	ID            string        `json:"_id"`
	Number        int           `json:"number"`
	Year          int           `json:"year"`
	ClientID      string        `json:"client"`
	Currency      string        `json:"currency"`
	Total         Money         `json:"total"`
	Credit        Money         `json:"credit"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Payments      []string      `json:"payment"`
	Removed       bool          `json:"removed"`
	CreatedBy     string        `json:"createdBy,omitempty"`
	CreatedAt     time.Time     `json:"created"`
	UpdatedAt     time.Time     `json:"updated"`
}

// ApplyCredit adds a payment to the invoice and recomputes its status.
// The invoice is left unchanged when the credit would overflow.
func (inv *Invoice) ApplyCredit(paymentID string, amount Money, at time.Time) error {
	if amount > 0 && inv.Credit > Money(math.MaxInt64)-amount {
		return ErrCreditOverflow
	}
	inv.Credit += amount
	inv.Payments = append(inv.Payments, paymentID)
	inv.PaymentStatus = StatusFor(inv.Credit, inv.Total)
	inv.UpdatedAt = at
	return nil
}

// Payment is an immutable record of one applied payment. Ref is the idempotency key.
type Payment struct {
	ID          string    `json:"_id"`
	Ref         string    `json:"ref"`
	InvoiceID   string    `json:"invoice"`
	ClientID    string    `json:"client"`
	Amount      Money     `json:"amount"`
	Currency    string    `json:"currency"`
	Mode        string    `json:"paymentMode"`
	Description string    `json:"description,omitempty"`
	Date        time.Time `json:"date"`
	CreatedBy   string    `json:"createdBy,omitempty"`
}

// WebhookEvent is a verified provider event reduced to what reconciliation needs.
type WebhookEvent struct {
	ID            string
	Type          string
	TransactionID string
	Amount        Money
	Currency      string
	InvoiceID     string
	ClientID      string
}

// IntentRequest asks the provider for a payment intent.
type IntentRequest struct {
	Amount      Money
	Currency    string
	Description string
	Metadata    map[string]string
}

// Intent is the provider handle a client uses to complete a payment.
type Intent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}
