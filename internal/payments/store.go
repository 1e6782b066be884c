package payments

import "context"

// Store persists invoices and payments.
type Store interface {
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	// ApplyPayment records p and credits its invoice as one atomic step serialised
	// per invoice. References are unique per payment mode: when a payment with the same
	// p.Mode and p.Ref already exists nothing changes and the stored payment is returned
	// with replayed set. A missing invoice yields domain.ErrNotFound.
	ApplyPayment(ctx context.Context, p Payment) (stored Payment, inv Invoice, replayed bool, err error)
}
