package payments

import (
	"context"
	"fmt"
	"sync"

	"idurar.org/internal/domain"
)

var (
	errInvoiceNotFound = fmt.Errorf("%w: Invoice not found", domain.ErrNotFound)
	errPaymentNotFound = fmt.Errorf("%w: Payment not found", domain.ErrNotFound)
)

// InMemory is a Store serialising every payment application under one mutex.
type InMemory struct {
	mu       sync.Mutex
	invoices map[string]Invoice
	payments map[string]Payment
	byRef    map[refKey]string
}

type refKey struct {
	mode, ref string
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		invoices: make(map[string]Invoice),
		payments: make(map[string]Payment),
		byRef:    make(map[refKey]string),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) CreateInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[inv.ID]; exists {
		return Invoice{}, fmt.Errorf("%w: invoice %s already exists", domain.ErrInvalidOperation, inv.ID)
	}
	inv.Payments = append([]string{}, inv.Payments...)
	s.invoices[inv.ID] = inv
	return cloneInvoice(inv), nil
}

func (s *InMemory) GetInvoice(_ context.Context, id string) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.Removed {
		return Invoice{}, errInvoiceNotFound
	}
	return cloneInvoice(inv), nil
}

func (s *InMemory) GetPayment(_ context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, errPaymentNotFound
	}
	return p, nil
}

func (s *InMemory) ApplyPayment(_ context.Context, p Payment) (Payment, Invoice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey{mode: p.Mode, ref: p.Ref}
	if id, seen := s.byRef[key]; seen {
		prev := s.payments[id]
		return prev, cloneInvoice(s.invoices[prev.InvoiceID]), true, nil
	}
	inv, ok := s.invoices[p.InvoiceID]
	if !ok || inv.Removed {
		return Payment{}, Invoice{}, false, errInvoiceNotFound
	}
	if p.ClientID == "" {
		p.ClientID = inv.ClientID
	}
	if p.Currency == "" {
		p.Currency = inv.Currency
	}
	if err := inv.ApplyCredit(p.ID, p.Amount, p.Date); err != nil {
		return Payment{}, Invoice{}, false, err
	}

	s.payments[p.ID] = p
	s.byRef[key] = p.ID
	s.invoices[inv.ID] = inv
	return p, cloneInvoice(inv), false, nil
}

func cloneInvoice(inv Invoice) Invoice {
	inv.Payments = append([]string{}, inv.Payments...)
	return inv
}
