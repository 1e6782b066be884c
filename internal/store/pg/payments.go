package pg

import (
	"context"
	"database/sql"
	"errors"

	"idurar.org/internal/payments"
)

const (
	invoiceColumns = `id, number, year, client_id, currency, total, credit, payment_status, removed, created_by, created_at, updated_at`
	paymentColumns = `id, ref, invoice_id, client_id, amount, currency, mode, description, date, created_by`
)

// PaymentStore persists invoices and the payments applied to them.
type PaymentStore struct {
	db *sql.DB
}

var _ payments.Store = (*PaymentStore)(nil)

func (s *PaymentStore) CreateInvoice(ctx context.Context, inv payments.Invoice) (payments.Invoice, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into invoices (`+invoiceColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, inv.ID, inv.Number, inv.Year, inv.ClientID, inv.Currency, int64(inv.Total), int64(inv.Credit),
		string(inv.PaymentStatus), inv.Removed, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt); err != nil {
		return payments.Invoice{}, err
	}
	if inv.Payments == nil {
		inv.Payments = []string{}
	}
	return inv, nil
}

func (s *PaymentStore) GetInvoice(ctx context.Context, id string) (payments.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `select `+invoiceColumns+` from invoices where id = $1 and not removed`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Invoice{}, errInvoiceNotFound
	}
	if err != nil {
		return payments.Invoice{}, err
	}
	inv.Payments, err = paymentIDs(ctx, s.db, id)
	if err != nil {
		return payments.Invoice{}, err
	}
	return inv, nil
}

func (s *PaymentStore) GetPayment(ctx context.Context, id string) (payments.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `select `+paymentColumns+` from payments where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, errPaymentNotFound
	}
	return p, err
}

// ApplyPayment locks the invoice row, re-checks the reference under the lock, then
// inserts the payment and credits the invoice in the same transaction. A unique
// violation on (mode, ref) means another transaction won the race on a different
// invoice row; the stored payment is returned as a replay.
func (s *PaymentStore) ApplyPayment(ctx context.Context, p payments.Payment) (payments.Payment, payments.Invoice, bool, error) {
	if prev, inv, ok, err := s.replay(ctx, s.db, p.Mode, p.Ref); err != nil || ok {
		return prev, inv, ok, err
	}

	stored, inv, replayed, err := s.applyTx(ctx, p)
	if isUniqueViolation(err) {
		prev, inv, ok, rerr := s.replay(ctx, s.db, p.Mode, p.Ref)
		if rerr != nil {
			return payments.Payment{}, payments.Invoice{}, false, rerr
		}
		if ok {
			return prev, inv, true, nil
		}
	}
	return stored, inv, replayed, err
}

func (s *PaymentStore) applyTx(ctx context.Context, p payments.Payment) (payments.Payment, payments.Invoice, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := scanInvoice(tx.QueryRowContext(ctx,
		`select `+invoiceColumns+` from invoices where id = $1 and not removed for update`, p.InvoiceID))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, payments.Invoice{}, false, errInvoiceNotFound
	}
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}

	if prev, prevInv, ok, err := s.replay(ctx, tx, p.Mode, p.Ref); err != nil || ok {
		return prev, prevInv, ok, err
	}

	inv.Payments, err = paymentIDs(ctx, tx, inv.ID)
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	if p.ClientID == "" {
		p.ClientID = inv.ClientID
	}
	if p.Currency == "" {
		p.Currency = inv.Currency
	}
	if err := inv.ApplyCredit(p.ID, p.Amount, p.Date); err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into payments (`+paymentColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.Ref, p.InvoiceID, p.ClientID, int64(p.Amount), p.Currency, p.Mode, p.Description, p.Date, p.CreatedBy); err != nil {
		if isForeignKeyViolation(err) {
			return payments.Payment{}, payments.Invoice{}, false, errInvoiceNotFound
		}
		return payments.Payment{}, payments.Invoice{}, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		update invoices set credit = $2, payment_status = $3, updated_at = $4
		where id = $1
	`, inv.ID, int64(inv.Credit), string(inv.PaymentStatus), inv.UpdatedAt); err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	return p, inv, false, nil
}

type rowsQueryer interface {
	queryer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// replay loads the payment stored under (mode, ref) together with its invoice.
func (s *PaymentStore) replay(ctx context.Context, q rowsQueryer, mode, ref string) (payments.Payment, payments.Invoice, bool, error) {
	prev, err := scanPayment(q.QueryRowContext(ctx,
		`select `+paymentColumns+` from payments where mode = $1 and ref = $2`, mode, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return payments.Payment{}, payments.Invoice{}, false, nil
	}
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	inv, err := scanInvoice(q.QueryRowContext(ctx, `select `+invoiceColumns+` from invoices where id = $1`, prev.InvoiceID))
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	inv.Payments, err = paymentIDs(ctx, q, inv.ID)
	if err != nil {
		return payments.Payment{}, payments.Invoice{}, false, err
	}
	return prev, inv, true, nil
}

func paymentIDs(ctx context.Context, q rowsQueryer, invoiceID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `select id from payments where invoice_id = $1 order by date asc, id asc`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanInvoice(row rowScanner) (payments.Invoice, error) {
	var (
		inv           payments.Invoice
		total, credit int64
		status        string
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.Year, &inv.ClientID, &inv.Currency, &total, &credit, &status,
		&inv.Removed, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return payments.Invoice{}, err
	}
	inv.Total = payments.Money(total)
	inv.Credit = payments.Money(credit)
	inv.PaymentStatus = payments.PaymentStatus(status)
	return inv, nil
}

func scanPayment(row rowScanner) (payments.Payment, error) {
	var (
		p      payments.Payment
		amount int64
	)
	if err := row.Scan(&p.ID, &p.Ref, &p.InvoiceID, &p.ClientID, &amount, &p.Currency, &p.Mode, &p.Description,
		&p.Date, &p.CreatedBy); err != nil {
		return payments.Payment{}, err
	}
	p.Amount = payments.Money(amount)
	return p, nil
}
