package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"idurar.org/internal/domain"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	errAdminNotFound   = fmt.Errorf("%w: User not found", domain.ErrNotFound)
	errRoleNotFound    = fmt.Errorf("%w: Role not found", domain.ErrNotFound)
	errAPIKeyNotFound  = fmt.Errorf("%w: API key not found", domain.ErrNotFound)
	errBranchNotFound  = fmt.Errorf("%w: Branch not found", domain.ErrNotFound)
	errInvoiceNotFound = fmt.Errorf("%w: Invoice not found", domain.ErrNotFound)
	errPaymentNotFound = fmt.Errorf("%w: Payment not found", domain.ErrNotFound)
)

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrForeignKeyViolation
}
