package pg

import (
	"context"
	"database/sql"
	"errors"

	"idurar.org/internal/branch"
)

const branchColumns = `id, name, address, manager, phone, email, currency, status, is_default, removed, created_at, updated_at`

// branchLockKey serialises every Atomic section through one transaction-scoped advisory lock.
const branchLockKey = 0x6272616e6368

// BranchStore persists branches.
type BranchStore struct {
	db *sql.DB
}

var _ branch.Store = (*BranchStore)(nil)

// Atomic runs fn inside one transaction holding the branch advisory lock, so
// clear-defaults, save and the singleton self-heal commit or roll back together.
func (s *BranchStore) Atomic(ctx context.Context, fn func(tx branch.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, branchLockKey); err != nil {
		return err
	}
	if err := fn(branchTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *BranchStore) Get(ctx context.Context, id string) (branch.Branch, error) {
	return getBranch(ctx, s.db, id)
}

func (s *BranchStore) List(ctx context.Context, offset, limit int) ([]branch.Branch, int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `select count(*) from branches where not removed`).Scan(&count); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+branchColumns+`
		from branches
		where not removed
		order by id desc
		offset $1 limit $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []branch.Branch{}
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, count, nil
}

func (s *BranchStore) Default(ctx context.Context) (branch.Branch, error) {
	row := s.db.QueryRowContext(ctx, `select `+branchColumns+` from branches where is_default and not removed limit 1`)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return branch.Branch{}, errBranchNotFound
	}
	return b, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBranch(ctx context.Context, q queryer, id string) (branch.Branch, error) {
	row := q.QueryRowContext(ctx, `select `+branchColumns+` from branches where id = $1 and not removed`, id)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return branch.Branch{}, errBranchNotFound
	}
	return b, err
}

type branchTx struct {
	tx *sql.Tx
}

func (t branchTx) Get(ctx context.Context, id string) (branch.Branch, error) {
	return getBranch(ctx, t.tx, id)
}

func (t branchTx) CountActive(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `select count(*) from branches where not removed`).Scan(&n)
	return n, err
}

func (t branchTx) ClearDefaults(ctx context.Context, exceptID string) error {
	_, err := t.tx.ExecContext(ctx, `update branches set is_default = false where is_default and id <> $1`, exceptID)
	return err
}

func (t branchTx) Insert(ctx context.Context, b branch.Branch) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into branches (`+branchColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.Name, b.Address, b.Manager, b.Phone, b.Email, b.Currency, b.Status, b.IsDefault, b.Removed, b.CreatedAt, b.UpdatedAt)
	return err
}

func (t branchTx) Save(ctx context.Context, b branch.Branch) error {
	res, err := t.tx.ExecContext(ctx, `
		update branches set name = $2, address = $3, manager = $4, phone = $5, email = $6,
			currency = $7, status = $8, is_default = $9, removed = $10, updated_at = $11
		where id = $1
	`, b.ID, b.Name, b.Address, b.Manager, b.Phone, b.Email, b.Currency, b.Status, b.IsDefault, b.Removed, b.UpdatedAt)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return errBranchNotFound
	}
	return nil
}

func scanBranch(row rowScanner) (branch.Branch, error) {
	var b branch.Branch
	err := row.Scan(&b.ID, &b.Name, &b.Address, &b.Manager, &b.Phone, &b.Email, &b.Currency, &b.Status,
		&b.IsDefault, &b.Removed, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}
