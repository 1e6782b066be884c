package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"idurar.org/internal/auth"
)

const (
	adminColumns  = `id, email, name, surname, password_hash, role, enabled, removed, created_at`
	roleColumns   = `id, name, description, permissions, removed, created_at, updated_at`
	apiKeyColumns = `id, name, key, secret_hash, type, permissions, status, expires_at, last_used_at, removed, created_by, created_at, updated_at`
)

// AuthStore persists admins, roles and API keys.
type AuthStore struct {
	db *sql.DB
}

var _ auth.Store = (*AuthStore)(nil)

func (s *AuthStore) CreateAdmin(ctx context.Context, a auth.Admin) (auth.Admin, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Admin{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if a.Role != "" && a.Role != auth.OwnerRole {
		if err := lockRole(ctx, tx, a.Role); err != nil {
			return auth.Admin{}, err
		}
	}
	row := tx.QueryRowContext(ctx, `
		insert into admins (id, email, name, surname, password_hash, role, enabled, removed, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+adminColumns,
		a.ID, a.Email, a.Name, a.Surname, a.PasswordHash, a.Role, a.Enabled, a.Removed, a.CreatedAt)
	out, err := scanAdmin(row)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Admin{}, auth.ErrDuplicateEmail
		}
		return auth.Admin{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Admin{}, err
	}
	return out, nil
}

func (s *AuthStore) GetAdmin(ctx context.Context, id string) (auth.Admin, error) {
	row := s.db.QueryRowContext(ctx, `select `+adminColumns+` from admins where id = $1 and not removed`, id)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Admin{}, errAdminNotFound
	}
	return a, err
}

func (s *AuthStore) FindAdminByEmail(ctx context.Context, email string) (auth.Admin, error) {
	row := s.db.QueryRowContext(ctx, `select `+adminColumns+` from admins where lower(email) = lower($1) and not removed`, email)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Admin{}, errAdminNotFound
	}
	return a, err
}

func (s *AuthStore) SetAdminRole(ctx context.Context, adminID, role string) (auth.Admin, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.Admin{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if role != auth.OwnerRole {
		if err := lockRole(ctx, tx, role); err != nil {
			return auth.Admin{}, err
		}
		if err := ensureOtherOwner(ctx, tx, adminID); err != nil {
			return auth.Admin{}, err
		}
	}
	row := tx.QueryRowContext(ctx, `
		update admins set role = $2
		where id = $1 and not removed
		returning `+adminColumns, adminID, role)
	a, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Admin{}, errAdminNotFound
	}
	if err != nil {
		return auth.Admin{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.Admin{}, err
	}
	return a, nil
}

// ensureOtherOwner locks every owner row so concurrent demotions serialise, then
// refuses to demote adminID when it is the only owner.
func ensureOtherOwner(ctx context.Context, tx *sql.Tx, adminID string) error {
	rows, err := tx.QueryContext(ctx, `select id from admins where role = $1 and not removed for update`, auth.OwnerRole)
	if err != nil {
		return err
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(owners) == 1 && owners[0] == adminID {
		return auth.ErrLastOwner
	}
	return nil
}

func (s *AuthStore) CreateRole(ctx context.Context, r auth.Role) (auth.Role, error) {
	perms, err := encodePermissions(r.Permissions)
	if err != nil {
		return auth.Role{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions, removed, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+roleColumns,
		r.ID, r.Name, r.Description, perms, r.Removed, r.CreatedAt, r.UpdatedAt)
	out, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.Role{}, auth.ErrDuplicateRole
		}
		return auth.Role{}, err
	}
	return out, nil
}

func (s *AuthStore) GetRole(ctx context.Context, id string) (auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1 and not removed`, id)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, errRoleNotFound
	}
	return r, err
}

func (s *AuthStore) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate, at time.Time) (auth.Role, error) {
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if upd.Permissions != nil {
		perms, err := encodePermissions(*upd.Permissions)
		if err != nil {
			return auth.Role{}, err
		}
		setClauses = append(setClauses, fmt.Sprintf("permissions = $%d", idx))
		args = append(args, perms)
		idx++
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", idx))
	args = append(args, at)
	idx++

	query := fmt.Sprintf(`update roles set %s where id = $%d and not removed returning %s`,
		strings.Join(setClauses, ", "), idx, roleColumns)
	args = append(args, id)
	r, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.Role{}, errRoleNotFound
	case isUniqueViolation(err):
		return auth.Role{}, auth.ErrDuplicateRole
	case err != nil:
		return auth.Role{}, err
	}
	return r, nil
}

// DeleteRole soft-deletes the role unless an active admin references it. The role
// row lock orders this against concurrent SetAdminRole and CreateAdmin calls.
func (s *AuthStore) DeleteRole(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	err = tx.QueryRowContext(ctx, `select 1 from roles where id = $1 and not removed for update`, id).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return errRoleNotFound
	}
	if err != nil {
		return err
	}
	var inUse bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from admins where role = $1 and not removed)`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse {
		return auth.ErrRoleInUse
	}
	if _, err := tx.ExecContext(ctx, `update roles set removed = true, updated_at = now() where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AuthStore) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles where not removed order by id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []auth.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AuthStore) CreateAPIKey(ctx context.Context, k auth.APIKey) (auth.APIKey, error) {
	perms, err := encodePermissions(k.Permissions)
	if err != nil {
		return auth.APIKey{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into api_keys (id, name, key, secret_hash, type, permissions, status, expires_at, last_used_at, removed, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning `+apiKeyColumns,
		k.ID, k.Name, k.Key, k.SecretHash, k.Type, perms, k.Status, nullTime(k.Expires), nullTime(k.LastUsed),
		k.Removed, k.CreatedBy, k.CreatedAt, k.UpdatedAt)
	out, err := scanAPIKey(row)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.APIKey{}, auth.ErrDuplicateKey
		}
		return auth.APIKey{}, err
	}
	return out, nil
}

func (s *AuthStore) GetAPIKey(ctx context.Context, id string) (auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where id = $1 and not removed`, id)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.APIKey{}, errAPIKeyNotFound
	}
	return k, err
}

// FindAPIKeyByKey returns removed keys too; the resolver decides what they mean.
func (s *AuthStore) FindAPIKeyByKey(ctx context.Context, key string) (auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+apiKeyColumns+` from api_keys where key = $1`, key)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.APIKey{}, errAPIKeyNotFound
	}
	return k, err
}

func (s *AuthStore) ListAPIKeys(ctx context.Context, offset, limit int) ([]auth.APIKey, int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `select count(*) from api_keys where not removed`).Scan(&count); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+apiKeyColumns+`
		from api_keys
		where not removed
		order by created_at desc, id desc
		offset $1 limit $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []auth.APIKey{}
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, count, nil
}

func (s *AuthStore) ReplaceAPIKeyCredentials(ctx context.Context, id, key, secretHash string) (auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		update api_keys set key = $2, secret_hash = $3, updated_at = now()
		where id = $1 and not removed
		returning `+apiKeyColumns, id, key, secretHash)
	k, err := scanAPIKey(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.APIKey{}, errAPIKeyNotFound
	case isUniqueViolation(err):
		return auth.APIKey{}, auth.ErrDuplicateKey
	case err != nil:
		return auth.APIKey{}, err
	}
	return k, nil
}

func (s *AuthStore) SetAPIKeyStatus(ctx context.Context, id, status string) (auth.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		update api_keys set status = $2, updated_at = now()
		where id = $1 and not removed
		returning `+apiKeyColumns, id, status)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.APIKey{}, errAPIKeyNotFound
	}
	return k, err
}

func (s *AuthStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update api_keys set last_used_at = $2 where id = $1`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return errAPIKeyNotFound
	}
	return nil
}

// lockRole takes a share lock on an active role so it cannot be deleted mid-transaction.
func lockRole(ctx context.Context, tx *sql.Tx, id string) error {
	var dummy int
	err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1 and not removed for share`, id).Scan(&dummy)
	if errors.Is(err, sql.ErrNoRows) {
		return errRoleNotFound
	}
	return err
}

func scanAdmin(row rowScanner) (auth.Admin, error) {
	var a auth.Admin
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Surname, &a.PasswordHash, &a.Role, &a.Enabled, &a.Removed, &a.CreatedAt)
	return a, err
}

func scanRole(row rowScanner) (auth.Role, error) {
	var (
		r     auth.Role
		perms []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &perms, &r.Removed, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return auth.Role{}, err
	}
	list, err := decodePermissions(perms)
	if err != nil {
		return auth.Role{}, err
	}
	r.Permissions = list
	return r, nil
}

func scanAPIKey(row rowScanner) (auth.APIKey, error) {
	var (
		k                 auth.APIKey
		perms             []byte
		expires, lastUsed sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.Name, &k.Key, &k.SecretHash, &k.Type, &perms, &k.Status, &expires, &lastUsed,
		&k.Removed, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return auth.APIKey{}, err
	}
	list, err := decodePermissions(perms)
	if err != nil {
		return auth.APIKey{}, err
	}
	k.Permissions = list
	k.Expires = timePtr(expires)
	k.LastUsed = timePtr(lastUsed)
	return k, nil
}

func encodePermissions(perms []string) ([]byte, error) {
	if perms == nil {
		perms = []string{}
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	return raw, nil
}

func decodePermissions(raw []byte) ([]string, error) {
	perms := []string{}
	if len(raw) == 0 {
		return perms, nil
	}
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return perms, nil
}
