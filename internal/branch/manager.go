package branch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"idurar.org/internal/domain"
	"idurar.org/internal/ids"
)

var (
	// ErrDeleteDefault is returned when deleting the current default branch.
	ErrDeleteDefault = fmt.Errorf("%w: Cannot delete the default branch", domain.ErrInvalidOperation)
	// ErrUnsetDefault is returned when an update would leave several branches without a default.
	ErrUnsetDefault = fmt.Errorf("%w: Cannot unset the default branch, mark another branch as default instead", domain.ErrInvalidOperation)
)

// Manager applies create, update and delete while keeping the default invariant.
type Manager struct {
	store Store
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a Manager over store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("branch store is required")
	}
	m := &Manager{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create stores a new branch. Requesting default clears every other default; the
// first branch of an empty set is always the default.
func (m *Manager) Create(ctx context.Context, b Branch, makeDefault bool) (Branch, error) {
	b, err := normalize(b)
	if err != nil {
		return Branch{}, err
	}
	now := m.now()
	b.ID = ids.New()
	b.Removed = false
	b.CreatedAt = now
	b.UpdatedAt = now

	err = m.store.Atomic(ctx, func(tx Tx) error {
		count, err := tx.CountActive(ctx)
		if err != nil {
			return err
		}
		if makeDefault {
			if err := tx.ClearDefaults(ctx, ""); err != nil {
				return err
			}
		}
		b.IsDefault = makeDefault || count == 0
		return tx.Insert(ctx, b)
	})
	if err != nil {
		return Branch{}, err
	}
	return b, nil
}

// Update applies patch. Setting isDefault clears the flag elsewhere; a lone
// remaining branch is always forced to be the default.
func (m *Manager) Update(ctx context.Context, id string, patch Patch) (Branch, error) {
	id = strings.TrimSpace(id)
	var out Branch
	err := m.store.Atomic(ctx, func(tx Tx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		count, err := tx.CountActive(ctx)
		if err != nil {
			return err
		}
		next, err := apply(current, patch)
		if err != nil {
			return err
		}
		if patch.IsDefault != nil {
			if *patch.IsDefault {
				if err := tx.ClearDefaults(ctx, id); err != nil {
					return err
				}
			} else if current.IsDefault && count > 1 {
				return ErrUnsetDefault
			}
		}
		if count == 1 {
			next.IsDefault = true
		}
		next.UpdatedAt = m.now()
		if err := tx.Save(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return Branch{}, err
	}
	return out, nil
}

// Delete soft-deletes a non-default branch.
func (m *Manager) Delete(ctx context.Context, id string) (Branch, error) {
	id = strings.TrimSpace(id)
	var out Branch
	err := m.store.Atomic(ctx, func(tx Tx) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.IsDefault {
			return ErrDeleteDefault
		}
		current.Removed = true
		current.UpdatedAt = m.now()
		if err := tx.Save(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return Branch{}, err
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Branch, error) {
	return m.store.Get(ctx, strings.TrimSpace(id))
}

// List returns one page of non-removed branches.
func (m *Manager) List(ctx context.Context, page domain.Page) ([]Branch, domain.Pagination, error) {
	page = page.Normalize()
	items, count, err := m.store.List(ctx, page.Offset(), page.Items)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return items, domain.Paginate(page, count), nil
}

// Default returns the default branch; ok is false when there are no branches.
func (m *Manager) Default(ctx context.Context) (Branch, bool, error) {
	b, err := m.store.Default(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Branch{}, false, nil
		}
		return Branch{}, false, err
	}
	return b, true, nil
}

func normalize(b Branch) (Branch, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return Branch{}, fmt.Errorf("%w: branch name is required", domain.ErrInvalidInput)
	}
	b.Address = strings.TrimSpace(b.Address)
	b.Manager = strings.TrimSpace(b.Manager)
	b.Phone = strings.TrimSpace(b.Phone)
	b.Email = strings.TrimSpace(strings.ToLower(b.Email))
	if b.Email != "" && !strings.Contains(b.Email, "@") {
		return Branch{}, fmt.Errorf("%w: invalid branch email", domain.ErrInvalidInput)
	}
	b.Currency = strings.ToUpper(strings.TrimSpace(b.Currency))
	if b.Currency == "" {
		b.Currency = defaultCurrency
	}
	if len(b.Currency) != 3 {
		return Branch{}, fmt.Errorf("%w: currency must be a 3-letter code", domain.ErrInvalidInput)
	}
	b.Status = strings.ToLower(strings.TrimSpace(b.Status))
	if b.Status == "" {
		b.Status = StatusActive
	}
	if b.Status != StatusActive && b.Status != StatusInactive {
		return Branch{}, fmt.Errorf("%w: status must be active or inactive", domain.ErrInvalidInput)
	}
	return b, nil
}

func apply(b Branch, p Patch) (Branch, error) {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Address != nil {
		b.Address = *p.Address
	}
	if p.Manager != nil {
		b.Manager = *p.Manager
	}
	if p.Phone != nil {
		b.Phone = *p.Phone
	}
	if p.Email != nil {
		b.Email = *p.Email
	}
	if p.Currency != nil {
		b.Currency = *p.Currency
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.IsDefault != nil {
		b.IsDefault = *p.IsDefault
	}
	return normalize(b)
}
