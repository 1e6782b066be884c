// Package branch keeps the single-default-branch invariant: when any non-removed
// branch exists exactly one of them is the default, otherwise none is.
package branch

import (
	"context"
	"time"
)

// Statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

const defaultCurrency = "USD"

// Branch is one business location.
type Branch struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Manager   string    `json:"manager,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	IsDefault bool      `json:"isDefault"`
	Removed   bool      `json:"removed"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

// Patch carries the fields an update may change.
type Patch struct {
	Name      *string `json:"name"`
	Address   *string `json:"address"`
	Manager   *string `json:"manager"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Currency  *string `json:"currency"`
	Status    *string `json:"status"`
	IsDefault *bool   `json:"isDefault"`
}

// Tx is the view of the branch set inside one atomic unit.
type Tx interface {
	// Get returns a non-removed branch or domain.ErrNotFound.
	Get(ctx context.Context, id string) (Branch, error)
	// CountActive counts non-removed branches.
	CountActive(ctx context.Context) (int, error)
	// ClearDefaults unsets isDefault on every branch except exceptID.
	ClearDefaults(ctx context.Context, exceptID string) error
	Insert(ctx context.Context, b Branch) error
	Save(ctx context.Context, b Branch) error
}

// Store persists branches. Atomic runs fn so that no other Atomic call interleaves with it.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id string) (Branch, error)
	List(ctx context.Context, offset, limit int) ([]Branch, int, error)
	// Default returns the default branch or domain.ErrNotFound.
	Default(ctx context.Context) (Branch, error)
}
