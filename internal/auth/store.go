package auth

import (
	"context"
	"time"
)

// AdminStore persists admin accounts.
type AdminStore interface {
	CreateAdmin(ctx context.Context, a Admin) (Admin, error)
	GetAdmin(ctx context.Context, id string) (Admin, error)
	FindAdminByEmail(ctx context.Context, email string) (Admin, error)
	// SetAdminRole fails with domain.ErrNotFound when the admin or a non-owner role is absent,
	// and with ErrLastOwner when it would leave no owner.
	SetAdminRole(ctx context.Context, adminID, role string) (Admin, error)
}

// RoleStore persists roles. Name uniqueness and the in-use check on delete are enforced atomically by the store.
type RoleStore interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate, at time.Time) (Role, error)
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]Role, error)
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k APIKey) (APIKey, error)
	GetAPIKey(ctx context.Context, id string) (APIKey, error)
	FindAPIKeyByKey(ctx context.Context, key string) (APIKey, error)
	ListAPIKeys(ctx context.Context, offset, limit int) ([]APIKey, int, error)
	ReplaceAPIKeyCredentials(ctx context.Context, id, key, secretHash string) (APIKey, error)
	SetAPIKeyStatus(ctx context.Context, id, status string) (APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Store is the full persistence surface of the package.
type Store interface {
	AdminStore
	RoleStore
	APIKeyStore
}
