package auth

import "time"

// OwnerRole is the role sentinel carried by the account owner. It bypasses every permission check.
const OwnerRole = "owner"

// API key types.
const (
	KeyTypeTest = "test"
	KeyTypeLive = "live"
)

// API key statuses.
const (
	KeyStatusActive   = "active"
	KeyStatusInactive = "inactive"
	KeyStatusRevoked  = "revoked"
)

// Coarse API key permissions.
const (
	KeyPermRead  = "read"
	KeyPermWrite = "write"
)

// Admin is a human account. Role holds OwnerRole or the id of a Role.
type Admin struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Enabled      bool      `json:"enabled"`
	Removed      bool      `json:"removed"`
	CreatedAt    time.Time `json:"created"`
}

// IsOwner reports whether the admin holds the owner sentinel role.
func (a Admin) IsOwner() bool { return a.Role == OwnerRole }

// Role groups fine-grained permission strings.
type Role struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	Removed     bool      `json:"removed"`
	CreatedAt   time.Time `json:"created"`
	UpdatedAt   time.Time `json:"updated"`
}

// Has reports whether the role grants perm.
func (r Role) Has(perm string) bool {
	for _, p := range r.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// APIKey is a long-lived bearer credential. SecretHash never leaves the process.
type APIKey struct {
	ID          string     `json:"_id"`
	Name        string     `json:"name"`
	Key         string     `json:"key"`
	SecretHash  string     `json:"-"`
	Type        string     `json:"type"`
	Permissions []string   `json:"permissions"`
	Status      string     `json:"status"`
	Expires     *time.Time `json:"expires"`
	LastUsed    *time.Time `json:"lastUsed"`
	Removed     bool       `json:"removed"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"created"`
	UpdatedAt   time.Time  `json:"updated"`
}

// Allows reports whether the key carries the coarse permission.
func (k APIKey) Allows(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Expired reports whether the key has an expiry at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.Expires != nil && !k.Expires.After(now)
}

// IssuedAPIKey is returned by generate and regenerate. It is the only value that carries the secret.
type IssuedAPIKey struct {
	APIKey
	Secret string `json:"secret"`
}

// RoleUpdate carries optional role fields.
type RoleUpdate struct {
	Name        *string
	Description *string
	Permissions *[]string
}
