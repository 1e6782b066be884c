package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"idurar.org/internal/domain"
	"idurar.org/internal/ids"
)

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     Admin     `json:"admin"`
}

// Sessions handles admin login and owner bootstrap.
type Sessions struct {
	admins AdminStore
	tokens *TokenIssuer
	now    func() time.Time
}

// NewSessions returns a login service.
func NewSessions(admins AdminStore, tokens *TokenIssuer) (*Sessions, error) {
	if admins == nil {
		return nil, errors.New("admin store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	return &Sessions{admins: admins, tokens: tokens, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Login checks email and password and issues a session token.
func (s *Sessions) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	admin, err := s.admins.FindAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = VerifyPassword(string(dummyHash), password)
			return Session{}, ErrInvalidLogin
		}
		return Session{}, err
	}
	if err := VerifyPassword(admin.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidLogin
	}
	if admin.Removed || !admin.Enabled {
		return Session{}, ErrInvalidLogin
	}
	token, exp, err := s.tokens.Issue(admin.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, Admin: admin}, nil
}

// CreateAdmin registers an admin account with the given role reference.
func (s *Sessions) CreateAdmin(ctx context.Context, email, password, name, role string) (Admin, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Admin{}, fmt.Errorf("%w: valid email is required", domain.ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Admin{}, err
	}
	return s.admins.CreateAdmin(ctx, Admin{
		ID:           ids.New(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		Role:         strings.TrimSpace(role),
		Enabled:      true,
		CreatedAt:    s.now(),
	})
}

// Register creates a non-owner admin bound to an existing role. Owners are only
// created through EnsureOwner.
func (s *Sessions) Register(ctx context.Context, email, password, name, roleID string) (Admin, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return Admin{}, fmt.Errorf("%w: role is required", domain.ErrInvalidInput)
	}
	if roleID == OwnerRole {
		return Admin{}, fmt.Errorf("%w: the owner role cannot be granted", domain.ErrInvalidOperation)
	}
	return s.CreateAdmin(ctx, email, password, name, roleID)
}

// EnsureOwner creates the owner account unless an admin with that email exists.
func (s *Sessions) EnsureOwner(ctx context.Context, email, password, name string) (Admin, bool, error) {
	existing, err := s.admins.FindAdminByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return Admin{}, false, err
	}
	admin, err := s.CreateAdmin(ctx, email, password, name, OwnerRole)
	if err != nil {
		return Admin{}, false, err
	}
	return admin, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
