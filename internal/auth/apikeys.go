package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"idurar.org/internal/domain"
	"idurar.org/internal/ids"
)

const (
	keyRandomBytes    = 16
	secretRandomBytes = 32
)

// GenerateRequest describes a new API key.
type GenerateRequest struct {
	Name        string
	Type        string
	Permissions []string
	Expires     *time.Time
	CreatedBy   string
}

// KeyManager owns the API key lifecycle. Secrets are returned once and stored only as a digest.
type KeyManager struct {
	store  APIKeyStore
	now    func() time.Time
	random func(n int) (string, error)
}

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithKeyClock sets the time source.
func WithKeyClock(now func() time.Time) KeyManagerOption {
	return func(m *KeyManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRandom replaces the hex randomness source.
func WithRandom(random func(n int) (string, error)) KeyManagerOption {
	return func(m *KeyManager) {
		if random != nil {
			m.random = random
		}
	}
}

// NewKeyManager returns a lifecycle manager over store.
func NewKeyManager(store APIKeyStore, opts ...KeyManagerOption) (*KeyManager, error) {
	if store == nil {
		return nil, errors.New("api key store is required")
	}
	m := &KeyManager{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		random: ids.RandomHex,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// HashSecret returns the stored digest of an API key secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Generate creates an active key and returns it with its secret.
func (m *KeyManager) Generate(ctx context.Context, req GenerateRequest) (IssuedAPIKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return IssuedAPIKey{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	typ := strings.TrimSpace(strings.ToLower(req.Type))
	if typ == "" {
		typ = KeyTypeTest
	}
	if typ != KeyTypeTest && typ != KeyTypeLive {
		return IssuedAPIKey{}, fmt.Errorf("%w: type must be test or live", domain.ErrInvalidInput)
	}
	perms, err := normalizeKeyPermissions(req.Permissions)
	if err != nil {
		return IssuedAPIKey{}, err
	}
	key, secret, err := m.credentials(typ)
	if err != nil {
		return IssuedAPIKey{}, err
	}
	now := m.now()
	var expires *time.Time
	if req.Expires != nil && !req.Expires.IsZero() {
		e := req.Expires.UTC()
		expires = &e
	}
	stored, err := m.store.CreateAPIKey(ctx, APIKey{
		ID:          ids.New(),
		Name:        name,
		Key:         key,
		SecretHash:  HashSecret(secret),
		Type:        typ,
		Permissions: perms,
		Status:      KeyStatusActive,
		Expires:     expires,
		CreatedBy:   strings.TrimSpace(req.CreatedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return IssuedAPIKey{}, err
	}
	return IssuedAPIKey{APIKey: stored, Secret: secret}, nil
}

// Regenerate replaces key and secret, preserving the type. The old pair stops working at once.
func (m *KeyManager) Regenerate(ctx context.Context, id string) (IssuedAPIKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return IssuedAPIKey{}, fmt.Errorf("%w: API key not found", domain.ErrNotFound)
	}
	current, err := m.store.GetAPIKey(ctx, id)
	if err != nil {
		return IssuedAPIKey{}, err
	}
	key, secret, err := m.credentials(current.Type)
	if err != nil {
		return IssuedAPIKey{}, err
	}
	updated, err := m.store.ReplaceAPIKeyCredentials(ctx, id, key, HashSecret(secret))
	if err != nil {
		return IssuedAPIKey{}, err
	}
	return IssuedAPIKey{APIKey: updated, Secret: secret}, nil
}

// Revoke marks the key revoked. Revoked keys fail authentication regardless of expiry.
func (m *KeyManager) Revoke(ctx context.Context, id string) (APIKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return APIKey{}, fmt.Errorf("%w: API key not found", domain.ErrNotFound)
	}
	return m.store.SetAPIKeyStatus(ctx, id, KeyStatusRevoked)
}

// Get returns a key without its secret.
func (m *KeyManager) Get(ctx context.Context, id string) (APIKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return APIKey{}, fmt.Errorf("%w: API key not found", domain.ErrNotFound)
	}
	return m.store.GetAPIKey(ctx, id)
}

// List returns one page of non-removed keys, newest first, and the total count.
func (m *KeyManager) List(ctx context.Context, page domain.Page) ([]APIKey, domain.Pagination, error) {
	page = page.Normalize()
	keys, count, err := m.store.ListAPIKeys(ctx, page.Offset(), page.Items)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return keys, domain.Paginate(page, count), nil
}

func (m *KeyManager) credentials(typ string) (key, secret string, err error) {
	k, err := m.random(keyRandomBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	s, err := m.random(secretRandomBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	return "pk_" + typ + "_" + k, s, nil
}

func normalizeKeyPermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return []string{KeyPermRead}, nil
	}
	seen := make(map[string]struct{}, 2)
	out := make([]string, 0, 2)
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != KeyPermRead && p != KeyPermWrite {
			return nil, fmt.Errorf("%w: unsupported API key permission %q", domain.ErrInvalidInput, p)
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
