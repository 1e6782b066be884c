package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"idurar.org/internal/domain"
	"idurar.org/internal/obs"
)

// Resolver turns request credentials into an AuthContext.
type Resolver struct {
	keys   APIKeyStore
	admins AdminStore
	roles  RoleStore
	tokens *TokenIssuer

	now          func() time.Time
	touchTimeout time.Duration
	pending      sync.WaitGroup
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock sets the time source used for expiry checks and lastUsed.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTouchTimeout bounds the background lastUsed write.
func WithTouchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.touchTimeout = d
		}
	}
}

// NewResolver builds a Resolver. tokens may be nil when sessions are disabled.
func NewResolver(store Store, tokens *TokenIssuer, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("auth store is required")
	}
	r := &Resolver{
		keys:         store,
		admins:       store,
		roles:        store,
		tokens:       tokens,
		now:          func() time.Time { return time.Now().UTC() },
		touchTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RequiredKeyPermission maps an HTTP method to the coarse API key permission.
func RequiredKeyPermission(method string) string {
	if method == http.MethodGet {
		return KeyPermRead
	}
	return KeyPermWrite
}

// ResolveAPIKey authenticates key for a request using method.
// On success lastUsed is recorded in the background; a failure there is only logged.
func (r *Resolver) ResolveAPIKey(ctx context.Context, key, method string) (AuthContext, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return AuthContext{}, r.fail("missing_key", ErrMissingCredentials)
	}
	k, err := r.keys.FindAPIKeyByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthContext{}, r.fail("invalid_key", ErrInvalidKey)
		}
		return AuthContext{}, fmt.Errorf("lookup api key: %w", err)
	}
	if k.Removed || k.Status != KeyStatusActive {
		return AuthContext{}, r.fail("invalid_key", ErrInvalidKey)
	}
	now := r.now()
	if k.Expired(now) {
		return AuthContext{}, r.fail("expired_key", ErrKeyExpired)
	}
	need := RequiredKeyPermission(method)
	if !k.Allows(need) {
		return AuthContext{}, r.fail("key_permission", errKeyLacks(need))
	}

	r.touch(ctx, k.ID, now)

	perms := make([]string, len(k.Permissions))
	copy(perms, k.Permissions)
	return AuthContext{Kind: KindAPIKey, ID: k.ID, Permissions: perms}, nil
}

// ResolveSession authenticates an admin session token.
func (r *Resolver) ResolveSession(ctx context.Context, token string) (AuthContext, error) {
	if r.tokens == nil {
		return AuthContext{}, r.fail("invalid_session", ErrInvalidToken)
	}
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return AuthContext{}, r.fail("invalid_session", err)
	}
	admin, err := r.admins.GetAdmin(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return AuthContext{}, r.fail("user_not_found", ErrUserNotFound)
		}
		return AuthContext{}, fmt.Errorf("lookup admin: %w", err)
	}
	if admin.Removed {
		return AuthContext{}, r.fail("user_not_found", ErrUserNotFound)
	}
	if !admin.Enabled {
		return AuthContext{}, r.fail("invalid_session", ErrInvalidToken)
	}
	return AuthContext{Kind: KindAdmin, ID: admin.ID, Role: admin.Role}, nil
}

// Authorize checks perm for ac. API key principals pass: their coarse read/write
// check already ran in ResolveAPIKey and fine-grained permissions apply to sessions only.
// Owners pass. Other admins need a live role granting perm.
func (r *Resolver) Authorize(ctx context.Context, ac AuthContext, perm string) error {
	switch ac.Kind {
	case KindAPIKey:
		return nil
	case KindAdmin:
	default:
		return r.fail("missing_key", ErrMissingCredentials)
	}
	if ac.IsOwner() {
		return nil
	}
	if strings.TrimSpace(ac.Role) == "" {
		return r.fail("role_not_found", ErrRoleNotFound)
	}
	role, err := r.roles.GetRole(ctx, ac.Role)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return r.fail("role_not_found", ErrRoleNotFound)
		}
		return fmt.Errorf("lookup role: %w", err)
	}
	if role.Removed {
		return r.fail("role_not_found", ErrRoleNotFound)
	}
	if !role.Has(perm) {
		return r.fail("permission_denied", ErrPermissionDenied)
	}
	return nil
}

// Wait blocks until background lastUsed writes have finished.
func (r *Resolver) Wait() {
	r.pending.Wait()
}

func (r *Resolver) touch(ctx context.Context, id string, at time.Time) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.touchTimeout)
		defer cancel()
		if err := r.keys.TouchAPIKey(tctx, id, at); err != nil {
			obs.Logger().Warn("api key lastUsed update failed",
				zap.String("api_key_id", id),
				zap.Error(err),
			)
		}
	}()
}

func (r *Resolver) fail(reason string, err error) error {
	obs.AuthFailures.WithLabelValues(reason).Inc()
	return err
}
