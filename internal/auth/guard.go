package auth

import "context"

// Authorizer decides whether a resolved principal holds a permission.
type Authorizer interface {
	Authorize(ctx context.Context, ac AuthContext, perm string) error
}

// Guard gates an operation behind one permission. It reads the principal from
// the context and never mutates state.
type Guard struct {
	authz Authorizer
	perm  string
}

// NewGuard returns a gate for perm.
func NewGuard(authz Authorizer, perm string) Guard {
	return Guard{authz: authz, perm: perm}
}

// Permission returns the permission the guard enforces.
func (g Guard) Permission() string { return g.perm }

// Allow returns nil when the principal in ctx may proceed.
func (g Guard) Allow(ctx context.Context) error {
	ac, ok := FromContext(ctx)
	if !ok {
		return ErrMissingCredentials
	}
	return g.authz.Authorize(ctx, ac, g.perm)
}
