package auth

import "context"

// Kind tells which credential produced an AuthContext.
type Kind string

const (
	KindAdmin  Kind = "admin"
	KindAPIKey Kind = "apiKey"
)

// AuthContext is the resolved principal for one request.
// For API keys Permissions holds the coarse set; for admins Role holds the role reference.
type AuthContext struct {
	Kind        Kind
	ID          string
	Role        string
	Permissions []string
}

// IsOwner reports whether the principal is an owner session.
func (ac AuthContext) IsOwner() bool {
	return ac.Kind == KindAdmin && ac.Role == OwnerRole
}

type authContextKey struct{}

// WithContext attaches the resolved principal to ctx.
func WithContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, &ac)
}

// FromContext extracts the principal attached by WithContext.
func FromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	v, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok || v == nil {
		return AuthContext{}, false
	}
	return *v, true
}
