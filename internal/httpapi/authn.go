package httpapi

import (
	"net/http"
	"strings"

	"idurar.org/internal/auth"
)

const (
	apiKeyHeader = "x-api-key"
	authHeader   = "Authorization"
	bearer       = "Bearer "
)

// protect registers h behind credential resolution and a permission guard.
func (a *API) protect(pattern, perm string, h http.HandlerFunc) {
	guard := auth.NewGuard(a.deps.Resolver, perm)
	a.handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := a.authenticate(r)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		ctx := auth.WithContext(r.Context(), ac)
		if err := guard.Allow(ctx); err != nil {
			writeFailure(w, r, err)
			return
		}
		h(w, r.WithContext(ctx))
	}))
}

// authenticate prefers x-api-key and falls back to a bearer session token.
func (a *API) authenticate(r *http.Request) (auth.AuthContext, error) {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return a.deps.Resolver.ResolveAPIKey(r.Context(), key, r.Method)
	}
	if token, ok := extractBearerToken(r.Header.Get(authHeader)); ok {
		return a.deps.Resolver.ResolveSession(r.Context(), token)
	}
	return a.deps.Resolver.ResolveAPIKey(r.Context(), "", r.Method)
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

func principal(r *http.Request) string {
	if ac, ok := auth.FromContext(r.Context()); ok {
		return ac.ID
	}
	return ""
}
