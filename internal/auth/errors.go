package auth

import (
	"fmt"

	"idurar.org/internal/domain"
)

var (
	ErrMissingCredentials = fmt.Errorf("%w: API key is required", domain.ErrUnauthenticated)
	ErrInvalidKey         = fmt.Errorf("%w: Invalid or inactive API key", domain.ErrUnauthenticated)
	ErrKeyExpired         = fmt.Errorf("%w: API key has expired", domain.ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("%w: invalid session token", domain.ErrUnauthenticated)
	ErrInvalidLogin       = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthenticated)
	ErrUserNotFound       = fmt.Errorf("%w: User not found", domain.ErrForbidden)
	ErrRoleNotFound       = fmt.Errorf("%w: User role not found", domain.ErrForbidden)
	ErrPermissionDenied   = fmt.Errorf("%w: You do not have permission to perform this action", domain.ErrForbidden)
)

func errKeyLacks(perm string) error {
	return fmt.Errorf("%w: API key does not have %s permission", domain.ErrForbidden, perm)
}
