// Package domain holds the error taxonomy shared by every component. Packages wrap
// these sentinels with context; the HTTP layer maps them to status codes with errors.Is.
package domain

import "errors"

var (
	// ErrUnauthenticated covers missing, unknown, inactive, revoked or expired credentials.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the principal is known but lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the referenced entity does not exist or was removed.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOperation is returned when an operation would break an invariant.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInvalidInput is returned for malformed or missing request values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidSignature means a provider payload failed its authenticity check.
	ErrInvalidSignature = errors.New("invalid signature")
)
