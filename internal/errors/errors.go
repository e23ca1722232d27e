// Package errors defines the caller-visible error taxonomy of the service.
package errors

import (
	"errors"
	"fmt"
)

// Error is a typed, caller-visible failure. Values are compared by identity,
// so the exported sentinels work with errors.Is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Extensions exposes the code in GraphQL error extensions.
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

var (
	ErrInvalidCredentials   = &Error{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	ErrAccountLocked        = &Error{Code: "ACCOUNT_LOCKED", Message: "account locked due to too many failed login attempts"}
	ErrAuthenticationFailed = &Error{Code: "AUTHENTICATION_FAILED", Message: "Authentication failed"}
	ErrNotAuthenticated     = &Error{Code: "NOT_AUTHENTICATED", Message: "Not authenticated"}
	ErrInvalidMode          = &Error{Code: "INVALID_MODE", Message: "Mode must be 'easy' or 'hard'"}
	ErrRateLimited          = &Error{Code: "RATE_LIMITED", Message: "rate limit exceeded"}
	ErrNotFound             = &Error{Code: "NOT_FOUND", Message: "not found"}
	ErrPersistence          = &Error{Code: "PERSISTENCE_FAILURE", Message: "persistence failure"}
)

// Persistence wraps a storage failure so that errors.Is(err, ErrPersistence)
// holds while the original message stays visible. Typed errors and nil pass
// through unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// Invalid reports a malformed argument detected while binding input.
func Invalid(format string, args ...any) error {
	return &Error{Code: "BAD_USER_INPUT", Message: fmt.Sprintf(format, args...)}
}
