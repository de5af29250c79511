package provider

import (
	"errors"
	"fmt"
)

// Common provider errors
var (
	ErrNoSession = errors.New("no active session")
)

// Error codes
const (
	ErrCodeUserAlreadyRegistered = "USER_ALREADY_REGISTERED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeWeakPassword          = "WEAK_PASSWORD"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// AuthError is an explicit rejection from the provider.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ErrAlreadyRegistered reports a sign-up against an existing email. The message
// text matters: callers detect this condition by substring matching, the same
// way the provider's own clients do.
func ErrAlreadyRegistered(email string) *AuthError {
	return &AuthError{
		Code:    ErrCodeUserAlreadyRegistered,
		Message: fmt.Sprintf("User already registered: %s", email),
	}
}
