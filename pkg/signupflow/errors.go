package signupflow

import (
	"errors"
	"strings"
)

// Inline validation messages surfaced by the wizard steps.
const (
	MsgInvalidEmail        = "Enter a valid email address."
	MsgPasswordTooShort    = "Password must be 6+ characters."
	MsgPasswordMismatch    = "Passwords do not match."
	MsgDisplayNameRequired = "Display name is required."
	MsgUsernameTooShort    = "Username must be 3+ characters."
	MsgUsernameUnavailable = "That username is taken."
	MsgAvailabilityPending = "Still checking username availability."
)

// SignInInsteadNotice is shown when registration reports the email is
// already tied to an account; the step stays re-enterable rather than
// failing.
const SignInInsteadNotice = "This email is already associated with an account. Please sign in instead."

// ErrWrongStep is returned when an operation is invoked on a step the
// wizard is not currently on.
var ErrWrongStep = errors.New("operation does not apply to the current wizard step")

// ErrAlreadyRegistered signals the sign-in-instead case to callers that
// drive the wizard programmatically.
var ErrAlreadyRegistered = errors.New("email is already associated with an account")

// ValidationError is a step-level form error carrying the inline message.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// IsRegisteredConflict reports whether a registration error means the email
// already belongs to an account. Providers word this differently, so the
// match is a case-insensitive substring check.
func IsRegisteredConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already registered") || strings.Contains(msg, "already associated")
}
