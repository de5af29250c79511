package provider

import (
	"time"

	"github.com/google/uuid"
)

// AuthEvent identifies a change in authentication state observed on the provider.
type AuthEvent string

const (
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// UserMetadata is the identity metadata attached to a principal at sign-up time.
type UserMetadata struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Intent      string `json:"intent,omitempty"`
}

// Principal is the authenticated identity object held by the provider.
type Principal struct {
	ID               uuid.UUID    `json:"id"`
	Email            string       `json:"email"`
	Metadata         UserMetadata `json:"user_metadata"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Session is an established authentication session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Principal    Principal `json:"user"`
}

// SignUpRequest carries a registration request to the provider.
type SignUpRequest struct {
	Email      string
	Password   string
	Metadata   UserMetadata
	RedirectTo string
}

// UpdateUserRequest carries a partial update for the current principal.
// Nil fields are left untouched.
type UpdateUserRequest struct {
	Password *string
	Metadata *UserMetadata
}

// Subscription is a handle to an auth-event registration.
type Subscription interface {
	Unsubscribe()
}
