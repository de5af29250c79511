package webflow

// SignUpRequest is the body of POST /signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Confirm     string `json:"confirm"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Intent      string `json:"intent"`
}

// SignUpResponse confirms a registration was issued.
type SignUpResponse struct {
	Message string            `json:"message"`
	User    PrincipalSnapshot `json:"user"`
}

// PrincipalSnapshot is the externally visible view of a principal.
type PrincipalSnapshot struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	Username       string  `json:"username,omitempty"`
	DisplayName    string  `json:"display_name,omitempty"`
	Intent         string  `json:"intent,omitempty"`
	EmailConfirmed bool    `json:"email_confirmed"`
	ConfirmedAt    *string `json:"confirmed_at,omitempty"`
}

// SignInRequest is the body of POST /signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries the tokens a signed-in client uses afterwards.
type SessionResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresAt    string            `json:"expires_at"`
	User         PrincipalSnapshot `json:"user"`
}

// UsernameCheckResponse is the body of GET /signup/username-check.
type UsernameCheckResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// ForgotPasswordRequest is the body of POST /forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// MessageResponse is a generic success body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ResetClassificationResponse describes what a reset link would do.
type ResetClassificationResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// ResetPasswordRequest is the body of POST /reset-password. Link carries the
// full reset URL the user landed on, including query and fragment.
type ResetPasswordRequest struct {
	Link     string `json:"link"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
