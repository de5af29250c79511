package provider

import "context"

// Client is the operation set this module consumes from the identity provider.
// The provider is opaque: it owns users, sessions and token delivery. GetSession
// and GetUser return (nil, nil) when no session is established.
type Client interface {
	SignUp(ctx context.Context, req SignUpRequest) (*Principal, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*Principal, error)
	ExchangeCodeForSession(ctx context.Context, code string) (*Session, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (*Principal, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	OnAuthStateChange(fn func(event AuthEvent, session *Session)) Subscription
	SignOut(ctx context.Context) error
}
