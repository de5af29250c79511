// Package sessionprobe reads authentication state from the provider and
// relays its state-change notifications. It is a read/subscribe-only facade:
// it never mutates provider state itself.
package sessionprobe

import (
	"context"

	"github.com/ventura-app/ventura-auth/pkg/provider"
)

// Probe exposes the current session and auth-event subscriptions.
type Probe struct {
	client provider.Client
}

// New creates a Probe over client.
func New(client provider.Client) *Probe {
	return &Probe{client: client}
}

// CurrentSession returns the active session, or (nil, nil) when there is none.
func (p *Probe) CurrentSession(ctx context.Context) (*provider.Session, error) {
	return p.client.GetSession(ctx)
}

// CurrentUser returns the active session's principal, or (nil, nil).
func (p *Probe) CurrentUser(ctx context.Context) (*provider.Principal, error) {
	return p.client.GetUser(ctx)
}

// OnAuthEvent registers fn for auth events (at least: signed in, token
// refreshed, password recovery). Delivery order relative to synchronous
// page-load code is not guaranteed; consumers must stay idempotent when the
// same condition is observed twice.
func (p *Probe) OnAuthEvent(fn func(event provider.AuthEvent, session *provider.Session)) provider.Subscription {
	return p.client.OnAuthStateChange(fn)
}
