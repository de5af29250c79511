// Package finalize merges deferred sign-up data into the user's permanent
// profile once their identity is confirmed, then performs at most one
// automatic redirect to the landing route per session.
package finalize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ventura-app/ventura-auth/pkg/intentcache"
	"github.com/ventura-app/ventura-auth/pkg/profiles"
	"github.com/ventura-app/ventura-auth/pkg/sessionflags"
	"github.com/ventura-app/ventura-auth/pkg/sessionprobe"
)

// DefaultLandingRoute is where a finalized user is sent.
const DefaultLandingRoute = "/dashboard"

// defaultRecoveryRoutes are routes finalization must never redirect away
// from: an in-progress password recovery takes precedence.
var defaultRecoveryRoutes = []string{"/reset-password", "/forgot-password"}

// Outcome reports what a reconciliation pass did, mainly for tests and
// request logging.
type Outcome struct {
	// IntentSaved is true when a profile intent write was performed.
	IntentSaved bool
	// Redirected is true when the pass asked for a navigation.
	Redirected bool
	// Reason is a short machine-readable tag for why the pass stopped.
	Reason string
}

// Reconciler runs the post-confirmation finalization pass. It is invoked on
// every route render and is idempotent: repeat invocations after a completed
// pass do nothing.
type Reconciler struct {
	probe    *sessionprobe.Probe
	cache    intentcache.Store
	profiles *profiles.Service
	flags    *sessionflags.Store

	landingRoute   string
	recoveryRoutes []string
	navigate       func(route string)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLandingRoute overrides the landing route.
func WithLandingRoute(route string) Option {
	return func(r *Reconciler) {
		r.landingRoute = route
	}
}

// WithRecoveryRoutes overrides the routes finalization must not touch.
func WithRecoveryRoutes(routes ...string) Option {
	return func(r *Reconciler) {
		r.recoveryRoutes = routes
	}
}

// WithNavigator sets the navigation callback.
func WithNavigator(navigate func(route string)) Option {
	return func(r *Reconciler) {
		r.navigate = navigate
	}
}

// NewReconciler wires a Reconciler.
func NewReconciler(probe *sessionprobe.Probe, cache intentcache.Store, profileService *profiles.Service, flags *sessionflags.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		probe:          probe,
		cache:          cache,
		profiles:       profileService,
		flags:          flags,
		landingRoute:   DefaultLandingRoute,
		recoveryRoutes: defaultRecoveryRoutes,
		navigate:       func(string) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one reconciliation pass for the given current route.
func (r *Reconciler) Run(ctx context.Context, route string) (Outcome, error) {
	// Never redirect away from an in-progress recovery.
	for _, recovery := range r.recoveryRoutes {
		if route == recovery {
			r.flags.Clear(sessionflags.RedirectedAfterConfirm)
			return Outcome{Reason: "recovery route"}, nil
		}
	}

	if r.flags.IsSet(sessionflags.RedirectedAfterConfirm) {
		return Outcome{Reason: "already redirected"}, nil
	}

	session, err := r.probe.CurrentSession(ctx)
	if err != nil {
		return Outcome{Reason: "session check failed"}, fmt.Errorf("failed to read session: %w", err)
	}
	if session == nil {
		return Outcome{Reason: "no session"}, nil
	}
	user := session.Principal

	// Same-device path: the pending record left behind by the wizard.
	var intent string
	pending, err := r.cache.Take(ctx)
	if err != nil {
		slog.Warn("Failed to read pending signup", "error", err)
	}
	if pending != nil {
		intent = pending.Intent
		if err := r.cache.ClearSent(ctx, pending.Email); err != nil {
			slog.Warn("Failed to clear sent-link marker", "email", pending.Email, "error", err)
		}
	}

	// Cross-device fallback: confirmation may happen on a machine that never
	// saw the sign-up, so the metadata attached at registration carries it.
	if intent == "" {
		intent = user.Metadata.Intent
	}

	outcome := Outcome{}
	if intent != "" {
		if err := r.profiles.SaveIntentFromSignup(ctx, user.ID, intent); err != nil {
			// Abort without the guard so the next load retries instead of
			// silently losing the intent.
			slog.Error("Failed to save profile intent", "user_id", user.ID, "error", err)
			return Outcome{Reason: "profile write failed"}, err
		}
		outcome.IntentSaved = true
	}

	if route == r.landingRoute {
		outcome.Reason = "already on landing route"
		return outcome, nil
	}

	r.flags.Set(sessionflags.RedirectedAfterConfirm, "1")
	r.navigate(r.landingRoute)
	outcome.Redirected = true
	outcome.Reason = "redirected"
	return outcome, nil
}
