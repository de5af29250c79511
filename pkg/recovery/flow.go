package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ventura-app/ventura-auth/pkg/provider"
	"github.com/ventura-app/ventura-auth/pkg/sessionprobe"
)

// Validation messages surfaced inline on the password form.
const (
	MsgPasswordTooShort = "Password must be 6+ characters."
	MsgPasswordMismatch = "Passwords do not match."
)

const minPasswordLength = 6

// ErrNotReady is returned when a password update is submitted outside the
// Ready state.
var ErrNotReady = errors.New("recovery flow is not ready for a password update")

// ValidationError is a locally recovered password-form error; it is surfaced
// inline and never reaches the provider.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// State is the recovery flow's position.
type State int

const (
	// StatePreparing covers classification and token exchange.
	StatePreparing State = iota
	// StateReady gates the password-update form behind a validated session.
	StateReady
	// StateSaving covers an in-flight password update.
	StateSaving
	// StateDone is reached after a successful update.
	StateDone
	// StateInvalid is terminal and reachable only from Preparing.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateDone:
		return "done"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Flow drives the password-recovery flow. Two independent triggers can move it
// out of Preparing: the synchronous classification run by Start, and the
// provider's asynchronous password-recovery event. Both funnel into the same
// transition functions, which are no-ops once the state has advanced, so
// whichever fires first wins by construction.
type Flow struct {
	mu      sync.Mutex
	state   State
	message string

	client provider.Client
	probe  *sessionprobe.Probe
	sub    provider.Subscription

	navigate         func(route string)
	landingRoute     string
	requestLinkRoute string
}

// FlowOption is a functional option for configuring a Flow.
type FlowOption func(*Flow)

// WithNavigator sets the navigation callback used on completion and for the
// request-new-link action.
func WithNavigator(navigate func(route string)) FlowOption {
	return func(f *Flow) {
		f.navigate = navigate
	}
}

// WithLandingRoute sets the route navigated to after a successful update.
func WithLandingRoute(route string) FlowOption {
	return func(f *Flow) {
		f.landingRoute = route
	}
}

// WithRequestLinkRoute sets the route of the request-new-link screen.
func WithRequestLinkRoute(route string) FlowOption {
	return func(f *Flow) {
		f.requestLinkRoute = route
	}
}

// NewFlow creates a recovery flow in Preparing.
func NewFlow(client provider.Client, probe *sessionprobe.Probe, opts ...FlowOption) *Flow {
	f := &Flow{
		state:            StatePreparing,
		client:           client,
		probe:            probe,
		navigate:         func(string) {},
		landingRoute:     "/dashboard",
		requestLinkRoute: "/forgot-password",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start subscribes to the provider's recovery event and runs the synchronous
// classification of rawURL, performing whichever exchange the link calls for.
// Exchange failures fall through: code first, then the legacy pair, then
// Invalid. There is no automatic retry.
func (f *Flow) Start(ctx context.Context, rawURL string) {
	// Subscribe before classifying so the async event cannot slip between the
	// session check and the exchange.
	f.sub = f.probe.OnAuthEvent(func(event provider.AuthEvent, _ *provider.Session) {
		if event == provider.EventPasswordRecovery {
			f.markReady()
		}
	})

	params := ParseParams(rawURL)

	// Explicit provider rejection in the URL is terminal.
	if params.Error != "" || params.ErrorCode != "" {
		f.markInvalid(invalidMessage(params))
		return
	}

	// An existing session means the exchange already happened, possibly via
	// the async event.
	session, err := f.probe.CurrentSession(ctx)
	if err != nil {
		slog.Error("Failed to read session during recovery", "error", err)
	}
	if session != nil {
		f.markReady()
		return
	}

	if params.Code != "" {
		if _, err := f.client.ExchangeCodeForSession(ctx, params.Code); err == nil {
			f.markReady()
			return
		} else {
			slog.Warn("Recovery code exchange failed", "error", err)
		}
	}

	if params.AccessToken != "" && params.RefreshToken != "" {
		if _, err := f.client.SetSession(ctx, params.AccessToken, params.RefreshToken); err == nil {
			f.markReady()
			return
		} else {
			slog.Warn("Recovery token-pair exchange failed", "error", err)
		}
	}

	f.markInvalid(GenericInvalidMessage)
}

// SubmitPassword validates and saves the new password. Validation failures
// and provider rejections leave the flow in Ready with an inline message, so
// the user can retry without requesting a new link.
func (f *Flow) SubmitPassword(ctx context.Context, password, confirm string) error {
	if len(password) < minPasswordLength {
		f.setInlineError(MsgPasswordTooShort)
		return ValidationError{Message: MsgPasswordTooShort}
	}
	if password != confirm {
		f.setInlineError(MsgPasswordMismatch)
		return ValidationError{Message: MsgPasswordMismatch}
	}

	if !f.beginSaving() {
		return ErrNotReady
	}

	if _, err := f.client.UpdateUser(ctx, provider.UpdateUserRequest{Password: &password}); err != nil {
		slog.Error("Password update failed", "error", err)
		f.saveFailed(err.Error())
		return err
	}

	f.complete()
	return nil
}

// RequestNewLink navigates to the request-new-link screen; it is the single
// action offered from Invalid.
func (f *Flow) RequestNewLink() {
	f.navigate(f.requestLinkRoute)
}

// State returns the current state and any inline message.
func (f *Flow) State() (State, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.message
}

// Close unsubscribes from the provider's auth events. It must be called on
// teardown so no transition fires afterwards.
func (f *Flow) Close() {
	if f.sub != nil {
		f.sub.Unsubscribe()
	}
}

// markReady moves Preparing to Ready; from any other state it is a no-op,
// which is what makes the dual-trigger race harmless.
func (f *Flow) markReady() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePreparing {
		return
	}
	f.state = StateReady
	f.message = ""
}

// markInvalid moves Preparing to Invalid; Invalid is unreachable from any
// advanced state.
func (f *Flow) markInvalid(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePreparing {
		return
	}
	f.state = StateInvalid
	f.message = message
}

func (f *Flow) beginSaving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateReady {
		return false
	}
	f.state = StateSaving
	f.message = ""
	return true
}

func (f *Flow) saveFailed(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateSaving {
		return
	}
	f.state = StateReady
	f.message = message
}

func (f *Flow) complete() {
	f.mu.Lock()
	if f.state != StateSaving {
		f.mu.Unlock()
		return
	}
	f.state = StateDone
	f.mu.Unlock()

	f.navigate(f.landingRoute)
}

func (f *Flow) setInlineError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Only meaningful while the form is visible.
	if f.state == StateReady {
		f.message = message
	}
}
