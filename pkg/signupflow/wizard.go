package signupflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/ventura-app/ventura-auth/pkg/intentcache"
	"github.com/ventura-app/ventura-auth/pkg/provider"
)

// Step identifies the wizard's position. Steps advance linearly; going back
// keeps the data already collected.
type Step int

const (
	// StepCredentials collects email, password, and confirmation.
	StepCredentials Step = iota
	// StepIdentity collects display name, username, and intent.
	StepIdentity
	// StepConfirm has issued (or retries) the registration call and waits
	// for the emailed confirmation link.
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepCredentials:
		return "credentials"
	case StepIdentity:
		return "identity"
	case StepConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether the trimmed input matches the intentionally
// loose email shape check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// Wizard drives the three step registration flow against the auth provider.
// It is safe for use from a single goroutine plus the checker's timer
// goroutine; all state is guarded by one mutex.
type Wizard struct {
	mu      sync.Mutex
	client  provider.Client
	cache   intentcache.Store
	checker *AvailabilityChecker

	step        Step
	email       string
	password    string
	username    string
	displayName string
	intent      string

	notice      string
	inlineError string

	// confirmRedirect is where the provider sends the user after the emailed
	// confirmation link is clicked.
	confirmRedirect string
}

// WizardOption configures a Wizard.
type WizardOption func(*Wizard)

// WithConfirmRedirect sets the redirect target attached to the registration
// call, typically "<origin>/auth/callback?next=/dashboard".
func WithConfirmRedirect(url string) WizardOption {
	return func(w *Wizard) {
		w.confirmRedirect = url
	}
}

// WithAvailabilityChecker replaces the default checker, mainly so tests can
// shorten the debounce.
func WithAvailabilityChecker(checker *AvailabilityChecker) WizardOption {
	return func(w *Wizard) {
		w.checker = checker
	}
}

// NewWizard creates a wizard starting at the credentials step. The check
// function for usernames defaults to asking the cache-free provider path via
// checkFn; pass one built on the profiles service.
func NewWizard(client provider.Client, cache intentcache.Store, checkFn CheckFn, opts ...WizardOption) *Wizard {
	w := &Wizard{
		client: client,
		cache:  cache,
		step:   StepCredentials,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.checker == nil {
		w.checker = NewAvailabilityChecker(checkFn)
	}
	return w
}

// Step returns the wizard's current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Notice returns the current user-facing notice and inline error, if any.
func (w *Wizard) Notice() (notice, inlineError string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notice, w.inlineError
}

// Checker exposes the username availability checker for keystroke feeding.
func (w *Wizard) Checker() *AvailabilityChecker {
	return w.checker
}

// SubmitCredentials validates the first step and advances to identity.
func (w *Wizard) SubmitCredentials(email, password, confirm string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepCredentials {
		return ErrWrongStep
	}

	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return w.failLocked(MsgInvalidEmail)
	}
	if len(password) < 6 {
		return w.failLocked(MsgPasswordTooShort)
	}
	if confirm == "" || confirm != password {
		return w.failLocked(MsgPasswordMismatch)
	}

	w.email = email
	w.password = password
	w.inlineError = ""
	w.step = StepIdentity
	return nil
}

// SubmitIdentity validates the second step and advances to confirmation.
// The username must already have settled as available in the checker;
// advancing is blocked while a check is pending.
func (w *Wizard) SubmitIdentity(displayName, username, intent string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepIdentity {
		return ErrWrongStep
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return w.failLocked(MsgDisplayNameRequired)
	}

	username = NormalizeUsername(username)
	if len(username) < minUsernameLength {
		return w.failLocked(MsgUsernameTooShort)
	}

	checked, status := w.checker.Status()
	if checked != username || status == AvailabilityChecking || status == AvailabilityUnknown {
		return w.failLocked(MsgAvailabilityPending)
	}
	if status == AvailabilityTaken {
		return w.failLocked(MsgUsernameUnavailable)
	}

	w.displayName = displayName
	w.username = username
	w.intent = strings.TrimSpace(intent)
	w.inlineError = ""
	w.step = StepConfirm
	return nil
}

// Back moves one step toward credentials, keeping collected data.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepCredentials {
		w.step--
	}
	w.notice = ""
	w.inlineError = ""
}

// Register issues the registration call for the confirmation step. It first
// records the pending sign-up locally: even if the call itself times out the
// user may still receive and click the email, and finalization needs the
// intent. An already-registered conflict resets to a sign-in-instead notice
// and returns ErrAlreadyRegistered; any other error keeps the step
// retryable.
func (w *Wizard) Register(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepConfirm {
		w.mu.Unlock()
		return ErrWrongStep
	}
	email, password := w.email, w.password
	meta := provider.UserMetadata{
		Username:    w.username,
		DisplayName: w.displayName,
		Intent:      w.intent,
	}
	redirect := w.confirmRedirect
	w.notice = ""
	w.inlineError = ""
	w.mu.Unlock()

	if err := w.cache.Save(ctx, email, meta.Intent); err != nil {
		// The registration still goes out; finalization falls back to the
		// principal's own metadata when the cache record is missing.
		slog.Warn("Failed to record pending signup", "email", email, "error", err)
	}

	_, err := w.client.SignUp(ctx, provider.SignUpRequest{
		Email:      email,
		Password:   password,
		Metadata:   meta,
		RedirectTo: redirect,
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if IsRegisteredConflict(err) {
			w.notice = SignInInsteadNotice
			return ErrAlreadyRegistered
		}
		slog.Error("Failed to register user", "email", email, "error", err)
		w.inlineError = err.Error()
		return err
	}

	if err := w.cache.MarkSent(ctx, email); err != nil {
		slog.Warn("Failed to mark confirmation link as sent", "email", email, "error", err)
	}
	return nil
}

// Resend re-issues the registration call. The provider treats a repeat
// sign-up for an unconfirmed email as a confirmation resend.
func (w *Wizard) Resend(ctx context.Context) error {
	return w.Register(ctx)
}

// Close releases the availability checker's pending timer.
func (w *Wizard) Close() {
	w.checker.Close()
}

func (w *Wizard) failLocked(msg string) error {
	w.inlineError = msg
	return ValidationError{Message: msg}
}
