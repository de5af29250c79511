package signupflow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultDebounce is how long the checker waits after the last keystroke
// before issuing a remote availability check.
const DefaultDebounce = 500 * time.Millisecond

// minUsernameLength is the shortest username worth checking remotely.
const minUsernameLength = 3

var usernameStrip = regexp.MustCompile(`[^a-z0-9_]`)

// NormalizeUsername lowercases the input and removes every character outside
// [a-z0-9_]. It is applied on every keystroke, not just on submit.
func NormalizeUsername(raw string) string {
	return usernameStrip.ReplaceAllString(strings.ToLower(raw), "")
}

// Availability is the checker's view of the latest typed username.
type Availability int

const (
	// AvailabilityUnknown means the input is too short or no check has run.
	AvailabilityUnknown Availability = iota
	// AvailabilityChecking means a debounced check is scheduled or in flight.
	AvailabilityChecking
	// AvailabilityAvailable means the latest check confirmed the name is free.
	AvailabilityAvailable
	// AvailabilityTaken means the latest check found the name in use.
	AvailabilityTaken
)

func (a Availability) String() string {
	switch a {
	case AvailabilityChecking:
		return "checking"
	case AvailabilityAvailable:
		return "available"
	case AvailabilityTaken:
		return "taken"
	default:
		return "unknown"
	}
}

// CheckFn resolves whether a username is free on the remote provider.
type CheckFn func(ctx context.Context, username string) (bool, error)

// AvailabilityChecker debounces username availability checks. Each keystroke
// supersedes the previous one: a pending timer is cancelled and an in-flight
// result is discarded unless it matches the latest input.
type AvailabilityChecker struct {
	mu       sync.Mutex
	check    CheckFn
	debounce time.Duration

	// currentUsername is the authenticated user's existing username, if any.
	// Typing it back is treated as available without a remote call.
	currentUsername string

	username string
	status   Availability
	seq      uint64
	timer    *time.Timer
	onResult func(username string, status Availability)
}

// CheckerOption configures an AvailabilityChecker.
type CheckerOption func(*AvailabilityChecker)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) CheckerOption {
	return func(c *AvailabilityChecker) {
		c.debounce = d
	}
}

// WithCurrentUsername sets the username the authenticated user already owns.
func WithCurrentUsername(username string) CheckerOption {
	return func(c *AvailabilityChecker) {
		c.currentUsername = NormalizeUsername(username)
	}
}

// WithResultCallback registers a callback invoked whenever a check settles.
func WithResultCallback(fn func(username string, status Availability)) CheckerOption {
	return func(c *AvailabilityChecker) {
		c.onResult = fn
	}
}

// NewAvailabilityChecker creates a checker backed by the given check
// function.
func NewAvailabilityChecker(check CheckFn, opts ...CheckerOption) *AvailabilityChecker {
	c := &AvailabilityChecker{
		check:    check,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Input feeds a keystroke's worth of username text into the checker and
// returns the normalized value. Inputs shorter than three characters reset
// the status to unknown and never reach the remote provider.
func (c *AvailabilityChecker) Input(ctx context.Context, raw string) string {
	username := NormalizeUsername(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.username = username
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if len(username) < minUsernameLength {
		c.status = AvailabilityUnknown
		return username
	}

	if c.currentUsername != "" && username == c.currentUsername {
		c.status = AvailabilityAvailable
		c.notifyLocked(username)
		return username
	}

	c.status = AvailabilityChecking
	seq := c.seq
	c.timer = time.AfterFunc(c.debounce, func() {
		c.runCheck(ctx, seq, username)
	})
	return username
}

// Status returns the checker's state for the latest input.
func (c *AvailabilityChecker) Status() (string, Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.status
}

// Close cancels any pending debounced check.
func (c *AvailabilityChecker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *AvailabilityChecker) runCheck(ctx context.Context, seq uint64, username string) {
	available, err := c.check(ctx, username)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		// A newer keystroke superseded this check.
		return
	}
	if err != nil {
		slog.Error("Failed to check username availability", "username", username, "error", err)
		c.status = AvailabilityUnknown
		c.notifyLocked(username)
		return
	}
	if available {
		c.status = AvailabilityAvailable
	} else {
		c.status = AvailabilityTaken
	}
	c.notifyLocked(username)
}

func (c *AvailabilityChecker) notifyLocked(username string) {
	if c.onResult != nil {
		c.onResult(username, c.status)
	}
}
