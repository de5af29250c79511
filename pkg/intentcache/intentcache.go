package intentcache

import (
	"context"
	"time"
)

// PendingSignup is the record of an in-progress registration's chosen intent,
// bridging the gap between account creation and email confirmation. A store
// holds at most one: a second concurrent sign-up overwrites the first.
type PendingSignup struct {
	Email     string    `json:"email"`
	Intent    string    `json:"intent"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the local intent cache: the single pending-signup slot plus the
// per-email "link sent" markers. The markers exist only to suppress duplicate
// "link sent" UI noise; losing one costs a redundant notification, never
// correctness.
type Store interface {
	// Save overwrites the pending-signup slot with a fresh timestamp.
	Save(ctx context.Context, email, intent string) error
	// Take reads and atomically clears the slot. Absent yields (nil, nil).
	Take(ctx context.Context) (*PendingSignup, error)
	// MarkSent flags that a confirmation link was sent to email.
	MarkSent(ctx context.Context, email string) error
	// WasSent reports whether a confirmation link was already sent to email.
	WasSent(ctx context.Context, email string) (bool, error)
	// ClearSent removes the marker for email.
	ClearSent(ctx context.Context, email string) error
}
