package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Profile is the application-side record for one user, keyed by the
// provider's user id.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertParams carries an insert-or-update request. Empty fields leave the
// stored values alone; the conflict key is the profile id.
type UpsertParams struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	Intent      string
}

// Repository defines profile storage operations.
type Repository interface {
	// Get retrieves a profile by user id.
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
	// FindByUsername retrieves a profile by exact username.
	FindByUsername(ctx context.Context, username string) (*Profile, error)
	// Upsert inserts or updates a profile, conflict-safe on id.
	Upsert(ctx context.Context, params UpsertParams) error
	// Delete removes a profile.
	Delete(ctx context.Context, id uuid.UUID) error
}
