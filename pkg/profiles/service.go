package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service provides profile operations on top of a Repository. It owns the
// intent invariant: intent is set at most once automatically (by the
// finalization reconciler) and after that changes only through an explicit
// user edit.
type Service struct {
	repository Repository
}

// NewService creates a new profile Service.
func NewService(repository Repository) *Service {
	return &Service{repository: repository}
}

// SaveIntentFromSignup upserts the deferred sign-up intent into the profile.
// If the profile already carries an intent, the stored value wins and the call
// is a no-op, so repeated reconciliation never overwrites a user's edits.
func (s *Service) SaveIntentFromSignup(ctx context.Context, userID uuid.UUID, intent string) error {
	if intent == "" {
		return nil
	}

	existing, err := s.repository.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		slog.Error("Failed to read profile before intent upsert", "user_id", userID, "error", err)
		return fmt.Errorf("failed to read profile: %w", err)
	}
	if existing != nil && existing.Intent != "" {
		slog.Info("Profile intent already set, skipping automatic write", "user_id", userID)
		return nil
	}

	if err := s.repository.Upsert(ctx, UpsertParams{ID: userID, Intent: intent}); err != nil {
		slog.Error("Profile upsert failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// UpdateProfile applies an explicit user edit; unlike the automatic path it
// may overwrite any field, including intent.
func (s *Service) UpdateProfile(ctx context.Context, params UpsertParams) error {
	if err := s.repository.Upsert(ctx, params); err != nil {
		slog.Error("Failed to update profile", "user_id", params.ID, "error", err)
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// Get retrieves a profile by user id.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repository.Get(ctx, userID)
}

// IsUsernameAvailable reports whether no profile currently holds username.
func (s *Service) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.repository.FindByUsername(ctx, username)
	if errors.Is(err, ErrProfileNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check username availability: %w", err)
	}
	return false, nil
}

// Delete removes a profile; used only on account deletion.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	return s.repository.Delete(ctx, userID)
}
