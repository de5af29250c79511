package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]Profile
}

// NewInMemoryRepository creates a new in-memory profile repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles: make(map[uuid.UUID]Profile),
	}
}

// Get retrieves a profile by user id.
func (r *InMemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := profile
	return &out, nil
}

// FindByUsername retrieves a profile by exact username.
func (r *InMemoryRepository) FindByUsername(ctx context.Context, username string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, profile := range r.profiles {
		if profile.Username == username {
			out := profile
			return &out, nil
		}
	}
	return nil, ErrProfileNotFound
}

// Upsert inserts or updates a profile, conflict-safe on id.
func (r *InMemoryRepository) Upsert(ctx context.Context, params UpsertParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	profile, ok := r.profiles[params.ID]
	if !ok {
		profile = Profile{ID: params.ID, CreatedAt: now}
	}

	if params.Username != "" {
		profile.Username = params.Username
	}
	if params.DisplayName != "" {
		profile.DisplayName = params.DisplayName
	}
	if params.Intent != "" {
		profile.Intent = params.Intent
	}
	profile.UpdatedAt = now

	r.profiles[params.ID] = profile
	return nil
}

// Delete removes a profile.
func (r *InMemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return ErrProfileNotFound
	}
	delete(r.profiles, id)
	return nil
}
