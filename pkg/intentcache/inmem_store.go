package intentcache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore implements Store with in-memory state.
type InMemoryStore struct {
	mu      sync.Mutex
	pending *PendingSignup
	sent    map[string]bool
}

// NewInMemoryStore creates a new in-memory intent cache.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sent: make(map[string]bool),
	}
}

// Save overwrites the pending-signup slot.
func (s *InMemoryStore) Save(ctx context.Context, email, intent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &PendingSignup{
		Email:     email,
		Intent:    intent,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// Take reads and clears the slot.
func (s *InMemoryStore) Take(ctx context.Context) (*PendingSignup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending
	s.pending = nil
	return pending, nil
}

// MarkSent flags that a confirmation link was sent to email.
func (s *InMemoryStore) MarkSent(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent[strings.ToLower(email)] = true
	return nil
}

// WasSent reports whether a link was already sent to email.
func (s *InMemoryStore) WasSent(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sent[strings.ToLower(email)], nil
}

// ClearSent removes the marker for email.
func (s *InMemoryStore) ClearSent(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sent, strings.ToLower(email))
	return nil
}
