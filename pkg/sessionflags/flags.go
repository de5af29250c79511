package sessionflags

import "sync"

// Well-known flag keys.
const (
	// RedirectedAfterConfirm guards the finalization reconciler's one
	// automatic redirect per session.
	RedirectedAfterConfirm = "redirected_after_confirm"
	// SeenLoader records that the intro loading screen already played.
	SeenLoader = "seen_loader"
)

// Store is an explicit session-lifetime key-value store. It starts empty when
// a session begins and is dropped with it; flags change only through explicit
// Set/Clear calls, never by inference. It replaces ambient globals: consumers
// receive the store as a dependency.
type Store struct {
	mu    sync.RWMutex
	flags map[string]string
}

// NewStore creates an empty session flag store.
func NewStore() *Store {
	return &Store{flags: make(map[string]string)}
}

// Set stores value under key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
}

// Get returns the value under key and whether it is present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.flags[key]
	return value, ok
}

// IsSet reports whether key holds any value.
func (s *Store) IsSet(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Clear removes key.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
}
