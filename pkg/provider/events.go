package provider

import (
	"sync"

	"github.com/google/uuid"
)

// eventHub fans auth events out to registered callbacks. Dispatch happens
// synchronously on the caller's goroutine after the state change is committed,
// so a callback always observes the post-event provider state.
type eventHub struct {
	mu        sync.RWMutex
	callbacks map[uuid.UUID]func(AuthEvent, *Session)
}

func newEventHub() *eventHub {
	return &eventHub{
		callbacks: make(map[uuid.UUID]func(AuthEvent, *Session)),
	}
}

func (h *eventHub) subscribe(fn func(AuthEvent, *Session)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	h.callbacks[id] = fn
	return &hubSubscription{hub: h, id: id}
}

func (h *eventHub) emit(event AuthEvent, session *Session) {
	h.mu.RLock()
	fns := make([]func(AuthEvent, *Session), 0, len(h.callbacks))
	for _, fn := range h.callbacks {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

type hubSubscription struct {
	hub  *eventHub
	id   uuid.UUID
	once sync.Once
}

func (s *hubSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.callbacks, s.id)
	})
}
