package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps audit events in memory. Used by tests and as the
// fallback sink when no database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of recorded events.
func (s *InMemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByAction returns recorded events matching the given action.
func (s *InMemoryStore) ByAction(action string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
