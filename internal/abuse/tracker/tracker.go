// Package tracker counts failed operations per entity inside a sliding time
// window. State is process-local and rebuilt from empty on restart; the
// repository remains the source of truth for persistent block flags.
package tracker

import (
	"sync"
	"time"
)

const defaultWindow = 15 * time.Minute

// Key identifies the tracked entity.
type Key struct {
	EntityType string
	EntityID   string
}

// Tracker is a mutex-guarded sliding-window failure counter. Attempts older
// than the window are pruned lazily on each access and in bulk by Sweep.
type Tracker struct {
	mu       sync.Mutex
	window   time.Duration
	attempts map[Key][]time.Time
	now      func() time.Time
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithWindow overrides the sliding-window duration.
func WithWindow(window time.Duration) Option {
	return func(t *Tracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New constructs an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		window:   defaultWindow,
		attempts: make(map[Key][]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordFailure records one failed attempt and returns the post-increment
// count within the window. Returning the incremented count lets the caller
// compare against the threshold atomically; there is no separate
// count-then-increment race.
func (t *Tracker) RecordFailure(key Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	pruned := t.pruneLocked(key, now)
	pruned = append(pruned, now)
	t.attempts[key] = pruned
	return len(pruned)
}

// Count returns the number of failures within the window.
func (t *Tracker) Count(key Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	pruned := t.pruneLocked(key, t.now())
	if len(pruned) == 0 {
		delete(t.attempts, key)
		return 0
	}
	t.attempts[key] = pruned
	return len(pruned)
}

// Clear wipes the window for a key. Called on any successful authentication;
// this is the sole reset path.
func (t *Tracker) Clear(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, key)
}

// Sweep prunes all expired entries in bulk and returns the number of keys
// removed entirely. Driven by the periodic cleanup worker.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for key := range t.attempts {
		pruned := t.pruneLocked(key, now)
		if len(pruned) == 0 {
			delete(t.attempts, key)
			removed++
			continue
		}
		t.attempts[key] = pruned
	}
	return removed
}

// pruneLocked drops attempts older than the window. Caller must hold the lock.
func (t *Tracker) pruneLocked(key Key, now time.Time) []time.Time {
	cutoff := now.Add(-t.window)
	timestamps := t.attempts[key]
	i := 0
	for ; i < len(timestamps); i++ {
		if timestamps[i].After(cutoff) {
			break
		}
	}
	return timestamps[i:]
}
