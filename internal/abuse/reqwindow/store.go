// Package reqwindow implements per-key sliding-window request counting for
// the abuse guard's rate check.
package reqwindow

import (
	"sync"
	"time"
)

// Store tracks request timestamps per key inside a sliding window.
type Store struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

// slidingWindow holds the timestamps for one key.
type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// tryConsume records one request and reports whether the key stayed within
// the limit. The request is recorded even when over the limit so a flood
// keeps the window saturated.
func (sw *slidingWindow) tryConsume(limit int, now time.Time) (allowed bool, count int) {
	sw.cleanupExpired(now)
	sw.timestamps = append(sw.timestamps, now)
	return len(sw.timestamps) <= limit, len(sw.timestamps)
}

func (sw *slidingWindow) cleanupExpired(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New constructs an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records a request for the key and reports whether the key is within
// the limit for the trailing window.
func (s *Store) Allow(key string, limit int, window time.Duration) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.windows[key]
	if !ok {
		sw = &slidingWindow{window: window}
		s.windows[key] = sw
	}
	return sw.tryConsume(limit, s.now())
}

// Sweep drops keys whose windows are fully expired. Returns the number of
// keys removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, sw := range s.windows {
		sw.cleanupExpired(now)
		if len(sw.timestamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
