// Package ipban maintains the set of temporarily banned source addresses.
// Entries self-expire via deferred timers; state is process-local and decays
// automatically.
package ipban

import (
	"sync"
	"time"
)

// Set is a concurrency-safe banned-IP set with per-entry expiry.
type Set struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	// afterFunc schedules the deferred removal; swapped in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// Option configures the Set.
type Option func(*Set)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Set) {
		s.now = now
	}
}

// WithAfterFunc overrides timer scheduling for tests.
func WithAfterFunc(f func(d time.Duration, fn func()) *time.Timer) Option {
	return func(s *Set) {
		s.afterFunc = f
	}
}

// New constructs an empty banned-IP set.
func New(opts ...Option) *Set {
	s := &Set{
		entries:   make(map[string]time.Time),
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ban bans an address for the given duration. Re-banning extends the expiry
// if the new one is later. The entry removes itself when it expires, so no
// cron scan is needed for correctness; Sweep only reclaims stragglers.
func (s *Set) Ban(ip string, duration time.Duration) {
	if ip == "" || duration <= 0 {
		return
	}
	expiry := s.now().Add(duration)

	s.mu.Lock()
	if existing, ok := s.entries[ip]; ok && existing.After(expiry) {
		s.mu.Unlock()
		return
	}
	s.entries[ip] = expiry
	s.mu.Unlock()

	s.afterFunc(duration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// a later re-ban may have extended the entry
		if exp, ok := s.entries[ip]; ok && !exp.After(s.now()) {
			delete(s.entries, ip)
		}
	})
}

// IsBanned reports whether the address is banned and not yet expired.
func (s *Set) IsBanned(ip string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiry, ok := s.entries[ip]
	return ok && expiry.After(s.now())
}

// Len returns the number of entries, expired or not.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes expired entries in bulk and returns how many were dropped.
func (s *Set) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for ip, expiry := range s.entries {
		if !expiry.After(now) {
			delete(s.entries, ip)
			removed++
		}
	}
	return removed
}
