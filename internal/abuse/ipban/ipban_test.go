package ipban

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock freezes time and disables timer-driven expiry so tests control
// the decay explicitly.
func manualClock(current *time.Time) []Option {
	return []Option{
		WithClock(func() time.Time { return *current }),
		WithAfterFunc(func(time.Duration, func()) *time.Timer { return nil }),
	}
}

func TestBanAndExpiry(t *testing.T) {
	current := time.Now()
	s := New(manualClock(&current)...)

	s.Ban("203.0.113.7", 15*time.Minute)
	assert.True(t, s.IsBanned("203.0.113.7"))
	assert.False(t, s.IsBanned("203.0.113.8"))

	current = current.Add(16 * time.Minute)
	assert.False(t, s.IsBanned("203.0.113.7"))
}

func TestRebanKeepsLaterExpiry(t *testing.T) {
	current := time.Now()
	s := New(manualClock(&current)...)

	s.Ban("203.0.113.7", 30*time.Minute)
	s.Ban("203.0.113.7", time.Minute)

	current = current.Add(5 * time.Minute)
	assert.True(t, s.IsBanned("203.0.113.7"))
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	current := time.Now()
	s := New(manualClock(&current)...)

	s.Ban("203.0.113.7", time.Minute)
	s.Ban("203.0.113.8", time.Hour)
	current = current.Add(2 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.IsBanned("203.0.113.8"))
}

func TestTimerRemovesEntry(t *testing.T) {
	s := New()
	s.Ban("203.0.113.7", 10*time.Millisecond)
	assert.True(t, s.IsBanned("203.0.113.7"))

	assert.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyIPIgnored(t *testing.T) {
	s := New()
	s.Ban("", time.Minute)
	assert.Equal(t, 0, s.Len())
}
