package reqwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	s := New()
	for i := 1; i <= 5; i++ {
		allowed, count := s.Allow("203.0.113.7", 5, time.Minute)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count := s.Allow("203.0.113.7", 5, time.Minute)
	assert.False(t, allowed)
	assert.Equal(t, 6, count)
}

func TestWindowSlides(t *testing.T) {
	current := time.Now()
	s := New(WithClock(func() time.Time { return current }))

	for i := 0; i < 3; i++ {
		s.Allow("ip", 3, time.Minute)
	}
	allowed, _ := s.Allow("ip", 3, time.Minute)
	assert.False(t, allowed)

	current = current.Add(61 * time.Second)
	allowed, count := s.Allow("ip", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)
}

func TestSweepDropsIdleKeys(t *testing.T) {
	current := time.Now()
	s := New(WithClock(func() time.Time { return current }))

	s.Allow("idle", 10, time.Minute)
	current = current.Add(2 * time.Minute)
	s.Allow("busy", 10, time.Minute)

	assert.Equal(t, 1, s.Sweep())
}
