package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordFailureReturnsPostIncrementCount(t *testing.T) {
	tr := New()
	key := Key{EntityType: "device", EntityID: "aa:bb:cc:dd:ee:ff"}

	assert.Equal(t, 1, tr.RecordFailure(key))
	assert.Equal(t, 2, tr.RecordFailure(key))
	assert.Equal(t, 3, tr.RecordFailure(key))
	assert.Equal(t, 3, tr.Count(key))
}

func TestKeysAreIndependent(t *testing.T) {
	tr := New()
	a := Key{EntityType: "device", EntityID: "aa:aa:aa:aa:aa:aa"}
	b := Key{EntityType: "user", EntityID: "guest@example.com"}

	tr.RecordFailure(a)
	tr.RecordFailure(a)
	tr.RecordFailure(b)

	assert.Equal(t, 2, tr.Count(a))
	assert.Equal(t, 1, tr.Count(b))
}

func TestClearRestartsCount(t *testing.T) {
	tr := New()
	key := Key{EntityType: "user", EntityID: "guest@example.com"}

	tr.RecordFailure(key)
	tr.RecordFailure(key)
	tr.RecordFailure(key)
	tr.Clear(key)

	// the next failure starts a fresh window at 1
	assert.Equal(t, 1, tr.RecordFailure(key))
}

func TestWindowExpiryPrunesOldAttempts(t *testing.T) {
	current := time.Now()
	tr := New(WithWindow(15*time.Minute), WithClock(func() time.Time { return current }))
	key := Key{EntityType: "device", EntityID: "aa:bb:cc:dd:ee:ff"}

	tr.RecordFailure(key)
	tr.RecordFailure(key)

	current = current.Add(16 * time.Minute)
	assert.Equal(t, 0, tr.Count(key))
	assert.Equal(t, 1, tr.RecordFailure(key))
}

func TestSweepRemovesExpiredKeys(t *testing.T) {
	current := time.Now()
	tr := New(WithWindow(time.Minute), WithClock(func() time.Time { return current }))

	tr.RecordFailure(Key{EntityType: "device", EntityID: "old"})
	current = current.Add(2 * time.Minute)
	tr.RecordFailure(Key{EntityType: "device", EntityID: "fresh"})

	removed := tr.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tr.Count(Key{EntityType: "device", EntityID: "fresh"}))
}

func TestConcurrentRecordingLosesNothing(t *testing.T) {
	tr := New()
	key := Key{EntityType: "device", EntityID: "aa:bb:cc:dd:ee:ff"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.RecordFailure(key)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Count(key))
}
