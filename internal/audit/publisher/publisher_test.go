package publisher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestgate/internal/audit"
)

type failingStore struct {
	calls atomic.Int32
}

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.calls.Add(1)
	return errors.New("store down")
}

func TestRecordSync(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := New(store)

	p.Record(context.Background(), audit.Event{Action: audit.ActionProbeDetected})

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionProbeDetected, events[0].Action)
	assert.Equal(t, audit.SeverityInfo, events[0].Severity)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestRecordAsyncDrainsOnClose(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := New(store, WithAsyncBuffer(16))

	for i := 0; i < 5; i++ {
		p.Record(context.Background(), audit.Event{Action: audit.ActionIPBanned, Severity: audit.SeverityCritical})
	}
	p.Close()

	assert.Len(t, store.Events(), 5)
}

func TestRecordNeverPropagatesStoreFailure(t *testing.T) {
	store := &failingStore{}
	p := New(store)

	assert.NotPanics(t, func() {
		p.Record(context.Background(), audit.Event{Action: audit.ActionSignup})
	})
	// initial attempt plus bounded retries
	assert.Equal(t, int32(persistRetries+1), store.calls.Load())
}

func TestRecordSurvivesCancelledContext(t *testing.T) {
	store := audit.NewInMemoryStore()
	p := New(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Record(ctx, audit.Event{Action: audit.ActionLogin})

	require.Eventually(t, func() bool {
		return len(store.Events()) == 1
	}, time.Second, 10*time.Millisecond)
}
