package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	sweeps atomic.Int64
}

func (c *countingTarget) Sweep() int {
	c.sweeps.Add(1)
	return 1
}

func TestNewRequiresTargets(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestStartSweepsUntilCancelled(t *testing.T) {
	target := &countingTarget{}
	worker, err := New(map[string]Sweepable{"test": target}, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return target.sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
