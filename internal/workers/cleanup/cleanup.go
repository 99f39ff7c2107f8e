// Package cleanup hosts the periodic sweeper for the ephemeral abuse-control
// state. The sliding windows prune lazily on access; the sweeper bounds the
// memory of keys that stopped being accessed.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultInterval = 5 * time.Minute

// Sweepable prunes expired entries and reports how many were removed.
type Sweepable interface {
	Sweep() int
}

// Worker periodically sweeps the registered stores.
type Worker struct {
	targets  map[string]Sweepable
	interval time.Duration
	logger   *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithInterval(interval time.Duration) Option {
	return func(w *Worker) { w.interval = interval }
}

func New(targets map[string]Sweepable, opts ...Option) (*Worker, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one sweep target is required")
	}
	w := &Worker{
		targets:  targets,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Start runs the sweep loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("cleanup worker started", "interval", w.interval, "targets", len(w.targets))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			w.sweepAll()
		}
	}
}

func (w *Worker) sweepAll() {
	for name, target := range w.targets {
		if removed := target.Sweep(); removed > 0 {
			w.logger.Debug("swept expired entries", "target", name, "removed", removed)
		}
	}
}
