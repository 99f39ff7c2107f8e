// Package publisher delivers audit events to the configured store without
// ever propagating failures to the caller. Audit is best-effort relative to
// the authorization decision.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"guestgate/internal/audit"
)

const persistRetries = 2

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily. When the
// async buffer is enabled, events are queued and persisted in a background
// goroutine; a full buffer falls back to the local logger rather than
// blocking the request path.
type Publisher struct {
	store  audit.Store
	events chan audit.Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithLogger sets a logger for fallback reporting when persistence fails.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// Record captures an audit event. It never returns an error and never panics;
// callers must be able to treat audit as fire-and-forget.
func (p *Publisher) Record(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}

	if p.async {
		select {
		case p.events <- event:
		default:
			p.logFallback(event, "audit buffer full")
		}
		return
	}

	p.persist(context.WithoutCancel(ctx), event)
}

// processEvents runs in a goroutine and persists events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		p.persist(context.Background(), event)
	}
}

// persist writes the event with bounded retry, logging locally on exhaustion.
func (p *Publisher) persist(ctx context.Context, event audit.Event) {
	var err error
	for attempt := 0; attempt <= persistRetries; attempt++ {
		if err = p.store.Append(ctx, event); err == nil {
			return
		}
	}
	p.logFallback(event, err.Error())
}

func (p *Publisher) logFallback(event audit.Event, reason string) {
	p.logger.Error("audit event dropped to local log",
		"reason", reason,
		"action", event.Action,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID,
		"severity", event.Severity,
		"ip", event.IP,
	)
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

var _ audit.Sink = (*Publisher)(nil)
