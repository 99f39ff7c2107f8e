// Package netctl talks to the external network controller that actually
// opens and closes the firewall for guest devices. Calls are best-effort
// relative to the local authorization decision: a controller failure is
// logged and reported to the caller, never surfaced to the guest.
package netctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"guestgate/pkg/domain"
)

const defaultTimeout = 10 * time.Second

// Controller authorizes, blocks, and unblocks devices on the network edge.
type Controller interface {
	AuthorizeDevice(ctx context.Context, mac domain.MAC, durationSeconds int, quotaBytes int64) error
	BlockDevice(ctx context.Context, mac domain.MAC, reason string) error
	UnblockDevice(ctx context.Context, mac domain.MAC) error
}

// Client is the HTTP controller implementation.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.http.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type authorizePayload struct {
	MAC             string `json:"mac"`
	DurationSeconds int    `json:"duration_seconds"`
	QuotaBytes      int64  `json:"quota_bytes,omitempty"`
}

type blockPayload struct {
	MAC    string `json:"mac"`
	Reason string `json:"reason,omitempty"`
}

type devicePayload struct {
	MAC string `json:"mac"`
}

func (c *Client) AuthorizeDevice(ctx context.Context, mac domain.MAC, durationSeconds int, quotaBytes int64) error {
	return c.post(ctx, "/api/v1/devices/authorize", authorizePayload{
		MAC:             mac.String(),
		DurationSeconds: durationSeconds,
		QuotaBytes:      quotaBytes,
	})
}

func (c *Client) BlockDevice(ctx context.Context, mac domain.MAC, reason string) error {
	return c.post(ctx, "/api/v1/devices/block", blockPayload{MAC: mac.String(), Reason: reason})
}

func (c *Client) UnblockDevice(ctx context.Context, mac domain.MAC) error {
	return c.post(ctx, "/api/v1/devices/unblock", devicePayload{MAC: mac.String()})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("controller call %s: %w", path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("controller call %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// Noop is a controller that accepts everything. Used in development and in
// deployments where the gateway itself enforces access.
type Noop struct{}

func (Noop) AuthorizeDevice(context.Context, domain.MAC, int, int64) error { return nil }
func (Noop) BlockDevice(context.Context, domain.MAC, string) error         { return nil }
func (Noop) UnblockDevice(context.Context, domain.MAC) error               { return nil }

// Verify interfaces are satisfied.
var (
	_ Controller = (*Client)(nil)
	_ Controller = Noop{}
)
