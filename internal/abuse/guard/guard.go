// Package guard is the request admission and abuse-control service. It
// decides, for every inbound request, whether the request itself is an
// attack, and escalates repeated failures into entity blocks and temporary
// IP bans.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"guestgate/internal/abuse/ipban"
	"guestgate/internal/abuse/reqwindow"
	"guestgate/internal/abuse/tracker"
	"guestgate/internal/audit"
	"guestgate/internal/models"
	"guestgate/internal/platform/metrics"
	"guestgate/pkg/domain"
)

// Config holds the abuse-control thresholds.
type Config struct {
	MaxFailedAttempts     int
	BanDuration           time.Duration
	RequestsPerWindow     int
	RequestWindow         time.Duration
	MaxRegistrationsPerIP int
	RegistrationWindow    time.Duration
	ControllerTimeout     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailedAttempts:     3,
		BanDuration:           15 * time.Minute,
		RequestsPerWindow:     50,
		RequestWindow:         60 * time.Second,
		MaxRegistrationsPerIP: 5,
		RegistrationWindow:    time.Hour,
		ControllerTimeout:     10 * time.Second,
	}
}

// allowlistPrefixes bypass admission entirely: health checks and static
// assets must stay reachable even under active bans.
var allowlistPrefixes = []string{
	"/healthz",
	"/metrics",
	"/static/",
	"/favicon.ico",
}

// registrationPaths are signup-like paths subject to the registration-abuse
// check.
var registrationPaths = []string{
	"/api/portal/signup",
}

// Blocker applies a persistent block flag to one entity kind. Registered per
// kind so the cascade stays a single polymorphic applyBlock rather than
// near-duplicate per-entity functions.
type Blocker interface {
	Block(ctx context.Context, identifier, reason string) error
}

// EdgeController pushes device blocks to the network edge so a blocked
// device's live session is torn down instead of riding out its grant.
type EdgeController interface {
	BlockDevice(ctx context.Context, mac domain.MAC, reason string) error
}

// DeviceCounter counts recent device registrations per source address.
type DeviceCounter interface {
	CountRegisteredByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
}

// Request is the admission input extracted from the HTTP layer.
type Request struct {
	Method    string
	Path      string
	RawQuery  string
	IP        string
	UserAgent string
}

// Decision is the admission outcome.
type Decision struct {
	Allowed bool
	Reason  string
}

// FailureContext carries request metadata for failed-attempt tracking.
type FailureContext struct {
	IP        string
	UserAgent string
	Detail    string
}

// Service orchestrates suspicious-pattern detection, IP banning, and
// cascading entity blocking.
type Service struct {
	bans       *ipban.Set
	window     *reqwindow.Store
	attempts   *tracker.Tracker
	devices    DeviceCounter
	controller EdgeController
	blockers   map[models.EntityKind]Blocker
	auditor    audit.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	config     Config
	now        func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.config = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDeviceCounter enables the registration-abuse check.
func WithDeviceCounter(devices DeviceCounter) Option {
	return func(s *Service) { s.devices = devices }
}

// WithController enables edge teardown when a device is blocked.
func WithController(controller EdgeController) Option {
	return func(s *Service) { s.controller = controller }
}

func New(bans *ipban.Set, window *reqwindow.Store, attempts *tracker.Tracker, auditor audit.Sink, opts ...Option) (*Service, error) {
	if bans == nil {
		return nil, fmt.Errorf("banned-ip set is required")
	}
	if window == nil {
		return nil, fmt.Errorf("request window store is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt tracker is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit sink is required")
	}

	s := &Service{
		bans:     bans,
		window:   window,
		attempts: attempts,
		auditor:  auditor,
		blockers: make(map[models.EntityKind]Blocker),
		config:   DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// RegisterBlocker wires the block target for one entity kind.
func (s *Service) RegisterBlocker(kind models.EntityKind, blocker Blocker) {
	s.blockers[kind] = blocker
}

// Admit decides whether a request may proceed. Checks run in a fixed order;
// the first failing check determines the rejection reason.
func (s *Service) Admit(ctx context.Context, req Request) Decision {
	for _, prefix := range allowlistPrefixes {
		if strings.HasPrefix(req.Path, prefix) {
			return Decision{Allowed: true}
		}
	}

	if s.bans.IsBanned(req.IP) {
		return s.reject(ctx, req, "ip_banned", nil, false)
	}

	// scan the decoded form: encoded payloads must not slip past the patterns
	target := req.Path
	if req.RawQuery != "" {
		query := req.RawQuery
		if decoded, err := url.QueryUnescape(query); err == nil {
			query = decoded
		}
		target += "?" + query
	}
	if pattern, matched := matchAttackPattern(target); matched {
		return s.reject(ctx, req, "suspicious_pattern", map[string]any{"pattern": pattern, "target": target}, true)
	}

	if allowed, count := s.window.Allow("ip:"+req.IP, s.config.RequestsPerWindow, s.config.RequestWindow); !allowed {
		return s.reject(ctx, req, "rate_limit_exceeded", map[string]any{"count": count}, true)
	}

	if marker, isBot := s.botMarker(req.UserAgent); isBot {
		// log only: blocking here would deny legitimate detection probes
		s.logger.Info("bot user-agent observed",
			"marker", marker,
			"ip", req.IP,
			"path", req.Path,
			"user_agent", req.UserAgent,
		)
	}

	if s.devices != nil && s.isRegistrationPath(req) {
		since := s.now().Add(-s.config.RegistrationWindow)
		count, err := s.devices.CountRegisteredByIPSince(ctx, req.IP, since)
		if err != nil {
			// repository failure on the admission path fails closed
			s.logger.Error("registration-abuse check failed", "error", err, "ip", req.IP)
			return s.reject(ctx, req, "internal_error", nil, false)
		}
		if count >= s.config.MaxRegistrationsPerIP {
			return s.reject(ctx, req, "registration_abuse", map[string]any{"registrations": count}, true)
		}
	}

	return Decision{Allowed: true}
}

// TrackFailedAttempt records one failed operation for the entity and reports
// whether the entity should be blocked. Safe to call unconditionally past
// the threshold: the cascade keeps blocking but only audits the crossing
// failure.
func (s *Service) TrackFailedAttempt(ctx context.Context, identifier string, kind models.EntityKind, fctx FailureContext) bool {
	count := s.attempts.RecordFailure(tracker.Key{EntityType: string(kind), EntityID: identifier})
	if count < s.config.MaxFailedAttempts {
		return false
	}
	s.handleExcessiveFailedAttempts(ctx, identifier, kind, fctx, count)
	return true
}

// ClearFailedAttempts wipes the sliding window for the entity. Called on any
// successful authentication; this is the sole reset path.
func (s *Service) ClearFailedAttempts(identifier string, kind models.EntityKind) {
	s.attempts.Clear(tracker.Key{EntityType: string(kind), EntityID: identifier})
}

// handleExcessiveFailedAttempts blocks the entity, bans the source address,
// and writes a critical audit entry. Over-logging past the threshold is
// acceptable; under-blocking is not, so the block and ban repeat on every
// call while the audit entry is only emitted on the crossing failure.
func (s *Service) handleExcessiveFailedAttempts(ctx context.Context, identifier string, kind models.EntityKind, fctx FailureContext, count int) {
	reason := fmt.Sprintf("excessive failed attempts (%d)", count)

	if blocker, ok := s.blockers[kind]; ok {
		if err := blocker.Block(ctx, identifier, reason); err != nil {
			s.logger.Error("failed to block entity",
				"error", err,
				"entity_type", kind,
				"identifier", identifier,
			)
		}
	} else {
		s.logger.Warn("no blocker registered for entity kind", "entity_type", kind)
	}

	if s.controller != nil && kind == models.KindDevice {
		if mac, ok := domain.ParseMAC(identifier); ok {
			s.blockOnController(ctx, mac, reason)
		}
	}

	s.bans.Ban(fctx.IP, s.config.BanDuration)
	if s.metrics != nil {
		s.metrics.EntitiesBlocked.WithLabelValues(string(kind)).Inc()
		s.metrics.IPBansTotal.Inc()
	}

	if count == s.config.MaxFailedAttempts {
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionEntityBlocked,
			EntityType: string(kind),
			EntityID:   identifier,
			IP:         fctx.IP,
			UserAgent:  fctx.UserAgent,
			Severity:   audit.SeverityCritical,
			Details: map[string]any{
				"failed_attempts": count,
				"reason":          reason,
				"detail":          fctx.Detail,
			},
		})
	}
}

// blockOnController tears down the device's network session at the edge.
// Best-effort: the repository flag is authoritative, a controller failure is
// an operational alert, not a rollback.
func (s *Service) blockOnController(ctx context.Context, mac domain.MAC, reason string) {
	timeout := s.config.ControllerTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ControllerTimeout
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.controller.BlockDevice(cctx, mac, reason); err != nil {
		s.logger.Error("controller block failed", "error", err, "device", mac.String())
		if s.metrics != nil {
			s.metrics.ControllerFailures.Inc()
		}
		s.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionControllerFailure,
			EntityType: string(models.KindDevice),
			EntityID:   mac.String(),
			Severity:   audit.SeverityError,
			Details:    map[string]any{"error": err.Error(), "call": "block"},
		})
	}
}

func (s *Service) reject(ctx context.Context, req Request, reason string, details map[string]any, ban bool) Decision {
	if ban {
		s.bans.Ban(req.IP, s.config.BanDuration)
		if s.metrics != nil {
			s.metrics.IPBansTotal.Inc()
		}
		s.auditor.Record(ctx, audit.Event{
			Action:    audit.ActionIPBanned,
			IP:        req.IP,
			UserAgent: req.UserAgent,
			Severity:  audit.SeverityCritical,
			Details:   mergeDetails(details, map[string]any{"reason": reason, "path": req.Path}),
		})
	}
	if s.metrics != nil {
		s.metrics.RequestsRejected.WithLabelValues(reason).Inc()
	}
	s.auditor.Record(ctx, audit.Event{
		Action:    audit.ActionRequestRejected,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Severity:  audit.SeverityWarning,
		Details:   mergeDetails(details, map[string]any{"reason": reason, "path": req.Path}),
	})
	return Decision{Allowed: false, Reason: reason}
}

// botMarker reports whether the user-agent looks automated and which marker
// matched.
func (s *Service) botMarker(ua string) (string, bool) {
	if ua == "" {
		return "", false
	}
	lowered := strings.ToLower(ua)
	for _, marker := range botAgentMarkers {
		if strings.Contains(lowered, marker) {
			return marker, true
		}
	}
	if parsed := useragent.New(ua); parsed.Bot() {
		return "ua_bot", true
	}
	return "", false
}

func (s *Service) isRegistrationPath(req Request) bool {
	if req.Method != "POST" {
		return false
	}
	for _, p := range registrationPaths {
		if req.Path == p {
			return true
		}
	}
	return false
}

func mergeDetails(extra, base map[string]any) map[string]any {
	if extra == nil {
		return base
	}
	for k, v := range base {
		extra[k] = v
	}
	return extra
}
