// Package decider resolves a device identifier to an allow/deny decision.
// The decision is pure lookup plus flag checks; quota and session handling
// live with the orchestrator.
package decider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/audit"
	"guestgate/internal/models"
	"guestgate/internal/platform/tracer"
	"guestgate/internal/sentinel"
	"guestgate/pkg/domain"
)

func isNotFound(err error) bool {
	return errors.Is(err, sentinel.ErrNotFound)
}

// DeviceStore is the slice of the device store the decider needs.
type DeviceStore interface {
	FindByMAC(ctx context.Context, mac domain.MAC) (*models.Device, error)
	UpdateLastSeen(ctx context.Context, mac domain.MAC, at time.Time) error
}

// UserStore is the slice of the user store the decider needs.
type UserStore interface {
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Deny reasons surfaced in audit entries.
const (
	ReasonInvalidIdentifier = "invalid_identifier"
	ReasonUnknownDevice     = "unknown_device"
	ReasonDeviceBlocked     = "device_blocked"
	ReasonUserBlocked       = "user_blocked"
	ReasonDeviceInactive    = "device_inactive"
	ReasonInternalError     = "internal_error"
)

// Service checks whether a device is currently authorized on the network.
type Service struct {
	devices DeviceStore
	users   UserStore
	auditor audit.Sink
	logger  *slog.Logger
	tracer  tracer.Tracer
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(devices DeviceStore, users UserStore, auditor audit.Sink, opts ...Option) (*Service, error) {
	if devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	s := &Service{
		devices: devices,
		users:   users,
		auditor: auditor,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = tracer.NewNoop()
	}
	return s, nil
}

// CheckAccess reports whether the device identified by identifier is
// authorized. All checks are short-circuit: the first failing condition
// determines the rejection reason. Repository failures deny (fail closed).
// On acceptance the device's last-seen timestamp is refreshed.
func (s *Service) CheckAccess(ctx context.Context, identifier string) (authorized bool, reason string) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAccessCheck,
		tracer.String(tracer.AttrDeviceHash, tracer.HashIdentifier(identifier)),
	)
	defer func() {
		span.SetAttributes(
			tracer.Bool(tracer.AttrAuthorized, authorized),
			tracer.String(tracer.AttrDenyReason, reason),
		)
		span.End(nil)
	}()

	mac, ok := domain.ParseMAC(identifier)
	if !ok {
		return false, ReasonInvalidIdentifier
	}

	device, err := s.devices.FindByMAC(ctx, mac)
	if err != nil {
		if isNotFound(err) {
			// an unknown device is never implicitly trusted
			return false, ReasonUnknownDevice
		}
		s.auditInternalError(ctx, mac, err)
		return false, ReasonInternalError
	}

	if device.Blocked {
		s.auditDenied(ctx, mac, ReasonDeviceBlocked, device.BlockReason, device.UserID)
		return false, ReasonDeviceBlocked
	}

	owner, err := s.users.FindByID(ctx, device.UserID)
	if err != nil {
		if isNotFound(err) {
			return false, ReasonUnknownDevice
		}
		s.auditInternalError(ctx, mac, err)
		return false, ReasonInternalError
	}
	if owner.Blocked {
		// attributed to the user, not the device
		s.auditDenied(ctx, mac, ReasonUserBlocked, owner.BlockReason, owner.ID)
		return false, ReasonUserBlocked
	}

	if !device.Active {
		return false, ReasonDeviceInactive
	}

	if err := s.devices.UpdateLastSeen(ctx, mac, s.now()); err != nil {
		// stale last-seen never revokes a granted decision
		s.logger.Warn("failed to refresh device last-seen", "error", err, "device", mac.String())
	}
	return true, ""
}

func (s *Service) auditDenied(ctx context.Context, mac domain.MAC, reason, blockReason string, userID uuid.UUID) {
	var uid *uuid.UUID
	if userID != uuid.Nil {
		uid = &userID
	}
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionAccessDenied,
		EntityType: string(models.KindDevice),
		EntityID:   mac.String(),
		UserID:     uid,
		Severity:   audit.SeverityWarning,
		Details: map[string]any{
			"reason":       reason,
			"block_reason": blockReason,
		},
	})
}

func (s *Service) auditInternalError(ctx context.Context, mac domain.MAC, err error) {
	s.logger.Error("device lookup failed", "error", err, "device", mac.String())
	s.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionInternalError,
		EntityType: string(models.KindDevice),
		EntityID:   mac.String(),
		Severity:   audit.SeverityError,
		Details:    map[string]any{"error": err.Error()},
	})
}
