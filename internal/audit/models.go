package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity grades audit entries for alerting and retention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is an append-only record emitted from domain logic. Keep it
// transport-agnostic so stores and sinks can fan out. Events are never
// mutated or deleted in normal operation.
type Event struct {
	Timestamp  time.Time
	Action     string
	EntityType string
	EntityID   string
	UserID     *uuid.UUID
	StaffID    *uuid.UUID
	IP         string
	UserAgent  string
	Details    map[string]any
	Severity   Severity
	RequestID  string
}

// Actions recorded by the portal core.
const (
	ActionProbeDetected       = "probe_detected"
	ActionAccessGranted       = "access_granted"
	ActionAccessDenied        = "access_denied"
	ActionRequestRejected     = "request_rejected"
	ActionIPBanned            = "ip_banned"
	ActionEntityBlocked       = "entity_blocked"
	ActionSignup              = "guest_signup"
	ActionLogin               = "guest_login"
	ActionAuthFailed          = "auth_failed"
	ActionRewardEarned        = "REWARD_EARNED"
	ActionVoucherIssued       = "voucher_issued"
	ActionVoucherRedeemed     = "voucher_redeemed"
	ActionControllerFailure   = "controller_call_failed"
	ActionInternalError       = "internal_error"
)

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Sink is the contract the core depends on. Record must never fail in a way
// that aborts the caller; implementations swallow persistence errors after
// logging them locally.
type Sink interface {
	Record(ctx context.Context, event Event)
}
