package models

import (
	"time"

	"github.com/google/uuid"

	"guestgate/pkg/domain"
)

// EntityKind distinguishes the block targets the abuse guard can act on.
type EntityKind string

const (
	KindDevice EntityKind = "device"
	KindUser   EntityKind = "user"
	KindStaff  EntityKind = "staff"
)

// User is a guest account identified by email. LoyaltyTier is always derived
// from VisitCount and never set independently.
type User struct {
	ID               uuid.UUID
	Email            string
	DateOfBirth      time.Time
	Language         string
	MarketingConsent bool
	VisitCount       int
	LoyaltyTier      string
	LastVisitAt      time.Time
	Blocked          bool
	BlockReason      string
	CreatedAt        time.Time
}

// Device is a physical client keyed by hardware address. A MAC maps to at
// most one user at a time. Devices are never hard-deleted; they are disabled
// via the Active and Blocked flags.
type Device struct {
	ID             uuid.UUID
	MAC            domain.MAC
	UserID         uuid.UUID
	Active         bool
	Blocked        bool
	BlockReason    string
	LastSeen       time.Time
	DataUsedBytes  int64
	FailedAttempts int
	// RegisteredIP attributes the device creation to a source address so
	// registration abuse can be counted per IP.
	RegisteredIP string
	CreatedAt    time.Time
}

// Visit records one authorized network session. Immutable after creation
// except for EndedAt and DataUsedBytes.
type Visit struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	DeviceID      uuid.UUID
	StartedAt     time.Time
	EndedAt       *time.Time
	DataUsedBytes int64
	SourceIP      string
}

// VoucherType categorizes redeemable credentials.
type VoucherType string

const (
	VoucherReward      VoucherType = "reward"
	VoucherPremium     VoucherType = "premium"
	VoucherStaff       VoucherType = "staff"
	VoucherPromotional VoucherType = "promotional"
)

// Voucher is a single-use redeemable credential. Once Redeemed is true the
// record is immutable. Expiry is passive: redemption is rejected past
// ExpiresAt even if the voucher was never explicitly expired.
type Voucher struct {
	ID          uuid.UUID
	Code        string
	Type        VoucherType
	UserID      *uuid.UUID
	Value       string
	Description string
	ExpiresAt   time.Time
	Redeemed    bool
	RedeemedBy  *uuid.UUID
	RedeemedAt  *time.Time
	// QRCode and Barcode are opaque rendered blobs supplied by the code
	// renderer collaborator.
	QRCode    []byte
	Barcode   []byte
	CreatedAt time.Time
}

// TriggerType enumerates the conditions a reward definition can fire on.
type TriggerType string

const (
	TriggerVisitCount  TriggerType = "visit_count"
	TriggerTierUpgrade TriggerType = "tier_upgrade"
	TriggerBirthday    TriggerType = "birthday"
	TriggerReferral    TriggerType = "referral"
)

// Reward is an admin-managed, read-heavy reward definition.
type Reward struct {
	ID           uuid.UUID
	TriggerType  TriggerType
	TriggerValue int
	Value        string
	Description  string
	MaxPerWeek   int
	ValidityDays int
	Active       bool
	CreatedAt    time.Time
}
