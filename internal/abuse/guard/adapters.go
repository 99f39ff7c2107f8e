package guard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/pkg/domain"
)

// deviceBlockStore is the slice of the device store the blocker needs.
type deviceBlockStore interface {
	FindByMAC(ctx context.Context, mac domain.MAC) (*models.Device, error)
	SetBlocked(ctx context.Context, deviceID uuid.UUID, blocked bool, reason string) error
}

// userBlockStore is the slice of the user store the blocker needs.
type userBlockStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool, reason string) error
}

// DeviceBlocker blocks devices identified by hardware address.
type DeviceBlocker struct {
	devices deviceBlockStore
}

// NewDeviceBlocker constructs a device block adapter.
func NewDeviceBlocker(devices deviceBlockStore) *DeviceBlocker {
	return &DeviceBlocker{devices: devices}
}

func (b *DeviceBlocker) Block(ctx context.Context, identifier, reason string) error {
	mac, ok := domain.ParseMAC(identifier)
	if !ok {
		return fmt.Errorf("invalid device identifier %q", identifier)
	}
	device, err := b.devices.FindByMAC(ctx, mac)
	if err != nil {
		return fmt.Errorf("find device: %w", err)
	}
	return b.devices.SetBlocked(ctx, device.ID, true, reason)
}

// UserBlocker blocks users identified by id or email.
type UserBlocker struct {
	users userBlockStore
}

// NewUserBlocker constructs a user block adapter.
func NewUserBlocker(users userBlockStore) *UserBlocker {
	return &UserBlocker{users: users}
}

func (b *UserBlocker) Block(ctx context.Context, identifier, reason string) error {
	if id, err := uuid.Parse(identifier); err == nil {
		return b.users.SetBlocked(ctx, id, true, reason)
	}
	user, err := b.users.FindByEmail(ctx, identifier)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	return b.users.SetBlocked(ctx, user.ID, true, reason)
}

// Verify interfaces are satisfied.
var (
	_ Blocker = (*DeviceBlocker)(nil)
	_ Blocker = (*UserBlocker)(nil)
)
