package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
	"guestgate/pkg/domain"
)

// InMemoryStore stores devices in memory, keyed by hardware address.
type InMemoryStore struct {
	mu      sync.RWMutex
	devices map[domain.MAC]*models.Device
}

// New constructs an empty in-memory device store.
func New() *InMemoryStore {
	return &InMemoryStore{devices: make(map[domain.MAC]*models.Device)}
}

func (s *InMemoryStore) Save(_ context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *device
	s.devices[device.MAC] = &cp
	return nil
}

func (s *InMemoryStore) FindByMAC(_ context.Context, mac domain.MAC) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if device, ok := s.devices[mac]; ok {
		cp := *device
		return &cp, nil
	}
	return nil, fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByID(_ context.Context, deviceID uuid.UUID) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, device := range s.devices {
		if device.ID == deviceID {
			cp := *device
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
}

// CountActiveByUser returns the number of active devices bound to a user.
// Used for device-limit enforcement.
func (s *InMemoryStore) CountActiveByUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, device := range s.devices {
		if device.UserID == userID && device.Active {
			count++
		}
	}
	return count, nil
}

// CountRegisteredByIPSince counts devices registered from the given source
// address after the cutoff. Backs the registration-abuse check.
func (s *InMemoryStore) CountRegisteredByIPSince(_ context.Context, ip string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, device := range s.devices {
		if device.RegisteredIP == ip && device.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// UpdateLastSeen refreshes the last-seen timestamp on an access decision.
func (s *InMemoryStore) UpdateLastSeen(_ context.Context, mac domain.MAC, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[mac]
	if !ok {
		return fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
	}
	device.LastSeen = at
	return nil
}

// SetBlocked flips the block flag and stores the reason.
func (s *InMemoryStore) SetBlocked(_ context.Context, deviceID uuid.UUID, blocked bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, device := range s.devices {
		if device.ID == deviceID {
			device.Blocked = blocked
			device.BlockReason = reason
			return nil
		}
	}
	return fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
}
