package voucher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// InMemoryStore stores vouchers in memory, keyed by code.
type InMemoryStore struct {
	mu       sync.RWMutex
	vouchers map[string]*models.Voucher
}

// New constructs an empty in-memory voucher store.
func New() *InMemoryStore {
	return &InMemoryStore{vouchers: make(map[string]*models.Voucher)}
}

func (s *InMemoryStore) Save(_ context.Context, v *models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vouchers[v.Code] = &cp
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.vouchers[code]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, fmt.Errorf("voucher not found: %w", sentinel.ErrNotFound)
}

// MarkRedeemed flips the redeemed flag exactly once. Returns ErrAlreadyUsed
// if the voucher was redeemed before this call.
func (s *InMemoryStore) MarkRedeemed(_ context.Context, code string, redeemer uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vouchers[code]
	if !ok {
		return fmt.Errorf("voucher not found: %w", sentinel.ErrNotFound)
	}
	if v.Redeemed {
		return fmt.Errorf("voucher already redeemed: %w", sentinel.ErrAlreadyUsed)
	}
	v.Redeemed = true
	v.RedeemedBy = &redeemer
	v.RedeemedAt = &at
	return nil
}

// CountByUserValueSince counts vouchers issued to a user with the given value
// text after the cutoff. The weekly reward de-duplication is keyed on value
// text, not reward id.
func (s *InMemoryStore) CountByUserValueSince(_ context.Context, userID uuid.UUID, value string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, v := range s.vouchers {
		if v.UserID != nil && *v.UserID == userID && v.Value == value && v.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// ListByUser returns all vouchers issued to a user.
func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Voucher
	for _, v := range s.vouchers {
		if v.UserID != nil && *v.UserID == userID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}
