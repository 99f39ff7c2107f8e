package reward

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// InMemoryStore stores reward definitions in memory. Definitions are
// admin-managed and read-heavy.
type InMemoryStore struct {
	mu      sync.RWMutex
	rewards map[uuid.UUID]*models.Reward
}

// New constructs an empty in-memory reward store.
func New() *InMemoryStore {
	return &InMemoryStore{rewards: make(map[uuid.UUID]*models.Reward)}
}

func (s *InMemoryStore) Save(_ context.Context, r *models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rewards[r.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, rewardID uuid.UUID) (*models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rewards[rewardID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, fmt.Errorf("reward not found: %w", sentinel.ErrNotFound)
}

// ListActiveByTrigger returns all active reward definitions for a trigger type.
func (s *InMemoryStore) ListActiveByTrigger(_ context.Context, trigger models.TriggerType) ([]*models.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Reward
	for _, r := range s.rewards {
		if r.Active && r.TriggerType == trigger {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
