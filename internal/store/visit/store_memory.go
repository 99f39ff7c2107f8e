package visit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// InMemoryStore stores visits in memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	visits map[uuid.UUID]*models.Visit
}

// New constructs an empty in-memory visit store.
func New() *InMemoryStore {
	return &InMemoryStore{visits: make(map[uuid.UUID]*models.Visit)}
}

func (s *InMemoryStore) Save(_ context.Context, v *models.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.visits[v.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, visitID uuid.UUID) (*models.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.visits[visitID]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, fmt.Errorf("visit not found: %w", sentinel.ErrNotFound)
}

// End closes an open session. Visits stay immutable apart from the
// session-end and data-used fields.
func (s *InMemoryStore) End(_ context.Context, visitID uuid.UUID, endedAt time.Time, dataUsed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok {
		return fmt.Errorf("visit not found: %w", sentinel.ErrNotFound)
	}
	v.EndedAt = &endedAt
	v.DataUsedBytes = dataUsed
	return nil
}

// CountByUser returns the number of recorded visits for a user.
func (s *InMemoryStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, v := range s.visits {
		if v.UserID == userID {
			count++
		}
	}
	return count, nil
}
