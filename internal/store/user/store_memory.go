package user

// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// InMemoryStore stores users in memory. Backs tests and single-node
// deployments without a database.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

// New constructs an empty in-memory user store.
func New() *InMemoryStore {
	return &InMemoryStore{users: make(map[uuid.UUID]*models.User)}
}

func (s *InMemoryStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[userID]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

// IncrementVisits atomically increments the visit counter and stamps the
// last-visit time, returning the post-increment count. Serializes concurrent
// logins from the same user on different devices so no increment is lost.
func (s *InMemoryStore) IncrementVisits(_ context.Context, userID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user.VisitCount++
	user.LastVisitAt = at
	return user.VisitCount, nil
}

// SetTier records the derived loyalty tier. Callers must only pass the pure
// function of the visit count; the store does not re-derive it.
func (s *InMemoryStore) SetTier(_ context.Context, userID uuid.UUID, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user.LoyaltyTier = tier
	return nil
}

// SetBlocked flips the block flag and stores the reason.
func (s *InMemoryStore) SetBlocked(_ context.Context, userID uuid.UUID, blocked bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	user.Blocked = blocked
	user.BlockReason = reason
	return nil
}
