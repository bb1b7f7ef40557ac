// Package user stores accounts keyed by id with a unique email index.
package user

import (
	"context"
	"fmt"
	"sync"

	"aidledger/internal/identity/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in maps guarded by a RWMutex.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Save inserts a user. A taken email returns sentinel.ErrConflict.
func (s *InMemoryUserStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byEmail[user.Email]; ok && owner != user.ID {
		return fmt.Errorf("email %s: %w", user.Email, sentinel.ErrConflict)
	}
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return nil
}

// Update runs fn on a copy of the user and stores the result only when fn
// succeeds and the new email is not taken.
func (s *InMemoryUserStore) Update(ctx context.Context, userID id.UserID, fn func(ctx context.Context, user *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(ctx, next); err != nil {
		return nil, err
	}
	if next.Email != current.Email {
		if owner, taken := s.byEmail[next.Email]; taken && owner != userID {
			return nil, fmt.Errorf("email %s: %w", next.Email, sentinel.ErrConflict)
		}
		delete(s.byEmail, current.Email)
		s.byEmail[next.Email] = userID
	}
	s.users[userID] = next
	return next.Clone(), nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return u, nil
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, sentinel.ErrNotFound)
	}
	return s.users[userID], nil
}
