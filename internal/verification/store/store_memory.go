// Package store keeps outstanding verification challenges and verified channels.
package store

import (
	"context"
	"fmt"
	"sync"

	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

type key struct {
	user    id.UserID
	channel models.Channel
}

// InMemoryStore is the single-process store.
type InMemoryStore struct {
	mu         sync.RWMutex
	challenges map[key]models.Challenge
	verified   map[key]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		challenges: make(map[key]models.Challenge),
		verified:   make(map[key]string),
	}
}

func (s *InMemoryStore) SaveChallenge(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[key{c.UserID, c.Channel}] = *c
	return nil
}

func (s *InMemoryStore) FindChallenge(_ context.Context, userID id.UserID, channel models.Channel) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.challenges[key{userID, channel}]
	if !ok {
		return nil, fmt.Errorf("challenge %s/%s: %w", userID, channel, sentinel.ErrNotFound)
	}
	return &c, nil
}

func (s *InMemoryStore) DeleteChallenge(_ context.Context, userID id.UserID, channel models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, key{userID, channel})
	return nil
}

func (s *InMemoryStore) ConsumeAttempt(_ context.Context, userID id.UserID, channel models.Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{userID, channel}
	c, ok := s.challenges[k]
	if !ok {
		return 0, fmt.Errorf("challenge %s/%s: %w", userID, channel, sentinel.ErrNotFound)
	}
	c.Attempts++
	s.challenges[k] = c
	return c.Attempts, nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, userID id.UserID, channel models.Channel, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[key{userID, channel}] = destination
	delete(s.challenges, key{userID, channel})
	return nil
}

func (s *InMemoryStore) VerifiedDestination(_ context.Context, userID id.UserID, channel models.Channel) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verified[key{userID, channel}], nil
}

// ClearVerified drops the confirmation and any outstanding code.
func (s *InMemoryStore) ClearVerified(_ context.Context, userID id.UserID, channel models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verified, key{userID, channel})
	delete(s.challenges, key{userID, channel})
	return nil
}
