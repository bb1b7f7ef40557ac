// Package store persists schemes. Writers pass a callback that runs inside the
// write so the audit append commits or fails with the change.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"aidledger/internal/scheme/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// InMemoryStore keeps schemes in a map under a RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	schemes map[id.SchemeID]*models.Scheme
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{schemes: make(map[id.SchemeID]*models.Scheme)}
}

// Create inserts s unless its id is taken. commit may be nil.
func (st *InMemoryStore) Create(ctx context.Context, s *models.Scheme, commit func(ctx context.Context) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.schemes[s.ID]; ok {
		return fmt.Errorf("scheme %s: %w", s.ID, sentinel.ErrConflict)
	}
	if commit != nil {
		if err := commit(ctx); err != nil {
			return err
		}
	}
	st.schemes[s.ID] = s.Clone()
	return nil
}

// Update runs fn on a copy and stores it only when fn succeeds.
func (st *InMemoryStore) Update(ctx context.Context, schemeID id.SchemeID, fn func(ctx context.Context, s *models.Scheme) error) (*models.Scheme, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	current, ok := st.schemes[schemeID]
	if !ok {
		return nil, fmt.Errorf("scheme %s: %w", schemeID, sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(ctx, next); err != nil {
		return nil, err
	}
	st.schemes[schemeID] = next
	return next.Clone(), nil
}

func (st *InMemoryStore) FindByID(_ context.Context, schemeID id.SchemeID) (*models.Scheme, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.schemes[schemeID]
	if !ok {
		return nil, fmt.Errorf("scheme %s: %w", schemeID, sentinel.ErrNotFound)
	}
	return s.Clone(), nil
}

// List returns schemes ordered by id, optionally filtered by status.
func (st *InMemoryStore) List(_ context.Context, status *models.Status) ([]*models.Scheme, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*models.Scheme, 0, len(st.schemes))
	for _, s := range st.schemes {
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
