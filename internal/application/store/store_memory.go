// Package store persists application records.
//
// Writers pass a callback that runs inside the record's critical section
// (shard mutex in memory, row lock in Postgres). The callback receives a
// copy; the copy is committed with Version+1 only when the callback succeeds,
// so a failed precondition or audit append leaves the record untouched.
package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"aidledger/internal/application/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

const numShards = 128

// InMemoryStore serializes writers per record through FNV-1a sharded mutexes.
// Writers on different records only contend when they share a shard.
type InMemoryStore struct {
	shards [numShards]sync.Mutex

	mu   sync.RWMutex
	apps map[id.ApplicationID]*models.Application
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{apps: make(map[id.ApplicationID]*models.Application)}
}

func shardFor(appID id.ApplicationID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(appID))
	return int(h.Sum32() % numShards)
}

func (st *InMemoryStore) lock(appID id.ApplicationID) func() {
	m := &st.shards[shardFor(appID)]
	m.Lock()
	return m.Unlock
}

// Create runs prepare on app and inserts it. prepare may be nil.
func (st *InMemoryStore) Create(ctx context.Context, app *models.Application, prepare func(ctx context.Context, app *models.Application) error) error {
	defer st.lock(app.ID)()

	st.mu.RLock()
	_, exists := st.apps[app.ID]
	st.mu.RUnlock()
	if exists {
		return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrConflict)
	}

	next := app.Clone()
	if prepare != nil {
		if err := prepare(ctx, next); err != nil {
			return err
		}
	}

	st.mu.Lock()
	st.apps[app.ID] = next
	st.mu.Unlock()
	*app = *next.Clone()
	return nil
}

// Execute runs fn on a copy of the record and commits it when fn succeeds.
func (st *InMemoryStore) Execute(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, app *models.Application) error) (*models.Application, error) {
	defer st.lock(appID)()

	st.mu.RLock()
	current, ok := st.apps[appID]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}

	next := current.Clone()
	if err := fn(ctx, next); err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.apps[appID].Version != current.Version {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrConflict)
	}
	next.Version = current.Version + 1
	st.apps[appID] = next
	return next.Clone(), nil
}

func (st *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	app, ok := st.apps[appID]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", appID, sentinel.ErrNotFound)
	}
	return app.Clone(), nil
}

// ListByApplicant returns the applicant's records, newest first.
func (st *InMemoryStore) ListByApplicant(_ context.Context, applicantID id.UserID) ([]*models.Application, error) {
	st.mu.RLock()
	out := make([]*models.Application, 0)
	for _, app := range st.apps {
		if app.ApplicantID == applicantID {
			out = append(out, app.Clone())
		}
	}
	st.mu.RUnlock()
	models.SortNewestFirst(out)
	return out, nil
}

// ListByScheme returns the scheme's records in review-queue order.
func (st *InMemoryStore) ListByScheme(_ context.Context, schemeID id.SchemeID, status *models.Status) ([]*models.Application, error) {
	st.mu.RLock()
	out := make([]*models.Application, 0)
	for _, app := range st.apps {
		if app.SchemeID != schemeID {
			continue
		}
		if status != nil && app.Status != *status {
			continue
		}
		out = append(out, app.Clone())
	}
	st.mu.RUnlock()
	models.Rank(out)
	return out, nil
}
