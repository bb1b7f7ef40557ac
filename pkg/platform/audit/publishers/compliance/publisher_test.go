package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/store/memory"
	"aidledger/pkg/requestcontext"
)

type failingStore struct{ memory.InMemoryStore }

func (*failingStore) Append(context.Context, *audit.Event) error { return errors.New("ledger offline") }

func TestLog_ReceiptAndEnrichment(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := New(store)

	admin := id.Actor{ID: id.NewUserID(), Role: id.RoleAdmin}
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), admin)
	ctx = requestcontext.WithTime(ctx, now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	payload := map[string]string{"application_id": "APP-1", "to": "approved"}
	receipt, err := pub.Log(ctx, audit.EventStatusChange, "APP-1", payload)
	require.NoError(t, err)

	canonical, err := audit.Canonicalize(payload)
	require.NoError(t, err)
	assert.Equal(t, audit.Hash(canonical), receipt.Hash)
	assert.Equal(t, int64(1), receipt.Sequence)
	assert.Equal(t, audit.EventStatusChange, receipt.Type)

	events, err := store.ListBySubject(ctx, "APP-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, admin.ID.String(), events[0].ActorID)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, "req-1", events[0].RequestID)
}

func TestLog_SameContentSameHash(t *testing.T) {
	pub := New(memory.NewInMemoryStore())
	ctx := context.Background()

	first, err := pub.Log(ctx, audit.EventPayment, "APP-9", map[string]string{"txn": "TXN1"})
	require.NoError(t, err)
	second, err := pub.Log(ctx, audit.EventPayment, "APP-9", map[string]string{"txn": "TXN1"})
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Greater(t, second.Sequence, first.Sequence)
}

func TestLog_SequenceStrictlyIncreasesUnderConcurrency(t *testing.T) {
	pub := New(memory.NewInMemoryStore())
	ctx := context.Background()

	const n = 50
	seqs := make(chan int64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := pub.Log(ctx, audit.EventLogin, "user", map[string]int{"i": i})
			assert.NoError(t, err)
			seqs <- r.Sequence
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, n)
	for s := range seqs {
		assert.False(t, seen[s], "duplicate sequence %d", s)
		seen[s] = true
	}
	assert.Len(t, seen, n)
}

func TestLog_FailsClosed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := New(&failingStore{}, WithMetrics(m))

	_, err := pub.Log(context.Background(), audit.EventPayment, "APP-1", map[string]string{})
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistFailures), 0)
}

func TestLog_RejectsUnknownTypeAndMissingSubject(t *testing.T) {
	pub := New(memory.NewInMemoryStore())

	_, err := pub.Log(context.Background(), audit.EventType("bogus"), "APP-1", nil)
	assert.Error(t, err)

	_, err = pub.Log(context.Background(), audit.EventPayment, "", nil)
	assert.Error(t, err)
}

func TestLog_FanoutNeverBlocks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ch := make(chan audit.Event, 1)
	pub := New(memory.NewInMemoryStore(), WithFanout(ch), WithMetrics(m))

	for range 3 {
		_, err := pub.Log(context.Background(), audit.EventSchemeChange, "education-support", map[string]string{})
		require.NoError(t, err)
	}

	assert.Len(t, ch, 1)
	assert.InDelta(t, 2, testutil.ToFloat64(m.FanoutDropped), 0)
	first := <-ch
	assert.Equal(t, int64(1), first.Sequence)
}
