package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

func TestInMemoryStoreMarkVerifiedClearsChallenge(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	user := id.NewUserID()

	require.NoError(t, s.SaveChallenge(ctx, &models.Challenge{
		UserID: user, Channel: models.ChannelEmail, CodeHash: models.HashCode("123456"),
		ExpiresAt: time.Now().Add(time.Minute),
	}))
	got, err := s.FindChallenge(ctx, user, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, models.HashCode("123456"), got.CodeHash)

	require.NoError(t, s.MarkVerified(ctx, user, models.ChannelEmail, "asha@example.com"))
	_, err = s.FindChallenge(ctx, user, models.ChannelEmail)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	confirmed, err := s.VerifiedDestination(ctx, user, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", confirmed)
	confirmed, _ = s.VerifiedDestination(ctx, user, models.ChannelPhone)
	assert.Empty(t, confirmed)

	require.NoError(t, s.ClearVerified(ctx, user, models.ChannelEmail))
	confirmed, _ = s.VerifiedDestination(ctx, user, models.ChannelEmail)
	assert.Empty(t, confirmed)
}

func TestInMemoryStoreConsumeAttemptIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	user := id.NewUserID()

	_, err := s.ConsumeAttempt(ctx, user, models.ChannelPhone)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	require.NoError(t, s.SaveChallenge(ctx, &models.Challenge{
		UserID: user, Channel: models.ChannelPhone, CodeHash: models.HashCode("123456"),
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ConsumeAttempt(ctx, user, models.ChannelPhone)
		}()
	}
	wg.Wait()

	got, err := s.FindChallenge(ctx, user, models.ChannelPhone)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Attempts)
}
