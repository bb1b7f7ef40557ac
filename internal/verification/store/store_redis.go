package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

const (
	challengeKeyPrefix = "aidledger:otp:"
	verifiedKeyPrefix  = "aidledger:verified:"

	challengeField = "challenge"
	attemptsField  = "attempts"
)

// RedisStore shares challenges across instances. Challenge keys expire with the code.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func challengeKey(userID id.UserID, channel models.Channel) string {
	return challengeKeyPrefix + userID.String() + ":" + string(channel)
}

func verifiedKey(userID id.UserID, channel models.Channel) string {
	return verifiedKeyPrefix + userID.String() + ":" + string(channel)
}

// SaveChallenge replaces any outstanding challenge. The challenge lives in a
// hash so the attempt counter can be incremented in place.
func (s *RedisStore) SaveChallenge(ctx context.Context, c *models.Challenge) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired: %w", sentinel.ErrExpired)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	key := challengeKey(c.UserID, c.Channel)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, challengeField, raw, attemptsField, c.Attempts)
	pipe.PExpire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) FindChallenge(ctx context.Context, userID id.UserID, channel models.Channel) (*models.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, challengeKey(userID, channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	raw, ok := fields[challengeField]
	if !ok {
		return nil, fmt.Errorf("challenge %s/%s: %w", userID, channel, sentinel.ErrNotFound)
	}
	var c models.Challenge
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	if c.Attempts, err = strconv.Atoi(fields[attemptsField]); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) DeleteChallenge(ctx context.Context, userID id.UserID, channel models.Channel) error {
	return s.client.Del(ctx, challengeKey(userID, channel)).Err()
}

// consumeAttempt increments the counter only while the challenge exists, so
// a late guess cannot recreate an expired key without a TTL.
var consumeAttempt = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

func (s *RedisStore) ConsumeAttempt(ctx context.Context, userID id.UserID, channel models.Channel) (int, error) {
	n, err := consumeAttempt.Run(ctx, s.client, []string{challengeKey(userID, channel)}, attemptsField).Int()
	if err != nil {
		return 0, fmt.Errorf("consume attempt: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("challenge %s/%s: %w", userID, channel, sentinel.ErrNotFound)
	}
	return n, nil
}

// MarkVerified stores the confirmed address and consumes the challenge.
func (s *RedisStore) MarkVerified(ctx context.Context, userID id.UserID, channel models.Channel, destination string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, verifiedKey(userID, channel), destination, 0)
	pipe.Del(ctx, challengeKey(userID, channel))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) VerifiedDestination(ctx context.Context, userID id.UserID, channel models.Channel) (string, error) {
	destination, err := s.client.Get(ctx, verifiedKey(userID, channel)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("check verified: %w", err)
	}
	return destination, nil
}

func (s *RedisStore) ClearVerified(ctx context.Context, userID id.UserID, channel models.Channel) error {
	return s.client.Del(ctx, verifiedKey(userID, channel), challengeKey(userID, channel)).Err()
}
