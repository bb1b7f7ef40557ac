// Package service issues and checks one-time codes for contact verification.
package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

type Store interface {
	SaveChallenge(ctx context.Context, c *models.Challenge) error
	FindChallenge(ctx context.Context, userID id.UserID, channel models.Channel) (*models.Challenge, error)
	DeleteChallenge(ctx context.Context, userID id.UserID, channel models.Channel) error
	// ConsumeAttempt atomically increments the challenge's attempt counter
	// and returns the new count, or sentinel.ErrNotFound once it is gone.
	ConsumeAttempt(ctx context.Context, userID id.UserID, channel models.Channel) (int, error)
	MarkVerified(ctx context.Context, userID id.UserID, channel models.Channel, destination string) error
	// VerifiedDestination returns the last confirmed address, or "" if none.
	VerifiedDestination(ctx context.Context, userID id.UserID, channel models.Channel) (string, error)
	ClearVerified(ctx context.Context, userID id.UserID, channel models.Channel) error
}

// ContactLookup resolves where a code for channel should be sent.
type ContactLookup interface {
	Contact(ctx context.Context, userID id.UserID, channel models.Channel) (string, error)
}

type Notifier interface {
	Deliver(ctx context.Context, channel models.Channel, destination, code string) error
}

type Service struct {
	store          Store
	contacts       ContactLookup
	notifier       Notifier
	logger         *slog.Logger
	ttl            time.Duration
	resendCooldown time.Duration
	generate       func() (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithResendCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.resendCooldown = d
		}
	}
}

// WithCodeGenerator replaces the random generator, mainly for tests.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		s.generate = gen
	}
}

func New(store Store, contacts ContactLookup, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:          store,
		contacts:       contacts,
		notifier:       notifier,
		logger:         slog.Default(),
		ttl:            5 * time.Minute,
		resendCooldown: 60 * time.Second,
		generate:       randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send issues a fresh code for channel, replacing any outstanding one once
// the resend cooldown has passed.
func (s *Service) Send(ctx context.Context, userID id.UserID, channel models.Channel) (*models.SendResult, error) {
	now := requestcontext.Now(ctx)

	existing, err := s.store.FindChallenge(ctx, userID, channel)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}
	if existing != nil && !existing.IsExpired(now) {
		if retryAt := existing.ResendAvailableAt(s.resendCooldown); now.Before(retryAt) {
			return nil, dErrors.New(dErrors.CodeRateLimited, "a code was sent recently").
				WithDetail("retry_after_seconds", int(retryAt.Sub(now).Round(time.Second).Seconds()))
		}
	}

	destination, err := s.contacts.Contact(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	if destination == "" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "no %s on file", channel)
	}

	code, err := s.generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	challenge := &models.Challenge{
		UserID:      userID,
		Channel:     channel,
		Destination: destination,
		CodeHash:    models.HashCode(code),
		SentAt:      now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.SaveChallenge(ctx, challenge); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save challenge")
	}
	if err := s.notifier.Deliver(ctx, channel, destination, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver code")
	}

	s.logger.InfoContext(ctx, "verification code sent",
		"user_id", userID.String(),
		"channel", channel,
		"log_type", "audit",
	)
	return &models.SendResult{
		Channel:           channel,
		Destination:       mask(destination),
		ExpiresAt:         challenge.ExpiresAt,
		ResendAvailableAt: challenge.ResendAvailableAt(s.resendCooldown),
	}, nil
}

// Verify checks code against the outstanding challenge and marks channel verified.
func (s *Service) Verify(ctx context.Context, userID id.UserID, channel models.Channel, code string) error {
	now := requestcontext.Now(ctx)

	challenge, err := s.store.FindChallenge(ctx, userID, channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeValidation, "no code outstanding, request a new one")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load challenge")
	}
	if challenge.IsExpired(now) {
		_ = s.store.DeleteChallenge(ctx, userID, channel)
		return dErrors.New(dErrors.CodeValidation, "code has expired, request a new one")
	}

	// The attempt is taken before comparing so concurrent guesses never
	// check more than MaxAttempts codes.
	attempts, err := s.store.ConsumeAttempt(ctx, userID, channel)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeValidation, "no code outstanding, request a new one")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record attempt")
	}
	if attempts > models.MaxAttempts {
		return s.discard(ctx, userID, channel)
	}

	if subtle.ConstantTimeCompare([]byte(challenge.CodeHash), []byte(models.HashCode(code))) != 1 {
		if attempts >= models.MaxAttempts {
			return s.discard(ctx, userID, channel)
		}
		return dErrors.New(dErrors.CodeValidation, "invalid code").
			WithDetail("attempts_remaining", models.MaxAttempts-attempts)
	}

	if err := s.store.MarkVerified(ctx, userID, channel, challenge.Destination); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark verified")
	}
	s.logger.InfoContext(ctx, "contact verified",
		"user_id", userID.String(),
		"channel", channel,
		"log_type", "audit",
	)
	return nil
}

// discard drops an exhausted challenge.
func (s *Service) discard(ctx context.Context, userID id.UserID, channel models.Channel) error {
	if err := s.store.DeleteChallenge(ctx, userID, channel); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard challenge")
	}
	return dErrors.New(dErrors.CodeValidation, "too many attempts, request a new code")
}

// IsVerified reports whether the address currently on file for channel is
// the one that was confirmed.
func (s *Service) IsVerified(ctx context.Context, userID id.UserID, channel models.Channel) (bool, error) {
	confirmed, err := s.store.VerifiedDestination(ctx, userID, channel)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check verification")
	}
	if confirmed == "" {
		return false, nil
	}
	current, err := s.contacts.Contact(ctx, userID, channel)
	if err != nil {
		return false, err
	}
	return current == confirmed, nil
}

// Reset forgets confirmations and outstanding codes for channels whose
// address changed.
func (s *Service) Reset(ctx context.Context, userID id.UserID, channels ...models.Channel) error {
	for _, ch := range channels {
		if err := s.store.ClearVerified(ctx, userID, ch); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset verification")
		}
		s.logger.InfoContext(ctx, "contact verification reset",
			"user_id", userID.String(),
			"channel", ch,
			"log_type", "audit",
		)
	}
	return nil
}

// Status reports both channels.
func (s *Service) Status(ctx context.Context, userID id.UserID) (*models.Status, error) {
	email, err := s.IsVerified(ctx, userID, models.ChannelEmail)
	if err != nil {
		return nil, err
	}
	phone, err := s.IsVerified(ctx, userID, models.ChannelPhone)
	if err != nil {
		return nil, err
	}
	return &models.Status{Email: email, Phone: phone}, nil
}

// Unverified returns the channels the user still has to confirm.
func (s *Service) Unverified(ctx context.Context, userID id.UserID) ([]string, error) {
	var missing []string
	for _, ch := range models.Channels {
		ok, err := s.IsVerified(ctx, userID, ch)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, string(ch))
		}
	}
	return missing, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// mask keeps the last few characters of a destination, e.g. "******3210".
func mask(destination string) string {
	if at := strings.IndexByte(destination, '@'); at > 0 {
		return destination[:1] + strings.Repeat("*", at-1) + destination[at:]
	}
	const visible = 4
	if len(destination) <= visible {
		return destination
	}
	return strings.Repeat("*", len(destination)-visible) + destination[len(destination)-visible:]
}
