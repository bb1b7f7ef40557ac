// Package service registers citizens and issues access tokens for citizens
// and the seeded administrator.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"aidledger/internal/identity/models"
	"aidledger/internal/identity/token"
	"aidledger/pkg/attrs"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/email"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/middleware/device"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, userID id.UserID, fn func(ctx context.Context, user *models.User) error) (*models.User, error)
}

// ContactReset forgets contact verification for channels ("email", "phone")
// whose address changed.
type ContactReset interface {
	ContactsChanged(ctx context.Context, userID id.UserID, channels []string) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, expiresIn time.Duration) (token.Issued, error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type AuditLogger interface {
	Log(ctx context.Context, eventType audit.EventType, subjectID string, payload any) (audit.Receipt, error)
}

// Service owns account lifecycle and login.
type Service struct {
	users       UserStore
	tokens      TokenIssuer
	revocations RevocationList
	auditor     AuditLogger
	contacts    ContactReset
	logger      *slog.Logger
	metrics     *Metrics
	tokenTTL    time.Duration
	bcryptCost  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditLogger(auditor AuditLogger) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithContactReset(c ContactReset) Option {
	return func(s *Service) {
		s.contacts = c
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithRevocationList(r RevocationList) Option {
	return func(s *Service) {
		s.revocations = r
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func New(users UserStore, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:      users,
		tokens:     tokens,
		logger:     slog.Default(),
		tokenTTL:   time.Hour,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a citizen account.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = email.DisplayName(req.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user := &models.User{
		ID:           id.NewUserID(),
		Name:         name,
		Email:        req.Email,
		Phone:        req.Phone,
		AadhaarID:    req.AadhaarID,
		Role:         id.RoleCitizen,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save user")
	}

	s.logAudit(ctx, "user_registered", "user_id", user.ID.String())
	s.metrics.incRegistration()
	return user, nil
}

// SeedAdmin ensures the administrator account exists. Existing accounts are left untouched.
func (s *Service) SeedAdmin(ctx context.Context, adminEmail, password string) (*models.User, error) {
	req := models.LoginRequest{Email: adminEmail, Password: password}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err == nil {
		if existing.Role != id.RoleAdmin {
			return nil, dErrors.New(dErrors.CodeConflict, "admin email belongs to a citizen account")
		}
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	now := requestcontext.Now(ctx)
	admin := &models.User{
		ID:           id.NewUserID(),
		Name:         "Administrator",
		Email:        req.Email,
		Role:         id.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Save(ctx, admin); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save admin")
	}
	return admin, nil
}

// LoginCitizen authenticates a citizen account.
func (s *Service) LoginCitizen(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	return s.login(ctx, req, id.RoleCitizen)
}

// LoginAdmin authenticates the administrator account.
func (s *Service) LoginAdmin(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	return s.login(ctx, req, id.RoleAdmin)
}

func (s *Service) login(ctx context.Context, req *models.LoginRequest, role id.Role) (*models.LoginResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if user == nil || user.Role != role ||
		bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		s.metrics.incLogin(role, "rejected")
		s.logger.WarnContext(ctx, "login rejected",
			"role", role,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}

	issued, err := s.tokens.GenerateAccessToken(user.ID, user.Role, s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if s.auditor != nil {
		payload := map[string]any{
			"user_id":   user.ID.String(),
			"role":      user.Role,
			"client_ip": requestcontext.ClientIP(ctx),
			"device":    device.FromContext(ctx),
		}
		if _, err := s.auditor.Log(ctx, audit.EventLogin, user.ID.String(), payload); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login")
		}
	}

	s.logAudit(ctx, string(audit.EventLogin), "user_id", user.ID.String(), "role", string(user.Role))
	s.metrics.incLogin(role, "success")
	return &models.LoginResult{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		ExpiresAt:   issued.ExpiresAt,
		User:        user,
	}, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, jti string) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token id required")
	}
	if s.revocations == nil {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, jti, s.tokenTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.logAudit(ctx, "token_revoked", "jti", jti)
	return nil
}

// Profile returns the account behind userID.
func (s *Service) Profile(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// UpdateProfile applies a partial profile update. A changed email or phone
// loses its verification, so the applicant must confirm the new address
// before submitting again.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, req *models.UpdateProfileRequest) (*models.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var changed []string
	user, err := s.users.Update(ctx, userID, func(ctx context.Context, u *models.User) error {
		changed = req.Apply(u)
		if len(changed) == 0 {
			return nil
		}
		u.UpdatedAt = requestcontext.Now(ctx)
		if s.auditor == nil {
			return nil
		}
		_, err := s.auditor.Log(ctx, audit.EventProfileChange, u.ID.String(), map[string]any{
			"user_id": u.ID.String(),
			"fields":  changed,
		})
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
	}

	if channels := contactChannels(changed); len(channels) > 0 && s.contacts != nil {
		if err := s.contacts.ContactsChanged(ctx, userID, channels); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset contact verification")
		}
	}
	if len(changed) > 0 {
		s.logAudit(ctx, "profile_updated", "user_id", userID.String(), "fields", changed)
	}
	return user, nil
}

func contactChannels(changed []string) []string {
	var channels []string
	for _, field := range changed {
		if field == "email" || field == "phone" {
			channels = append(channels, field)
		}
	}
	return channels
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	s.logger.InfoContext(ctx, event, attrs.Audit(ctx, event, attributes...)...)
}
