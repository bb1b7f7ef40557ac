package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"aidledger/internal/identity/models"
	"aidledger/internal/identity/store/revocation"
	userStore "aidledger/internal/identity/store/user"
	"aidledger/internal/identity/token"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publishers/compliance"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
	"aidledger/pkg/requestcontext"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	users      *userStore.InMemoryUserStore
	auditStore *auditmemory.InMemoryStore
	trl        *revocation.InMemoryTRL
	jwt        *token.JWTService
	metrics    *Metrics
	resets     *recordingReset
	service    *Service
}

type recordingReset struct {
	channels []string
	err      error
}

func (r *recordingReset) ContactsChanged(_ context.Context, _ id.UserID, channels []string) error {
	r.channels = append(r.channels, channels...)
	return r.err
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithClientMetadata(context.Background(), "203.0.113.7", chromeUA)
	s.users = userStore.New()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.trl = revocation.NewInMemoryTRL()
	s.jwt = token.NewJWTService("test-key", "aidledger-test")
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.resets = &recordingReset{}
	s.service = New(s.users, s.jwt,
		WithAuditLogger(compliance.New(s.auditStore)),
		WithContactReset(s.resets),
		WithRevocationList(s.trl),
		WithMetrics(s.metrics),
		WithTokenTTL(30*time.Minute),
		WithBcryptCost(bcrypt.MinCost),
	)
}

func (s *ServiceSuite) register(email string) *models.User {
	u, err := s.service.Register(s.ctx, &models.RegisterRequest{
		Name:     "Asha Rao",
		Email:    email,
		Phone:    "9876543210",
		Password: "secret1",
	})
	s.Require().NoError(err)
	return u
}

func (s *ServiceSuite) TestRegister() {
	s.Run("creates citizen with hashed password", func() {
		u := s.register("asha@example.com")
		s.Equal(id.RoleCitizen, u.Role)
		s.NotEqual([]byte("secret1"), u.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("secret1")))
	})

	s.Run("duplicate email is a conflict", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{
			Email: "ASHA@example.com", Phone: "9876543210", Password: "secret1",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("derives a display name from the email", func() {
		u, err := s.service.Register(s.ctx, &models.RegisterRequest{
			Email: "ravi.kumar@example.com", Phone: "9876543211", Password: "secret1",
		})
		s.Require().NoError(err)
		s.Equal("Ravi Kumar", u.Name)
	})

	s.Run("invalid input is a validation error", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "bad"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestLoginCitizen() {
	u := s.register("login@example.com")

	s.Run("issues a token and records a login event with device", func() {
		res, err := s.service.LoginCitizen(s.ctx, &models.LoginRequest{Email: "login@example.com", Password: "secret1"})
		s.Require().NoError(err)
		s.Equal("Bearer", res.TokenType)

		claims, err := s.jwt.ValidateToken(res.AccessToken)
		s.Require().NoError(err)
		s.Equal(u.ID.String(), claims.UserID)
		s.Equal("citizen", claims.Role)

		events, err := s.auditStore.ListBySubject(s.ctx, u.ID.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.EventLogin, events[0].Type)

		var payload struct {
			ClientIP string `json:"client_ip"`
			Device   struct {
				Browser string `json:"browser"`
			} `json:"device"`
		}
		s.Require().NoError(json.Unmarshal(events[0].Payload, &payload))
		s.Equal("203.0.113.7", payload.ClientIP)
		s.Equal("Chrome", payload.Device.Browser)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.Logins.WithLabelValues("citizen", "success")))
	})

	s.Run("wrong password is unauthorized and not audited", func() {
		_, err := s.service.LoginCitizen(s.ctx, &models.LoginRequest{Email: "login@example.com", Password: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		events, _ := s.auditStore.ListBySubject(s.ctx, u.ID.String())
		s.Len(events, 1)
	})

	s.Run("unknown email is unauthorized", func() {
		_, err := s.service.LoginCitizen(s.ctx, &models.LoginRequest{Email: "ghost@example.com", Password: "secret1"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestLoginAdmin() {
	admin, err := s.service.SeedAdmin(s.ctx, "admin@example.com", "admin123")
	s.Require().NoError(err)
	s.Equal(id.RoleAdmin, admin.Role)

	again, err := s.service.SeedAdmin(s.ctx, "admin@example.com", "admin123")
	s.Require().NoError(err)
	s.Equal(admin.ID, again.ID, "seeding is idempotent")

	res, err := s.service.LoginAdmin(s.ctx, &models.LoginRequest{Email: "admin@example.com", Password: "admin123"})
	s.Require().NoError(err)
	claims, err := s.jwt.ValidateToken(res.AccessToken)
	s.Require().NoError(err)
	s.Equal("admin", claims.Role)

	s.Run("admin cannot use citizen login and vice versa", func() {
		_, err := s.service.LoginCitizen(s.ctx, &models.LoginRequest{Email: "admin@example.com", Password: "admin123"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		s.register("citizen@example.com")
		_, err = s.service.LoginAdmin(s.ctx, &models.LoginRequest{Email: "citizen@example.com", Password: "secret1"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestLogoutRevokesToken() {
	s.register("out@example.com")
	res, err := s.service.LoginCitizen(s.ctx, &models.LoginRequest{Email: "out@example.com", Password: "secret1"})
	s.Require().NoError(err)
	claims, err := s.jwt.ValidateToken(res.AccessToken)
	s.Require().NoError(err)

	s.Require().NoError(s.service.Logout(s.ctx, claims.ID))
	revoked, err := s.trl.IsTokenRevoked(s.ctx, claims.ID)
	s.Require().NoError(err)
	s.True(revoked)

	s.True(dErrors.HasCode(s.service.Logout(s.ctx, ""), dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestProfile() {
	u := s.register("me@example.com")
	got, err := s.service.Profile(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Email, got.Email)

	_, err = s.service.Profile(s.ctx, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func ptr(s string) *string { return &s }

func (s *ServiceSuite) TestUpdateProfile() {
	u := s.register("asha@example.com")

	s.Run("non-contact fields keep verification", func() {
		updated, err := s.service.UpdateProfile(s.ctx, u.ID, &models.UpdateProfileRequest{
			Address:        ptr(" 12 MG Road, Pune "),
			AdditionalInfo: ptr("single parent"),
		})
		s.Require().NoError(err)
		s.Equal("12 MG Road, Pune", updated.Address)
		s.Equal("single parent", updated.AdditionalInfo)
		s.Empty(s.resets.channels)
	})

	s.Run("changed email and phone reset those channels", func() {
		updated, err := s.service.UpdateProfile(s.ctx, u.ID, &models.UpdateProfileRequest{
			Email: ptr("Asha.Rao@Example.com"),
			Phone: ptr("98765 00000"),
		})
		s.Require().NoError(err)
		s.Equal("asha.rao@example.com", updated.Email)
		s.Equal([]string{"email", "phone"}, s.resets.channels)

		_, err = s.users.FindByEmail(s.ctx, "asha@example.com")
		s.Error(err, "old email is released")
		found, err := s.users.FindByEmail(s.ctx, "asha.rao@example.com")
		s.Require().NoError(err)
		s.Equal(u.ID, found.ID)
	})

	s.Run("unchanged values are a no-op", func() {
		s.resets.channels = nil
		before, err := s.auditStore.ListBySubject(s.ctx, u.ID.String())
		s.Require().NoError(err)
		_, err = s.service.UpdateProfile(s.ctx, u.ID, &models.UpdateProfileRequest{Email: ptr("asha.rao@example.com")})
		s.Require().NoError(err)
		s.Empty(s.resets.channels)
		after, err := s.auditStore.ListBySubject(s.ctx, u.ID.String())
		s.Require().NoError(err)
		s.Len(after, len(before))
	})

	s.Run("profile changes are audited", func() {
		events, err := s.auditStore.ListBySubject(s.ctx, u.ID.String())
		s.Require().NoError(err)
		var changes int
		for _, e := range events {
			if e.Type == audit.EventProfileChange {
				changes++
			}
		}
		s.Equal(2, changes)
	})

	s.Run("taken email is a conflict", func() {
		other := s.register("ravi@example.com")
		_, err := s.service.UpdateProfile(s.ctx, other.ID, &models.UpdateProfileRequest{Email: ptr("asha.rao@example.com")})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid and empty requests", func() {
		_, err := s.service.UpdateProfile(s.ctx, u.ID, &models.UpdateProfileRequest{Phone: ptr("12")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.UpdateProfile(s.ctx, u.ID, &models.UpdateProfileRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.UpdateProfile(s.ctx, u.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = s.service.UpdateProfile(s.ctx, id.NewUserID(), &models.UpdateProfileRequest{Name: ptr("Ghost")})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
