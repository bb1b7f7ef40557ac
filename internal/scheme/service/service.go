// Package service manages the scheme catalog. Reads are public; writes are
// admin-only and audited as scheme_change events.
package service

import (
	"context"
	"errors"
	"log/slog"

	"aidledger/internal/scheme/models"
	"aidledger/pkg/attrs"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, s *models.Scheme, commit func(ctx context.Context) error) error
	Update(ctx context.Context, schemeID id.SchemeID, fn func(ctx context.Context, s *models.Scheme) error) (*models.Scheme, error)
	FindByID(ctx context.Context, schemeID id.SchemeID) (*models.Scheme, error)
	List(ctx context.Context, status *models.Status) ([]*models.Scheme, error)
}

type AuditLogger interface {
	Log(ctx context.Context, eventType audit.EventType, subjectID string, payload any) (audit.Receipt, error)
}

type Service struct {
	store   Store
	auditor AuditLogger
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, auditor AuditLogger, opts ...Option) *Service {
	s := &Service{store: store, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a scheme by id.
func (s *Service) Get(ctx context.Context, schemeID id.SchemeID) (*models.Scheme, error) {
	scheme, err := s.store.FindByID(ctx, schemeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "scheme not found").WithDetail("scheme_id", schemeID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load scheme")
	}
	return scheme, nil
}

// List returns the catalog, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *models.Status) ([]*models.Scheme, error) {
	schemes, err := s.store.List(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list schemes")
	}
	return schemes, nil
}

// Create adds a scheme to the catalog.
func (s *Service) Create(ctx context.Context, actor id.Actor, req *models.CreateRequest) (*models.Scheme, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	scheme, err := req.Build(requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.store.Create(ctx, scheme, func(ctx context.Context) error {
		_, err := s.auditor.Log(ctx, audit.EventSchemeChange, scheme.ID.String(), map[string]any{
			"scheme_id": scheme.ID.String(),
			"action":    "created",
			"status":    string(scheme.Status),
			"admin_id":  actor.ID.String(),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "scheme id already exists").WithDetail("scheme_id", scheme.ID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create scheme")
	}

	s.logAudit(ctx, "scheme_created", "scheme_id", scheme.ID.String(), "user_id", actor.ID.String())
	return scheme, nil
}

// Update changes the given fields of a scheme.
func (s *Service) Update(ctx context.Context, actor id.Actor, schemeID id.SchemeID, req *models.UpdateRequest) (*models.Scheme, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	var changed []string
	scheme, err := s.store.Update(ctx, schemeID, func(ctx context.Context, scheme *models.Scheme) error {
		var err error
		if changed, err = req.Apply(scheme, now); err != nil {
			return err
		}
		_, err = s.auditor.Log(ctx, audit.EventSchemeChange, scheme.ID.String(), map[string]any{
			"scheme_id": scheme.ID.String(),
			"action":    "updated",
			"fields":    changed,
			"status":    string(scheme.Status),
			"admin_id":  actor.ID.String(),
		})
		return err
	})
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "scheme not found").WithDetail("scheme_id", schemeID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update scheme")
	}

	s.logAudit(ctx, "scheme_updated", "scheme_id", scheme.ID.String(), "user_id", actor.ID.String())
	return scheme, nil
}

// Seed inserts catalog entries that do not exist yet. Seeding is not audited.
func (s *Service) Seed(ctx context.Context, reqs []models.CreateRequest) (int, error) {
	inserted := 0
	for i := range reqs {
		req := reqs[i]
		req.Normalize()
		if err := req.Validate(); err != nil {
			return inserted, err
		}
		scheme, err := req.Build(requestcontext.Now(ctx))
		if err != nil {
			return inserted, dErrors.Wrap(err, dErrors.CodeValidation, "invalid seed scheme "+req.ID)
		}
		if err := s.store.Create(ctx, scheme, nil); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return inserted, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed scheme")
		}
		inserted++
	}
	s.logger.InfoContext(ctx, "scheme catalog seeded", "inserted", inserted, "total", len(reqs))
	return inserted, nil
}

func requireAdmin(actor id.Actor) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	s.logger.InfoContext(ctx, event, attrs.Audit(ctx, event, attributes...)...)
}
