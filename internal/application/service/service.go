// Package service runs the application lifecycle: submission, admin review,
// fee payment and benefit disbursement.
//
// Every transition runs inside the store's critical section and appends its
// audit event there. If the append fails the transition fails and nothing is
// written.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aidledger/internal/application/models"
	"aidledger/internal/documents"
	"aidledger/internal/payment"
	schememodels "aidledger/internal/scheme/models"
	"aidledger/internal/scoring"
	"aidledger/pkg/attrs"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/ids"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/sentinel"
	"aidledger/pkg/requestcontext"
)

const (
	tracerName         = "aidledger/internal/application"
	disbursementPrefix = "DSB"
)

type Store interface {
	Create(ctx context.Context, app *models.Application, prepare func(ctx context.Context, app *models.Application) error) error
	Execute(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, app *models.Application) error) (*models.Application, error)
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ListByApplicant(ctx context.Context, applicantID id.UserID) ([]*models.Application, error)
	ListByScheme(ctx context.Context, schemeID id.SchemeID, status *models.Status) ([]*models.Application, error)
}

// SchemeCatalog resolves schemes. Errors are already domain errors.
type SchemeCatalog interface {
	Get(ctx context.Context, schemeID id.SchemeID) (*schememodels.Scheme, error)
}

// ContactVerification lists the contact channels a user has not verified yet.
type ContactVerification interface {
	Unverified(ctx context.Context, userID id.UserID) ([]string, error)
}

// ApplicantDirectory resolves the display name stored on new applications.
type ApplicantDirectory interface {
	DisplayName(ctx context.Context, userID id.UserID) (string, error)
}

type Scorer interface {
	Score(ctx context.Context, in scoring.Input) (int, error)
}

type PaymentProcessor interface {
	Charge(ctx context.Context, req *payment.Request) (*payment.Record, error)
}

type AuditLogger interface {
	Log(ctx context.Context, eventType audit.EventType, subjectID string, payload any) (audit.Receipt, error)
}

type Service struct {
	store      Store
	schemes    SchemeCatalog
	verifier   ContactVerification
	payments   PaymentProcessor
	auditor    AuditLogger
	applicants ApplicantDirectory
	scorer     Scorer
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	newID      func() string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithScorer attaches an eligibility scorer. Without one applications are unscored.
func WithScorer(scorer Scorer) Option {
	return func(s *Service) {
		s.scorer = scorer
	}
}

// WithApplicants resolves applicant names at submission.
func WithApplicants(dir ApplicantDirectory) Option {
	return func(s *Service) {
		s.applicants = dir
	}
}

// WithIDGenerator overrides the suffix used for application references.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

func New(store Store, schemes SchemeCatalog, verifier ContactVerification, payments PaymentProcessor, auditor AuditLogger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		schemes:  schemes,
		verifier: verifier,
		payments: payments,
		auditor:  auditor,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		newID:    ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit files a new application for a citizen.
func (s *Service) Submit(ctx context.Context, actor id.Actor, req *models.SubmitRequest) (app *models.Application, err error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	ctx, done := s.begin(ctx, "submit", attribute.String("scheme_id", req.SchemeID))
	defer func() { done(err) }()

	if err := requireCitizen(actor); err != nil {
		return nil, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	schemeID := id.SchemeID(req.SchemeID)

	scheme, err := s.schemes.Get(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	if err := scheme.CanAcceptApplications(); err != nil {
		return nil, err
	}
	if err := documents.Validate(scheme.RequiredDocuments, req.Documents); err != nil {
		var missing *documents.MissingDocumentsError
		if errors.As(err, &missing) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "required documents are missing").
				WithDetail("missing_documents", missing.Missing)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid documents")
	}
	unverified, err := s.verifier.Unverified(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check contact verification")
	}
	if len(unverified) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "contact details must be verified before applying").
			WithDetail("unverified", unverified)
	}

	now := requestcontext.Now(ctx)
	app = models.NewApplication(id.NewApplicationID(s.newID()), schemeID, actor.ID,
		s.displayName(ctx, actor.ID), req.Documents, req.AdditionalInfo, now)
	app.EligibilityScore = s.score(ctx, app)

	err = s.store.Create(ctx, app, func(ctx context.Context, a *models.Application) error {
		receipt, err := s.auditor.Log(ctx, audit.EventApplicationSubmitted, a.ID.String(), map[string]any{
			"application_id":    a.ID.String(),
			"scheme_id":         a.SchemeID.String(),
			"applicant_id":      a.ApplicantID.String(),
			"documents":         documentNames(a.Documents),
			"eligibility_score": a.EligibilityScore,
			"submitted_at":      a.SubmittedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		a.RecordAudit(receipt)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, app.ID)
	}

	s.metrics.incSubmission(schemeID.String())
	s.logAudit(ctx, "application_submitted",
		"application_id", app.ID.String(),
		"scheme_id", schemeID.String(),
		"user_id", actor.ID.String(),
	)
	return app, nil
}

// Get returns an application to its owner or to an admin.
func (s *Service) Get(ctx context.Context, actor id.Actor, appID id.ApplicationID) (app *models.Application, err error) {
	ctx, done := s.begin(ctx, "get", attribute.String("application_id", appID.String()))
	defer func() { done(err) }()

	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	app, err = s.store.FindByID(ctx, appID)
	if err != nil {
		return nil, translateStoreErr(err, appID)
	}
	if !actor.IsAdmin() && !app.IsOwnedBy(actor.ID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to view this application")
	}
	return app, nil
}

// ListForApplicant returns an applicant's history, newest first. Citizens
// may only list their own applications.
func (s *Service) ListForApplicant(ctx context.Context, actor id.Actor, applicantID id.UserID) (apps []*models.Application, err error) {
	ctx, done := s.begin(ctx, "list_for_applicant")
	defer func() { done(err) }()

	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() && actor.ID != applicantID {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to list another applicant's applications")
	}
	apps, err = s.store.ListByApplicant(ctx, applicantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	models.SortNewestFirst(apps)
	return apps, nil
}

// ListForScheme returns a scheme's applications in review-queue order.
func (s *Service) ListForScheme(ctx context.Context, actor id.Actor, schemeID id.SchemeID, status *models.Status) (apps []*models.Application, err error) {
	ctx, done := s.begin(ctx, "list_for_scheme", attribute.String("scheme_id", schemeID.String()))
	defer func() { done(err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.schemes.Get(ctx, schemeID); err != nil {
		return nil, err
	}
	apps, err = s.store.ListByScheme(ctx, schemeID, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	models.Rank(apps)
	return apps, nil
}

// Queue returns the pending applications of a scheme, best candidates first.
func (s *Service) Queue(ctx context.Context, actor id.Actor, schemeID id.SchemeID) ([]*models.Application, error) {
	pending := models.StatusPending
	return s.ListForScheme(ctx, actor, schemeID, &pending)
}

// Approve moves a pending application to approved and opens the payment step.
func (s *Service) Approve(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.ReviewRequest) (app *models.Application, err error) {
	ctx, done := s.begin(ctx, "approve", attribute.String("application_id", appID.String()))
	defer func() { done(err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req == nil {
		req = &models.ReviewRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	app, err = s.store.Execute(ctx, appID, func(ctx context.Context, a *models.Application) error {
		if err := models.CheckVersion(a, req.ExpectedVersion); err != nil {
			return err
		}
		if err := a.CanApprove(); err != nil {
			return err
		}
		from := a.Status
		a.ApplyApproval(actor.ID, ids.WithPrefix(disbursementPrefix), now)
		return s.appendAudit(ctx, a, audit.EventStatusChange, map[string]any{
			"application_id":   a.ID.String(),
			"from":             string(from),
			"to":               string(a.Status),
			"payment_status":   string(a.PaymentStatus),
			"admin_id":         actor.ID.String(),
			"disbursement_ref": a.DisbursementRef,
		})
	})
	if err != nil {
		return nil, translateStoreErr(err, appID)
	}

	s.logAudit(ctx, "application_approved", "application_id", appID.String(), "user_id", actor.ID.String())
	return app, nil
}

// Reject closes a pending application with a reason shown to the applicant.
func (s *Service) Reject(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.RejectRequest) (app *models.Application, err error) {
	ctx, done := s.begin(ctx, "reject", attribute.String("application_id", appID.String()))
	defer func() { done(err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	app, err = s.store.Execute(ctx, appID, func(ctx context.Context, a *models.Application) error {
		if err := models.CheckVersion(a, req.ExpectedVersion); err != nil {
			return err
		}
		if err := a.CanReject(); err != nil {
			return err
		}
		from := a.Status
		a.ApplyRejection(actor.ID, req.Reason, now)
		return s.appendAudit(ctx, a, audit.EventStatusChange, map[string]any{
			"application_id": a.ID.String(),
			"from":           string(from),
			"to":             string(a.Status),
			"reason":         a.RejectionReason,
			"admin_id":       actor.ID.String(),
		})
	})
	if err != nil {
		return nil, translateStoreErr(err, appID)
	}

	s.logAudit(ctx, "application_rejected", "application_id", appID.String(), "user_id", actor.ID.String())
	return app, nil
}

// Pay settles the application fee. Only the applicant may pay, once.
func (s *Service) Pay(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *payment.Request) (app *models.Application, err error) {
	ctx, done := s.begin(ctx, "pay", attribute.String("application_id", appID.String()))
	defer func() { done(err) }()

	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	app, err = s.store.Execute(ctx, appID, func(ctx context.Context, a *models.Application) error {
		if err := a.CanPay(actor.ID); err != nil {
			return err
		}
		rec, err := s.payments.Charge(ctx, req)
		if err != nil {
			return err
		}
		receipt, err := s.auditor.Log(ctx, audit.EventPayment, a.ID.String(), map[string]any{
			"application_id": a.ID.String(),
			"transaction_id": rec.TransactionID,
			"method":         string(rec.Method),
			"base":           rec.Breakdown.Base.StringFixed(2),
			"convenience":    rec.Breakdown.Convenience.StringFixed(2),
			"tax":            rec.Breakdown.Tax.StringFixed(2),
			"total":          rec.Breakdown.Total.StringFixed(2),
			"applicant_id":   actor.ID.String(),
		})
		if err != nil {
			return err
		}
		rec.AuditHash = receipt.Hash
		a.ApplyPayment(rec)
		a.RecordAudit(receipt)
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, appID)
	}

	s.logAudit(ctx, "application_paid",
		"application_id", appID.String(),
		"transaction_id", app.Payment.TransactionID,
		"user_id", actor.ID.String(),
	)
	return app, nil
}

// Disburse releases the benefit for a paid application.
func (s *Service) Disburse(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.DisburseRequest) (app *models.Application, err error) {
	ctx, done := s.begin(ctx, "disburse", attribute.String("application_id", appID.String()))
	defer func() { done(err) }()

	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	app, err = s.store.Execute(ctx, appID, func(ctx context.Context, a *models.Application) error {
		if err := models.CheckVersion(a, req.ExpectedVersion); err != nil {
			return err
		}
		if err := a.CanDisburse(); err != nil {
			return err
		}
		a.ApplyDisbursement(actor.ID, req.Amount, now)
		return s.appendAudit(ctx, a, audit.EventDisbursement, map[string]any{
			"application_id": a.ID.String(),
			"reference":      a.Disbursement.Reference,
			"amount":         a.Disbursement.Amount.StringFixed(2),
			"admin_id":       actor.ID.String(),
		})
	})
	if err != nil {
		return nil, translateStoreErr(err, appID)
	}

	s.logAudit(ctx, "benefit_disbursed", "application_id", appID.String(), "user_id", actor.ID.String())
	return app, nil
}

// Acknowledgment returns the payment receipt for a paid application.
func (s *Service) Acknowledgment(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Acknowledgment, error) {
	app, err := s.Get(ctx, actor, appID)
	if err != nil {
		return nil, err
	}
	title := app.SchemeID.String()
	if scheme, err := s.schemes.Get(ctx, app.SchemeID); err == nil {
		title = scheme.Title
	}
	return models.NewAcknowledgment(app, title)
}

func (s *Service) appendAudit(ctx context.Context, app *models.Application, eventType audit.EventType, payload map[string]any) error {
	receipt, err := s.auditor.Log(ctx, eventType, app.ID.String(), payload)
	if err != nil {
		return err
	}
	app.RecordAudit(receipt)
	return nil
}

// score returns nil when no scorer is configured, the scorer fails, or the
// score is out of range.
func (s *Service) score(ctx context.Context, app *models.Application) *int {
	if s.scorer == nil {
		return nil
	}
	v, err := s.scorer.Score(ctx, scoring.Input{
		ApplicationID:  app.ID,
		SchemeID:       app.SchemeID,
		ApplicantID:    app.ApplicantID,
		DocumentCount:  len(app.Documents),
		AdditionalInfo: app.AdditionalInfo,
	})
	if err != nil {
		s.metrics.incScoringFailure()
		s.logger.WarnContext(ctx, "eligibility scoring failed", "application_id", app.ID.String(), "error", err)
		return nil
	}
	if !scoring.InRange(v) {
		s.metrics.incScoringFailure()
		s.logger.WarnContext(ctx, "eligibility score out of range", "application_id", app.ID.String(), "score", v)
		return nil
	}
	return &v
}

func (s *Service) displayName(ctx context.Context, userID id.UserID) string {
	if s.applicants == nil {
		return ""
	}
	name, err := s.applicants.DisplayName(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "applicant name lookup failed", "user_id", userID.String(), "error", err)
		return ""
	}
	return name
}

// begin opens a span and returns a closer that records the outcome.
func (s *Service) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "application."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.observe(operation, outcome, time.Since(start).Seconds())
	}
}

func translateStoreErr(err error, appID id.ApplicationID) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found").WithDetail("application_id", appID.String())
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "application was modified concurrently").WithDetail("application_id", appID.String())
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "application update failed")
	}
}

func documentNames(docs []documents.Document) []string {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names
}

func requireCitizen(actor id.Actor) error {
	if actor.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsCitizen() {
		return dErrors.New(dErrors.CodeForbidden, "only citizens can submit applications")
	}
	return nil
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
