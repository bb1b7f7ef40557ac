package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aidledger/internal/application/models"
	"aidledger/internal/application/service/mocks"
	"aidledger/internal/application/store"
	"aidledger/internal/documents"
	"aidledger/internal/payment"
	schememodels "aidledger/internal/scheme/models"
	"aidledger/internal/scoring"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publishers/compliance"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
	"aidledger/pkg/requestcontext"
)

var t1 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	schemes    *mocks.MockSchemeCatalog
	verifier   *mocks.MockContactVerification
	scorer     *mocks.MockScorer
	applicants *mocks.MockApplicantDirectory
	store      *store.InMemoryStore
	auditStore *auditmemory.InMemoryStore
	service    *Service

	catalog    map[id.SchemeID]*schememodels.Scheme
	unverified []string
	nextScore  func() (int, error)

	admin   id.Actor
	citizen id.Actor
	other   id.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), t1)
	s.ctrl = gomock.NewController(s.T())
	s.schemes = mocks.NewMockSchemeCatalog(s.ctrl)
	s.verifier = mocks.NewMockContactVerification(s.ctrl)
	s.scorer = mocks.NewMockScorer(s.ctrl)
	s.applicants = mocks.NewMockApplicantDirectory(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.auditStore = auditmemory.NewInMemoryStore()

	s.admin = id.Actor{ID: id.NewUserID(), Role: id.RoleAdmin}
	s.citizen = id.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}
	s.other = id.Actor{ID: id.NewUserID(), Role: id.RoleCitizen}

	s.catalog = map[id.SchemeID]*schememodels.Scheme{
		"education-support": scheme("education-support", schememodels.StatusActive, nil),
		"closed-scheme":     scheme("closed-scheme", schememodels.StatusClosed, nil),
		"upcoming-scheme":   scheme("upcoming-scheme", schememodels.StatusUpcoming, nil),
	}
	s.unverified = nil
	s.nextScore = func() (int, error) { return 75, nil }

	s.schemes.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, schemeID id.SchemeID) (*schememodels.Scheme, error) {
			if sc, ok := s.catalog[schemeID]; ok {
				return sc.Clone(), nil
			}
			return nil, dErrors.New(dErrors.CodeNotFound, "scheme not found")
		}).AnyTimes()
	s.verifier.EXPECT().Unverified(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, id.UserID) ([]string, error) { return s.unverified, nil }).AnyTimes()
	s.scorer.EXPECT().Score(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, scoring.Input) (int, error) { return s.nextScore() }).AnyTimes()
	s.applicants.EXPECT().DisplayName(gomock.Any(), gomock.Any()).Return("Asha Devi", nil).AnyTimes()

	s.service = s.newService(compliance.New(s.auditStore))
}

func (s *ServiceSuite) newService(auditor AuditLogger) *Service {
	return New(s.store, s.schemes, s.verifier, payment.NewProcessor(), auditor,
		WithScorer(s.scorer),
		WithApplicants(s.applicants),
	)
}

func scheme(schemeID id.SchemeID, status schememodels.Status, fee *decimal.Decimal) *schememodels.Scheme {
	return &schememodels.Scheme{
		ID:                schemeID,
		Title:             "Education Support",
		RequiredDocuments: []string{"Aadhaar Card", "Income Certificate", "Marksheet"},
		StartDate:         schememodels.NewDate(2026, 1, 1),
		EndDate:           schememodels.NewDate(2026, 12, 31),
		Status:            status,
		Fee:               fee,
	}
}

func submitReq(schemeID string) *models.SubmitRequest {
	return &models.SubmitRequest{
		SchemeID: schemeID,
		Documents: []documents.Document{
			{Name: "aadhaar card.pdf", StorageRef: "s3://docs/1"},
			{Name: "Income Certificate 2025", StorageRef: "s3://docs/2"},
			{Name: "Class 12 Marksheet", StorageRef: "s3://docs/3"},
		},
		AdditionalInfo: "first year engineering",
	}
}

func upi() *payment.Request {
	return &payment.Request{Method: payment.MethodUPI, UPIID: "asha@upi"}
}

func (s *ServiceSuite) at(ts time.Time) context.Context {
	return requestcontext.WithTime(s.ctx, ts)
}

func (s *ServiceSuite) submit() *models.Application {
	app, err := s.service.Submit(s.ctx, s.citizen, submitReq("education-support"))
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) approve(appID id.ApplicationID) *models.Application {
	app, err := s.service.Approve(s.ctx, s.admin, appID, nil)
	s.Require().NoError(err)
	return app
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) *dErrors.Error {
	s.Require().Error(err)
	de, ok := dErrors.As(err)
	s.Require().True(ok, "expected domain error, got %v", err)
	s.Require().Equal(code, de.Code, de.Message)
	return de
}

func (s *ServiceSuite) events(appID id.ApplicationID) []audit.Event {
	events, err := s.auditStore.ListBySubject(s.ctx, appID.String())
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) TestSubmit() {
	s.Run("citizen submits a complete application", func() {
		app := s.submit()
		s.Equal(models.StatusPending, app.Status)
		s.Equal(models.PaymentNone, app.PaymentStatus)
		s.Equal(t1, app.SubmittedAt)
		s.Equal("Asha Devi", app.ApplicantName)
		s.Require().NotNil(app.EligibilityScore)
		s.Equal(75, *app.EligibilityScore)
		s.Regexp(`^APP-[0-9A-Z]{26}$`, app.ID.String())

		s.Require().Len(app.AuditTrail, 1)
		events := s.events(app.ID)
		s.Require().Len(events, 1)
		s.Equal(audit.EventApplicationSubmitted, events[0].Type)
		s.Equal(events[0].Hash, app.AuditTrail[0].Hash)
		s.Equal(events[0].Sequence, app.AuditTrail[0].Sequence)
	})

	s.Run("ids are unique", func() {
		a, b := s.submit(), s.submit()
		s.NotEqual(a.ID, b.ID)
	})

	s.Run("only citizens submit", func() {
		_, err := s.service.Submit(s.ctx, s.admin, submitReq("education-support"))
		s.requireCode(err, dErrors.CodeForbidden)
		_, err = s.service.Submit(s.ctx, id.Actor{}, submitReq("education-support"))
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("unknown scheme", func() {
		_, err := s.service.Submit(s.ctx, s.citizen, submitReq("no-such-scheme"))
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("scheme not open", func() {
		for _, schemeID := range []string{"closed-scheme", "upcoming-scheme"} {
			_, err := s.service.Submit(s.ctx, s.citizen, submitReq(schemeID))
			s.requireCode(err, dErrors.CodeInvalidState)
		}
	})

	s.Run("missing documents are listed", func() {
		req := submitReq("education-support")
		req.Documents = req.Documents[2:]
		_, err := s.service.Submit(s.ctx, s.citizen, req)
		de := s.requireCode(err, dErrors.CodeValidation)
		s.Equal([]string{"Aadhaar Card", "Income Certificate"}, de.Details["missing_documents"])

		var missing *documents.MissingDocumentsError
		s.True(errors.As(err, &missing))
	})

	s.Run("unverified contacts block submission", func() {
		s.unverified = []string{"phone"}
		defer func() { s.unverified = nil }()
		_, err := s.service.Submit(s.ctx, s.citizen, submitReq("education-support"))
		de := s.requireCode(err, dErrors.CodeValidation)
		s.Equal([]string{"phone"}, de.Details["unverified"])
	})
}

func (s *ServiceSuite) TestScoring() {
	s.Run("scorer failure leaves the application unscored", func() {
		s.nextScore = func() (int, error) { return 0, errors.New("model offline") }
		app := s.submit()
		s.Nil(app.EligibilityScore)
	})

	s.Run("out of range score is dropped", func() {
		s.nextScore = func() (int, error) { return 140, nil }
		app := s.submit()
		s.Nil(app.EligibilityScore)
	})

	s.Run("no scorer configured", func() {
		svc := New(s.store, s.schemes, s.verifier, payment.NewProcessor(), compliance.New(s.auditStore))
		app, err := svc.Submit(s.ctx, s.citizen, submitReq("education-support"))
		s.Require().NoError(err)
		s.Nil(app.EligibilityScore)
		s.Empty(app.ApplicantName)
	})
}

func (s *ServiceSuite) TestHappyPath() {
	app := s.submit()

	approved := s.approve(app.ID)
	s.Equal(models.StatusApproved, approved.Status)
	s.Equal(models.PaymentPending, approved.PaymentStatus)
	s.Require().NotNil(approved.ReviewedBy)
	s.Equal(s.admin.ID, *approved.ReviewedBy)
	s.NotEmpty(approved.DisbursementRef)

	_, err := s.service.Acknowledgment(s.ctx, s.citizen, app.ID)
	s.requireCode(err, dErrors.CodeInvalidState)

	paid, err := s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	s.Require().NoError(err)
	s.Equal(models.PaymentCompleted, paid.PaymentStatus)
	s.Require().NotNil(paid.Payment)
	s.Regexp(`^TXN[0-9A-Z]{26}$`, paid.Payment.TransactionID)
	s.True(paid.Payment.Breakdown.Total.Equal(decimal.RequireFromString("515.30")))
	s.NotEmpty(paid.Payment.AuditHash)

	ack, err := s.service.Acknowledgment(s.ctx, s.citizen, app.ID)
	s.Require().NoError(err)
	s.Equal("515.30", ack.AmountPaid)
	s.Equal("Education Support", ack.SchemeTitle)

	disbursed, err := s.service.Disburse(s.ctx, s.admin, app.ID, &models.DisburseRequest{Amount: decimal.NewFromInt(25000)})
	s.Require().NoError(err)
	s.Require().NotNil(disbursed.Disbursement)
	s.Equal(approved.DisbursementRef, disbursed.Disbursement.Reference)

	_, err = s.service.Disburse(s.ctx, s.admin, app.ID, &models.DisburseRequest{Amount: decimal.NewFromInt(25000)})
	s.requireCode(err, dErrors.CodeInvalidState)

	events := s.events(app.ID)
	s.Require().Len(events, 4)
	want := []audit.EventType{audit.EventApplicationSubmitted, audit.EventStatusChange, audit.EventPayment, audit.EventDisbursement}
	for i, e := range events {
		s.Equal(want[i], e.Type)
		if i > 0 {
			s.Greater(e.Sequence, events[i-1].Sequence)
		}
	}
	s.Len(disbursed.AuditTrail, 4)
	s.Equal(events[2].Hash, disbursed.Payment.AuditHash)
}

func (s *ServiceSuite) TestSchemeFeeDoesNotChangeCharge() {
	fee := decimal.RequireFromString("250.00")
	s.catalog["awas"] = scheme("awas", schememodels.StatusActive, &fee)
	app, err := s.service.Submit(s.ctx, s.citizen, submitReq("awas"))
	s.Require().NoError(err)
	s.approve(app.ID)

	paid, err := s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	s.Require().NoError(err)
	s.Equal("500.00", paid.Payment.Breakdown.Base.StringFixed(2))
	s.Equal("515.30", paid.Payment.Breakdown.Total.StringFixed(2))
	s.True(paid.Payment.Breakdown.Balanced())
}

func (s *ServiceSuite) TestRejection() {
	app := s.submit()

	_, err := s.service.Reject(s.ctx, s.admin, app.ID, &models.RejectRequest{Reason: "  "})
	s.requireCode(err, dErrors.CodeValidation)

	rejected, err := s.service.Reject(s.ctx, s.admin, app.ID, &models.RejectRequest{Reason: "Income certificate is older than one year"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("Income certificate is older than one year", rejected.RejectionReason)
	s.Require().NotNil(rejected.ReviewedBy)

	_, err = s.service.Approve(s.ctx, s.admin, app.ID, nil)
	s.requireCode(err, dErrors.CodeInvalidState)
	_, err = s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	s.requireCode(err, dErrors.CodeInvalidState)

	// A rejected applicant may apply again under a new id.
	again := s.submit()
	s.NotEqual(app.ID, again.ID)
}

func (s *ServiceSuite) TestIllegalTransitionsChangeNothing() {
	app := s.submit()

	_, err := s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	de := s.requireCode(err, dErrors.CodeInvalidState)
	s.Equal("pending", de.Details["status"])

	s.approve(app.ID)
	before, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	eventsBefore := len(s.events(app.ID))

	_, err = s.service.Approve(s.ctx, s.admin, app.ID, nil)
	de = s.requireCode(err, dErrors.CodeInvalidState)
	s.Equal("approved", de.Details["status"])
	s.Equal("payment_pending", de.Details["payment_status"])

	_, err = s.service.Reject(s.ctx, s.admin, app.ID, &models.RejectRequest{Reason: "changed my mind"})
	s.requireCode(err, dErrors.CodeInvalidState)

	_, err = s.service.Pay(s.ctx, s.other, app.ID, upi())
	s.requireCode(err, dErrors.CodeInvalidState)

	_, err = s.service.Disburse(s.ctx, s.admin, app.ID, &models.DisburseRequest{Amount: decimal.NewFromInt(1)})
	s.requireCode(err, dErrors.CodeInvalidState)

	after, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Len(s.events(app.ID), eventsBefore)

	_, err = s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	s.Require().NoError(err)
	_, err = s.service.Pay(s.ctx, s.citizen, app.ID, upi())
	de = s.requireCode(err, dErrors.CodeInvalidState)
	s.Equal("payment_completed", de.Details["payment_status"])
}

func (s *ServiceSuite) TestPaymentFieldsValidatedFirst() {
	app := s.submit()
	s.approve(app.ID)
	_, err := s.service.Pay(s.ctx, s.citizen, app.ID, &payment.Request{Method: payment.MethodCard, Card: &payment.CardDetails{Number: "4111111111111111"}})
	de := s.requireCode(err, dErrors.CodeValidation)
	s.Equal([]string{"card.expiry", "card.cvv", "card.holder"}, de.Details["fields"])

	current, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.PaymentPending, current.PaymentStatus)
}

func (s *ServiceSuite) TestCitizensCannotReview() {
	app := s.submit()
	_, err := s.service.Approve(s.ctx, s.citizen, app.ID, nil)
	s.requireCode(err, dErrors.CodeForbidden)
	_, err = s.service.Reject(s.ctx, s.citizen, app.ID, &models.RejectRequest{Reason: "no"})
	s.requireCode(err, dErrors.CodeForbidden)
	_, err = s.service.Disburse(s.ctx, s.citizen, app.ID, &models.DisburseRequest{Amount: decimal.NewFromInt(1)})
	s.requireCode(err, dErrors.CodeForbidden)
	_, err = s.service.Queue(s.ctx, s.citizen, "education-support")
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestExpectedVersion() {
	app := s.submit()
	stale := app.Version + 1
	_, err := s.service.Approve(s.ctx, s.admin, app.ID, &models.ReviewRequest{ExpectedVersion: &stale})
	s.requireCode(err, dErrors.CodeConflict)

	zero := 0
	_, err = s.service.Approve(s.ctx, s.admin, app.ID, &models.ReviewRequest{ExpectedVersion: &zero})
	de := s.requireCode(err, dErrors.CodeValidation)
	s.Equal([]string{"expected_version"}, de.Details["fields"])
	unchanged, err := s.service.Get(s.ctx, s.admin, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, unchanged.Status)

	current := app.Version
	approved, err := s.service.Approve(s.ctx, s.admin, app.ID, &models.ReviewRequest{ExpectedVersion: &current})
	s.Require().NoError(err)
	s.Equal(app.Version+1, approved.Version)
}

func (s *ServiceSuite) TestQueueOrder() {
	scores := []int{60, 90, 90}
	times := []time.Time{t1, t1.Add(time.Minute), t1.Add(2 * time.Minute)}
	var ids []id.ApplicationID
	for i := range scores {
		score := scores[i]
		s.nextScore = func() (int, error) { return score, nil }
		app, err := s.service.Submit(s.at(times[i]), s.citizen, submitReq("education-support"))
		s.Require().NoError(err)
		ids = append(ids, app.ID)
	}
	s.nextScore = func() (int, error) { return 0, errors.New("offline") }
	unscored := s.submit()

	queue, err := s.service.Queue(s.ctx, s.admin, "education-support")
	s.Require().NoError(err)
	s.Require().Len(queue, 4)
	s.Equal([]id.ApplicationID{ids[1], ids[2], ids[0], unscored.ID},
		[]id.ApplicationID{queue[0].ID, queue[1].ID, queue[2].ID, queue[3].ID})

	s.approve(ids[1])
	queue, err = s.service.Queue(s.ctx, s.admin, "education-support")
	s.Require().NoError(err)
	s.Len(queue, 3)

	_, err = s.service.ListForScheme(s.ctx, s.admin, "no-such-scheme", nil)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestReadAccess() {
	app := s.submit()

	_, err := s.service.Get(s.ctx, s.other, app.ID)
	s.requireCode(err, dErrors.CodeForbidden)
	_, err = s.service.Get(s.ctx, s.admin, app.ID)
	s.NoError(err)
	_, err = s.service.Get(s.ctx, s.citizen, "APP-MISSING")
	s.requireCode(err, dErrors.CodeNotFound)
	_, err = s.service.Get(s.ctx, id.Actor{}, app.ID)
	s.requireCode(err, dErrors.CodeUnauthorized)

	later, err := s.service.Submit(s.at(t1.Add(time.Hour)), s.citizen, submitReq("education-support"))
	s.Require().NoError(err)
	mine, err := s.service.ListForApplicant(s.ctx, s.citizen, s.citizen.ID)
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(later.ID, mine[0].ID)

	_, err = s.service.ListForApplicant(s.ctx, s.other, s.citizen.ID)
	s.requireCode(err, dErrors.CodeForbidden)
	byAdmin, err := s.service.ListForApplicant(s.ctx, s.admin, s.citizen.ID)
	s.Require().NoError(err)
	s.Len(byAdmin, 2)
}

func (s *ServiceSuite) TestAuditFailureFailsClosed() {
	auditor := mocks.NewMockAuditLogger(s.ctrl)
	auditor.EXPECT().Log(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(audit.Receipt{}, errors.New("ledger offline")).AnyTimes()
	failing := s.newService(auditor)

	_, err := failing.Submit(s.ctx, s.citizen, submitReq("education-support"))
	s.requireCode(err, dErrors.CodeInternal)
	mine, err := s.service.ListForApplicant(s.ctx, s.citizen, s.citizen.ID)
	s.Require().NoError(err)
	s.Empty(mine)

	app := s.submit()
	_, err = failing.Approve(s.ctx, s.admin, app.ID, nil)
	s.requireCode(err, dErrors.CodeInternal)
	current, err := s.store.FindByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, current.Status)
	s.Equal(app.Version, current.Version)
}
