package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/internal/application/models"
	"aidledger/internal/application/service"
	"aidledger/internal/application/store"
	"aidledger/internal/payment"
	schememodels "aidledger/internal/scheme/models"
	"aidledger/internal/scoring"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/audit/publishers/compliance"
	auditmemory "aidledger/pkg/platform/audit/store/memory"
	"aidledger/pkg/testutil"
)

type catalog struct{}

func (catalog) Get(_ context.Context, schemeID id.SchemeID) (*schememodels.Scheme, error) {
	if schemeID != "education-support" {
		return nil, dErrors.New(dErrors.CodeNotFound, "scheme not found")
	}
	return &schememodels.Scheme{
		ID:                "education-support",
		Title:             "Education Support",
		RequiredDocuments: []string{"Aadhaar Card", "Income Certificate"},
		Status:            schememodels.StatusActive,
	}, nil
}

type allVerified struct{}

func (allVerified) Unverified(context.Context, id.UserID) ([]string, error) { return nil, nil }

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.New(store.NewInMemoryStore(), catalog{}, allVerified{}, payment.NewProcessor(),
		compliance.New(auditmemory.NewInMemoryStore()),
		service.WithScorer(scoring.Fixed(80)),
	)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	return r
}

func submitBody() map[string]any {
	return map[string]any{
		"scheme_id": "education-support",
		"documents": []map[string]string{
			{"name": "Aadhaar Card.pdf", "storage_ref": "s3://docs/a"},
			{"name": "income certificate.jpg", "storage_ref": "s3://docs/b"},
		},
	}
}

func TestApplicationLifecycleOverHTTP(t *testing.T) {
	router := newRouter(t)
	citizen, admin := id.NewUserID(), id.NewUserID()
	var appID string

	testutil.Given(t, "a citizen submits a complete application", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.AsCitizen(testutil.NewJSONRequest(t, http.MethodPost, "/applications", submitBody()), citizen))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		app := testutil.UnmarshalResponse[models.Application](t, rr)
		assert.Equal(t, models.StatusPending, app.Status)
		require.NotNil(t, app.EligibilityScore)
		assert.Equal(t, 80, *app.EligibilityScore)
		appID = app.ID.String()
	})

	testutil.When(t, "an admin reviews the queue and approves", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodGet, "/admin/schemes/education-support/applications?status=pending"), admin))
		testutil.AssertStatus(t, rr, http.StatusOK)
		list := testutil.UnmarshalResponse[listResponse](t, rr)
		require.Len(t, list.Applications, 1)

		rr = testutil.DoRequest(router, testutil.AsAdmin(testutil.NewRequest(t, http.MethodPost, "/admin/applications/"+appID+"/approve"), admin))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "payment_status", "payment_pending")
	})

	testutil.Then(t, "the citizen pays and downloads the acknowledgment", func(t *testing.T) {
		pay := map[string]any{"method": "netbanking", "bank": "SBI"}
		rr := testutil.DoRequest(router, testutil.AsCitizen(testutil.NewJSONRequest(t, http.MethodPost, "/applications/"+appID+"/payment", pay), citizen))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "payment_status", "payment_completed")

		rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewJSONRequest(t, http.MethodPost, "/applications/"+appID+"/payment", pay), citizen))
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "invalid_state")

		rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewRequest(t, http.MethodGet, "/applications/"+appID+"/acknowledgment"), citizen))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
		assert.Contains(t, rr.Body.String(), "INR 515.30")

		rr = testutil.DoRequest(router, testutil.AsAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/admin/applications/"+appID+"/disburse", map[string]any{"amount": "12000"}), admin))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}

func TestErrorsOverHTTP(t *testing.T) {
	router := newRouter(t)
	citizen, other := id.NewUserID(), id.NewUserID()

	body := submitBody()
	body["documents"] = []map[string]string{{"name": "Aadhaar Card", "storage_ref": "s3://a"}}
	rr := testutil.DoRequest(router, testutil.AsCitizen(testutil.NewJSONRequest(t, http.MethodPost, "/applications", body), citizen))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	assert.Contains(t, rr.Body.String(), "Income Certificate")

	rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewJSONRequest(t, http.MethodPost, "/applications", submitBody()), citizen))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	appID := testutil.UnmarshalResponse[models.Application](t, rr).ID.String()

	rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewRequest(t, http.MethodPost, "/admin/applications/"+appID+"/approve"), citizen))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")

	rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewRequest(t, http.MethodGet, "/applications/"+appID), other))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")

	rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewRequest(t, http.MethodGet, "/applications/not-an-id"), citizen))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")

	rr = testutil.DoRequest(router, testutil.AsAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/admin/applications/"+appID+"/reject", map[string]any{"reason": ""}), id.NewUserID()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")

	rr = testutil.DoRequest(router, testutil.AsAdmin(testutil.NewJSONRequest(t, http.MethodPost, "/admin/applications/"+appID+"/approve", map[string]any{"expected_version": 7}), id.NewUserID()))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")

	rr = testutil.DoRequest(router, testutil.AsCitizen(testutil.NewRequest(t, http.MethodGet, "/applications"), other))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.JSONEq(t, `{"applications":[]}`, rr.Body.String())
}
