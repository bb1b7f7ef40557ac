package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidledger/internal/scheme/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

var (
	created = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	columns = []string{"id", "title", "description", "required_documents", "eligibility", "benefits",
		"start_date", "end_date", "status", "fee", "created_at", "updated_at"}
)

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func sample() *models.Scheme {
	fee := decimal.RequireFromString("500.00")
	return &models.Scheme{
		ID:                "education-support",
		Title:             "Education Support",
		RequiredDocuments: []string{"Aadhaar Card", "Income Certificate", "Marksheet"},
		Eligibility:       []string{"Family income below 2 lakh"},
		StartDate:         models.NewDate(2026, 1, 1),
		EndDate:           models.NewDate(2026, 12, 31),
		Status:            models.StatusActive,
		Fee:               &fee,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestCreateCommitsWithCallback(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schemes")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	called := false
	err := store.Create(context.Background(), sample(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRollsBackWhenCallbackFails(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schemes")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.Create(context.Background(), sample(), func(context.Context) error {
		return errors.New("audit offline")
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schemes")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.Create(context.Background(), sample(), nil)
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestFindByIDScansArraysAndFee(t *testing.T) {
	store, mock := newMock(t)
	rows := sqlmock.NewRows(columns).AddRow(
		"education-support", "Education Support", "", `{"Aadhaar Card","Income Certificate"}`, `{}`, "",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		"active", "500.00", created, created,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM schemes WHERE id = $1")).
		WithArgs("education-support").
		WillReturnRows(rows)

	s, err := store.FindByID(context.Background(), id.SchemeID("education-support"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Aadhaar Card", "Income Certificate"}, s.RequiredDocuments)
	assert.Equal(t, models.NewDate(2026, 12, 31), s.EndDate)
	require.NotNil(t, s.Fee)
	assert.True(t, s.Fee.Equal(decimal.NewFromInt(500)))
}

func TestUpdateLocksRow(t *testing.T) {
	store, mock := newMock(t)
	rows := sqlmock.NewRows(columns).AddRow(
		"education-support", "Education Support", "", `{"Aadhaar Card"}`, `{}`, "",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		"active", nil, created, created,
	)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WithArgs("education-support").WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schemes SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.Update(context.Background(), "education-support", func(_ context.Context, s *models.Scheme) error {
		s.Status = models.StatusClosed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, updated.Status)
	assert.Nil(t, updated.Fee)
	require.NoError(t, mock.ExpectationsWereMet())
}
