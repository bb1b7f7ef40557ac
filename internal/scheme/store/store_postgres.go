package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"aidledger/internal/scheme/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
	txcontext "aidledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

const selectColumns = `id, title, description, required_documents, eligibility, benefits,
	start_date, end_date, status, fee, created_at, updated_at`

const insertColumns = `id, title, description, required_documents, eligibility, benefits,
	start_date, end_date, status, fee, updated_at, created_at`

// PostgresStore keeps schemes in the schemes table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (st *PostgresStore) Create(ctx context.Context, s *models.Scheme, commit func(ctx context.Context) error) error {
	return txcontext.Run(ctx, st.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schemes (`+insertColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			insertArgs(s)...,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("scheme %s: %w", s.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert scheme: %w", err)
		}
		if commit != nil {
			return commit(ctx)
		}
		return nil
	})
}

func (st *PostgresStore) Update(ctx context.Context, schemeID id.SchemeID, fn func(ctx context.Context, s *models.Scheme) error) (*models.Scheme, error) {
	var updated *models.Scheme
	err := txcontext.Run(ctx, st.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM schemes WHERE id = $1 FOR UPDATE`, string(schemeID))
		s, err := scanScheme(row)
		if err != nil {
			return err
		}
		if err := fn(ctx, s); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE schemes SET title = $2, description = $3, required_documents = $4, eligibility = $5,
				benefits = $6, start_date = $7, end_date = $8, status = $9, fee = $10, updated_at = $11
			WHERE id = $1`,
			insertArgs(s)[:11]...,
		)
		if err != nil {
			return fmt.Errorf("update scheme: %w", err)
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (st *PostgresStore) FindByID(ctx context.Context, schemeID id.SchemeID) (*models.Scheme, error) {
	row := st.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM schemes WHERE id = $1`, string(schemeID))
	return scanScheme(row)
}

func (st *PostgresStore) List(ctx context.Context, status *models.Status) ([]*models.Scheme, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = st.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM schemes WHERE status = $1 ORDER BY id`, string(*status))
	} else {
		rows, err = st.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM schemes ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list schemes: %w", err)
	}
	defer rows.Close()

	var out []*models.Scheme
	for rows.Next() {
		s, err := scanScheme(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// insertArgs follows insertColumns order; the first eleven also serve UPDATE.
func insertArgs(s *models.Scheme) []any {
	fee := decimal.NullDecimal{}
	if s.Fee != nil {
		fee = decimal.NullDecimal{Decimal: *s.Fee, Valid: true}
	}
	return []any{
		string(s.ID), s.Title, s.Description,
		pq.Array(s.RequiredDocuments), pq.Array(s.Eligibility), s.Benefits,
		s.StartDate.Time, s.EndDate.Time, string(s.Status), fee,
		s.UpdatedAt, s.CreatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheme(row rowScanner) (*models.Scheme, error) {
	var (
		s          models.Scheme
		rawID      string
		rawStatus  string
		start, end time.Time
		fee        decimal.NullDecimal
	)
	err := row.Scan(&rawID, &s.Title, &s.Description,
		pq.Array(&s.RequiredDocuments), pq.Array(&s.Eligibility), &s.Benefits,
		&start, &end, &rawStatus, &fee, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scheme: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan scheme: %w", err)
	}
	s.ID = id.SchemeID(rawID)
	s.Status = models.Status(rawStatus)
	s.StartDate = models.FromTime(start)
	s.EndDate = models.FromTime(end)
	if fee.Valid {
		f := fee.Decimal
		s.Fee = &f
	}
	return &s, nil
}
