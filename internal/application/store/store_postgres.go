package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"aidledger/internal/application/models"
	"aidledger/internal/payment"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/sentinel"
	txcontext "aidledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

const columns = `id, scheme_id, applicant_id, applicant_name, documents, additional_info,
	eligibility_score, status, payment_status, submitted_at, reviewed_by, reviewed_at,
	rejection_reason, disbursement_ref, payment, disbursement, audit_trail, version`

// PostgresStore keeps applications in the applications table. Nested values
// (documents, payment, disbursement, audit trail) are JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (st *PostgresStore) Create(ctx context.Context, app *models.Application, prepare func(ctx context.Context, app *models.Application) error) error {
	next := app.Clone()
	err := txcontext.Run(ctx, st.db, func(ctx context.Context, tx *sql.Tx) error {
		if prepare != nil {
			if err := prepare(ctx, next); err != nil {
				return err
			}
		}
		args, err := rowArgs(next)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO applications (`+columns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			args...,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("application %s: %w", app.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert application: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*app = *next
	return nil
}

// Execute locks the row, runs fn and writes the result back under a
// version guard.
func (st *PostgresStore) Execute(ctx context.Context, appID id.ApplicationID, fn func(ctx context.Context, app *models.Application) error) (*models.Application, error) {
	var updated *models.Application
	err := txcontext.Run(ctx, st.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+columns+` FROM applications WHERE id = $1 FOR UPDATE`, appID.String())
		app, err := scanApplication(row)
		if err != nil {
			return err
		}
		readVersion := app.Version
		if err := fn(ctx, app); err != nil {
			return err
		}
		app.Version = readVersion + 1
		args, err := rowArgs(app)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE applications SET scheme_id = $2, applicant_id = $3, applicant_name = $4, documents = $5,
				additional_info = $6, eligibility_score = $7, status = $8, payment_status = $9,
				submitted_at = $10, reviewed_by = $11, reviewed_at = $12, rejection_reason = $13,
				disbursement_ref = $14, payment = $15, disbursement = $16, audit_trail = $17, version = $18
			WHERE id = $1 AND version = $19`,
			append(args, readVersion)...,
		)
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update application: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("application %s: %w", appID, sentinel.ErrConflict)
		}
		updated = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (st *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := st.db.QueryRowContext(ctx, `SELECT `+columns+` FROM applications WHERE id = $1`, appID.String())
	return scanApplication(row)
}

func (st *PostgresStore) ListByApplicant(ctx context.Context, applicantID id.UserID) ([]*models.Application, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT `+columns+` FROM applications
		WHERE applicant_id = $1
		ORDER BY submitted_at DESC, id DESC`,
		applicantID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()
	return scanApplications(rows)
}

func (st *PostgresStore) ListByScheme(ctx context.Context, schemeID id.SchemeID, status *models.Status) ([]*models.Application, error) {
	filter := ""
	if status != nil {
		filter = string(*status)
	}
	rows, err := st.db.QueryContext(ctx, `
		SELECT `+columns+` FROM applications
		WHERE scheme_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY eligibility_score DESC NULLS LAST, submitted_at ASC, id ASC`,
		schemeID.String(), filter,
	)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()
	return scanApplications(rows)
}

func rowArgs(app *models.Application) ([]any, error) {
	docs, err := json.Marshal(app.Documents)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	trail, err := json.Marshal(app.AuditTrail)
	if err != nil {
		return nil, fmt.Errorf("encode audit trail: %w", err)
	}
	paymentJSON, err := nullableJSON(app.Payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}
	disbursementJSON, err := nullableJSON(app.Disbursement)
	if err != nil {
		return nil, fmt.Errorf("encode disbursement: %w", err)
	}

	var score sql.NullInt64
	if app.EligibilityScore != nil {
		score = sql.NullInt64{Int64: int64(*app.EligibilityScore), Valid: true}
	}
	var reviewedBy sql.NullString
	if app.ReviewedBy != nil {
		reviewedBy = sql.NullString{String: app.ReviewedBy.String(), Valid: true}
	}
	var reviewedAt sql.NullTime
	if app.ReviewedAt != nil {
		reviewedAt = sql.NullTime{Time: *app.ReviewedAt, Valid: true}
	}

	return []any{
		app.ID.String(),
		app.SchemeID.String(),
		app.ApplicantID.String(),
		app.ApplicantName,
		docs,
		app.AdditionalInfo,
		score,
		string(app.Status),
		string(app.PaymentStatus),
		app.SubmittedAt,
		reviewedBy,
		reviewedAt,
		app.RejectionReason,
		app.DisbursementRef,
		paymentJSON,
		disbursementJSON,
		trail,
		app.Version,
	}, nil
}

// nullableJSON encodes v, or returns a nil interface so the column is NULL.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                                         models.Application
		appID, schemeID, applicantID, status, pstat string
		docs, trail, paymentJSON, disbursementJSON  []byte
		score                                       sql.NullInt64
		reviewedBy                                  sql.NullString
		reviewedAt                                  sql.NullTime
	)
	err := row.Scan(
		&appID, &schemeID, &applicantID, &app.ApplicantName, &docs, &app.AdditionalInfo,
		&score, &status, &pstat, &app.SubmittedAt, &reviewedBy, &reviewedAt,
		&app.RejectionReason, &app.DisbursementRef, &paymentJSON, &disbursementJSON, &trail, &app.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	app.ID = id.ApplicationID(appID)
	app.SchemeID = id.SchemeID(schemeID)
	app.Status = models.Status(status)
	app.PaymentStatus = models.PaymentStatus(pstat)
	if app.ApplicantID, err = id.ParseUserID(applicantID); err != nil {
		return nil, fmt.Errorf("scan application applicant: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		app.EligibilityScore = &v
	}
	if reviewedBy.Valid {
		v, err := id.ParseUserID(reviewedBy.String)
		if err != nil {
			return nil, fmt.Errorf("scan application reviewer: %w", err)
		}
		app.ReviewedBy = &v
	}
	if reviewedAt.Valid {
		v := reviewedAt.Time
		app.ReviewedAt = &v
	}
	if err := json.Unmarshal(docs, &app.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	app.AuditTrail = []audit.Receipt{}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &app.AuditTrail); err != nil {
			return nil, fmt.Errorf("decode audit trail: %w", err)
		}
	}
	if len(paymentJSON) > 0 {
		app.Payment = &payment.Record{}
		if err := json.Unmarshal(paymentJSON, app.Payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
	}
	if len(disbursementJSON) > 0 {
		app.Disbursement = &models.Disbursement{}
		if err := json.Unmarshal(disbursementJSON, app.Disbursement); err != nil {
			return nil, fmt.Errorf("decode disbursement: %w", err)
		}
	}
	return &app, nil
}

func scanApplications(rows *sql.Rows) ([]*models.Application, error) {
	out := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}
