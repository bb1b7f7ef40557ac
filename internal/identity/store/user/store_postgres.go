package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"aidledger/internal/identity/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
	txcontext "aidledger/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresUserStore persists users in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Save(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, aadhaar_id, address, additional_info, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID.String(), user.Name, user.Email, user.Phone, user.AadhaarID, user.Address, user.AdditionalInfo,
		string(user.Role), user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("email %s: %w", user.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update locks the row, runs fn and writes the editable profile columns back.
func (s *PostgresUserStore) Update(ctx context.Context, userID id.UserID, fn func(ctx context.Context, user *models.User) error) (*models.User, error) {
	var updated *models.User
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, selectUser+`WHERE id = $1 FOR UPDATE`, userID.String()))
		if err != nil {
			return err
		}
		if err := fn(ctx, u); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET name = $2, email = $3, phone = $4, address = $5, additional_info = $6, updated_at = $7
			WHERE id = $1`,
			u.ID.String(), u.Name, u.Email, u.Phone, u.Address, u.AdditionalInfo, u.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("email %s: %w", u.Email, sentinel.ErrConflict)
			}
			return fmt.Errorf("update user: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, userID.String())
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `WHERE email = $1`, email)
}

const selectUser = `
		SELECT id, name, email, phone, aadhaar_id, address, additional_info, role, password_hash, created_at, updated_at
		FROM users `

func (s *PostgresUserStore) findOne(ctx context.Context, where string, arg any) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, selectUser+where, arg))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u       models.User
		rawID   string
		rawRole string
	)
	err := row.Scan(&rawID, &u.Name, &u.Email, &u.Phone, &u.AadhaarID, &u.Address, &u.AdditionalInfo,
		&rawRole, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	parsed, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", rawID, err)
	}
	u.ID = parsed
	u.Role = id.Role(rawRole)
	return &u, nil
}
