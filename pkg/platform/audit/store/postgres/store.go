package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "aidledger/pkg/platform/audit"
	txcontext "aidledger/pkg/platform/tx"
)

// Store persists the ledger in the audit_events table. Sequence numbers come
// from the table's BIGSERIAL. When the context carries a transaction (see
// pkg/platform/tx) the append joins it, so the event commits or rolls back
// together with the transition that produced it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	query := `
		INSERT INTO audit_events (event_type, subject_id, actor_id, occurred_at, request_id, payload, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sequence
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		string(event.Type),
		event.SubjectID,
		event.ActorID,
		event.Timestamp,
		event.RequestID,
		[]byte(event.Payload),
		event.Hash,
	).Scan(&event.Sequence)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `sequence, event_type, subject_id, actor_id, occurred_at, request_id, payload, hash`

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_events ORDER BY sequence DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_events WHERE subject_id = $1 ORDER BY sequence ASC`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e         audit.Event
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&e.Sequence, &eventType, &e.SubjectID, &e.ActorID, &e.Timestamp, &e.RequestID, &payload, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = audit.EventType(eventType)
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
