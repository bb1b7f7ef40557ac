// Package audit is the append-only, content-hashed event log every lifecycle
// transition writes to.
//
// Events are appended synchronously through the compliance publisher, which
// fails closed: if the append fails the triggering transition fails too.
// Appended events are then fanned out best-effort to the stream worker.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventLogin                EventType = "login"
	EventApplicationSubmitted EventType = "application_submitted"
	EventStatusChange         EventType = "status_change"
	EventPayment              EventType = "payment"
	EventDisbursement         EventType = "disbursement"
	EventSchemeChange         EventType = "scheme_change"
	EventProfileChange        EventType = "profile_change"
)

// EventCategory drives retention and stream routing.
type EventCategory string

const (
	// CategoryCompliance covers application lifecycle and money movement.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication and account changes.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers catalog maintenance.
	CategoryOperations EventCategory = "operations"
)

var eventCategories = map[EventType]EventCategory{
	EventLogin:                CategorySecurity,
	EventApplicationSubmitted: CategoryCompliance,
	EventStatusChange:         CategoryCompliance,
	EventPayment:              CategoryCompliance,
	EventDisbursement:         CategoryCompliance,
	EventSchemeChange:         CategoryOperations,
	EventProfileChange:        CategorySecurity,
}

// Category returns the category for t. Unknown types are operations.
func (t EventType) Category() EventCategory {
	if cat, ok := eventCategories[t]; ok {
		return cat
	}
	return CategoryOperations
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	_, ok := eventCategories[t]
	return ok
}

// Event is one immutable ledger entry. Sequence is assigned by the store.
type Event struct {
	Sequence  int64           `json:"sequence"`
	Type      EventType       `json:"type"`
	SubjectID string          `json:"subject_id"`
	ActorID   string          `json:"actor_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Hash      string          `json:"hash"`
}

// Receipt is what callers persist next to the entity that triggered the event.
type Receipt struct {
	Type     EventType `json:"type"`
	Hash     string    `json:"hash"`
	Sequence int64     `json:"sequence"`
}

// Receipt returns the receipt for an appended event.
func (e Event) Receipt() Receipt {
	return Receipt{Type: e.Type, Hash: e.Hash, Sequence: e.Sequence}
}

// Store appends events and serves admin queries.
type Store interface {
	// Append assigns the next sequence number to event and persists it.
	Append(ctx context.Context, event *Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)
}
