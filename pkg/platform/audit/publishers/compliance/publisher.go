// Package compliance provides the fail-closed audit ledger writer.
//
// Log appends synchronously; if the append fails, an error is returned and
// the calling transition must fail. Appended events are offered to an
// optional fan-out channel without blocking.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/requestcontext"
)

// Publisher writes ledger entries.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	fanout  chan<- audit.Event
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithFanout offers every appended event to ch. Full channels drop the copy;
// the ledger entry itself is already durable.
func WithFanout(ch chan<- audit.Event) Option {
	return func(p *Publisher) {
		p.fanout = ch
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Log appends an event of eventType about subjectID and returns its receipt.
// The hash covers the canonical JSON of payload only, so it is reproducible
// from the payload alone; the sequence orders events across all types.
func (p *Publisher) Log(ctx context.Context, eventType audit.EventType, subjectID string, payload any) (audit.Receipt, error) {
	start := time.Now()

	if !eventType.IsValid() {
		return audit.Receipt{}, fmt.Errorf("unknown audit event type %q", eventType)
	}
	if subjectID == "" {
		return audit.Receipt{}, fmt.Errorf("audit event requires a subject")
	}

	canonical, err := audit.Canonicalize(payload)
	if err != nil {
		return audit.Receipt{}, err
	}

	event := &audit.Event{
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: requestcontext.Now(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Payload:   json.RawMessage(canonical),
		Hash:      audit.Hash(canonical),
	}
	if actor := requestcontext.Actor(ctx); !actor.IsZero() {
		event.ActorID = actor.ID.String()
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
				"event_type", string(eventType),
				"subject_id", subjectID,
				"error", err,
			)
		}
		return audit.Receipt{}, fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsAppended(eventType)
	}
	p.offer(ctx, *event)

	return event.Receipt(), nil
}

func (p *Publisher) offer(ctx context.Context, event audit.Event) {
	if p.fanout == nil {
		return
	}
	select {
	case p.fanout <- event:
	default:
		if p.metrics != nil {
			p.metrics.IncFanoutDropped()
		}
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit fan-out buffer full, dropping stream copy",
				"sequence", event.Sequence,
			)
		}
	}
}

// ListRecent exposes the ledger for admin browsing.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
