package worker

import (
	"context"
	"log/slog"

	audit "aidledger/pkg/platform/audit"
)

// Publisher delivers a ledger event to a downstream sink.
type Publisher interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Breaker gates publishing while the sink is unhealthy.
type Breaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
}

// Worker drains the ledger fan-out channel into a Publisher. Publish
// failures are logged and counted by the breaker; they never stop the loop.
type Worker struct {
	publisher Publisher
	breaker   Breaker
	inbox     <-chan audit.Event
	logger    *slog.Logger
}

func NewWorker(publisher Publisher, breaker Breaker, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{publisher: publisher, breaker: breaker, inbox: inbox, logger: logger}
}

// Run blocks until ctx is done or the inbox is closed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event audit.Event) {
	if w.breaker != nil && !w.breaker.Allow() {
		w.logger.WarnContext(ctx, "audit stream circuit open, dropping event",
			"sequence", event.Sequence,
			"event_type", string(event.Type),
		)
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		if w.breaker != nil {
			w.breaker.RecordFailure()
		}
		w.logger.ErrorContext(ctx, "failed to stream audit event",
			"sequence", event.Sequence,
			"event_type", string(event.Type),
			"error", err,
		)
		return
	}
	if w.breaker != nil {
		w.breaker.RecordSuccess()
	}
}
