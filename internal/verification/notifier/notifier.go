// Package notifier delivers verification codes. Only a logging notifier ships;
// real SMS and email gateways plug in behind the same interface.
package notifier

import (
	"context"
	"log/slog"

	"aidledger/internal/verification/models"
)

// LogNotifier writes codes to the log at debug level.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(ctx context.Context, channel models.Channel, destination, code string) error {
	n.logger.DebugContext(ctx, "verification code issued",
		"channel", channel,
		"destination", destination,
		"code", code,
	)
	return nil
}
