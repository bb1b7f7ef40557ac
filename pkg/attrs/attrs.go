// Package attrs builds slog key/value lists for audit log lines.
package attrs

import (
	"context"

	"aidledger/pkg/requestcontext"
)

// Get returns the value stored under key in a [k1, v1, k2, v2, ...] list.
func Get(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			return kv[i+1], true
		}
	}
	return nil, false
}

// SetDefault appends key=value unless key already holds a non-empty value.
func SetDefault(kv []any, key string, value any) []any {
	if v, ok := Get(kv, key); ok && v != nil && v != "" {
		return kv
	}
	return append(kv, key, value)
}

// Audit tags kv as the audit log line for event. The acting user and the
// request id are filled from ctx when the caller did not set them.
func Audit(ctx context.Context, event string, kv ...any) []any {
	out := make([]any, 0, len(kv)+8)
	out = append(out, kv...)
	if actor := requestcontext.Actor(ctx); !actor.IsZero() {
		out = SetDefault(out, "user_id", actor.ID.String())
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		out = SetDefault(out, "request_id", requestID)
	}
	return append(out, "event", event, "log_type", "audit")
}
