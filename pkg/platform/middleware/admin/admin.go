package admin

import (
	"log/slog"
	"net/http"

	id "aidledger/pkg/domain"
	request "aidledger/pkg/platform/middleware/request"
	"aidledger/pkg/requestcontext"
)

// RequireRole rejects authenticated actors that do not hold role.
// It must run after auth.RequireAuth.
func RequireRole(role id.Role, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			if actor.IsZero() || actor.Role != role {
				logger.WarnContext(ctx, "role check failed",
					"required_role", string(role),
					"actor_role", string(actor.Role),
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"insufficient role"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(id.RoleAdmin, logger).
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireRole(id.RoleAdmin, logger)
}
