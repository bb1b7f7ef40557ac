package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apphandler "aidledger/internal/application/handler"
	appservice "aidledger/internal/application/service"
	audithandler "aidledger/internal/audit/handler"
	identityhandler "aidledger/internal/identity/handler"
	identityservice "aidledger/internal/identity/service"
	"aidledger/internal/platform/config"
	"aidledger/internal/platform/metrics"
	schemehandler "aidledger/internal/scheme/handler"
	schemeservice "aidledger/internal/scheme/service"
	verifyhandler "aidledger/internal/verification/handler"
	verifyservice "aidledger/internal/verification/service"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/platform/middleware/admin"
	authmw "aidledger/pkg/platform/middleware/auth"
	"aidledger/pkg/platform/middleware/metadata"
	"aidledger/pkg/platform/middleware/ratelimit"
	request "aidledger/pkg/platform/middleware/request"
	"aidledger/pkg/platform/middleware/requesttime"
	"aidledger/pkg/platform/middleware/version"
)

type routerDeps struct {
	cfg          config.Config
	logger       *slog.Logger
	metrics      *metrics.Metrics
	limiter      *ratelimit.Limiter
	validator    authmw.JWTValidator
	revocations  authmw.TokenRevocationChecker
	identity     *identityservice.Service
	verification *verifyservice.Service
	schemes      *schemeservice.Service
	applications *appservice.Service
	ledger       audithandler.Ledger
	health       func(ctx context.Context) error
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(d.metrics.LatencyMiddleware)

	r.Get("/healthz", healthz(d.health))
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	identity := identityhandler.New(d.identity, d.logger)
	verification := verifyhandler.New(d.verification, d.logger)
	schemes := schemehandler.New(d.schemes, d.logger)
	applications := apphandler.New(d.applications, d.logger)
	ledger := audithandler.New(d.ledger, d.logger)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(version.ExtractVersion(id.APIVersionV1))
		v1.Use(request.Timeout(d.cfg.Server.RequestTimeout))
		v1.Use(d.limiter.Middleware)

		identity.RegisterPublic(v1)
		schemes.RegisterPublic(v1)

		v1.Group(func(authed chi.Router) {
			authed.Use(authmw.RequireAuth(d.validator, d.revocations, d.logger))
			identity.RegisterProtected(authed)
			verification.Register(authed)
			applications.Register(authed)

			authed.Group(func(adm chi.Router) {
				adm.Use(admin.RequireAdmin(d.logger))
				schemes.RegisterAdmin(adm)
				applications.RegisterAdmin(adm)
				ledger.RegisterAdmin(adm)
			})
		})
	})
	return r
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
