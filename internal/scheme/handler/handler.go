// Package handler exposes the scheme catalog.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidledger/internal/scheme/models"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, schemeID id.SchemeID) (*models.Scheme, error)
	List(ctx context.Context, status *models.Status) ([]*models.Scheme, error)
	Create(ctx context.Context, actor id.Actor, req *models.CreateRequest) (*models.Scheme, error)
	Update(ctx context.Context, actor id.Actor, schemeID id.SchemeID, req *models.UpdateRequest) (*models.Scheme, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts catalog reads.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/schemes", h.HandleList)
	r.Get("/schemes/{schemeID}", h.HandleGet)
}

// RegisterAdmin mounts catalog writes; the router must already require the admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/schemes", h.HandleCreate)
	r.Put("/admin/schemes/{schemeID}", h.HandleUpdate)
}

type listResponse struct {
	Schemes []*models.Scheme `json:"schemes"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = &parsed
	}
	schemes, err := h.service.List(ctx, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if schemes == nil {
		schemes = []*models.Scheme{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Schemes: schemes})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	schemeID, err := id.ParseSchemeID(chi.URLParam(r, "schemeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scheme, err := h.service.Get(r.Context(), schemeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scheme)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	scheme, err := h.service.Create(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.logger.WarnContext(ctx, "scheme create failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, scheme)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	schemeID, err := id.ParseSchemeID(chi.URLParam(r, "schemeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	scheme, err := h.service.Update(ctx, requestcontext.Actor(ctx), schemeID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "scheme update failed",
			"request_id", requestID,
			"scheme_id", schemeID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, scheme)
}
