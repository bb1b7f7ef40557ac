// Package handler exposes the application lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidledger/internal/application/models"
	"aidledger/internal/payment"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/requestcontext"
)

type Service interface {
	Submit(ctx context.Context, actor id.Actor, req *models.SubmitRequest) (*models.Application, error)
	Get(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Application, error)
	ListForApplicant(ctx context.Context, actor id.Actor, applicantID id.UserID) ([]*models.Application, error)
	ListForScheme(ctx context.Context, actor id.Actor, schemeID id.SchemeID, status *models.Status) ([]*models.Application, error)
	Approve(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.ReviewRequest) (*models.Application, error)
	Reject(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.RejectRequest) (*models.Application, error)
	Pay(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *payment.Request) (*models.Application, error)
	Disburse(ctx context.Context, actor id.Actor, appID id.ApplicationID, req *models.DisburseRequest) (*models.Application, error)
	Acknowledgment(ctx context.Context, actor id.Actor, appID id.ApplicationID) (*models.Acknowledgment, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the applicant-facing routes; the router must require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/applications", h.HandleSubmit)
	r.Get("/applications", h.HandleListMine)
	r.Get("/applications/{applicationID}", h.HandleGet)
	r.Post("/applications/{applicationID}/payment", h.HandlePay)
	r.Get("/applications/{applicationID}/acknowledgment", h.HandleAcknowledgment)
}

// RegisterAdmin mounts the review routes; the router must require the admin role.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/schemes/{schemeID}/applications", h.HandleListForScheme)
	r.Post("/admin/applications/{applicationID}/approve", h.HandleApprove)
	r.Post("/admin/applications/{applicationID}/reject", h.HandleReject)
	r.Post("/admin/applications/{applicationID}/disburse", h.HandleDisburse)
}

type listResponse struct {
	Applications []*models.Application `json:"applications"`
}

func writeList(w http.ResponseWriter, apps []*models.Application) {
	if apps == nil {
		apps = []*models.Application{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Applications: apps})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	app, err := h.service.Submit(ctx, requestcontext.Actor(ctx), req)
	if err != nil {
		h.fail(ctx, w, "application submit failed", err, "scheme_id", req.SchemeID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

// HandleListMine lists the caller's applications. Admins may pass
// ?applicant_id= to list someone else's.
func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	applicantID := actor.ID
	if raw := r.URL.Query().Get("applicant_id"); raw != "" {
		parsed, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		applicantID = parsed
	}
	apps, err := h.service.ListForApplicant(ctx, actor, applicantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeList(w, apps)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	app, err := h.service.Get(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[payment.Request](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	app, err := h.service.Pay(ctx, requestcontext.Actor(ctx), appID, req)
	if err != nil {
		h.fail(ctx, w, "application payment failed", err, "application_id", appID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// HandleAcknowledgment serves the receipt as plain text, or JSON with ?format=json.
func (h *Handler) HandleAcknowledgment(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	ack, err := h.service.Acknowledgment(ctx, requestcontext.Actor(ctx), appID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		httputil.WriteJSON(w, http.StatusOK, ack)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+ack.ApplicationID+`.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ack.Text()))
}

func (h *Handler) HandleListForScheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schemeID, err := id.ParseSchemeID(chi.URLParam(r, "schemeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var status *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = &parsed
	}
	apps, err := h.service.ListForScheme(ctx, requestcontext.Actor(ctx), schemeID, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeList(w, apps)
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req := &models.ReviewRequest{}
	if r.ContentLength != 0 {
		var decoded *models.ReviewRequest
		if decoded, ok = httputil.DecodeAndPrepare[models.ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx)); !ok {
			return
		}
		req = decoded
	}
	app, err := h.service.Approve(ctx, requestcontext.Actor(ctx), appID, req)
	if err != nil {
		h.fail(ctx, w, "application approve failed", err, "application_id", appID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.service.Reject(ctx, requestcontext.Actor(ctx), appID, req)
	if err != nil {
		h.fail(ctx, w, "application reject failed", err, "application_id", appID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) HandleDisburse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.DisburseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	app, err := h.service.Disburse(ctx, requestcontext.Actor(ctx), appID, req)
	if err != nil {
		h.fail(ctx, w, "benefit disbursement failed", err, "application_id", appID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return appID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	args := append([]any{"request_id", requestcontext.RequestID(ctx), "error", err}, attrs...)
	h.logger.WarnContext(ctx, msg, args...)
	httputil.WriteError(w, err)
}
