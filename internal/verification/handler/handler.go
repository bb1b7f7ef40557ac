// Package handler exposes contact verification for the signed-in user.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/requestcontext"
)

type Service interface {
	Send(ctx context.Context, userID id.UserID, channel models.Channel) (*models.SendResult, error)
	Verify(ctx context.Context, userID id.UserID, channel models.Channel, code string) error
	Status(ctx context.Context, userID id.UserID) (*models.Status, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/me/verification", h.HandleStatus)
	r.Post("/me/verification/{channel}/send", h.HandleSend)
	r.Post("/me/verification/{channel}/verify", h.HandleVerify)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	status, err := h.service.Status(ctx, actor.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channel, err := models.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Send(ctx, actor.ID, channel)
	if err != nil {
		h.logger.WarnContext(ctx, "verification send failed",
			"request_id", requestcontext.RequestID(ctx),
			"channel", channel,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, res)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	channel, err := models.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.Verify(ctx, actor.ID, channel, req.Code); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireActor(w http.ResponseWriter, r *http.Request) (id.Actor, bool) {
	actor := requestcontext.Actor(r.Context())
	if actor.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.Actor{}, false
	}
	return actor, true
}
