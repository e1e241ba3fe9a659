package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	invitationmodels "homeledger/internal/invitation/models"
	"homeledger/internal/invitation/service"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// Service defines the invitation operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, actor requestcontext.Identity, req service.CreateRequest) (*service.Result, error)
	Get(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (*invitationmodels.Invitation, error)
	Accept(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID, req service.AcceptRequest) (*service.AcceptResult, error)
	Decline(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (*service.Result, error)
	Cancel(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (*service.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/invitations", h.HandleCreate)
	r.Get("/invitations/{invitationID}", h.HandleGet)
	r.Post("/invitations/{invitationID}/accept", h.HandleAccept)
	r.Post("/invitations/{invitationID}/decline", h.HandleDecline)
	r.Post("/invitations/{invitationID}/cancel", h.HandleCancel)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (requestcontext.Identity, bool) {
	actor := requestcontext.CallerIdentity(r.Context())
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return actor, false
	}
	return actor, true
}

func invitationIDParam(w http.ResponseWriter, r *http.Request) (id.InvitationID, bool) {
	invID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid invitation id"))
		return invID, false
	}
	return invID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.IsRecoverable(err) {
		h.logger.WarnContext(ctx, msg, attrs...)
	} else {
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleCreate handles POST /invitations.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateInvitationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.Create(ctx, actor, service.CreateRequest{
		Email:   req.Email,
		HomeID:  req.homeID,
		Address: req.Address,
		Message: req.Message,
	})
	if err != nil {
		h.fail(ctx, w, "invitation create failed", err, "inviter_id", actor.UserID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInvitationResponse(result.Invitation, requestcontext.Now(ctx)))
}

// HandleGet handles GET /invitations/{invitationID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invID, ok := invitationIDParam(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(ctx, actor, invID)
	if err != nil {
		h.fail(ctx, w, "invitation read failed", err, "invitation_id", invID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInvitationResponse(inv, requestcontext.Now(ctx)))
}

// HandleAccept handles POST /invitations/{invitationID}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invID, ok := invitationIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AcceptInvitationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.Accept(ctx, actor, invID, service.AcceptRequest{Address: req.Address})
	if err != nil {
		h.fail(ctx, w, "invitation accept failed", err, "invitation_id", invID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"invitation":    toInvitationResponse(result.Invitation, requestcontext.Now(ctx)),
		"home_id":       result.Home.ID.String(),
		"connection_id": result.Connection.ID.String(),
	})
}

// HandleDecline handles POST /invitations/{invitationID}/decline.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	h.handleClose(w, r, "invitation decline failed", h.service.Decline)
}

// HandleCancel handles POST /invitations/{invitationID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleClose(w, r, "invitation cancel failed", h.service.Cancel)
}

type closeFunc func(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (*service.Result, error)

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, failMsg string, closeInv closeFunc) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invID, ok := invitationIDParam(w, r)
	if !ok {
		return
	}
	result, err := closeInv(ctx, actor, invID)
	if err != nil {
		h.fail(ctx, w, failMsg, err, "invitation_id", invID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInvitationResponse(result.Invitation, requestcontext.Now(ctx)))
}
