package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/property/service"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// Service is the subset of the property registry the HTTP layer needs.
type Service interface {
	Get(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error)
	Claim(ctx context.Context, actor requestcontext.Identity, req service.ClaimRequest) (*service.ClaimResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts home routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/homes/claim", h.HandleClaim)
	r.Get("/homes/{homeID}", h.HandleGet)
}

// HandleClaim handles POST /homes/claim.
func (h *Handler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor := requestcontext.CallerIdentity(ctx)
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ClaimHomeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Claim(ctx, actor, service.ClaimRequest{HomeID: req.homeID, Address: req.Address})
	if err != nil {
		h.logFailure(ctx, "home claim failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHomeResponse(result.Home))
}

// HandleGet handles GET /homes/{homeID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	homeID, err := id.ParseHomeID(chi.URLParam(r, "homeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid home id"))
		return
	}
	home, err := h.service.Get(ctx, homeID)
	if err != nil {
		h.logFailure(ctx, "home lookup failed", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHomeResponse(home))
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	if dErrors.IsRecoverable(err) {
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
		return
	}
	h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
}
