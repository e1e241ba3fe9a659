package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	connectionmodels "homeledger/internal/connection/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// Service defines the connection operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, actor requestcontext.Identity, connID id.ConnectionID) (*connectionmodels.Connection, error)
	ListByHome(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID) ([]*connectionmodels.Connection, error)
	End(ctx context.Context, actor requestcontext.Identity, connID id.ConnectionID) (*connectionmodels.Connection, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/homes/{homeID}/connections", h.HandleList)
	r.Get("/connections/{connectionID}", h.HandleGet)
	r.Post("/connections/{connectionID}/end", h.HandleEnd)
}

// ConnectionResponse is the public view of a connection.
type ConnectionResponse struct {
	ID                string     `json:"id"`
	HomeID            string     `json:"home_id"`
	HomeownerID       string     `json:"homeowner_id"`
	ContractorID      string     `json:"contractor_id"`
	Status            string     `json:"status"`
	EstablishedVia    string     `json:"established_via"`
	VerifiedWorkCount int        `json:"verified_work_count"`
	TotalSpentCents   int64      `json:"total_spent_cents"`
	LastWorkDate      *time.Time `json:"last_work_date,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toConnectionResponse(c *connectionmodels.Connection) ConnectionResponse {
	return ConnectionResponse{
		ID:                c.ID.String(),
		HomeID:            c.HomeID.String(),
		HomeownerID:       c.HomeownerID.String(),
		ContractorID:      c.ContractorID.String(),
		Status:            string(c.Status),
		EstablishedVia:    string(c.EstablishedVia),
		VerifiedWorkCount: c.VerifiedWorkCount,
		TotalSpentCents:   c.TotalSpentCents,
		LastWorkDate:      c.LastWorkDate,
		EndedAt:           c.EndedAt,
		CreatedAt:         c.CreatedAt,
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (requestcontext.Identity, bool) {
	actor := requestcontext.CallerIdentity(r.Context())
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return actor, false
	}
	return actor, true
}

// HandleList handles GET /homes/{homeID}/connections.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, err := id.ParseHomeID(chi.URLParam(r, "homeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid home id"))
		return
	}
	conns, err := h.service.ListByHome(ctx, actor, homeID)
	if err != nil {
		h.logger.WarnContext(ctx, "connection list failed",
			"request_id", requestcontext.RequestID(ctx),
			"home_id", homeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := make([]ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, toConnectionResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"connections": resp})
}

// HandleGet handles GET /connections/{connectionID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	connID, err := id.ParseConnectionID(chi.URLParam(r, "connectionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return
	}
	conn, err := h.service.Get(ctx, actor, connID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(conn))
}

// HandleEnd handles POST /connections/{connectionID}/end.
func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	connID, err := id.ParseConnectionID(chi.URLParam(r, "connectionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid connection id"))
		return
	}
	conn, err := h.service.End(ctx, actor, connID)
	if err != nil {
		if dErrors.IsRecoverable(err) {
			h.logger.WarnContext(ctx, "connection end rejected", "request_id", requestID, "error", err)
		} else {
			h.logger.ErrorContext(ctx, "connection end failed", "request_id", requestID, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConnectionResponse(conn))
}
