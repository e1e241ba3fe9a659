package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	historymodels "homeledger/internal/history/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// Service defines the timeline reads exposed over HTTP.
type Service interface {
	Get(ctx context.Context, actor requestcontext.Identity, recordID id.RecordID) (*historymodels.Record, error)
	Timeline(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID) ([]*historymodels.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/homes/{homeID}/records", h.HandleTimeline)
	r.Get("/records/{recordID}", h.HandleGet)
}

// RecordResponse is the public view of a timeline entry.
type RecordResponse struct {
	ID           string    `json:"id"`
	HomeID       string    `json:"home_id"`
	Title        string    `json:"title"`
	Note         string    `json:"note"`
	Date         time.Time `json:"date"`
	Kind         string    `json:"kind"`
	Vendor       string    `json:"vendor"`
	CostCents    *int64    `json:"cost_cents,omitempty"`
	VerifiedBy   string    `json:"verified_by"`
	VerifiedAt   time.Time `json:"verified_at"`
	WorkRecordID string    `json:"work_record_id"`
}

func toRecordResponse(r *historymodels.Record) RecordResponse {
	return RecordResponse{
		ID:           r.ID.String(),
		HomeID:       r.HomeID.String(),
		Title:        r.Title,
		Note:         r.Note,
		Date:         r.Date,
		Kind:         string(r.Kind),
		Vendor:       r.Vendor,
		CostCents:    r.CostCents,
		VerifiedBy:   r.VerifiedBy.String(),
		VerifiedAt:   r.VerifiedAt,
		WorkRecordID: r.SourceWorkRecordID.String(),
	}
}

// HandleTimeline handles GET /homes/{homeID}/records.
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor := requestcontext.CallerIdentity(ctx)
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	homeID, err := id.ParseHomeID(chi.URLParam(r, "homeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid home id"))
		return
	}

	records, err := h.service.Timeline(ctx, actor, homeID)
	if err != nil {
		h.logger.WarnContext(ctx, "timeline read failed",
			"request_id", requestID,
			"home_id", homeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRecordResponse(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": resp})
}

// HandleGet handles GET /records/{recordID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.CallerIdentity(ctx)
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}
	record, err := h.service.Get(ctx, actor, recordID)
	if err != nil {
		h.logger.WarnContext(ctx, "record read failed",
			"request_id", requestcontext.RequestID(ctx),
			"record_id", recordID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(record))
}
