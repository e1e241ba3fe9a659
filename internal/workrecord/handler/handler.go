package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	workmodels "homeledger/internal/workrecord/models"
	"homeledger/internal/workrecord/service"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/httputil"
	"homeledger/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, actor requestcontext.Identity, req service.CreateRequest) (*service.Result, error)
	Get(ctx context.Context, actor requestcontext.Identity, workID id.WorkRecordID) (*workmodels.WorkRecord, error)
	ListByHome(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, status *workmodels.Status) ([]*workmodels.WorkRecord, error)
	Update(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, d workmodels.Details) (*service.Result, error)
	Archive(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID) (*service.Result, error)
	Verify(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, adj workmodels.Adjustment) (*service.VerifyResult, error)
	Dispute(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (*service.Result, error)
	Reject(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (*service.Result, error)
}

// Handler wires work record endpoints to the ledger.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts work record routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/work-records", h.HandleCreate)
	r.Get("/work-records/{workRecordID}", h.HandleGet)
	r.Get("/homes/{homeID}/work-records", h.HandleList)
	r.Patch("/homes/{homeID}/work-records/{workRecordID}", h.HandleUpdate)
	r.Post("/homes/{homeID}/work-records/{workRecordID}/archive", h.HandleArchive)
	r.Post("/homes/{homeID}/work-records/{workRecordID}/verify", h.HandleVerify)
	r.Post("/homes/{homeID}/work-records/{workRecordID}/dispute", h.HandleDispute)
	r.Post("/homes/{homeID}/work-records/{workRecordID}/reject", h.HandleReject)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (requestcontext.Identity, bool) {
	actor := requestcontext.CallerIdentity(r.Context())
	if actor.UserID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return actor, false
	}
	return actor, true
}

func workIDParam(w http.ResponseWriter, r *http.Request) (id.WorkRecordID, bool) {
	workID, err := id.ParseWorkRecordID(chi.URLParam(r, "workRecordID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid work record id"))
		return workID, false
	}
	return workID, true
}

func homeIDParam(w http.ResponseWriter, r *http.Request) (id.HomeID, bool) {
	homeID, err := id.ParseHomeID(chi.URLParam(r, "homeID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid home id"))
		return homeID, false
	}
	return homeID, true
}

// fail logs err at a level matching whether the caller can act on it.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.IsRecoverable(err) {
		h.logger.WarnContext(ctx, msg, attrs...)
	} else {
		h.logger.ErrorContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleCreate handles POST /work-records.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateWorkRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.Create(ctx, actor, service.CreateRequest{
		HomeID:       req.homeID,
		Address:      req.Address,
		InvitationID: req.invitationID,
		Details:      req.details(),
	})
	if err != nil {
		h.fail(ctx, w, "work record create failed", err, "contractor_id", actor.UserID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toWorkRecordResponse(result.WorkRecord))
}

// HandleGet handles GET /work-records/{workRecordID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	workID, ok := workIDParam(w, r)
	if !ok {
		return
	}
	work, err := h.service.Get(ctx, actor, workID)
	if err != nil {
		h.fail(ctx, w, "work record read failed", err, "work_record_id", workID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkRecordResponse(work))
}

// HandleList handles GET /homes/{homeID}/work-records?status=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, ok := homeIDParam(w, r)
	if !ok {
		return
	}
	var status *workmodels.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := workmodels.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = &parsed
	}

	works, err := h.service.ListByHome(ctx, actor, homeID, status)
	if err != nil {
		h.fail(ctx, w, "work record list failed", err, "home_id", homeID)
		return
	}
	resp := make([]WorkRecordResponse, 0, len(works))
	for _, work := range works {
		resp = append(resp, toWorkRecordResponse(work))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"work_records": resp})
}

// HandleUpdate handles PATCH /homes/{homeID}/work-records/{workRecordID}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, ok := homeIDParam(w, r)
	if !ok {
		return
	}
	workID, ok := workIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateWorkRecordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	current, err := h.service.Get(ctx, actor, workID)
	if err != nil {
		h.fail(ctx, w, "work record read failed", err, "work_record_id", workID)
		return
	}
	result, err := h.service.Update(ctx, actor, homeID, workID, req.merge(current))
	if err != nil {
		h.fail(ctx, w, "work record update failed", err, "work_record_id", workID, "home_id", homeID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkRecordResponse(result.WorkRecord))
}

// HandleArchive handles POST /homes/{homeID}/work-records/{workRecordID}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, ok := homeIDParam(w, r)
	if !ok {
		return
	}
	workID, ok := workIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.Archive(ctx, actor, homeID, workID)
	if err != nil {
		h.fail(ctx, w, "work record archive failed", err, "work_record_id", workID, "home_id", homeID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkRecordResponse(result.WorkRecord))
}

// HandleVerify handles POST /homes/{homeID}/work-records/{workRecordID}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, ok := homeIDParam(w, r)
	if !ok {
		return
	}
	workID, ok := workIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	result, err := h.service.Verify(ctx, actor, homeID, workID, workmodels.Adjustment{CostCents: req.CostCents, Note: req.Note})
	if err != nil {
		h.fail(ctx, w, "work verification failed", err, "work_record_id", workID, "home_id", homeID)
		return
	}

	h.logger.InfoContext(ctx, "work verified",
		"request_id", requestcontext.RequestID(ctx),
		"work_record_id", workID,
		"record_id", result.RecordID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"work_record":   toWorkRecordResponse(result.WorkRecord),
		"record_id":     result.RecordID.String(),
		"connection_id": result.Connection.ID.String(),
	})
}

// HandleDispute handles POST /homes/{homeID}/work-records/{workRecordID}/dispute.
func (h *Handler) HandleDispute(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, "work dispute failed", func(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (*service.Result, error) {
		return h.service.Dispute(ctx, actor, homeID, workID, reason)
	})
}

// HandleReject handles POST /homes/{homeID}/work-records/{workRecordID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleReview(w, r, "work rejection failed", func(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (*service.Result, error) {
		return h.service.Reject(ctx, actor, homeID, workID, reason)
	})
}

type reviewFunc func(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (*service.Result, error)

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request, failMsg string, review reviewFunc) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	homeID, ok := homeIDParam(w, r)
	if !ok {
		return
	}
	workID, ok := workIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReviewRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := review(ctx, actor, homeID, workID, req.Reason)
	if err != nil {
		h.fail(ctx, w, failMsg, err, "work_record_id", workID, "home_id", homeID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toWorkRecordResponse(result.WorkRecord))
}
