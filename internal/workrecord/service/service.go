// Package service is the Work Submission Ledger. It drives work records from
// a contractor's submission through the homeowner's review, and on approval
// writes history and refreshes the connection in the same transaction.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"homeledger/internal/access"
	connectionservice "homeledger/internal/connection/service"
	historymodels "homeledger/internal/history/models"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
)

var tracer = otel.Tracer("homeledger/workrecord")

// HomeResolver finds or creates a home inside a transaction.
type HomeResolver interface {
	FindOrCreateTx(ctx context.Context, st storage.Stores, parts propertymodels.AddressParts, now time.Time) (*propertymodels.Home, bool, error)
}

// HistoryWriter materializes approved work as a timeline record.
type HistoryWriter interface {
	MaterializeTx(ctx context.Context, st storage.Stores, w *workmodels.WorkRecord, now time.Time) (*historymodels.Record, error)
}

// Connector maintains the homeowner/contractor edge.
type Connector interface {
	UpsertTx(ctx context.Context, st storage.Stores, req connectionservice.UpsertRequest, now time.Time) (*connectionservice.UpsertResult, error)
}

type Service struct {
	backend     storage.Backend
	gate        access.Gate
	homes       HomeResolver
	history     HistoryWriter
	connections Connector
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(backend storage.Backend, gate access.Gate, homes HomeResolver, history HistoryWriter, connections Connector, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		gate:        gate,
		homes:       homes,
		history:     history,
		connections: connections,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is a contractor's submission. Exactly one of HomeID and
// Address identifies the home.
type CreateRequest struct {
	HomeID       *id.HomeID
	Address      *propertymodels.AddressParts
	InvitationID *id.InvitationID
	Details      workmodels.Details
}

// Result is a work record after a transition and the notifications it
// queued. Events is empty when nobody was notified.
type Result struct {
	WorkRecord *workmodels.WorkRecord
	Events     []notificationmodels.Event
}

// Create records work documented by a professional. The initial status
// depends on whether the home has an owner; only an owner is notified.
func (s *Service) Create(ctx context.Context, actor requestcontext.Identity, req CreateRequest) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.create")
	defer span.End()
	defer func() { s.observe("create", err) }()

	if !actor.Role.IsPro() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only professionals can document work")
	}
	if req.HomeID == nil && (req.Address == nil || req.Address.IsZero()) {
		return nil, dErrors.New(dErrors.CodeValidation, "home_id or address is required")
	}

	now := requestcontext.Now(ctx)
	start := time.Now()
	var (
		work   *workmodels.WorkRecord
		events []notificationmodels.Event
	)
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		home, err := s.resolveHome(ctx, st, req, now)
		if err != nil {
			return err
		}
		if home.IsOwnedBy(actor.UserID) {
			return dErrors.New(dErrors.CodeForbidden, "work on your own home cannot be submitted for review")
		}
		if req.InvitationID != nil {
			if err := checkInvitationLink(ctx, st, *req.InvitationID, actor.UserID, home.ID); err != nil {
				return err
			}
		}

		work, err = workmodels.New(id.NewWorkRecordID(), home.ID, actor.UserID, actor.DisplayName, req.Details, home.HasOwner(), now)
		if err != nil {
			return err
		}
		if req.InvitationID != nil {
			invID := *req.InvitationID
			work.InvitationID = &invID
		}
		if err := st.WorkRecords.Create(ctx, work); err != nil {
			return storage.DomainError(err, "work record not found")
		}
		if !home.HasOwner() {
			return nil
		}
		events = []notificationmodels.Event{
			notificationmodels.New(notificationmodels.KindWorkSubmitted, actor.UserID, now).
				To(*home.OwnerID).
				WithHome(home.ID).
				WithWorkRecord(work.ID),
		}
		return st.Outbox.Append(ctx, events...)
	})
	s.metrics.ObserveTx("work.create", start)
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, "work_record_created",
		"work_record_id", work.ID,
		"home_id", work.HomeID,
		"contractor_id", actor.UserID,
		"status", work.Status,
	)
	return &Result{WorkRecord: work, Events: events}, nil
}

// resolveHome locks the target home so the initial status cannot race a claim.
func (s *Service) resolveHome(ctx context.Context, st storage.Stores, req CreateRequest, now time.Time) (*propertymodels.Home, error) {
	var homeID id.HomeID
	if req.HomeID != nil {
		homeID = *req.HomeID
	} else {
		home, _, err := s.homes.FindOrCreateTx(ctx, st, *req.Address, now)
		if err != nil {
			return nil, err
		}
		homeID = home.ID
	}
	home, err := st.Homes.GetForUpdate(ctx, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	return home, nil
}

// checkInvitationLink requires an accepted invitation for the same home that
// the contractor was a party to.
func checkInvitationLink(ctx context.Context, st storage.Stores, invID id.InvitationID, contractor id.UserID, homeID id.HomeID) error {
	inv, err := st.Invitations.Get(ctx, invID)
	if err != nil {
		return storage.DomainError(err, "invitation not found")
	}
	if inv.Status != invitationmodels.StatusAccepted || inv.HomeID == nil || *inv.HomeID != homeID {
		return dErrors.New(dErrors.CodeValidation, "invitation does not link to this home")
	}
	isParty := inv.InvitedBy == contractor || (inv.AcceptedBy != nil && *inv.AcceptedBy == contractor)
	if !isParty {
		return dErrors.New(dErrors.CodeForbidden, "invitation belongs to another contractor")
	}
	return nil
}

// Get returns a work record the actor may view. Records the actor cannot
// see are reported as missing.
func (s *Service) Get(ctx context.Context, actor requestcontext.Identity, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	work, caps, err := s.loadWithCaps(ctx, actor, workID)
	if err != nil {
		return nil, err
	}
	if !caps.Has(access.CapView) {
		return nil, dErrors.New(dErrors.CodeNotFound, "work record not found")
	}
	return work, nil
}

// ListByHome returns the home's work for its owner, or only the actor's own
// submissions otherwise. A nil status lists every status.
func (s *Service) ListByHome(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, status *workmodels.Status) ([]*workmodels.WorkRecord, error) {
	owns, err := s.gate.CanActOnHome(ctx, actor.UserID, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}

	reader := s.backend.Reader().WorkRecords
	var works []*workmodels.WorkRecord
	if status != nil {
		works, err = reader.ListByHomeAndStatus(ctx, homeID, *status)
	} else {
		works, err = reader.ListByHome(ctx, homeID)
	}
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	if owns {
		return works, nil
	}
	out := make([]*workmodels.WorkRecord, 0, len(works))
	for _, w := range works {
		if access.ForWork(actor, w.ContractorID, false).Has(access.CapView) {
			out = append(out, w)
		}
	}
	return out, nil
}

// loadWithCaps reads the record outside any transaction and resolves the
// actor's capabilities on it.
func (s *Service) loadWithCaps(ctx context.Context, actor requestcontext.Identity, workID id.WorkRecordID) (*workmodels.WorkRecord, access.Set, error) {
	work, err := s.backend.Reader().WorkRecords.Get(ctx, workID)
	if err != nil {
		return nil, 0, storage.DomainError(err, "work record not found")
	}
	owns, err := s.gate.CanActOnHome(ctx, actor.UserID, work.HomeID)
	if err != nil {
		return nil, 0, storage.DomainError(err, "home not found")
	}
	return work, access.ForWork(actor, work.ContractorID, owns), nil
}

// persist checks invariants and writes w if it is still in expected.
func persist(ctx context.Context, st storage.Stores, w *workmodels.WorkRecord, expected workmodels.Status) error {
	if err := w.CheckInvariants(); err != nil {
		return err
	}
	if err := st.WorkRecords.Update(ctx, w, expected); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Wrap(err, dErrors.CodeInvalidStateTransition, "work record changed concurrently")
		}
		return storage.DomainError(err, "work record not found")
	}
	return nil
}

func (s *Service) observe(transition string, err error) {
	s.metrics.ObserveWorkTransition(transition, metrics.Outcome(err, dErrors.IsRecoverable))
}
