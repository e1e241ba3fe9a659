// Package service is the Connection Manager.
//
// A connection's aggregates are always recomputed from approved work, so any
// number of concurrent or retried upserts for the same triple converge.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"homeledger/internal/access"
	connectionmodels "homeledger/internal/connection/models"
	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
	"homeledger/internal/storage"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
)

var tracer = otel.Tracer("homeledger/connection")

// Upsert paths, reported as the metrics label.
const (
	PathCreated = "created"
	PathUpdated = "updated"
	PathRaced   = "raced"
)

// UpsertRequest describes the event that establishes or refreshes an edge.
type UpsertRequest struct {
	Key            connectionmodels.Key
	Via            connectionmodels.EstablishedVia
	Actor          id.UserID
	SourceRecordID *id.RecordID
	InvitedBy      *id.UserID
}

// UpsertResult reports what UpsertTx did.
type UpsertResult struct {
	Connection *connectionmodels.Connection
	Path       string
	Events     []notificationmodels.Event
}

type Service struct {
	backend storage.Backend
	gate    access.Gate
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func New(backend storage.Backend, gate access.Gate, opts ...Option) *Service {
	s := &Service{backend: backend, gate: gate}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertTx creates the connection for req.Key or refreshes the existing one,
// inside the caller's transaction. Losing a create race to a concurrent
// transaction falls back to the update path.
func (s *Service) UpsertTx(ctx context.Context, st storage.Stores, req UpsertRequest, now time.Time) (*UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "connection.upsert")
	defer span.End()

	conn, err := st.Connections.GetByKeyForUpdate(ctx, req.Key)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storage.DomainError(err, "connection not found")
	}

	totals, err := st.WorkRecords.ApprovedTotals(ctx, req.Key.HomeID, req.Key.ContractorID)
	if err != nil {
		return nil, storage.DomainError(err, "work records not found")
	}

	result := &UpsertResult{Path: PathUpdated}
	if conn == nil {
		created, err := s.create(ctx, st, req, totals, now)
		switch {
		case err == nil:
			result.Connection = created
			result.Path = PathCreated
		case errors.Is(err, sentinel.ErrConflict):
			conn, err = st.Connections.GetByKeyForUpdate(ctx, req.Key)
			if err != nil {
				return nil, storage.DomainError(err, "connection not found")
			}
			// The winner's approvals are committed once its row is visible.
			totals, err = st.WorkRecords.ApprovedTotals(ctx, req.Key.HomeID, req.Key.ContractorID)
			if err != nil {
				return nil, storage.DomainError(err, "work records not found")
			}
			result.Path = PathRaced
		default:
			return nil, storage.DomainError(err, "connection not found")
		}
	}

	established := result.Path == PathCreated
	if !established {
		established = !conn.IsActive()
		conn.ApplyTotals(totals, now)
		conn.ApplyReactivation(now)
		if conn.InvitedBy == nil && req.InvitedBy != nil {
			invitedBy := *req.InvitedBy
			conn.InvitedBy = &invitedBy
		}
		if err := st.Connections.Update(ctx, conn); err != nil {
			return nil, storage.DomainError(err, "connection not found")
		}
		result.Connection = conn
	}

	if established {
		result.Events = establishedEvents(result.Connection, req.Actor, now)
	}
	s.metrics.ObserveConnectionUpsert(result.Path)
	span.SetAttributes(attribute.String("connection.path", result.Path))
	return result, nil
}

func (s *Service) create(ctx context.Context, st storage.Stores, req UpsertRequest, totals connectionmodels.Totals, now time.Time) (*connectionmodels.Connection, error) {
	conn, err := connectionmodels.New(id.NewConnectionID(), req.Key, req.Via, now)
	if err != nil {
		return nil, err
	}
	conn.ApplyTotals(totals, now)
	if req.InvitedBy != nil {
		invitedBy := *req.InvitedBy
		conn.InvitedBy = &invitedBy
	}
	if req.Via == connectionmodels.ViaVerifiedWork && req.SourceRecordID != nil {
		source := *req.SourceRecordID
		conn.SourceRecordID = &source
	}
	if err := st.Connections.Create(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func establishedEvents(c *connectionmodels.Connection, actor id.UserID, now time.Time) []notificationmodels.Event {
	events := make([]notificationmodels.Event, 0, 2)
	for _, recipient := range []id.UserID{c.HomeownerID, c.ContractorID} {
		events = append(events, notificationmodels.New(notificationmodels.KindConnectionEstablished, actor, now).
			To(recipient).
			WithHome(c.HomeID).
			WithConnection(c.ID))
	}
	return events
}

// Get returns a connection visible to actor.
func (s *Service) Get(ctx context.Context, actor requestcontext.Identity, connID id.ConnectionID) (*connectionmodels.Connection, error) {
	conn, err := s.backend.Reader().Connections.Get(ctx, connID)
	if err != nil {
		return nil, storage.DomainError(err, "connection not found")
	}
	if !conn.HasParty(actor.UserID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "connection not found")
	}
	return conn, nil
}

// ListByHome returns the home's connections for its owner, or only the
// actor's own connections for anyone else.
func (s *Service) ListByHome(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID) ([]*connectionmodels.Connection, error) {
	owns, err := s.gate.CanActOnHome(ctx, actor.UserID, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	conns, err := s.backend.Reader().Connections.ListByHome(ctx, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	if owns {
		return conns, nil
	}
	out := make([]*connectionmodels.Connection, 0, len(conns))
	for _, c := range conns {
		if c.HasParty(actor.UserID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// End terminates a connection on behalf of either party.
func (s *Service) End(ctx context.Context, actor requestcontext.Identity, connID id.ConnectionID) (*connectionmodels.Connection, error) {
	ctx, span := tracer.Start(ctx, "connection.end")
	defer span.End()

	now := requestcontext.Now(ctx)
	var conn *connectionmodels.Connection
	err := s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		conn, err = st.Connections.Get(ctx, connID)
		if err != nil {
			return storage.DomainError(err, "connection not found")
		}
		// Lock through the key so End serializes with concurrent upserts.
		conn, err = st.Connections.GetByKeyForUpdate(ctx, conn.Key())
		if err != nil {
			return storage.DomainError(err, "connection not found")
		}
		if err := conn.CanEnd(actor.UserID); err != nil {
			return err
		}
		conn.ApplyEnd(actor.UserID, now)
		if err := st.Connections.Update(ctx, conn); err != nil {
			return storage.DomainError(err, "connection not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	auditlog.Log(ctx, s.logger, "connection_ended",
		"connection_id", conn.ID,
		"home_id", conn.HomeID,
		"ended_by", actor.UserID,
	)
	return conn, nil
}
