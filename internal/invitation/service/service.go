// Package service is the Invitation/Acceptance Engine.
//
// Accepting an invitation claims the home and creates the connection in one
// transaction; expiry is evaluated against the request clock, never swept.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	connectionmodels "homeledger/internal/connection/models"
	connectionservice "homeledger/internal/connection/service"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/email"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
)

var tracer = otel.Tracer("homeledger/invitation")

const defaultTTL = 7 * 24 * time.Hour

// HomeRegistry resolves and claims homes inside a transaction.
type HomeRegistry interface {
	FindOrCreateTx(ctx context.Context, st storage.Stores, parts propertymodels.AddressParts, now time.Time) (*propertymodels.Home, bool, error)
	ClaimTx(ctx context.Context, st storage.Stores, home *propertymodels.Home, owner id.UserID, now time.Time) ([]notificationmodels.Event, error)
}

// Connector maintains the homeowner/contractor edge.
type Connector interface {
	UpsertTx(ctx context.Context, st storage.Stores, req connectionservice.UpsertRequest, now time.Time) (*connectionservice.UpsertResult, error)
}

type Service struct {
	backend     storage.Backend
	homes       HomeRegistry
	connections Connector
	ttl         time.Duration
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

// WithTTL sets how long a new invitation stays open.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(backend storage.Backend, homes HomeRegistry, connections Connector, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		homes:       homes,
		connections: connections,
		ttl:         defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest names the invitee and, optionally, the home.
type CreateRequest struct {
	Email   string
	HomeID  *id.HomeID
	Address *propertymodels.AddressParts
	Message string
}

// AcceptRequest carries the invitee's confirmation of the property address.
type AcceptRequest struct {
	Address *propertymodels.AddressParts
}

// Result is an invitation after a transition and the notifications it queued.
type Result struct {
	Invitation *invitationmodels.Invitation
	Events     []notificationmodels.Event
}

// AcceptResult is everything an acceptance touched.
type AcceptResult struct {
	Invitation *invitationmodels.Invitation
	Home       *propertymodels.Home
	Connection *connectionmodels.Connection
	Events     []notificationmodels.Event
}

// Create opens an invitation from actor to req.Email. At most one open
// invitation exists per (inviter, email). A homeowner must name the home the
// professional is invited to.
func (s *Service) Create(ctx context.Context, actor requestcontext.Identity, req CreateRequest) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "invitation.create")
	defer span.End()
	defer func() { s.observe("create", err) }()

	now := requestcontext.Now(ctx)
	inv, err := invitationmodels.New(id.NewInvitationID(), req.Email, actor.UserID, actor.Role, s.ttl, now)
	if err != nil {
		return nil, err
	}
	if email.Equal(inv.InvitedEmail, actor.Email) {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot invite yourself")
	}
	inv.Message = req.Message

	start := time.Now()
	var event notificationmodels.Event
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		if err := st.Invitations.LockInviterEmail(ctx, actor.UserID, inv.InvitedEmail); err != nil {
			return storage.DomainError(err, "invitation not found")
		}
		existing, err := st.Invitations.FindOpen(ctx, actor.UserID, inv.InvitedEmail, now)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeDuplicateInvitation, "an open invitation to this email already exists (id "+existing.ID.String()+")")
		case !errors.Is(err, sentinel.ErrNotFound):
			return storage.DomainError(err, "invitation not found")
		}

		home, err := s.resolveTarget(ctx, st, req, now)
		if err != nil {
			return err
		}
		if home != nil {
			if actor.Role.IsHomeowner() && home.HasOwner() && !home.IsOwnedBy(actor.UserID) {
				return dErrors.New(dErrors.CodeForbidden, "home belongs to another homeowner")
			}
			homeID, parts := home.ID, home.Address
			inv.HomeID = &homeID
			inv.Address = &parts
		}
		if err := inv.CheckTarget(); err != nil {
			return err
		}

		if err := st.Invitations.Create(ctx, inv); err != nil {
			return storage.DomainError(err, "invitation not found")
		}
		event = notificationmodels.New(notificationmodels.KindInvitationCreated, actor.UserID, now).
			ToEmail(inv.InvitedEmail).
			WithInvitation(inv.ID)
		if inv.HomeID != nil {
			event = event.WithHome(*inv.HomeID)
		}
		return st.Outbox.Append(ctx, event)
	})
	s.metrics.ObserveTx("invitation.create", start)
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, "invitation_created",
		"invitation_id", inv.ID,
		"inviter_id", actor.UserID,
		"invited_role", inv.InvitedRole,
		"expires_at", inv.ExpiresAt,
	)
	return &Result{Invitation: inv, Events: []notificationmodels.Event{event}}, nil
}

func (s *Service) resolveTarget(ctx context.Context, st storage.Stores, req CreateRequest, now time.Time) (*propertymodels.Home, error) {
	switch {
	case req.HomeID != nil:
		home, err := st.Homes.Get(ctx, *req.HomeID)
		if err != nil {
			return nil, storage.DomainError(err, "home not found")
		}
		return home, nil
	case req.Address != nil && !req.Address.IsZero():
		home, _, err := s.homes.FindOrCreateTx(ctx, st, *req.Address, now)
		return home, err
	}
	return nil, nil
}

// Get returns an invitation to its inviter or invitee. Anyone else sees
// NotFound.
func (s *Service) Get(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (*invitationmodels.Invitation, error) {
	inv, err := s.backend.Reader().Invitations.Get(ctx, invID)
	if err != nil {
		return nil, storage.DomainError(err, "invitation not found")
	}
	if inv.InvitedBy != actor.UserID && !inv.IsAddressedTo(actor.Email) {
		return nil, dErrors.New(dErrors.CodeNotFound, "invitation not found")
	}
	return inv, nil
}

// Accept turns an open invitation into a claimed home and an active
// connection. Nothing is written unless every step succeeds.
func (s *Service) Accept(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID, req AcceptRequest) (_ *AcceptResult, err error) {
	ctx, span := tracer.Start(ctx, "invitation.accept")
	defer span.End()
	defer func() { s.observe("accept", err) }()

	now := requestcontext.Now(ctx)
	start := time.Now()
	result := &AcceptResult{}
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		inv, err := st.Invitations.GetForUpdate(ctx, invID)
		if err != nil {
			return storage.DomainError(err, "invitation not found")
		}
		if err := inv.CanAccept(actor.Email, actor.Role, now); err != nil {
			return err
		}

		home, err := s.acceptTarget(ctx, st, inv, req, now)
		if err != nil {
			return err
		}
		homeowner, contractor := inv.Parties(actor.UserID)
		claimed, err := s.homes.ClaimTx(ctx, st, home, homeowner, now)
		if err != nil {
			return err
		}

		inviter := inv.InvitedBy
		upsert, err := s.connections.UpsertTx(ctx, st, connectionservice.UpsertRequest{
			Key: connectionmodels.Key{
				HomeID:       home.ID,
				HomeownerID:  homeowner,
				ContractorID: contractor,
			},
			Via:       connectionmodels.ViaInvitation,
			Actor:     actor.UserID,
			InvitedBy: &inviter,
		}, now)
		if err != nil {
			return err
		}

		previous := inv.Status
		inv.ApplyAccept(actor.UserID, home.ID, now)
		if err := persist(ctx, st, inv, previous); err != nil {
			return err
		}

		events := append([]notificationmodels.Event{
			notificationmodels.New(notificationmodels.KindInvitationAccepted, actor.UserID, now).
				To(inv.InvitedBy).
				WithInvitation(inv.ID).
				WithHome(home.ID).
				WithConnection(upsert.Connection.ID),
		}, claimed...)
		events = append(events, upsert.Events...)
		if err := st.Outbox.Append(ctx, events...); err != nil {
			return err
		}

		result.Invitation = inv
		result.Home = home
		result.Connection = upsert.Connection
		result.Events = events
		return nil
	})
	s.metrics.ObserveTx("invitation.accept", start)
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, "invitation_accepted",
		"invitation_id", invID,
		"accepted_by", actor.UserID,
		"home_id", result.Home.ID,
		"connection_id", result.Connection.ID,
	)
	return result, nil
}

// acceptTarget resolves the home the acceptance lands on and locks it. Only
// an invited homeowner may confirm or supply an address, and a confirmed
// address must fold to the invitation's home when one is set.
func (s *Service) acceptTarget(ctx context.Context, st storage.Stores, inv *invitationmodels.Invitation, req AcceptRequest, now time.Time) (*propertymodels.Home, error) {
	var homeID id.HomeID
	switch {
	case req.Address != nil && !req.Address.IsZero():
		if !inv.NeedsAddressConfirmation() {
			return nil, dErrors.New(dErrors.CodeValidation, "only an invited homeowner can confirm the property address")
		}
		home, _, err := s.homes.FindOrCreateTx(ctx, st, *req.Address, now)
		if err != nil {
			return nil, err
		}
		if inv.HomeID != nil && *inv.HomeID != home.ID {
			return nil, dErrors.New(dErrors.CodeValidation, "confirmed address does not match the invited property")
		}
		homeID = home.ID
	case inv.HomeID != nil:
		homeID = *inv.HomeID
	default:
		if err := inv.CheckTarget(); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeValidation, "address is required to accept this invitation")
	}

	home, err := st.Homes.GetForUpdate(ctx, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	return home, nil
}

// Decline closes an open invitation on behalf of the invitee.
func (s *Service) Decline(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "invitation.decline")
	defer span.End()
	defer func() { s.observe("decline", err) }()

	return s.close(ctx, actor, invID, "invitation_declined",
		func(inv *invitationmodels.Invitation, now time.Time) error {
			return inv.CanDecline(actor.Email, now)
		},
		func(inv *invitationmodels.Invitation, now time.Time) notificationmodels.Event {
			return notificationmodels.New(notificationmodels.KindInvitationDeclined, actor.UserID, now).
				To(inv.InvitedBy).
				WithInvitation(inv.ID)
		})
}

// Cancel withdraws an open invitation on behalf of the inviter.
func (s *Service) Cancel(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "invitation.cancel")
	defer span.End()
	defer func() { s.observe("cancel", err) }()

	return s.close(ctx, actor, invID, "invitation_cancelled",
		func(inv *invitationmodels.Invitation, now time.Time) error {
			return inv.CanCancel(actor.UserID, now)
		},
		func(inv *invitationmodels.Invitation, now time.Time) notificationmodels.Event {
			return notificationmodels.New(notificationmodels.KindInvitationCancelled, actor.UserID, now).
				ToEmail(inv.InvitedEmail).
				WithInvitation(inv.ID)
		})
}

type (
	closeCheck func(inv *invitationmodels.Invitation, now time.Time) error
	closeEvent func(inv *invitationmodels.Invitation, now time.Time) notificationmodels.Event
)

func (s *Service) close(ctx context.Context, actor requestcontext.Identity, invID id.InvitationID, auditEvent string, check closeCheck, event closeEvent) (*Result, error) {
	now := requestcontext.Now(ctx)
	result := &Result{}
	err := s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		inv, err := st.Invitations.GetForUpdate(ctx, invID)
		if err != nil {
			return storage.DomainError(err, "invitation not found")
		}
		if err := check(inv, now); err != nil {
			return err
		}
		previous := inv.Status
		inv.ApplyCancel(actor.UserID, now)
		if err := persist(ctx, st, inv, previous); err != nil {
			return err
		}
		closed := event(inv, now)
		if err := st.Outbox.Append(ctx, closed); err != nil {
			return err
		}
		result.Invitation = inv
		result.Events = []notificationmodels.Event{closed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, auditEvent,
		"invitation_id", invID,
		"user_id", actor.UserID,
	)
	return result, nil
}

func persist(ctx context.Context, st storage.Stores, inv *invitationmodels.Invitation, expected invitationmodels.Status) error {
	if err := st.Invitations.Update(ctx, inv, expected); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Wrap(err, dErrors.CodeInvalidStateTransition, "invitation changed concurrently")
		}
		return storage.DomainError(err, "invitation not found")
	}
	return nil
}

func (s *Service) observe(transition string, err error) {
	s.metrics.ObserveInvitationTransition(transition, metrics.Outcome(err, dErrors.IsRecoverable))
}
