package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"homeledger/internal/access"
	connectionmodels "homeledger/internal/connection/models"
	connectionservice "homeledger/internal/connection/service"
	historyservice "homeledger/internal/history/service"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
	"homeledger/internal/property/address"
	propertymodels "homeledger/internal/property/models"
	propertyservice "homeledger/internal/property/service"
	"homeledger/internal/storage"
	"homeledger/internal/storage/memory"
	workmodels "homeledger/internal/workrecord/models"
	workservice "homeledger/internal/workrecord/service"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	backend    *memory.Backend
	metrics    *metrics.Metrics
	properties *propertyservice.Service
	service    *Service
	ctx        context.Context
	now        time.Time
	owner      requestcontext.Identity
	pro        requestcontext.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = memory.New()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = s.build(nil)
	s.now = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.owner = requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "olive@example.com", DisplayName: "Olive"}
	s.pro = requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleContractor, Email: "ace@example.com", DisplayName: "Ace Plumbing"}
}

func (s *ServiceSuite) build(connector Connector) *Service {
	s.properties = propertyservice.New(s.backend)
	if connector == nil {
		connector = connectionservice.New(s.backend, access.NewOwnershipGate(s.properties))
	}
	return New(s.backend, s.properties, connector, WithTTL(48*time.Hour), WithMetrics(s.metrics))
}

func (s *ServiceSuite) address() *propertymodels.AddressParts {
	return &propertymodels.AddressParts{Street: "742 Evergreen Terrace", City: "Springfield", PostalCode: "49007"}
}

func (s *ServiceSuite) at(ctx context.Context, d time.Duration) context.Context {
	return requestcontext.WithTime(ctx, s.now.Add(d))
}

func (s *ServiceSuite) inviteOwner() *invitationmodels.Invitation {
	result, err := s.service.Create(s.ctx, s.pro, CreateRequest{Email: "Olive@Example.com ", Address: s.address()})
	s.Require().NoError(err)
	return result.Invitation
}

func (s *ServiceSuite) stored(invID id.InvitationID) *invitationmodels.Invitation {
	inv, err := s.backend.Reader().Invitations.Get(s.ctx, invID)
	s.Require().NoError(err)
	return inv
}

func (s *ServiceSuite) home(homeID id.HomeID) *propertymodels.Home {
	home, err := s.backend.Reader().Homes.Get(s.ctx, homeID)
	s.Require().NoError(err)
	return home
}

func (s *ServiceSuite) connections(homeID id.HomeID) []*connectionmodels.Connection {
	conns, err := s.backend.Reader().Connections.ListByHome(s.ctx, homeID)
	s.Require().NoError(err)
	return conns
}

func (s *ServiceSuite) TestCreate() {
	s.Run("pro invites a homeowner to an address", func() {
		result, err := s.service.Create(s.ctx, s.pro, CreateRequest{Email: "Olive@Example.com ", Address: s.address()})
		s.Require().NoError(err)
		inv := result.Invitation
		s.Equal(invitationmodels.StatusPending, inv.Status)
		s.Equal("olive@example.com", inv.InvitedEmail)
		s.Equal(invitationmodels.InvitedHomeowner, inv.InvitedRole)
		s.Equal(s.now.Add(48*time.Hour), inv.ExpiresAt)
		s.Require().NotNil(inv.HomeID)
		s.False(s.home(*inv.HomeID).HasOwner())

		events := s.backend.Events()
		s.Require().Len(events, 1)
		s.Equal(notificationmodels.KindInvitationCreated, events[0].Kind)
		s.Equal("olive@example.com", events[0].RecipientEmail)
		s.Equal(events, result.Events)
	})

	s.Run("second open invitation to the same email is refused", func() {
		_, err := s.service.Create(s.ctx, s.pro, CreateRequest{Email: "OLIVE@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateInvitation), "got %v", err)
	})

	s.Run("expired invitations do not block a new one", func() {
		_, err := s.service.Create(s.at(s.ctx, 49*time.Hour), s.pro, CreateRequest{Email: "olive@example.com"})
		s.NoError(err)
	})

	s.Run("invalid input", func() {
		_, err := s.service.Create(s.ctx, s.pro, CreateRequest{Email: "not an email"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Create(s.ctx, s.pro, CreateRequest{Email: "ACE@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		missing := id.NewHomeID()
		_, err = s.service.Create(s.ctx, s.pro, CreateRequest{Email: "new@example.com", HomeID: &missing})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("homeowner must name the home", func() {
		_, err := s.service.Create(s.ctx, s.owner, CreateRequest{Email: "pro@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		_, err = s.service.Create(s.ctx, s.owner, CreateRequest{Email: "pro@example.com", Address: &propertymodels.AddressParts{}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
	})

	s.Run("homeowner cannot invite to someone else's home", func() {
		other := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "other@example.com"}
		claim, err := s.properties.Claim(s.ctx, other, propertyservice.ClaimRequest{Address: &propertymodels.AddressParts{Street: "1 Elm St", City: "Shelbyville"}})
		s.Require().NoError(err)
		home := claim.Home
		_, err = s.service.Create(s.ctx, s.owner, CreateRequest{Email: "pro@example.com", HomeID: &home.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// A homeowner confirming the invited address in a different spelling lands
// on the same home.
func (s *ServiceSuite) TestAcceptResolvesCanonicalAddress() {
	inv := s.inviteOwner()

	result, err := s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{
		Address: &propertymodels.AddressParts{Street: "742 EVERGREEN TER.", City: "springfield", PostalCode: "49007"},
	})
	s.Require().NoError(err)

	s.Equal(*inv.HomeID, result.Home.ID)
	s.True(s.home(result.Home.ID).IsOwnedBy(s.owner.UserID))
	s.Equal([]notificationmodels.Kind{
		notificationmodels.KindInvitationAccepted,
		notificationmodels.KindHomeClaimed,
		notificationmodels.KindConnectionEstablished,
		notificationmodels.KindConnectionEstablished,
	}, notificationmodels.Kinds(result.Events))
	s.Equal(invitationmodels.StatusAccepted, s.stored(inv.ID).Status)

	conns := s.connections(result.Home.ID)
	s.Require().Len(conns, 1)
	s.Equal(connectionmodels.ViaInvitation, conns[0].EstablishedVia)
	s.Equal(s.owner.UserID, conns[0].HomeownerID)
	s.Equal(s.pro.UserID, conns[0].ContractorID)
	s.Require().NotNil(conns[0].InvitedBy)
	s.Equal(s.pro.UserID, *conns[0].InvitedBy)

	kinds := notificationmodels.Kinds(s.backend.Events())
	s.Contains(kinds, notificationmodels.KindInvitationAccepted)
	s.Contains(kinds, notificationmodels.KindHomeClaimed)
	s.Contains(kinds, notificationmodels.KindConnectionEstablished)
	s.InDelta(1, testutil.ToFloat64(s.metrics.InvitationTransitions.WithLabelValues("accept", metrics.OutcomeOK)), 0)
}

func (s *ServiceSuite) TestAcceptWithDifferentAddressIsRejected() {
	inv := s.inviteOwner()
	_, err := s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{
		Address: &propertymodels.AddressParts{Street: "9 Other Rd", City: "Springfield"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
	s.Equal(invitationmodels.StatusPending, s.stored(inv.ID).Status)
}

func (s *ServiceSuite) TestHomeownerInvitesPro() {
	claim, err := s.properties.Claim(s.ctx, s.owner, propertyservice.ClaimRequest{Address: s.address()})
	s.Require().NoError(err)
	home := claim.Home
	created, err := s.service.Create(s.ctx, s.owner, CreateRequest{Email: s.pro.Email, HomeID: &home.ID})
	s.Require().NoError(err)
	inv := created.Invitation
	s.Equal(invitationmodels.InvitedPro, inv.InvitedRole)

	result, err := s.service.Accept(s.ctx, s.pro, inv.ID, AcceptRequest{})
	s.Require().NoError(err)
	s.Equal(home.ID, result.Home.ID)
	s.Equal(s.owner.UserID, result.Connection.HomeownerID)
	s.Equal(s.pro.UserID, result.Connection.ContractorID)
	s.NotContains(notificationmodels.Kinds(result.Events), notificationmodels.KindHomeClaimed, "the home was already the inviter's")
}

// A professional accepting a homeowner's invitation never decides which
// property the homeowner ends up owning.
func (s *ServiceSuite) TestProCannotChooseTheHome() {
	s.Run("address supplied by the pro is refused", func() {
		claim, err := s.properties.Claim(s.ctx, s.owner, propertyservice.ClaimRequest{Address: s.address()})
		s.Require().NoError(err)
		home := claim.Home
		created, err := s.service.Create(s.ctx, s.owner, CreateRequest{Email: s.pro.Email, HomeID: &home.ID})
		s.Require().NoError(err)

		elsewhere := propertymodels.AddressParts{Street: "1 Somebody Else Rd", City: "Shelbyville", PostalCode: "49008"}
		_, err = s.service.Accept(s.ctx, s.pro, created.Invitation.ID, AcceptRequest{Address: &elsewhere})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		s.Equal(invitationmodels.StatusPending, s.stored(created.Invitation.ID).Status)

		key, err := address.Key(elsewhere)
		s.Require().NoError(err)
		_, err = s.backend.Reader().Homes.FindByNormalizedAddress(s.ctx, key)
		s.ErrorIs(err, sentinel.ErrNotFound, "no home is created for the pro's address")
	})

	s.SetupTest()
	s.Run("stored invitation without a home cannot be accepted", func() {
		inv, err := invitationmodels.New(id.NewInvitationID(), s.pro.Email, s.owner.UserID, s.owner.Role, time.Hour, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.backend.Reader().Invitations.Create(s.ctx, inv))

		_, err = s.service.Accept(s.ctx, s.pro, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		_, err = s.service.Accept(s.ctx, s.pro, inv.ID, AcceptRequest{
			Address: &propertymodels.AddressParts{Street: "1 Somebody Else Rd", City: "Shelbyville"},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		s.Equal(invitationmodels.StatusPending, s.stored(inv.ID).Status)
		s.Empty(s.backend.Events())
	})
}

// Accepting an invitation for a pair already connected through verified work
// refreshes the existing edge.
func (s *ServiceSuite) TestAcceptKeepsVerifiedWorkConnection() {
	gate := access.NewOwnershipGate(s.properties)
	connections := connectionservice.New(s.backend, gate)
	s.service = New(s.backend, s.properties, connections, WithTTL(48*time.Hour), WithMetrics(s.metrics))
	work := workservice.New(s.backend, gate, s.properties, historyservice.New(s.backend, gate), connections)

	claim, err := s.properties.Claim(s.ctx, s.owner, propertyservice.ClaimRequest{Address: s.address()})
	s.Require().NoError(err)
	home := claim.Home
	cost := int64(275_00)
	submitted, err := work.Create(s.ctx, s.pro, workservice.CreateRequest{HomeID: &home.ID, Details: workmodels.Details{
		WorkType: "Furnace tune-up", WorkDate: s.now.AddDate(0, 0, -2), CostCents: &cost,
	}})
	s.Require().NoError(err)
	verified, err := work.Verify(s.ctx, s.owner, home.ID, submitted.WorkRecord.ID, workmodels.Adjustment{})
	s.Require().NoError(err)
	before := verified.Connection

	created, err := s.service.Create(s.ctx, s.owner, CreateRequest{Email: s.pro.Email, HomeID: &home.ID})
	s.Require().NoError(err)
	result, err := s.service.Accept(s.ctx, s.pro, created.Invitation.ID, AcceptRequest{})
	s.Require().NoError(err)

	conns := s.connections(home.ID)
	s.Require().Len(conns, 1)
	got := conns[0]
	s.Equal(before.ID, got.ID)
	s.Equal(result.Connection.ID, got.ID)
	s.Equal(connectionmodels.ViaVerifiedWork, got.EstablishedVia)
	s.Equal(1, got.VerifiedWorkCount)
	s.Equal(cost, got.TotalSpentCents)
	s.Equal(before.LastWorkDate, got.LastWorkDate)
	s.Equal(before.SourceRecordID, got.SourceRecordID)
	s.Require().NotNil(got.InvitedBy)
	s.Equal(s.owner.UserID, *got.InvitedBy)

	s.Equal([]notificationmodels.Kind{notificationmodels.KindInvitationAccepted}, notificationmodels.Kinds(result.Events),
		"an already active connection is not announced again")
}

func (s *ServiceSuite) TestAcceptGuards() {
	s.Run("expired without any sweep", func() {
		inv := s.inviteOwner()
		_, err := s.service.Accept(s.at(s.ctx, 48*time.Hour+time.Second), s.owner, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeExpired), "got %v", err)
		s.Equal(invitationmodels.StatusPending, s.stored(inv.ID).Status)
	})

	s.SetupTest()
	s.Run("email mismatch", func() {
		inv := s.inviteOwner()
		stranger := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "someone@example.com"}
		_, err := s.service.Accept(s.ctx, stranger, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeEmailMismatch))
	})

	s.SetupTest()
	s.Run("wrong role for the invited side", func() {
		inv := s.inviteOwner()
		asPro := s.owner
		asPro.Role = id.RoleInspector
		_, err := s.service.Accept(s.ctx, asPro, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.SetupTest()
	s.Run("unknown invitation", func() {
		_, err := s.service.Accept(s.ctx, s.owner, id.NewInvitationID(), AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.SetupTest()
	s.Run("accepting twice", func() {
		inv := s.inviteOwner()
		_, err := s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
		s.Require().NoError(err)
		_, err = s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Len(s.connections(*inv.HomeID), 1)
	})
}

func (s *ServiceSuite) TestAcceptOnClaimedHomeLeavesNothingBehind() {
	inv := s.inviteOwner()
	squatter := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "squatter@example.com"}
	_, err := s.properties.Claim(s.ctx, squatter, propertyservice.ClaimRequest{HomeID: inv.HomeID})
	s.Require().NoError(err)

	_, err = s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeHomeAlreadyClaimed), "got %v", err)
	s.Equal(invitationmodels.StatusPending, s.stored(inv.ID).Status)
	s.Empty(s.connections(*inv.HomeID))
}

type connectorFunc func(ctx context.Context, st storage.Stores, req connectionservice.UpsertRequest, now time.Time) (*connectionservice.UpsertResult, error)

func (f connectorFunc) UpsertTx(ctx context.Context, st storage.Stores, req connectionservice.UpsertRequest, now time.Time) (*connectionservice.UpsertResult, error) {
	return f(ctx, st, req, now)
}

func (s *ServiceSuite) TestConnectionFailureUnclaimsHome() {
	s.service = s.build(connectorFunc(func(context.Context, storage.Stores, connectionservice.UpsertRequest, time.Time) (*connectionservice.UpsertResult, error) {
		return nil, errors.New("connection store unavailable")
	}))
	inv := s.inviteOwner()

	_, err := s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
	s.Require().Error(err)
	s.False(s.home(*inv.HomeID).HasOwner())
	s.Equal(invitationmodels.StatusPending, s.stored(inv.ID).Status)
	s.InDelta(1, testutil.ToFloat64(s.metrics.InvitationTransitions.WithLabelValues("accept", metrics.OutcomeError)), 0)
}

func (s *ServiceSuite) TestConcurrentAcceptHasOneWinner() {
	inv := s.inviteOwner()

	const attempts = 6
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition), "got %v", err)
	}
	s.Equal(1, wins)
	s.Len(s.connections(*inv.HomeID), 1)
}

func (s *ServiceSuite) TestDeclineAndCancel() {
	s.Run("invitee declines", func() {
		inv := s.inviteOwner()
		result, err := s.service.Decline(s.ctx, s.owner, inv.ID)
		s.Require().NoError(err)
		declined := result.Invitation
		s.Equal(invitationmodels.StatusCancelled, declined.Status)
		s.Require().NotNil(declined.CancelledBy)
		s.Equal(s.owner.UserID, *declined.CancelledBy)
		s.Len(s.backend.EventsFor(s.pro.UserID), 1)
		s.Require().Len(result.Events, 1)
		s.Equal(notificationmodels.KindInvitationDeclined, result.Events[0].Kind)
		s.Equal(s.pro.UserID, *result.Events[0].RecipientID)
		s.Empty(s.connections(*inv.HomeID))
	})

	s.SetupTest()
	s.Run("only the invitee may decline", func() {
		inv := s.inviteOwner()
		_, err := s.service.Decline(s.ctx, s.pro, inv.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.SetupTest()
	s.Run("inviter cancels once", func() {
		inv := s.inviteOwner()
		result, err := s.service.Cancel(s.ctx, s.pro, inv.ID)
		s.Require().NoError(err)
		s.Require().Len(result.Events, 1)
		s.Equal(notificationmodels.KindInvitationCancelled, result.Events[0].Kind)
		s.Equal("olive@example.com", result.Events[0].RecipientEmail)
		_, err = s.service.Cancel(s.ctx, s.pro, inv.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		_, err = s.service.Accept(s.ctx, s.owner, inv.ID, AcceptRequest{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	s.SetupTest()
	s.Run("only the inviter may cancel", func() {
		inv := s.inviteOwner()
		_, err := s.service.Cancel(s.ctx, s.owner, inv.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.SetupTest()
	s.Run("expired invitations cannot be declined", func() {
		inv := s.inviteOwner()
		_, err := s.service.Decline(s.at(s.ctx, 72*time.Hour), s.owner, inv.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func (s *ServiceSuite) TestGet() {
	inv := s.inviteOwner()

	got, err := s.service.Get(s.ctx, s.pro, inv.ID)
	s.Require().NoError(err)
	s.Equal(inv.ID, got.ID)

	_, err = s.service.Get(s.ctx, s.owner, inv.ID)
	s.NoError(err)

	stranger := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "nobody@example.com"}
	_, err = s.service.Get(s.ctx, stranger, inv.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
