package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	"homeledger/internal/storage/memory"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	backend *memory.Backend
	service *Service
	ctx     context.Context
	now     time.Time
	owner   requestcontext.Identity
	hooked  int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = memory.New()
	s.hooked = 0
	s.service = New(s.backend, WithClaimHook(func(ctx context.Context, st storage.Stores, home *propertymodels.Home, owner id.UserID, now time.Time) ([]notificationmodels.Event, error) {
		s.hooked++
		return []notificationmodels.Event{
			notificationmodels.New(notificationmodels.KindWorkSubmitted, owner, now).To(owner).WithHome(home.ID),
		}, nil
	}))
	s.now = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.owner = requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "owner@example.com"}
}

func (s *ServiceSuite) address() propertymodels.AddressParts {
	return propertymodels.AddressParts{Street: "12 Elm Street", Unit: "Apt. 4", City: "Springfield", PostalCode: "12345"}
}

func (s *ServiceSuite) TestFindOrCreateByAddress() {
	s.Run("same canonical key resolves to one home", func() {
		first, err := s.service.FindOrCreateByAddress(s.ctx, s.address())
		s.Require().NoError(err)
		s.False(first.HasOwner())

		second, err := s.service.FindOrCreateByAddress(s.ctx, propertymodels.AddressParts{
			Street: "12 ELM ST.", Unit: "#4", City: "springfield", PostalCode: "12345",
		})
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
	})

	s.Run("invalid address is a validation error", func() {
		_, err := s.service.FindOrCreateByAddress(s.ctx, propertymodels.AddressParts{City: "Nowhere"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("normalizer failures become validation errors", func() {
		svc := New(s.backend, WithNormalizer(failingNormalizer{}))
		_, err := svc.FindOrCreateByAddress(s.ctx, s.address())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(propertymodels.AddressParts) (string, error) {
	return "", errors.New("geocoder offline")
}

func (s *ServiceSuite) TestClaim() {
	home, err := s.service.FindOrCreateByAddress(s.ctx, s.address())
	s.Require().NoError(err)

	s.Run("first claim sets the owner and runs hooks", func() {
		claimed, err := s.service.Claim(s.ctx, s.owner, ClaimRequest{HomeID: &home.ID})
		s.Require().NoError(err)
		s.True(claimed.Home.IsOwnedBy(s.owner.UserID))
		s.Equal(1, s.hooked)

		kinds := notificationmodels.Kinds(s.backend.EventsFor(s.owner.UserID))
		s.ElementsMatch([]notificationmodels.Kind{notificationmodels.KindHomeClaimed, notificationmodels.KindWorkSubmitted}, kinds)
		s.Equal(s.backend.Events(), claimed.Events)

		ownerID, err := s.service.OwnerOf(s.ctx, home.ID)
		s.Require().NoError(err)
		s.Equal(s.owner.UserID, *ownerID)
	})

	s.Run("repeat claim by the owner is a no-op", func() {
		again, err := s.service.Claim(s.ctx, s.owner, ClaimRequest{HomeID: &home.ID})
		s.Require().NoError(err)
		s.Empty(again.Events)
		s.Equal(1, s.hooked)
		s.Len(s.backend.EventsFor(s.owner.UserID), 2)
	})

	s.Run("another homeowner is refused", func() {
		other := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner}
		_, err := s.service.Claim(s.ctx, other, ClaimRequest{HomeID: &home.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeHomeAlreadyClaimed))

		stored, err := s.service.Get(s.ctx, home.ID)
		s.Require().NoError(err)
		s.True(stored.IsOwnedBy(s.owner.UserID))
	})

	s.Run("professionals cannot claim", func() {
		pro := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleContractor}
		_, err := s.service.Claim(s.ctx, pro, ClaimRequest{HomeID: &home.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown home", func() {
		missing := id.NewHomeID()
		_, err := s.service.Claim(s.ctx, s.owner, ClaimRequest{HomeID: &missing})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestClaimByAddressCreatesHome() {
	addr := propertymodels.AddressParts{Street: "99 Oak Avenue", City: "Shelbyville"}
	claimed, err := s.service.Claim(s.ctx, s.owner, ClaimRequest{Address: &addr})
	s.Require().NoError(err)
	s.True(claimed.Home.IsOwnedBy(s.owner.UserID))

	again, err := s.service.FindOrCreateByAddress(s.ctx, propertymodels.AddressParts{Street: "99 oak ave", City: "SHELBYVILLE"})
	s.Require().NoError(err)
	s.Equal(claimed.Home.ID, again.ID)
}

func (s *ServiceSuite) TestClaimHookFailureRollsBack() {
	home, err := s.service.FindOrCreateByAddress(s.ctx, s.address())
	s.Require().NoError(err)

	boom := errors.New("promote failed")
	svc := New(s.backend, WithClaimHook(func(context.Context, storage.Stores, *propertymodels.Home, id.UserID, time.Time) ([]notificationmodels.Event, error) {
		return nil, boom
	}))
	_, err = svc.Claim(s.ctx, s.owner, ClaimRequest{HomeID: &home.ID})
	s.ErrorIs(err, boom)

	stored, err := svc.Get(s.ctx, home.ID)
	s.Require().NoError(err)
	s.False(stored.HasOwner())
	s.Empty(s.backend.Events())
}

func (s *ServiceSuite) TestClaimRequiresTarget() {
	_, err := s.service.Claim(s.ctx, s.owner, ClaimRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
