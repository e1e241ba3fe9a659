// Package service is the Property Registry: find-or-create by normalized
// address and one-time ownership claims.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/platform/metrics"
	"homeledger/internal/property/address"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
)

var tracer = otel.Tracer("homeledger/property")

// ClaimHook runs inside the claim transaction after a home gains its first
// owner. Events it returns are emitted with the claim.
type ClaimHook func(ctx context.Context, s storage.Stores, home *propertymodels.Home, owner id.UserID, now time.Time) ([]notificationmodels.Event, error)

// ClaimRequest identifies the home to claim by id or by address.
type ClaimRequest struct {
	HomeID  *id.HomeID
	Address *propertymodels.AddressParts
}

// ClaimResult is the claimed home and the events the claim emitted. Events is
// empty when the actor already owned the home.
type ClaimResult struct {
	Home   *propertymodels.Home
	Events []notificationmodels.Event
}

// Service owns homes and their ownership.
type Service struct {
	backend    storage.Backend
	normalizer address.Normalizer
	claimHooks []ClaimHook
	logger     *slog.Logger
	metrics    *metrics.Metrics
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

func WithNormalizer(n address.Normalizer) Option {
	return func(s *Service) {
		s.normalizer = n
	}
}

// WithClaimHook registers hook to run on every first claim. Hooks run in
// registration order.
func WithClaimHook(hook ClaimHook) Option {
	return func(s *Service) {
		s.claimHooks = append(s.claimHooks, hook)
	}
}

func New(backend storage.Backend, opts ...Option) *Service {
	s := &Service{backend: backend, normalizer: address.Default}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddClaimHook registers a hook after construction. It must be called before
// the service handles requests.
func (s *Service) AddClaimHook(hook ClaimHook) {
	s.claimHooks = append(s.claimHooks, hook)
}

// Get returns a home by id.
func (s *Service) Get(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error) {
	home, err := s.backend.Reader().Homes.Get(ctx, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	return home, nil
}

// OwnerOf returns the current owner of homeID, nil when unclaimed.
func (s *Service) OwnerOf(ctx context.Context, homeID id.HomeID) (*id.UserID, error) {
	home, err := s.Get(ctx, homeID)
	if err != nil {
		return nil, err
	}
	return home.OwnerID, nil
}

// FindOrCreateByAddress resolves parts to the home with the same normalized
// key, creating an unowned home when none exists.
func (s *Service) FindOrCreateByAddress(ctx context.Context, parts propertymodels.AddressParts) (*propertymodels.Home, error) {
	ctx, span := tracer.Start(ctx, "property.find_or_create")
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		home    *propertymodels.Home
		created bool
	)
	err := s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		home, created, err = s.FindOrCreateTx(ctx, st, parts, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("home.created", created))
	if created {
		auditlog.Log(ctx, s.logger, "home_created",
			"home_id", home.ID,
		)
	}
	return home, nil
}

// FindOrCreateTx is FindOrCreateByAddress inside the caller's transaction.
// created reports whether this call inserted the home.
func (s *Service) FindOrCreateTx(ctx context.Context, st storage.Stores, parts propertymodels.AddressParts, now time.Time) (home *propertymodels.Home, created bool, err error) {
	key, err := s.normalizer.Normalize(parts)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return nil, false, dErrors.Wrap(err, dErrors.CodeValidation, "address could not be normalized")
		}
		return nil, false, err
	}

	home, err = st.Homes.FindByNormalizedAddress(ctx, key)
	if err == nil {
		return home, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, storage.DomainError(err, "home not found")
	}

	home, err = propertymodels.NewHome(id.NewHomeID(), key, parts, now)
	if err != nil {
		return nil, false, err
	}
	if err := st.Homes.Create(ctx, home); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, false, storage.DomainError(err, "home not found")
		}
		// Another request created the same address first.
		existing, err := st.Homes.FindByNormalizedAddress(ctx, key)
		if err != nil {
			return nil, false, storage.DomainError(err, "home not found")
		}
		return existing, false, nil
	}
	return home, true, nil
}

// Claim makes actor the owner of the requested home. Claiming a home the
// actor already owns succeeds without changes.
func (s *Service) Claim(ctx context.Context, actor requestcontext.Identity, req ClaimRequest) (*ClaimResult, error) {
	ctx, span := tracer.Start(ctx, "property.claim")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveTx("property.claim", start)

	if !actor.Role.IsHomeowner() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only homeowners can claim a home")
	}
	if req.HomeID == nil && (req.Address == nil || req.Address.IsZero()) {
		return nil, dErrors.New(dErrors.CodeValidation, "home_id or address is required")
	}

	now := requestcontext.Now(ctx)
	var (
		home   *propertymodels.Home
		events []notificationmodels.Event
	)
	err := s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		homeID, err := s.resolveClaimTarget(ctx, st, req, now)
		if err != nil {
			return err
		}
		home, err = st.Homes.GetForUpdate(ctx, homeID)
		if err != nil {
			return storage.DomainError(err, "home not found")
		}
		events, err = s.ClaimTx(ctx, st, home, actor.UserID, now)
		if err != nil {
			return err
		}
		return st.Outbox.Append(ctx, events...)
	})
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		auditlog.Log(ctx, s.logger, "home_claimed",
			"home_id", home.ID,
			"owner_id", actor.UserID,
			"events", len(events),
		)
	}
	return &ClaimResult{Home: home, Events: events}, nil
}

func (s *Service) resolveClaimTarget(ctx context.Context, st storage.Stores, req ClaimRequest, now time.Time) (id.HomeID, error) {
	if req.HomeID != nil {
		return *req.HomeID, nil
	}
	home, _, err := s.FindOrCreateTx(ctx, st, *req.Address, now)
	if err != nil {
		return id.HomeID{}, err
	}
	return home.ID, nil
}

// ClaimTx claims a home already locked by the caller's transaction. It returns
// the events to emit; an empty slice means the owner did not change. The
// caller appends them to the outbox.
func (s *Service) ClaimTx(ctx context.Context, st storage.Stores, home *propertymodels.Home, owner id.UserID, now time.Time) ([]notificationmodels.Event, error) {
	if err := home.CanClaim(owner); err != nil {
		return nil, err
	}
	if !home.ApplyClaim(owner, now) {
		return nil, nil
	}
	if err := st.Homes.Update(ctx, home); err != nil {
		return nil, storage.DomainError(err, "home not found")
	}

	events := []notificationmodels.Event{
		notificationmodels.New(notificationmodels.KindHomeClaimed, owner, now).
			To(owner).
			WithHome(home.ID),
	}
	for _, hook := range s.claimHooks {
		more, err := hook(ctx, st, home, owner, now)
		if err != nil {
			return nil, err
		}
		events = append(events, more...)
	}
	return events, nil
}
