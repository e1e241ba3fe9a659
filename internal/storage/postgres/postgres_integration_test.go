//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"homeledger/internal/access"
	connectionmodels "homeledger/internal/connection/models"
	connectionservice "homeledger/internal/connection/service"
	historymodels "homeledger/internal/history/models"
	historyservice "homeledger/internal/history/service"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	propertyservice "homeledger/internal/property/service"
	"homeledger/internal/storage"
	pgstore "homeledger/internal/storage/postgres"
	workmodels "homeledger/internal/workrecord/models"
	workservice "homeledger/internal/workrecord/service"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/requestcontext"
	"homeledger/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	pg      *containers.Postgres
	backend *pgstore.Backend
	ctx     context.Context
	now     time.Time
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgres(s.T())
	s.backend = pgstore.New(s.pg.DB)
	s.now = time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *PostgresSuite) SetupTest() {
	s.pg.Reset(s.T())
}

func (s *PostgresSuite) home(key string) *propertymodels.Home {
	h, err := propertymodels.NewHome(id.NewHomeID(), key, propertymodels.AddressParts{Street: key, City: "Springfield"}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.backend.Reader().Homes.Create(s.ctx, h))
	return h
}

func (s *PostgresSuite) work(homeID id.HomeID, contractor id.UserID, cost int64) *workmodels.WorkRecord {
	w, err := workmodels.New(id.NewWorkRecordID(), homeID, contractor, "Ace", workmodels.Details{
		WorkType: "Roof repair", WorkDate: s.now.AddDate(0, 0, -3), CostCents: &cost,
	}, true, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.backend.Reader().WorkRecords.Create(s.ctx, w))
	return w
}

func (s *PostgresSuite) TestRunInTxRollsBack() {
	boom := errors.New("boom")
	var homeID id.HomeID
	err := s.backend.RunInTx(s.ctx, func(ctx context.Context, st storage.Stores) error {
		h, err := propertymodels.NewHome(id.NewHomeID(), "rollback", propertymodels.AddressParts{Street: "1 Main"}, s.now)
		s.Require().NoError(err)
		homeID = h.ID
		s.Require().NoError(st.Homes.Create(ctx, h))
		s.Require().NoError(st.Outbox.Append(ctx, notificationmodels.New(notificationmodels.KindHomeClaimed, id.NewUserID(), s.now)))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.backend.Reader().Homes.Get(s.ctx, homeID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	var pending int
	s.Require().NoError(s.pg.DB.QueryRow(`SELECT count(*) FROM outbox`).Scan(&pending))
	s.Zero(pending)
}

func (s *PostgresSuite) TestHomeAddressIsUnique() {
	first := s.home("742 evergreen ter|springfield")
	dup, err := propertymodels.NewHome(id.NewHomeID(), first.NormalizedAddress, first.Address, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.backend.Reader().Homes.Create(s.ctx, dup), sentinel.ErrConflict)

	got, err := s.backend.Reader().Homes.FindByNormalizedAddress(s.ctx, first.NormalizedAddress)
	s.Require().NoError(err)
	s.Equal(first.ID, got.ID)
	s.Equal("Springfield", got.Address.City)
}

func (s *PostgresSuite) TestWorkRecordCompareAndSet() {
	h := s.home("cas")
	w := s.work(h.ID, id.NewUserID(), 120_00)

	s.Require().NoError(w.ApplyDispute(id.NewUserID(), "wrong date", s.now))
	s.Require().NoError(s.backend.Reader().WorkRecords.Update(s.ctx, w, workmodels.StatusDocumented))
	s.ErrorIs(s.backend.Reader().WorkRecords.Update(s.ctx, w, workmodels.StatusDocumented), sentinel.ErrInvalidState)

	got, err := s.backend.Reader().WorkRecords.Get(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(workmodels.StatusDisputed, got.Status)
	s.Equal("wrong date", got.ReviewReason)
}

func (s *PostgresSuite) TestConnectionConflictKeepsTransactionUsable() {
	h := s.home("conn")
	key := connectionmodels.Key{HomeID: h.ID, HomeownerID: id.NewUserID(), ContractorID: id.NewUserID()}
	first, err := connectionmodels.New(id.NewConnectionID(), key, connectionmodels.ViaInvitation, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.backend.Reader().Connections.Create(s.ctx, first))

	err = s.backend.RunInTx(s.ctx, func(ctx context.Context, st storage.Stores) error {
		dup, err := connectionmodels.New(id.NewConnectionID(), key, connectionmodels.ViaVerifiedWork, s.now)
		s.Require().NoError(err)
		s.ErrorIs(st.Connections.Create(ctx, dup), sentinel.ErrConflict)

		got, err := st.Connections.GetByKeyForUpdate(ctx, key)
		if err != nil {
			return err
		}
		s.Equal(first.ID, got.ID)
		return nil
	})
	s.NoError(err)
}

func (s *PostgresSuite) TestApprovedTotals() {
	h := s.home("totals")
	pro, owner := id.NewUserID(), id.NewUserID()
	for _, cost := range []int64{10_00, 25_00} {
		w := s.work(h.ID, pro, cost)
		s.Require().NoError(w.ApplyVerify(owner, workmodels.Adjustment{}, s.now))
		s.Require().NoError(w.AttachRecord(id.NewRecordID()))
		s.Require().NoError(s.backend.Reader().WorkRecords.Update(s.ctx, w, workmodels.StatusDocumented))
	}
	s.work(h.ID, pro, 99_00)

	totals, err := s.backend.Reader().WorkRecords.ApprovedTotals(s.ctx, h.ID, pro)
	s.Require().NoError(err)
	s.Equal(2, totals.VerifiedWorkCount)
	s.Equal(int64(35_00), totals.TotalSpentCents)
	s.Require().NotNil(totals.LastWorkDate)
}

func (s *PostgresSuite) TestRecordPerSourceIsUnique() {
	h := s.home("records")
	src := s.work(h.ID, id.NewUserID(), 40_00)
	rec := func() *historymodels.Record {
		return &historymodels.Record{
			ID:                 id.NewRecordID(),
			HomeID:             h.ID,
			Title:              "Roof repair",
			Date:               s.now,
			Kind:               historymodels.KindVerifiedWork,
			CreatedBy:          src.ContractorID,
			VerifiedBy:         id.NewUserID(),
			VerifiedAt:         s.now,
			SourceWorkRecordID: src.ID,
			CreatedAt:          s.now,
		}
	}
	s.Require().NoError(s.backend.Reader().Records.Create(s.ctx, rec()))
	s.ErrorIs(s.backend.Reader().Records.Create(s.ctx, rec()), sentinel.ErrConflict)
}

func (s *PostgresSuite) TestInvitationFindOpen() {
	inviter := id.NewUserID()
	inv, err := invitationmodels.New(id.NewInvitationID(), "owner@example.com", inviter, id.RoleContractor, time.Hour, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.backend.Reader().Invitations.Create(s.ctx, inv))

	found, err := s.backend.Reader().Invitations.FindOpen(s.ctx, inviter, "owner@example.com", s.now)
	s.Require().NoError(err)
	s.Equal(inv.ID, found.ID)

	_, err = s.backend.Reader().Invitations.FindOpen(s.ctx, inviter, "owner@example.com", s.now.Add(2*time.Hour))
	s.ErrorIs(err, sentinel.ErrNotFound)

	inv.ApplyCancel(inviter, s.now)
	s.Require().NoError(s.backend.Reader().Invitations.Update(s.ctx, inv, invitationmodels.StatusPending))
	s.ErrorIs(s.backend.Reader().Invitations.Update(s.ctx, inv, invitationmodels.StatusPending), sentinel.ErrInvalidState)
}

// TestConcurrentVerificationsOverPostgres drives the workrecord service
// against real row locks.
func (s *PostgresSuite) TestConcurrentVerificationsOverPostgres() {
	properties := propertyservice.New(s.backend)
	gate := access.NewOwnershipGate(properties)
	work := workservice.New(s.backend, gate, properties, historyservice.New(s.backend, gate), connectionservice.New(s.backend, gate))
	properties.AddClaimHook(work.PromotePendingTx)

	owner := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleHomeowner, Email: "owner@example.com", DisplayName: "Olive"}
	pro := requestcontext.Identity{UserID: id.NewUserID(), Role: id.RoleContractor, Email: "ace@example.com", DisplayName: "Ace"}
	addr := &propertymodels.AddressParts{Street: "742 Evergreen Terrace", City: "Springfield", PostalCode: "49007"}
	claim, err := properties.Claim(s.ctx, owner, propertyservice.ClaimRequest{Address: addr})
	s.Require().NoError(err)
	home := claim.Home

	costs := []int64{100_00, 250_00, 75_00, 5_00}
	var total int64
	records := make([]*workmodels.WorkRecord, 0, len(costs))
	for _, c := range costs {
		cost := c
		created, err := work.Create(s.ctx, pro, workservice.CreateRequest{HomeID: &home.ID, Details: workmodels.Details{
			WorkType: "Plumbing", WorkDate: s.now.AddDate(0, 0, -1), CostCents: &cost,
		}})
		s.Require().NoError(err)
		records = append(records, created.WorkRecord)
		total += c
	}

	// Every record is verified twice at once; one of each pair must lose.
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for _, w := range records {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := work.Verify(s.ctx, owner, home.ID, w.ID, workmodels.Adjustment{})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case dErrors.HasCode(err, dErrors.CodeInvalidStateTransition):
					losses++
				default:
					s.Failf("unexpected verify error", "%v", err)
				}
			}()
		}
	}
	wg.Wait()

	s.Equal(len(records), wins)
	s.Equal(len(records), losses)

	conns, err := s.backend.Reader().Connections.ListByHome(s.ctx, home.ID)
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Equal(len(costs), conns[0].VerifiedWorkCount)
	s.Equal(total, conns[0].TotalSpentCents)

	timeline, err := s.backend.Reader().Records.ListByHome(s.ctx, home.ID)
	s.Require().NoError(err)
	s.Len(timeline, len(costs))
}
