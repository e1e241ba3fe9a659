package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	connectionmodels "homeledger/internal/connection/models"
	historymodels "homeledger/internal/history/models"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/email"
	"homeledger/pkg/platform/sentinel"
)

type homeStore struct{ a access }

func (s *homeStore) Get(_ context.Context, homeID id.HomeID) (*propertymodels.Home, error) {
	st, done := s.a.read()
	defer done()
	h, ok := st.homes[homeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &h, nil
}

func (s *homeStore) GetForUpdate(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error) {
	return s.Get(ctx, homeID)
}

func (s *homeStore) FindByNormalizedAddress(_ context.Context, key string) (*propertymodels.Home, error) {
	st, done := s.a.read()
	defer done()
	homeID, ok := st.homesByKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	h := st.homes[homeID]
	return &h, nil
}

func (s *homeStore) Create(_ context.Context, home *propertymodels.Home) error {
	st, done := s.a.write()
	defer done()
	if _, taken := st.homesByKey[home.NormalizedAddress]; taken {
		return sentinel.ErrConflict
	}
	if _, taken := st.homes[home.ID]; taken {
		return sentinel.ErrConflict
	}
	st.homes[home.ID] = *home
	st.homesByKey[home.NormalizedAddress] = home.ID
	return nil
}

func (s *homeStore) Update(_ context.Context, home *propertymodels.Home) error {
	st, done := s.a.write()
	defer done()
	if _, ok := st.homes[home.ID]; !ok {
		return sentinel.ErrNotFound
	}
	st.homes[home.ID] = *home
	return nil
}

type workRecordStore struct{ a access }

func (s *workRecordStore) Get(_ context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	st, done := s.a.read()
	defer done()
	w, ok := st.works[workID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &w, nil
}

func (s *workRecordStore) GetForUpdate(ctx context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	return s.Get(ctx, workID)
}

func (s *workRecordStore) Create(_ context.Context, w *workmodels.WorkRecord) error {
	st, done := s.a.write()
	defer done()
	if _, taken := st.works[w.ID]; taken {
		return sentinel.ErrConflict
	}
	st.works[w.ID] = *w
	return nil
}

func (s *workRecordStore) Update(_ context.Context, w *workmodels.WorkRecord, expected workmodels.Status) error {
	st, done := s.a.write()
	defer done()
	current, ok := st.works[w.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrInvalidState
	}
	st.works[w.ID] = *w
	return nil
}

func (s *workRecordStore) ListByHome(_ context.Context, homeID id.HomeID) ([]*workmodels.WorkRecord, error) {
	return s.list(func(w workmodels.WorkRecord) bool { return w.HomeID == homeID }), nil
}

func (s *workRecordStore) ListByHomeAndStatus(_ context.Context, homeID id.HomeID, status workmodels.Status) ([]*workmodels.WorkRecord, error) {
	return s.list(func(w workmodels.WorkRecord) bool { return w.HomeID == homeID && w.Status == status }), nil
}

func (s *workRecordStore) list(keep func(workmodels.WorkRecord) bool) []*workmodels.WorkRecord {
	st, done := s.a.read()
	defer done()
	out := make([]*workmodels.WorkRecord, 0)
	for _, w := range st.works {
		if keep(w) {
			out = append(out, &w)
		}
	}
	slices.SortFunc(out, func(a, b *workmodels.WorkRecord) int {
		if c := b.WorkDate.Compare(a.WorkDate); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (s *workRecordStore) ApprovedTotals(_ context.Context, homeID id.HomeID, contractorID id.UserID) (connectionmodels.Totals, error) {
	st, done := s.a.read()
	defer done()
	var totals connectionmodels.Totals
	for _, w := range st.works {
		if w.HomeID != homeID || w.ContractorID != contractorID {
			continue
		}
		if w.Status != workmodels.StatusApproved || !w.IsVerified {
			continue
		}
		totals.VerifiedWorkCount++
		totals.TotalSpentCents += w.Cost()
		if totals.LastWorkDate == nil || w.WorkDate.After(*totals.LastWorkDate) {
			d := w.WorkDate
			totals.LastWorkDate = &d
		}
	}
	return totals, nil
}

type connectionStore struct{ a access }

func (s *connectionStore) Get(_ context.Context, connID id.ConnectionID) (*connectionmodels.Connection, error) {
	st, done := s.a.read()
	defer done()
	c, ok := st.connections[connID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *connectionStore) GetByKeyForUpdate(_ context.Context, key connectionmodels.Key) (*connectionmodels.Connection, error) {
	st, done := s.a.read()
	defer done()
	connID, ok := st.connByKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := st.connections[connID]
	return &c, nil
}

func (s *connectionStore) Create(_ context.Context, c *connectionmodels.Connection) error {
	st, done := s.a.write()
	defer done()
	if _, taken := st.connByKey[c.Key()]; taken {
		return sentinel.ErrConflict
	}
	st.connections[c.ID] = *c
	st.connByKey[c.Key()] = c.ID
	return nil
}

func (s *connectionStore) Update(_ context.Context, c *connectionmodels.Connection) error {
	st, done := s.a.write()
	defer done()
	if _, ok := st.connections[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	st.connections[c.ID] = *c
	return nil
}

func (s *connectionStore) ListByHome(_ context.Context, homeID id.HomeID) ([]*connectionmodels.Connection, error) {
	st, done := s.a.read()
	defer done()
	out := make([]*connectionmodels.Connection, 0)
	for _, c := range st.connections {
		if c.HomeID == homeID {
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *connectionmodels.Connection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

type recordStore struct{ a access }

func (s *recordStore) Get(_ context.Context, recordID id.RecordID) (*historymodels.Record, error) {
	st, done := s.a.read()
	defer done()
	r, ok := st.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (s *recordStore) Create(_ context.Context, r *historymodels.Record) error {
	st, done := s.a.write()
	defer done()
	if _, taken := st.recordBySource[r.SourceWorkRecordID]; taken {
		return sentinel.ErrConflict
	}
	st.records[r.ID] = *r
	st.recordBySource[r.SourceWorkRecordID] = r.ID
	return nil
}

func (s *recordStore) ListByHome(_ context.Context, homeID id.HomeID) ([]*historymodels.Record, error) {
	st, done := s.a.read()
	defer done()
	out := make([]*historymodels.Record, 0)
	for _, r := range st.records {
		if r.HomeID == homeID {
			out = append(out, &r)
		}
	}
	slices.SortFunc(out, func(a, b *historymodels.Record) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	return out, nil
}

type invitationStore struct{ a access }

func (s *invitationStore) Get(_ context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error) {
	st, done := s.a.read()
	defer done()
	inv, ok := st.invitations[invID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &inv, nil
}

func (s *invitationStore) GetForUpdate(ctx context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error) {
	return s.Get(ctx, invID)
}

func (s *invitationStore) Create(_ context.Context, inv *invitationmodels.Invitation) error {
	st, done := s.a.write()
	defer done()
	if _, taken := st.invitations[inv.ID]; taken {
		return sentinel.ErrConflict
	}
	st.invitations[inv.ID] = *inv
	return nil
}

func (s *invitationStore) Update(_ context.Context, inv *invitationmodels.Invitation, expected invitationmodels.Status) error {
	st, done := s.a.write()
	defer done()
	current, ok := st.invitations[inv.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrInvalidState
	}
	st.invitations[inv.ID] = *inv
	return nil
}

// LockInviterEmail is a no-op: transactions are already serialized.
func (s *invitationStore) LockInviterEmail(context.Context, id.UserID, string) error {
	return nil
}

func (s *invitationStore) FindOpen(_ context.Context, inviter id.UserID, address string, now time.Time) (*invitationmodels.Invitation, error) {
	st, done := s.a.read()
	defer done()
	for _, inv := range st.invitations {
		if inv.InvitedBy == inviter && email.Equal(inv.InvitedEmail, address) && inv.IsOpen(now) {
			return &inv, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

type outboxStore struct{ a access }

func (s *outboxStore) Append(_ context.Context, events ...notificationmodels.Event) error {
	st, done := s.a.write()
	defer done()
	for _, e := range events {
		st.outbox = append(st.outbox, outboxEntry{event: e})
	}
	return nil
}
