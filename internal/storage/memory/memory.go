// Package memory is a process-local storage backend for development and tests.
//
// A transaction takes the backend's write lock, works on a copy of the whole
// state, and swaps the copy in on success. A failed transaction leaves no
// trace. Entities are stored by value; models replace pointer fields rather
// than writing through them, so shallow copies are safe to share.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	connectionmodels "homeledger/internal/connection/models"
	historymodels "homeledger/internal/history/models"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

type outboxEntry struct {
	event     notificationmodels.Event
	published bool
}

type state struct {
	homes          map[id.HomeID]propertymodels.Home
	homesByKey     map[string]id.HomeID
	works          map[id.WorkRecordID]workmodels.WorkRecord
	connections    map[id.ConnectionID]connectionmodels.Connection
	connByKey      map[connectionmodels.Key]id.ConnectionID
	records        map[id.RecordID]historymodels.Record
	recordBySource map[id.WorkRecordID]id.RecordID
	invitations    map[id.InvitationID]invitationmodels.Invitation
	outbox         []outboxEntry
}

func newState() *state {
	return &state{
		homes:          make(map[id.HomeID]propertymodels.Home),
		homesByKey:     make(map[string]id.HomeID),
		works:          make(map[id.WorkRecordID]workmodels.WorkRecord),
		connections:    make(map[id.ConnectionID]connectionmodels.Connection),
		connByKey:      make(map[connectionmodels.Key]id.ConnectionID),
		records:        make(map[id.RecordID]historymodels.Record),
		recordBySource: make(map[id.WorkRecordID]id.RecordID),
		invitations:    make(map[id.InvitationID]invitationmodels.Invitation),
	}
}

func (s *state) clone() *state {
	return &state{
		homes:          maps.Clone(s.homes),
		homesByKey:     maps.Clone(s.homesByKey),
		works:          maps.Clone(s.works),
		connections:    maps.Clone(s.connections),
		connByKey:      maps.Clone(s.connByKey),
		records:        maps.Clone(s.records),
		recordBySource: maps.Clone(s.recordBySource),
		invitations:    maps.Clone(s.invitations),
		outbox:         append([]outboxEntry(nil), s.outbox...),
	}
}

// access yields the state to operate on and a release func.
type access interface {
	read() (*state, func())
	write() (*state, func())
}

// Backend implements storage.Backend.
type Backend struct {
	mu      sync.RWMutex
	st      *state
	timeout time.Duration
}

type Option func(*Backend)

// WithTxTimeout bounds how long a transaction may run when ctx has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

func New(opts ...Option) *Backend {
	b := &Backend{st: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) read() (*state, func()) {
	b.mu.RLock()
	return b.st, b.mu.RUnlock
}

func (b *Backend) write() (*state, func()) {
	b.mu.Lock()
	return b.st, b.mu.Unlock
}

// txView is the copy owned by a running transaction. The backend lock is
// already held, so access is unsynchronized.
type txView struct{ st *state }

func (v txView) read() (*state, func())  { return v.st, func() {} }
func (v txView) write() (*state, func()) { return v.st, func() {} }

func storesOver(a access) storage.Stores {
	return storage.Stores{
		Homes:       &homeStore{a},
		WorkRecords: &workRecordStore{a},
		Connections: &connectionStore{a},
		Records:     &recordStore{a},
		Invitations: &invitationStore{a},
		Outbox:      &outboxStore{a},
	}
}

// Reader returns stores for use outside a transaction. Each call is atomic on its own.
func (b *Backend) Reader() storage.Stores {
	return storesOver(b)
}

type txCtxKey struct{}

type txMarker struct {
	backend *Backend
	stores  storage.Stores
}

func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	// A nested call joins the outer transaction.
	if m, ok := ctx.Value(txCtxKey{}).(*txMarker); ok && m.backend == b {
		return fn(ctx, m.stores)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	work := b.st.clone()
	stores := storesOver(txView{work})
	ctx = context.WithValue(ctx, txCtxKey{}, &txMarker{backend: b, stores: stores})
	if err := fn(ctx, stores); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	b.st = work
	return nil
}
