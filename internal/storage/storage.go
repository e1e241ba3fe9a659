// Package storage defines the persistence ports shared by every bounded
// context and the unit of work that makes multi-entity transitions atomic.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into domain error codes.
//
//   - ErrNotFound: the entity does not exist
//   - ErrConflict: a unique key is taken
//   - ErrInvalidState: a compare-and-set lost to a concurrent writer
//   - ErrSerialization: the database aborted the transaction; retry it whole
package storage

import (
	"context"
	"time"

	connectionmodels "homeledger/internal/connection/models"
	historymodels "homeledger/internal/history/models"
	invitationmodels "homeledger/internal/invitation/models"
	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
)

type HomeStore interface {
	Get(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error)
	// GetForUpdate locks the row until the transaction ends.
	GetForUpdate(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error)
	FindByNormalizedAddress(ctx context.Context, key string) (*propertymodels.Home, error)
	// Create returns ErrConflict when the normalized address is taken.
	Create(ctx context.Context, home *propertymodels.Home) error
	Update(ctx context.Context, home *propertymodels.Home) error
}

type WorkRecordStore interface {
	Get(ctx context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error)
	GetForUpdate(ctx context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error)
	Create(ctx context.Context, w *workmodels.WorkRecord) error
	// Update persists w only if the stored status still equals expected;
	// otherwise it returns ErrInvalidState.
	Update(ctx context.Context, w *workmodels.WorkRecord, expected workmodels.Status) error
	ListByHome(ctx context.Context, homeID id.HomeID) ([]*workmodels.WorkRecord, error)
	ListByHomeAndStatus(ctx context.Context, homeID id.HomeID, status workmodels.Status) ([]*workmodels.WorkRecord, error)
	// ApprovedTotals aggregates approved, verified work for a (home, contractor) pair.
	ApprovedTotals(ctx context.Context, homeID id.HomeID, contractorID id.UserID) (connectionmodels.Totals, error)
}

type ConnectionStore interface {
	Get(ctx context.Context, connID id.ConnectionID) (*connectionmodels.Connection, error)
	GetByKeyForUpdate(ctx context.Context, key connectionmodels.Key) (*connectionmodels.Connection, error)
	// Create returns ErrConflict when the key is taken. The surrounding
	// transaction stays usable after a conflict.
	Create(ctx context.Context, c *connectionmodels.Connection) error
	Update(ctx context.Context, c *connectionmodels.Connection) error
	ListByHome(ctx context.Context, homeID id.HomeID) ([]*connectionmodels.Connection, error)
}

type RecordStore interface {
	Get(ctx context.Context, recordID id.RecordID) (*historymodels.Record, error)
	// Create returns ErrConflict when a record already exists for the source work record.
	Create(ctx context.Context, r *historymodels.Record) error
	ListByHome(ctx context.Context, homeID id.HomeID) ([]*historymodels.Record, error)
}

type InvitationStore interface {
	Get(ctx context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error)
	GetForUpdate(ctx context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error)
	Create(ctx context.Context, inv *invitationmodels.Invitation) error
	// Update persists inv only if the stored status still equals expected.
	Update(ctx context.Context, inv *invitationmodels.Invitation, expected invitationmodels.Status) error
	// LockInviterEmail serializes invitation creation per (inviter, email)
	// for the rest of the transaction.
	LockInviterEmail(ctx context.Context, inviter id.UserID, email string) error
	// FindOpen returns a PENDING invitation from inviter to email that has
	// not expired at now, or ErrNotFound.
	FindOpen(ctx context.Context, inviter id.UserID, email string, now time.Time) (*invitationmodels.Invitation, error)
}

// OutboxStore appends notification events in the caller's transaction.
type OutboxStore interface {
	Append(ctx context.Context, events ...notificationmodels.Event) error
}

// Stores is the set of stores bound to one transaction.
type Stores struct {
	Homes       HomeStore
	WorkRecords WorkRecordStore
	Connections ConnectionStore
	Records     RecordStore
	Invitations InvitationStore
	Outbox      OutboxStore
}

// Transactor runs fn as one atomic unit. If fn returns an error nothing it
// wrote is kept. The stores passed to fn must not be used after it returns.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Backend is a complete storage implementation: a transactor plus stores for
// reads outside a transaction.
type Backend interface {
	Transactor
	Reader() Stores
}
