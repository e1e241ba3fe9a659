package models

import (
	"time"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

// EstablishedVia records how the edge first came to exist.
type EstablishedVia string

const (
	ViaVerifiedWork EstablishedVia = "VERIFIED_WORK"
	ViaInvitation   EstablishedVia = "INVITATION"
	ViaManual       EstablishedVia = "MANUAL"
)

func (v EstablishedVia) IsValid() bool {
	switch v {
	case ViaVerifiedWork, ViaInvitation, ViaManual:
		return true
	}
	return false
}

// Key is the uniqueness triple.
type Key struct {
	HomeID       id.HomeID
	HomeownerID  id.UserID
	ContractorID id.UserID
}

// Totals is the aggregate over approved work for a (home, contractor) pair.
type Totals struct {
	VerifiedWorkCount int
	TotalSpentCents   int64
	LastWorkDate      *time.Time
}

// Connection is the trust edge between a homeowner and a professional for one home.
//
// Invariants:
//   - at most one Connection per Key
//   - aggregates are recomputed from approved work, never incremented
type Connection struct {
	ID                id.ConnectionID `json:"id"`
	HomeID            id.HomeID       `json:"home_id"`
	HomeownerID       id.UserID       `json:"homeowner_id"`
	ContractorID      id.UserID       `json:"contractor_id"`
	Status            Status          `json:"status"`
	EstablishedVia    EstablishedVia  `json:"established_via"`
	VerifiedWorkCount int             `json:"verified_work_count"`
	TotalSpentCents   int64           `json:"total_spent_cents"`
	LastWorkDate      *time.Time      `json:"last_work_date,omitempty"`
	InvitedBy         *id.UserID      `json:"invited_by,omitempty"`
	SourceRecordID    *id.RecordID    `json:"source_record_id,omitempty"`
	EndedBy           *id.UserID      `json:"ended_by,omitempty"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func New(connID id.ConnectionID, key Key, via EstablishedVia, now time.Time) (*Connection, error) {
	if !via.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown connection origin")
	}
	if key.HomeownerID == key.ContractorID {
		return nil, dErrors.New(dErrors.CodeValidation, "a connection needs two distinct parties")
	}
	return &Connection{
		ID:             connID,
		HomeID:         key.HomeID,
		HomeownerID:    key.HomeownerID,
		ContractorID:   key.ContractorID,
		Status:         StatusActive,
		EstablishedVia: via,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (c *Connection) Key() Key {
	return Key{HomeID: c.HomeID, HomeownerID: c.HomeownerID, ContractorID: c.ContractorID}
}

func (c *Connection) IsActive() bool { return c.Status == StatusActive }

func (c *Connection) HasParty(userID id.UserID) bool {
	return c.HomeownerID == userID || c.ContractorID == userID
}

// ApplyTotals overwrites the aggregates.
func (c *Connection) ApplyTotals(t Totals, now time.Time) {
	c.VerifiedWorkCount = t.VerifiedWorkCount
	c.TotalSpentCents = t.TotalSpentCents
	if t.LastWorkDate != nil {
		d := *t.LastWorkDate
		c.LastWorkDate = &d
	} else {
		c.LastWorkDate = nil
	}
	c.UpdatedAt = now
}

// ApplyReactivation forces the edge back to ACTIVE.
func (c *Connection) ApplyReactivation(now time.Time) {
	if c.Status == StatusActive {
		return
	}
	c.Status = StatusActive
	c.EndedBy = nil
	c.EndedAt = nil
	c.UpdatedAt = now
}

// CanEnd checks whether actor may end the connection.
func (c *Connection) CanEnd(actor id.UserID) error {
	if !c.HasParty(actor) {
		return dErrors.New(dErrors.CodeForbidden, "only a party to the connection can end it")
	}
	if c.Status == StatusEnded {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "connection has already ended")
	}
	return nil
}

func (c *Connection) ApplyEnd(actor id.UserID, now time.Time) {
	a, at := actor, now
	c.Status = StatusEnded
	c.EndedBy = &a
	c.EndedAt = &at
	c.UpdatedAt = now
}
