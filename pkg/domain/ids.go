// Package domain holds the primitive value types shared by every bounded
// context: typed identifiers and actor roles.
//
// Typed IDs wrap uuid.UUID so a HomeID can never be passed where a UserID is
// expected. Construct them with the Parse* functions at trust boundaries
// (handlers, adapters); stores may cast directly from database rows.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "homeledger/pkg/domain-errors"
)

// maxIDLength bounds raw input before it reaches uuid.Parse.
const maxIDLength = 64

type (
	UserID       uuid.UUID
	HomeID       uuid.UUID
	WorkRecordID uuid.UUID
	ConnectionID uuid.UUID
	RecordID     uuid.UUID
	InvitationID uuid.UUID
)

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// ParseUserID parses a user identifier from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseHomeID parses a home identifier from external input.
func ParseHomeID(s string) (HomeID, error) {
	u, err := parseUUID(s, "home ID")
	return HomeID(u), err
}

// ParseWorkRecordID parses a work record identifier from external input.
func ParseWorkRecordID(s string) (WorkRecordID, error) {
	u, err := parseUUID(s, "work record ID")
	return WorkRecordID(u), err
}

// ParseConnectionID parses a connection identifier from external input.
func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := parseUUID(s, "connection ID")
	return ConnectionID(u), err
}

// ParseRecordID parses a history record identifier from external input.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record ID")
	return RecordID(u), err
}

// ParseInvitationID parses an invitation identifier from external input.
func ParseInvitationID(s string) (InvitationID, error) {
	u, err := parseUUID(s, "invitation ID")
	return InvitationID(u), err
}

func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id HomeID) String() string       { return uuid.UUID(id).String() }
func (id WorkRecordID) String() string { return uuid.UUID(id).String() }
func (id ConnectionID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string     { return uuid.UUID(id).String() }
func (id InvitationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id HomeID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id WorkRecordID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id InvitationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewUserID and friends mint fresh random identifiers.
func NewUserID() UserID             { return UserID(uuid.New()) }
func NewHomeID() HomeID             { return HomeID(uuid.New()) }
func NewWorkRecordID() WorkRecordID { return WorkRecordID(uuid.New()) }
func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }
func NewRecordID() RecordID         { return RecordID(uuid.New()) }
func NewInvitationID() InvitationID { return InvitationID(uuid.New()) }
