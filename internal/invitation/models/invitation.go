package models

import (
	"fmt"
	"time"

	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/email"
)

// Status is the persisted invitation state. EXPIRED is derived from the
// clock at use time and is never stored.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// InvitedRole is the side of the connection the invitee will take.
type InvitedRole string

const (
	InvitedHomeowner InvitedRole = "HOMEOWNER"
	InvitedPro       InvitedRole = "PRO"
)

// InvitedRoleFor inverts the inviter's role: homeowners invite pros and pros
// invite homeowners.
func InvitedRoleFor(inviter id.Role) (InvitedRole, error) {
	switch {
	case inviter.IsHomeowner():
		return InvitedPro, nil
	case inviter.IsPro():
		return InvitedHomeowner, nil
	}
	return "", dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("role %s cannot send invitations", inviter))
}

// Admits reports whether an actor with role r may accept into this side.
func (r InvitedRole) Admits(role id.Role) bool {
	switch r {
	case InvitedHomeowner:
		return role.IsHomeowner()
	case InvitedPro:
		return role.IsPro()
	}
	return false
}

// Invitation is a time-boxed offer to form a home and connection.
//
// Invariants:
//   - InvitedEmail is stored normalized
//   - PENDING -> ACCEPTED | CANCELLED only; both are terminal
//   - a PENDING invitation past ExpiresAt behaves as EXPIRED
type Invitation struct {
	ID           id.InvitationID              `json:"id"`
	InvitedEmail string                       `json:"invited_email"`
	InvitedBy    id.UserID                    `json:"invited_by"`
	InviterRole  id.Role                      `json:"inviter_role"`
	InvitedRole  InvitedRole                  `json:"invited_role"`
	HomeID       *id.HomeID                   `json:"home_id,omitempty"`
	Address      *propertymodels.AddressParts `json:"address,omitempty"`
	Message      string                       `json:"message,omitempty"`
	Status       Status                       `json:"status"`
	ExpiresAt    time.Time                    `json:"expires_at"`
	AcceptedBy   *id.UserID                   `json:"accepted_by,omitempty"`
	AcceptedAt   *time.Time                   `json:"accepted_at,omitempty"`
	CancelledBy  *id.UserID                   `json:"cancelled_by,omitempty"`
	CancelledAt  *time.Time                   `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

func New(invID id.InvitationID, invitedEmail string, inviter id.UserID, inviterRole id.Role, ttl time.Duration, now time.Time) (*Invitation, error) {
	normalized, err := email.Validate(invitedEmail)
	if err != nil {
		return nil, err
	}
	invited, err := InvitedRoleFor(inviterRole)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invitation ttl must be positive")
	}
	return &Invitation{
		ID:           invID,
		InvitedEmail: normalized,
		InvitedBy:    inviter,
		InviterRole:  inviterRole,
		InvitedRole:  invited,
		Status:       StatusPending,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EffectiveStatus folds the clock into the persisted status.
func (i *Invitation) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && now.After(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}

// IsOpen reports a PENDING, unexpired invitation.
func (i *Invitation) IsOpen(now time.Time) bool {
	return i.EffectiveStatus(now) == StatusPending
}

func (i *Invitation) IsAddressedTo(address string) bool {
	return email.Equal(i.InvitedEmail, address)
}

// NeedsAddressConfirmation reports whether the invitee confirms or supplies
// the property address on accept. Only an invited homeowner does; a
// professional always lands on the home the inviting owner named.
func (i *Invitation) NeedsAddressConfirmation() bool {
	return i.InvitedRole == InvitedHomeowner
}

// CheckTarget requires a home on invitations sent by a homeowner.
func (i *Invitation) CheckTarget() error {
	if i.InvitedRole == InvitedPro && i.HomeID == nil {
		return dErrors.New(dErrors.CodeValidation, "home_id or address is required when inviting a professional")
	}
	return nil
}

// CanAccept checks email, role and state for an accept by actor.
func (i *Invitation) CanAccept(actorEmail string, actorRole id.Role, now time.Time) error {
	if !i.IsAddressedTo(actorEmail) {
		return dErrors.New(dErrors.CodeEmailMismatch, "invitation was sent to a different email address")
	}
	if !i.InvitedRole.Admits(actorRole) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("invitation requires the %s role", i.InvitedRole))
	}
	switch i.EffectiveStatus(now) {
	case StatusPending:
		return nil
	case StatusExpired:
		return dErrors.New(dErrors.CodeExpired, "invitation has expired")
	default:
		return dErrors.New(dErrors.CodeInvalidStateTransition, fmt.Sprintf("invitation is %s", i.Status))
	}
}

func (i *Invitation) ApplyAccept(actor id.UserID, homeID id.HomeID, now time.Time) {
	a, at, h := actor, now, homeID
	i.Status = StatusAccepted
	i.AcceptedBy = &a
	i.AcceptedAt = &at
	i.HomeID = &h
	i.UpdatedAt = now
}

// CanDecline requires the invitee's email and an open invitation.
func (i *Invitation) CanDecline(actorEmail string, now time.Time) error {
	if !i.IsAddressedTo(actorEmail) {
		return dErrors.New(dErrors.CodeForbidden, "only the invitee can decline an invitation")
	}
	return i.requireOpen(now)
}

// CanCancel requires the inviter and an open invitation.
func (i *Invitation) CanCancel(actor id.UserID, now time.Time) error {
	if i.InvitedBy != actor {
		return dErrors.New(dErrors.CodeForbidden, "only the inviter can cancel an invitation")
	}
	return i.requireOpen(now)
}

func (i *Invitation) requireOpen(now time.Time) error {
	if st := i.EffectiveStatus(now); st != StatusPending {
		return dErrors.New(dErrors.CodeInvalidStateTransition, fmt.Sprintf("invitation is %s", st))
	}
	return nil
}

// ApplyCancel closes the invitation. Decline and cancel share the CANCELLED state.
func (i *Invitation) ApplyCancel(actor id.UserID, now time.Time) {
	a, at := actor, now
	i.Status = StatusCancelled
	i.CancelledBy = &a
	i.CancelledAt = &at
	i.UpdatedAt = now
}

// Parties returns (homeowner, contractor) once the accepting actor is known.
func (i *Invitation) Parties(acceptor id.UserID) (homeowner, contractor id.UserID) {
	if i.InvitedRole == InvitedHomeowner {
		return acceptor, i.InvitedBy
	}
	return i.InvitedBy, acceptor
}
