package handler

import (
	"strings"
	"time"

	invitationmodels "homeledger/internal/invitation/models"
	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

const maxMessageLength = 1000

// CreateInvitationRequest is the body of POST /invitations.
type CreateInvitationRequest struct {
	Email   string                       `json:"email"`
	HomeID  string                       `json:"home_id,omitempty"`
	Address *propertymodels.AddressParts `json:"address,omitempty"`
	Message string                       `json:"message,omitempty"`

	homeID *id.HomeID
}

func (r *CreateInvitationRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if raw := strings.TrimSpace(r.HomeID); raw != "" {
		homeID, err := id.ParseHomeID(raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "home_id must be a valid id")
		}
		r.homeID = &homeID
	}
	r.Message = strings.TrimSpace(r.Message)
	if len(r.Message) > maxMessageLength {
		return dErrors.New(dErrors.CodeValidation, "message is too long")
	}
	return nil
}

// AcceptInvitationRequest is the body of POST /invitations/{id}/accept.
type AcceptInvitationRequest struct {
	Address *propertymodels.AddressParts `json:"address,omitempty"`
}

func (r *AcceptInvitationRequest) Validate() error {
	if r.Address != nil && !r.Address.IsZero() {
		return r.Address.Validate()
	}
	return nil
}

// InvitationResponse is the public view of an invitation. Status reflects
// expiry at the time of the request.
type InvitationResponse struct {
	ID           string                       `json:"id"`
	InvitedEmail string                       `json:"invited_email"`
	InvitedBy    string                       `json:"invited_by"`
	InvitedRole  string                       `json:"invited_role"`
	HomeID       *string                      `json:"home_id,omitempty"`
	Address      *propertymodels.AddressParts `json:"address,omitempty"`
	Message      string                       `json:"message,omitempty"`
	Status       string                       `json:"status"`
	ExpiresAt    time.Time                    `json:"expires_at"`
	AcceptedAt   *time.Time                   `json:"accepted_at,omitempty"`
	CancelledAt  *time.Time                   `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
}

func toInvitationResponse(inv *invitationmodels.Invitation, now time.Time) InvitationResponse {
	resp := InvitationResponse{
		ID:           inv.ID.String(),
		InvitedEmail: inv.InvitedEmail,
		InvitedBy:    inv.InvitedBy.String(),
		InvitedRole:  string(inv.InvitedRole),
		Address:      inv.Address,
		Message:      inv.Message,
		Status:       string(inv.EffectiveStatus(now)),
		ExpiresAt:    inv.ExpiresAt,
		AcceptedAt:   inv.AcceptedAt,
		CancelledAt:  inv.CancelledAt,
		CreatedAt:    inv.CreatedAt,
	}
	if inv.HomeID != nil {
		homeID := inv.HomeID.String()
		resp.HomeID = &homeID
	}
	return resp
}
