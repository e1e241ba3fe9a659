package handler

import (
	"strings"

	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

// ClaimHomeRequest names the home to claim by id or by address.
type ClaimHomeRequest struct {
	HomeID  string                       `json:"home_id"`
	Address *propertymodels.AddressParts `json:"address,omitempty"`

	homeID *id.HomeID
}

func (r *ClaimHomeRequest) Validate() error {
	r.HomeID = strings.TrimSpace(r.HomeID)
	if r.HomeID != "" {
		parsed, err := id.ParseHomeID(r.HomeID)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "home_id must be a valid id")
		}
		r.homeID = &parsed
		return nil
	}
	if r.Address == nil || r.Address.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "home_id or address is required")
	}
	return r.Address.Validate()
}

// HomeResponse is the public view of a home.
type HomeResponse struct {
	ID      string                      `json:"id"`
	Address propertymodels.AddressParts `json:"address"`
	OwnerID *string                     `json:"owner_id,omitempty"`
	Claimed bool                        `json:"claimed"`
}

func toHomeResponse(h *propertymodels.Home) HomeResponse {
	resp := HomeResponse{
		ID:      h.ID.String(),
		Address: h.Address,
		Claimed: h.HasOwner(),
	}
	if h.OwnerID != nil {
		owner := h.OwnerID.String()
		resp.OwnerID = &owner
	}
	return resp
}
