package models

import (
	"strings"
	"time"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

// AddressParts is the free-form address as supplied by a user.
type AddressParts struct {
	Street     string `json:"street"`
	Unit       string `json:"unit,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no address field was supplied.
func (a AddressParts) IsZero() bool {
	return strings.TrimSpace(a.Street+a.Unit+a.City+a.Region+a.PostalCode+a.Country) == ""
}

func (a AddressParts) Validate() error {
	if strings.TrimSpace(a.Street) == "" {
		return dErrors.New(dErrors.CodeValidation, "address street is required")
	}
	if strings.TrimSpace(a.City) == "" && strings.TrimSpace(a.PostalCode) == "" {
		return dErrors.New(dErrors.CodeValidation, "address requires a city or postal code")
	}
	return nil
}

// Home is a physical property.
//
// Invariants:
//   - NormalizedAddress is unique across homes
//   - OwnerID is set at most once and never cleared
type Home struct {
	ID                id.HomeID    `json:"id"`
	NormalizedAddress string       `json:"normalized_address"`
	Address           AddressParts `json:"address"`
	OwnerID           *id.UserID   `json:"owner_id,omitempty"`
	ClaimedAt         *time.Time   `json:"claimed_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func NewHome(homeID id.HomeID, normalized string, address AddressParts, now time.Time) (*Home, error) {
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "home requires a normalized address")
	}
	return &Home{
		ID:                homeID,
		NormalizedAddress: normalized,
		Address:           address,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (h *Home) HasOwner() bool {
	return h.OwnerID != nil
}

func (h *Home) IsOwnedBy(userID id.UserID) bool {
	return h.OwnerID != nil && *h.OwnerID == userID
}

// CanClaim reports whether userID may take ownership. A claim by the current
// owner is allowed and is a no-op.
func (h *Home) CanClaim(userID id.UserID) error {
	if h.OwnerID != nil && *h.OwnerID != userID {
		return dErrors.New(dErrors.CodeHomeAlreadyClaimed, "home is already claimed by another owner")
	}
	return nil
}

// ApplyClaim sets the owner. Returns false when userID already owned the home.
// Call CanClaim first.
func (h *Home) ApplyClaim(userID id.UserID, now time.Time) bool {
	if h.IsOwnedBy(userID) {
		return false
	}
	owner := userID
	claimedAt := now
	h.OwnerID = &owner
	h.ClaimedAt = &claimedAt
	h.UpdatedAt = now
	return true
}
