// Package access holds the Identity & Access Gate port and the capability
// policy for work records.
//
// The state machines never look at roles. Services ask the policy which
// capabilities an actor holds on an entity and refuse the operation when the
// required one is missing.
package access

//go:generate mockgen -source=access.go -destination=mocks/mocks.go -package=mocks Gate,OwnerLookup

import (
	"context"

	id "homeledger/pkg/domain"
	"homeledger/pkg/requestcontext"
)

// Gate decides whether a user may act on a home as its owner.
type Gate interface {
	CanActOnHome(ctx context.Context, userID id.UserID, homeID id.HomeID) (bool, error)
}

// OwnerLookup resolves the current owner of a home, nil when unclaimed.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, homeID id.HomeID) (*id.UserID, error)
}

// OwnershipGate grants home-level access to the owner of record.
type OwnershipGate struct {
	owners OwnerLookup
}

func NewOwnershipGate(owners OwnerLookup) *OwnershipGate {
	return &OwnershipGate{owners: owners}
}

func (g *OwnershipGate) CanActOnHome(ctx context.Context, userID id.UserID, homeID id.HomeID) (bool, error) {
	owner, err := g.owners.OwnerOf(ctx, homeID)
	if err != nil {
		return false, err
	}
	return owner != nil && *owner == userID, nil
}

// Capability is a right over a work record.
type Capability uint8

const (
	CapView Capability = 1 << iota
	CapReview
	CapEditEvidence
	CapArchive
)

// Set is a bitset of capabilities.
type Set uint8

func (s Set) Has(c Capability) bool { return s&Set(c) != 0 }

func (c Capability) String() string {
	switch c {
	case CapView:
		return "view"
	case CapReview:
		return "review"
	case CapEditEvidence:
		return "edit_evidence"
	case CapArchive:
		return "archive"
	}
	return "unknown"
}

// ForWork returns what actor may do with a work record authored by
// contractorID. ownsHome comes from the Gate.
//
//   - the home owner may view and review, unless they authored the work
//   - the authoring contractor may view, edit evidence and archive
func ForWork(actor requestcontext.Identity, contractorID id.UserID, ownsHome bool) Set {
	var s Set
	isAuthor := !actor.UserID.IsNil() && actor.UserID == contractorID
	if ownsHome {
		s |= Set(CapView)
		if !isAuthor {
			s |= Set(CapReview)
		}
	}
	if isAuthor && actor.Role.IsPro() {
		s |= Set(CapView) | Set(CapEditEvidence) | Set(CapArchive)
	}
	return s
}
