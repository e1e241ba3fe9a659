package models

import (
	"fmt"

	dErrors "homeledger/pkg/domain-errors"
)

// Status is the closed set of work record states.
type Status string

const (
	// StatusDocumentedUnverified is pending work on a home that had no owner.
	StatusDocumentedUnverified Status = "DOCUMENTED_UNVERIFIED"
	// StatusDocumented is pending work awaiting the owner's review.
	StatusDocumented           Status = "DOCUMENTED"
	StatusDisputed             Status = "DISPUTED"
	StatusRejected             Status = "REJECTED"
	StatusApproved             Status = "APPROVED"
)

// Transition names an edge of the state machine.
type Transition string

const (
	TransitionVerify   Transition = "verify"
	TransitionDispute  Transition = "dispute"
	TransitionReject   Transition = "reject"
	TransitionResubmit Transition = "resubmit"
	TransitionPromote  Transition = "promote"
)

// transitions[from][t] = to. Anything absent is refused.
var transitions = map[Status]map[Transition]Status{
	StatusDocumentedUnverified: {
		TransitionVerify:  StatusApproved,
		TransitionDispute: StatusDisputed,
		TransitionReject:  StatusRejected,
		TransitionPromote: StatusDocumented,
	},
	StatusDocumented: {
		TransitionVerify:  StatusApproved,
		TransitionDispute: StatusDisputed,
		TransitionReject:  StatusRejected,
	},
	StatusDisputed: {
		TransitionVerify:   StatusApproved,
		TransitionReject:   StatusRejected,
		TransitionResubmit: StatusDocumented,
	},
	StatusRejected: {},
	StatusApproved: {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown work record status %q", s))
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsPending covers both initial states.
func (s Status) IsPending() bool {
	return s == StatusDocumentedUnverified || s == StatusDocumented
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// IsVerifiedTerminal is the set whose members carry a permanent Record.
func (s Status) IsVerifiedTerminal() bool {
	return s == StatusApproved
}

// Next returns the state reached by t, or an invalid_state_transition error.
func (s Status) Next(t Transition) (Status, error) {
	to, ok := transitions[s][t]
	if !ok {
		return s, dErrors.New(dErrors.CodeInvalidStateTransition,
			fmt.Sprintf("cannot %s a work record in status %s", t, s))
	}
	return to, nil
}

func (s Status) String() string { return string(s) }

// InitialStatus picks the creation state from whether the home has an owner.
func InitialStatus(homeHasOwner bool) Status {
	if homeHasOwner {
		return StatusDocumented
	}
	return StatusDocumentedUnverified
}
