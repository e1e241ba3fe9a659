package models

import (
	"time"

	"github.com/google/uuid"

	id "homeledger/pkg/domain"
)

// Kind names a user-facing notification the emitter knows how to render.
type Kind string

const (
	KindWorkSubmitted         Kind = "work_submitted"
	KindWorkResubmitted       Kind = "work_resubmitted"
	KindWorkVerified          Kind = "work_verified"
	KindWorkDisputed          Kind = "work_disputed"
	KindWorkRejected          Kind = "work_rejected"
	KindInvitationCreated     Kind = "invitation_created"
	KindInvitationAccepted    Kind = "invitation_accepted"
	KindInvitationDeclined    Kind = "invitation_declined"
	KindInvitationCancelled   Kind = "invitation_cancelled"
	KindConnectionEstablished Kind = "connection_established"
	KindHomeClaimed           Kind = "home_claimed"
)

// Event is the structured payload handed to the notification emitter. It
// carries ids only; rendering is the consumer's job. Consumers dedupe by ID.
type Event struct {
	ID             uuid.UUID        `json:"id"`
	Kind           Kind             `json:"kind"`
	RecipientID    *id.UserID       `json:"recipient_id,omitempty"`
	RecipientEmail string           `json:"recipient_email,omitempty"`
	ActorID        id.UserID        `json:"actor_id"`
	HomeID         *id.HomeID       `json:"home_id,omitempty"`
	WorkRecordID   *id.WorkRecordID `json:"work_record_id,omitempty"`
	ConnectionID   *id.ConnectionID `json:"connection_id,omitempty"`
	RecordID       *id.RecordID     `json:"record_id,omitempty"`
	InvitationID   *id.InvitationID `json:"invitation_id,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// New stamps a fresh event id. Callers fill the optional references with the
// With* helpers.
func New(kind Kind, actor id.UserID, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		ActorID:    actor,
		OccurredAt: now,
	}
}

func (e Event) To(recipient id.UserID) Event {
	e.RecipientID = &recipient
	return e
}

func (e Event) ToEmail(address string) Event {
	e.RecipientEmail = address
	return e
}

func (e Event) WithHome(homeID id.HomeID) Event {
	e.HomeID = &homeID
	return e
}

func (e Event) WithWorkRecord(workID id.WorkRecordID) Event {
	e.WorkRecordID = &workID
	return e
}

func (e Event) WithConnection(connID id.ConnectionID) Event {
	e.ConnectionID = &connID
	return e
}

func (e Event) WithRecord(recordID id.RecordID) Event {
	e.RecordID = &recordID
	return e
}

func (e Event) WithInvitation(invID id.InvitationID) Event {
	e.InvitationID = &invID
	return e
}

// Kinds returns the kinds of events in order. Handy in tests and logs.
func Kinds(events []Event) []Kind {
	out := make([]Kind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}
