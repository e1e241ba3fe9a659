package models

import (
	"strings"
	"time"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

// AdjustmentNotePrefix introduces owner adjustment text appended on verify.
const AdjustmentNotePrefix = "Homeowner note: "

// WorkRecord is a contractor's claim of work performed at a home.
//
// Invariants:
//   - IsVerified == Status.IsVerifiedTerminal()
//   - FinalRecordID is set iff the status is verified-terminal, and only once
//   - HomeID and ContractorID never change
//   - an archived record accepts no transition
type WorkRecord struct {
	ID                     id.WorkRecordID  `json:"id"`
	HomeID                 id.HomeID        `json:"home_id"`
	ContractorID           id.UserID        `json:"contractor_id"`
	ContractorName         string           `json:"contractor_name"`
	WorkType               string           `json:"work_type"`
	WorkDate               time.Time        `json:"work_date"`
	Description            string           `json:"description"`
	CostCents              *int64           `json:"cost_cents,omitempty"`
	Status                 Status           `json:"status"`
	IsVerified             bool             `json:"is_verified"`
	HomeHadOwnerAtCreation bool             `json:"home_had_owner_at_creation"`
	ClaimedBy              *id.UserID       `json:"claimed_by,omitempty"`
	ClaimedAt              *time.Time       `json:"claimed_at,omitempty"`
	VerifiedBy             *id.UserID       `json:"verified_by,omitempty"`
	VerifiedAt             *time.Time       `json:"verified_at,omitempty"`
	ApprovedBy             *id.UserID       `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time       `json:"approved_at,omitempty"`
	ReviewReason           string           `json:"review_reason,omitempty"`
	InvitationID           *id.InvitationID `json:"invitation_id,omitempty"`
	FinalRecordID          *id.RecordID     `json:"final_record_id,omitempty"`
	ArchivedAt             *time.Time       `json:"archived_at,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// Details are the contractor-owned evidence fields.
type Details struct {
	WorkType    string
	WorkDate    time.Time
	Description string
	CostCents   *int64
}

func (d Details) validate() error {
	if strings.TrimSpace(d.WorkType) == "" {
		return dErrors.New(dErrors.CodeValidation, "work type is required")
	}
	if d.WorkDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "work date is required")
	}
	if d.CostCents != nil && *d.CostCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "cost must be positive when present")
	}
	return nil
}

// Adjustment is the optional owner correction applied on verify.
type Adjustment struct {
	CostCents *int64
	Note      string
}

func New(workID id.WorkRecordID, homeID id.HomeID, contractorID id.UserID, contractorName string, d Details, homeHasOwner bool, now time.Time) (*WorkRecord, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &WorkRecord{
		ID:                     workID,
		HomeID:                 homeID,
		ContractorID:           contractorID,
		ContractorName:         contractorName,
		WorkType:               strings.TrimSpace(d.WorkType),
		WorkDate:               d.WorkDate,
		Description:            strings.TrimSpace(d.Description),
		CostCents:              d.CostCents,
		Status:                 InitialStatus(homeHasOwner),
		HomeHadOwnerAtCreation: homeHasOwner,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func (w *WorkRecord) IsArchived() bool { return w.ArchivedAt != nil }

// CanTransition reports whether t is currently allowed.
func (w *WorkRecord) CanTransition(t Transition) error {
	if w.IsArchived() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "work record is archived")
	}
	_, err := w.Status.Next(t)
	return err
}

func (w *WorkRecord) apply(t Transition, now time.Time) error {
	if err := w.CanTransition(t); err != nil {
		return err
	}
	next, _ := w.Status.Next(t)
	w.Status = next
	w.IsVerified = next.IsVerifiedTerminal()
	w.UpdatedAt = now
	return nil
}

func (w *WorkRecord) stampClaim(actor id.UserID, now time.Time) {
	if w.ClaimedBy != nil {
		return
	}
	a, at := actor, now
	w.ClaimedBy = &a
	w.ClaimedAt = &at
}

// ApplyVerify approves the record. Adjustment text is appended to the
// description, never replacing it. The state check runs before input
// validation so terminal work always reports invalid_state_transition.
func (w *WorkRecord) ApplyVerify(actor id.UserID, adj Adjustment, now time.Time) error {
	if err := w.CanTransition(TransitionVerify); err != nil {
		return err
	}
	if adj.CostCents != nil && *adj.CostCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "adjusted cost must be positive")
	}
	if err := w.apply(TransitionVerify, now); err != nil {
		return err
	}
	w.stampClaim(actor, now)
	a, at := actor, now
	w.VerifiedBy, w.VerifiedAt = &a, &at
	w.ApprovedBy, w.ApprovedAt = &a, &at
	if adj.CostCents != nil {
		cost := *adj.CostCents
		w.CostCents = &cost
	}
	if note := strings.TrimSpace(adj.Note); note != "" {
		if w.Description == "" {
			w.Description = AdjustmentNotePrefix + note
		} else {
			w.Description = w.Description + "\n\n" + AdjustmentNotePrefix + note
		}
	}
	return nil
}

// ApplyDispute sends the record back to the contractor with feedback.
func (w *WorkRecord) ApplyDispute(actor id.UserID, reason string, now time.Time) error {
	if err := w.CanTransition(TransitionDispute); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "a dispute reason is required")
	}
	if err := w.apply(TransitionDispute, now); err != nil {
		return err
	}
	w.stampClaim(actor, now)
	w.ReviewReason = reason
	return nil
}

func (w *WorkRecord) ApplyReject(actor id.UserID, reason string, now time.Time) error {
	if err := w.apply(TransitionReject, now); err != nil {
		return err
	}
	w.stampClaim(actor, now)
	w.ReviewReason = strings.TrimSpace(reason)
	return nil
}

// ApplyPromote moves unverified pending work to DOCUMENTED once the home has an owner.
func (w *WorkRecord) ApplyPromote(now time.Time) error {
	return w.apply(TransitionPromote, now)
}

// ApplyEdit replaces the evidence fields. Editing disputed work resubmits it;
// the returned flag reports that.
func (w *WorkRecord) ApplyEdit(d Details, now time.Time) (bool, error) {
	if w.IsArchived() {
		return false, dErrors.New(dErrors.CodeInvalidStateTransition, "work record is archived")
	}
	if !w.Status.IsPending() && w.Status != StatusDisputed {
		return false, dErrors.New(dErrors.CodeInvalidStateTransition, "only pending or disputed work can be edited")
	}
	if err := d.validate(); err != nil {
		return false, err
	}
	resubmitted := false
	if w.Status == StatusDisputed {
		if err := w.apply(TransitionResubmit, now); err != nil {
			return false, err
		}
		w.ReviewReason = ""
		resubmitted = true
	}
	w.WorkType = strings.TrimSpace(d.WorkType)
	w.WorkDate = d.WorkDate
	w.Description = strings.TrimSpace(d.Description)
	w.CostCents = d.CostCents
	w.UpdatedAt = now
	return resubmitted, nil
}

// ApplyArchive hides the record. Approved work is permanent history and
// cannot be archived.
func (w *WorkRecord) ApplyArchive(now time.Time) error {
	if w.IsArchived() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "work record is already archived")
	}
	if w.Status.IsVerifiedTerminal() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "approved work cannot be archived")
	}
	at := now
	w.ArchivedAt = &at
	w.UpdatedAt = now
	return nil
}

// AttachRecord links the materialized history entry. Set once, only when approved.
func (w *WorkRecord) AttachRecord(recordID id.RecordID) error {
	if !w.Status.IsVerifiedTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "only approved work can carry a final record")
	}
	if w.FinalRecordID != nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "work record already has a final record")
	}
	rid := recordID
	w.FinalRecordID = &rid
	return nil
}

// CheckInvariants is run by services before persisting.
func (w *WorkRecord) CheckInvariants() error {
	if w.IsVerified != w.Status.IsVerifiedTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "is_verified does not match status")
	}
	if (w.FinalRecordID != nil) != w.Status.IsVerifiedTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "final record must be set exactly when approved")
	}
	return nil
}

// Cost returns the cost in cents, zero when absent.
func (w *WorkRecord) Cost() int64 {
	if w.CostCents == nil {
		return 0
	}
	return *w.CostCents
}
