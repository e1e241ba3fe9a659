package handler

import (
	"strings"
	"time"

	propertymodels "homeledger/internal/property/models"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// parseWorkDate accepts a calendar date or an RFC 3339 timestamp.
func parseWorkDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "work_date must be YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

// CreateWorkRecordRequest is the body of POST /work-records.
type CreateWorkRecordRequest struct {
	HomeID       string                       `json:"home_id,omitempty"`
	Address      *propertymodels.AddressParts `json:"address,omitempty"`
	InvitationID string                       `json:"invitation_id,omitempty"`
	WorkType     string                       `json:"work_type"`
	WorkDate     string                       `json:"work_date"`
	Description  string                       `json:"description"`
	CostCents    *int64                       `json:"cost_cents,omitempty"`

	homeID       *id.HomeID
	invitationID *id.InvitationID
	workDate     time.Time
}

func (r *CreateWorkRecordRequest) Validate() error {
	if strings.TrimSpace(r.HomeID) != "" {
		homeID, err := id.ParseHomeID(strings.TrimSpace(r.HomeID))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "home_id must be a valid id")
		}
		r.homeID = &homeID
	} else if r.Address == nil || r.Address.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "home_id or address is required")
	}
	if strings.TrimSpace(r.InvitationID) != "" {
		invID, err := id.ParseInvitationID(strings.TrimSpace(r.InvitationID))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "invitation_id must be a valid id")
		}
		r.invitationID = &invID
	}
	if strings.TrimSpace(r.WorkType) == "" {
		return dErrors.New(dErrors.CodeValidation, "work_type is required")
	}
	date, err := parseWorkDate(r.WorkDate)
	if err != nil {
		return err
	}
	r.workDate = date
	return nil
}

func (r *CreateWorkRecordRequest) details() workmodels.Details {
	return workmodels.Details{
		WorkType:    r.WorkType,
		WorkDate:    r.workDate,
		Description: r.Description,
		CostCents:   r.CostCents,
	}
}

// UpdateWorkRecordRequest is the body of PATCH /work-records/{id}. Absent
// fields keep their current value; clear_cost removes the cost.
type UpdateWorkRecordRequest struct {
	WorkType    *string `json:"work_type,omitempty"`
	WorkDate    *string `json:"work_date,omitempty"`
	Description *string `json:"description,omitempty"`
	CostCents   *int64  `json:"cost_cents,omitempty"`
	ClearCost   bool    `json:"clear_cost,omitempty"`

	workDate *time.Time
}

func (r *UpdateWorkRecordRequest) Validate() error {
	if r.WorkDate != nil {
		date, err := parseWorkDate(*r.WorkDate)
		if err != nil {
			return err
		}
		r.workDate = &date
	}
	if r.ClearCost && r.CostCents != nil {
		return dErrors.New(dErrors.CodeValidation, "cost_cents and clear_cost are exclusive")
	}
	return nil
}

// merge overlays the request on the current evidence.
func (r *UpdateWorkRecordRequest) merge(w *workmodels.WorkRecord) workmodels.Details {
	d := workmodels.Details{
		WorkType:    w.WorkType,
		WorkDate:    w.WorkDate,
		Description: w.Description,
		CostCents:   w.CostCents,
	}
	if r.WorkType != nil {
		d.WorkType = *r.WorkType
	}
	if r.workDate != nil {
		d.WorkDate = *r.workDate
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	switch {
	case r.ClearCost:
		d.CostCents = nil
	case r.CostCents != nil:
		d.CostCents = r.CostCents
	}
	return d
}

// VerifyRequest carries the owner's optional adjustments.
type VerifyRequest struct {
	CostCents *int64 `json:"cost_cents,omitempty"`
	Note      string `json:"note,omitempty"`
}

func (r *VerifyRequest) Validate() error {
	if r.CostCents != nil && *r.CostCents <= 0 {
		return dErrors.New(dErrors.CodeValidation, "cost_cents must be positive")
	}
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

// ReviewRequest is the body of dispute and reject.
type ReviewRequest struct {
	Reason string `json:"reason"`
}

func (r *ReviewRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

// WorkRecordResponse is the public view of a work record.
type WorkRecordResponse struct {
	ID             string     `json:"id"`
	HomeID         string     `json:"home_id"`
	ContractorID   string     `json:"contractor_id"`
	ContractorName string     `json:"contractor_name"`
	WorkType       string     `json:"work_type"`
	WorkDate       string     `json:"work_date"`
	Description    string     `json:"description"`
	CostCents      *int64     `json:"cost_cents,omitempty"`
	Status         string     `json:"status"`
	IsVerified     bool       `json:"is_verified"`
	ReviewReason   string     `json:"review_reason,omitempty"`
	FinalRecordID  *string    `json:"final_record_id,omitempty"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toWorkRecordResponse(w *workmodels.WorkRecord) WorkRecordResponse {
	resp := WorkRecordResponse{
		ID:             w.ID.String(),
		HomeID:         w.HomeID.String(),
		ContractorID:   w.ContractorID.String(),
		ContractorName: w.ContractorName,
		WorkType:       w.WorkType,
		WorkDate:       w.WorkDate.Format(dateLayout),
		Description:    w.Description,
		CostCents:      w.CostCents,
		Status:         string(w.Status),
		IsVerified:     w.IsVerified,
		ReviewReason:   w.ReviewReason,
		VerifiedAt:     w.VerifiedAt,
		ArchivedAt:     w.ArchivedAt,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
	}
	if w.FinalRecordID != nil {
		rid := w.FinalRecordID.String()
		resp.FinalRecordID = &rid
	}
	return resp
}
