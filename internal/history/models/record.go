package models

import (
	"time"

	id "homeledger/pkg/domain"
)

// Kind classifies timeline entries.
type Kind string

const KindVerifiedWork Kind = "VERIFIED_WORK"

// Record is an immutable entry on a home's maintenance timeline. Records are
// written once and never updated.
type Record struct {
	ID                 id.RecordID     `json:"id"`
	HomeID             id.HomeID       `json:"home_id"`
	Title              string          `json:"title"`
	Note               string          `json:"note"`
	Date               time.Time       `json:"date"`
	Kind               Kind            `json:"kind"`
	Vendor             string          `json:"vendor"`
	CostCents          *int64          `json:"cost_cents,omitempty"`
	CreatedBy          id.UserID       `json:"created_by"`
	VerifiedBy         id.UserID       `json:"verified_by"`
	VerifiedAt         time.Time       `json:"verified_at"`
	SourceWorkRecordID id.WorkRecordID `json:"source_work_record_id"`
	CreatedAt          time.Time       `json:"created_at"`
}
