package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	connectionmodels "homeledger/internal/connection/models"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/platform/tx"
)

const workColumns = `id, home_id, contractor_id, contractor_name, work_type, work_date, description,
	cost_cents, status, is_verified, home_had_owner_at_creation, claimed_by, claimed_at,
	verified_by, verified_at, approved_by, approved_at, review_reason, invitation_id,
	final_record_id, archived_at, created_at, updated_at`

type WorkRecordStore struct {
	db *sql.DB
}

func scanWorkRecord(row scanner) (*workmodels.WorkRecord, error) {
	var (
		w                                 workmodels.WorkRecord
		workID, homeID, contractorID      uuid.UUID
		cost                              sql.NullInt64
		status                            string
		claimedBy, verifiedBy, approvedBy uuid.NullUUID
		claimedAt, verifiedAt, approvedAt sql.NullTime
		invitationID, finalRecordID       uuid.NullUUID
		archivedAt                        sql.NullTime
	)
	err := row.Scan(&workID, &homeID, &contractorID, &w.ContractorName, &w.WorkType, &w.WorkDate,
		&w.Description, &cost, &status, &w.IsVerified, &w.HomeHadOwnerAtCreation,
		&claimedBy, &claimedAt, &verifiedBy, &verifiedAt, &approvedBy, &approvedAt,
		&w.ReviewReason, &invitationID, &finalRecordID, &archivedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	w.ID = id.WorkRecordID(workID)
	w.HomeID = id.HomeID(homeID)
	w.ContractorID = id.UserID(contractorID)
	w.WorkDate = w.WorkDate.UTC()
	w.CostCents = intPtr(cost)
	w.Status = workmodels.Status(status)
	w.ClaimedBy, w.ClaimedAt = idPtr[id.UserID](claimedBy), timePtr(claimedAt)
	w.VerifiedBy, w.VerifiedAt = idPtr[id.UserID](verifiedBy), timePtr(verifiedAt)
	w.ApprovedBy, w.ApprovedAt = idPtr[id.UserID](approvedBy), timePtr(approvedAt)
	w.InvitationID = idPtr[id.InvitationID](invitationID)
	w.FinalRecordID = idPtr[id.RecordID](finalRecordID)
	w.ArchivedAt = timePtr(archivedAt)
	return &w, nil
}

func (s *WorkRecordStore) Get(ctx context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+workColumns+` FROM work_records WHERE id = $1`, uuid.UUID(workID))
	return scanWorkRecord(row)
}

func (s *WorkRecordStore) GetForUpdate(ctx context.Context, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+workColumns+` FROM work_records WHERE id = $1 FOR UPDATE`, uuid.UUID(workID))
	return scanWorkRecord(row)
}

func (s *WorkRecordStore) Create(ctx context.Context, w *workmodels.WorkRecord) error {
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO work_records (`+workColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		uuid.UUID(w.ID), uuid.UUID(w.HomeID), uuid.UUID(w.ContractorID), w.ContractorName, w.WorkType,
		w.WorkDate, w.Description, nullableInt(w.CostCents), string(w.Status), w.IsVerified,
		w.HomeHadOwnerAtCreation, nullableID(w.ClaimedBy), nullableTime(w.ClaimedAt),
		nullableID(w.VerifiedBy), nullableTime(w.VerifiedAt), nullableID(w.ApprovedBy),
		nullableTime(w.ApprovedAt), w.ReviewReason, nullableID(w.InvitationID),
		nullableID(w.FinalRecordID), nullableTime(w.ArchivedAt), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert work record: %w", mapError(err))
	}
	return nil
}

// Update is a compare-and-set on status. Zero rows means either the record is
// gone or another writer moved it first; the second read tells them apart.
func (s *WorkRecordStore) Update(ctx context.Context, w *workmodels.WorkRecord, expected workmodels.Status) error {
	exec := tx.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE work_records
		SET work_type = $3, work_date = $4, description = $5, cost_cents = $6, status = $7,
		    is_verified = $8, claimed_by = $9, claimed_at = $10, verified_by = $11, verified_at = $12,
		    approved_by = $13, approved_at = $14, review_reason = $15, final_record_id = $16,
		    archived_at = $17, updated_at = $18
		WHERE id = $1 AND status = $2`,
		uuid.UUID(w.ID), string(expected), w.WorkType, w.WorkDate, w.Description,
		nullableInt(w.CostCents), string(w.Status), w.IsVerified,
		nullableID(w.ClaimedBy), nullableTime(w.ClaimedAt), nullableID(w.VerifiedBy),
		nullableTime(w.VerifiedAt), nullableID(w.ApprovedBy), nullableTime(w.ApprovedAt),
		w.ReviewReason, nullableID(w.FinalRecordID), nullableTime(w.ArchivedAt), w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update work record: %w", mapError(err))
	}
	if err := affectedOne(res, sentinel.ErrInvalidState); err != nil {
		var exists bool
		if qerr := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM work_records WHERE id = $1)`,
			uuid.UUID(w.ID)).Scan(&exists); qerr == nil && !exists {
			return sentinel.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *WorkRecordStore) ListByHome(ctx context.Context, homeID id.HomeID) ([]*workmodels.WorkRecord, error) {
	return s.list(ctx, `SELECT `+workColumns+` FROM work_records WHERE home_id = $1
		ORDER BY work_date DESC, created_at DESC`, uuid.UUID(homeID))
}

func (s *WorkRecordStore) ListByHomeAndStatus(ctx context.Context, homeID id.HomeID, status workmodels.Status) ([]*workmodels.WorkRecord, error) {
	return s.list(ctx, `SELECT `+workColumns+` FROM work_records WHERE home_id = $1 AND status = $2
		ORDER BY work_date DESC, created_at DESC`, uuid.UUID(homeID), string(status))
}

func (s *WorkRecordStore) list(ctx context.Context, query string, args ...any) ([]*workmodels.WorkRecord, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work records: %w", mapError(err))
	}
	defer rows.Close()

	out := make([]*workmodels.WorkRecord, 0)
	for rows.Next() {
		w, err := scanWorkRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ApprovedTotals runs as its own statement, so under READ COMMITTED it sees
// every verification committed before it started plus the caller's own writes.
func (s *WorkRecordStore) ApprovedTotals(ctx context.Context, homeID id.HomeID, contractorID id.UserID) (connectionmodels.Totals, error) {
	var (
		totals connectionmodels.Totals
		last   sql.NullTime
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(cost_cents), 0), MAX(work_date)
		FROM work_records
		WHERE home_id = $1 AND contractor_id = $2 AND status = 'APPROVED' AND is_verified`,
		uuid.UUID(homeID), uuid.UUID(contractorID)).Scan(&totals.VerifiedWorkCount, &totals.TotalSpentCents, &last)
	if err != nil {
		return connectionmodels.Totals{}, fmt.Errorf("aggregate approved work: %w", mapError(err))
	}
	totals.LastWorkDate = timePtr(last)
	return totals, nil
}
