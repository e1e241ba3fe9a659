package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	historymodels "homeledger/internal/history/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/platform/tx"
)

const recordColumns = `id, home_id, title, note, date, kind, vendor, cost_cents, created_by,
	verified_by, verified_at, source_work_record_id, created_at`

type RecordStore struct {
	db *sql.DB
}

func scanRecord(row scanner) (*historymodels.Record, error) {
	var (
		r                                           historymodels.Record
		recordID, homeID, creator, verifier, source uuid.UUID
		kind                                        string
		cost                                        sql.NullInt64
	)
	err := row.Scan(&recordID, &homeID, &r.Title, &r.Note, &r.Date, &kind, &r.Vendor, &cost,
		&creator, &verifier, &r.VerifiedAt, &source, &r.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	r.ID = id.RecordID(recordID)
	r.HomeID = id.HomeID(homeID)
	r.Kind = historymodels.Kind(kind)
	r.CostCents = intPtr(cost)
	r.CreatedBy = id.UserID(creator)
	r.VerifiedBy = id.UserID(verifier)
	r.SourceWorkRecordID = id.WorkRecordID(source)
	r.Date = r.Date.UTC()
	return &r, nil
}

func (s *RecordStore) Get(ctx context.Context, recordID id.RecordID) (*historymodels.Record, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`, uuid.UUID(recordID))
	return scanRecord(row)
}

// Create relies on the unique source_work_record_id to refuse a second record.
func (s *RecordStore) Create(ctx context.Context, r *historymodels.Record) error {
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(r.ID), uuid.UUID(r.HomeID), r.Title, r.Note, r.Date, string(r.Kind), r.Vendor,
		nullableInt(r.CostCents), uuid.UUID(r.CreatedBy), uuid.UUID(r.VerifiedBy), r.VerifiedAt,
		uuid.UUID(r.SourceWorkRecordID), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	return nil
}

func (s *RecordStore) ListByHome(ctx context.Context, homeID id.HomeID) ([]*historymodels.Record, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE home_id = $1 ORDER BY date DESC, id`, uuid.UUID(homeID))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", mapError(err))
	}
	defer rows.Close()

	out := make([]*historymodels.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
