package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	connectionmodels "homeledger/internal/connection/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/platform/tx"
)

const connectionColumns = `id, home_id, homeowner_id, contractor_id, status, established_via,
	verified_work_count, total_spent_cents, last_work_date, invited_by, source_record_id,
	ended_by, ended_at, created_at, updated_at`

type ConnectionStore struct {
	db *sql.DB
}

func scanConnection(row scanner) (*connectionmodels.Connection, error) {
	var (
		c                              connectionmodels.Connection
		connID, homeID, owner, pro     uuid.UUID
		status, via                    string
		lastWork, endedAt              sql.NullTime
		invitedBy, sourceRecord, ender uuid.NullUUID
	)
	err := row.Scan(&connID, &homeID, &owner, &pro, &status, &via, &c.VerifiedWorkCount,
		&c.TotalSpentCents, &lastWork, &invitedBy, &sourceRecord, &ender, &endedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	c.ID = id.ConnectionID(connID)
	c.HomeID = id.HomeID(homeID)
	c.HomeownerID = id.UserID(owner)
	c.ContractorID = id.UserID(pro)
	c.Status = connectionmodels.Status(status)
	c.EstablishedVia = connectionmodels.EstablishedVia(via)
	c.LastWorkDate = timePtr(lastWork)
	c.InvitedBy = idPtr[id.UserID](invitedBy)
	c.SourceRecordID = idPtr[id.RecordID](sourceRecord)
	c.EndedBy = idPtr[id.UserID](ender)
	c.EndedAt = timePtr(endedAt)
	return &c, nil
}

func (s *ConnectionStore) Get(ctx context.Context, connID id.ConnectionID) (*connectionmodels.Connection, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, uuid.UUID(connID))
	return scanConnection(row)
}

func (s *ConnectionStore) GetByKeyForUpdate(ctx context.Context, key connectionmodels.Key) (*connectionmodels.Connection, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE home_id = $1 AND homeowner_id = $2 AND contractor_id = $3
		FOR UPDATE`,
		uuid.UUID(key.HomeID), uuid.UUID(key.HomeownerID), uuid.UUID(key.ContractorID))
	return scanConnection(row)
}

// Create inserts inside a savepoint: a unique violation on the triple rolls
// back only the insert, so the caller can take the update path.
func (s *ConnectionStore) Create(ctx context.Context, c *connectionmodels.Connection) error {
	return withSavepoint(ctx, s.db, "connection_create", func(exec tx.Executor) error {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO connections (`+connectionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			uuid.UUID(c.ID), uuid.UUID(c.HomeID), uuid.UUID(c.HomeownerID), uuid.UUID(c.ContractorID),
			string(c.Status), string(c.EstablishedVia), c.VerifiedWorkCount, c.TotalSpentCents,
			nullableTime(c.LastWorkDate), nullableID(c.InvitedBy), nullableID(c.SourceRecordID),
			nullableID(c.EndedBy), nullableTime(c.EndedAt), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert connection: %w", mapError(err))
		}
		return nil
	})
}

func (s *ConnectionStore) Update(ctx context.Context, c *connectionmodels.Connection) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE connections
		SET status = $2, verified_work_count = $3, total_spent_cents = $4, last_work_date = $5,
		    invited_by = $6, source_record_id = $7, ended_by = $8, ended_at = $9, updated_at = $10
		WHERE id = $1`,
		uuid.UUID(c.ID), string(c.Status), c.VerifiedWorkCount, c.TotalSpentCents,
		nullableTime(c.LastWorkDate), nullableID(c.InvitedBy), nullableID(c.SourceRecordID),
		nullableID(c.EndedBy), nullableTime(c.EndedAt), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update connection: %w", mapError(err))
	}
	return affectedOne(res, sentinel.ErrNotFound)
}

func (s *ConnectionStore) ListByHome(ctx context.Context, homeID id.HomeID) ([]*connectionmodels.Connection, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE home_id = $1 ORDER BY created_at`, uuid.UUID(homeID))
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", mapError(err))
	}
	defer rows.Close()

	out := make([]*connectionmodels.Connection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
