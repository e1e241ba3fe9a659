package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	notificationmodels "homeledger/internal/notification/models"
	"homeledger/pkg/platform/tx"
)

// OutboxStore writes events in the caller's transaction. The relay in
// internal/notification/outbox drains the table.
type OutboxStore struct {
	db *sql.DB
}

func (s *OutboxStore) Append(ctx context.Context, events ...notificationmodels.Event) error {
	exec := tx.ExecutorFrom(ctx, s.db)
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode outbox event: %w", err)
		}
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO outbox (id, kind, payload, created_at) VALUES ($1, $2, $3, $4)`,
			e.ID, string(e.Kind), string(payload), e.OccurredAt); err != nil {
			return fmt.Errorf("insert outbox event: %w", mapError(err))
		}
	}
	return nil
}
