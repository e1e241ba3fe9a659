package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	notificationmodels "homeledger/internal/notification/models"
)

// PostgresSource claims outbox rows with FOR UPDATE SKIP LOCKED so several
// relay instances can share one table without publishing a row twice per pass.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Process holds the row locks while publish runs; a failed publish rolls the
// claim back and the rows are retried on the next pass.
func (s *PostgresSource) Process(ctx context.Context, limit int, publish func(ctx context.Context, events []notificationmodels.Event) error) (n int, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin outbox claim: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, payload FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}
	events, ids, err := scanEvents(rows)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, tx.Commit(ctx)
	}

	if err := publish(ctx, events); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE id = ANY($1::uuid[])`, ids); err != nil {
		return 0, fmt.Errorf("mark outbox rows published: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox claim: %w", err)
	}
	return len(events), nil
}

func scanEvents(rows pgx.Rows) ([]notificationmodels.Event, []string, error) {
	defer rows.Close()
	var (
		events []notificationmodels.Event
		ids    []string
	)
	for rows.Next() {
		var (
			rowID   uuid.UUID
			payload []byte
		)
		if err := rows.Scan(&rowID, &payload); err != nil {
			return nil, nil, fmt.Errorf("scan outbox row: %w", err)
		}
		var e notificationmodels.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, nil, fmt.Errorf("decode outbox event %s: %w", rowID, err)
		}
		events = append(events, e)
		ids = append(ids, rowID.String())
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read outbox rows: %w", err)
	}
	return events, ids, nil
}
