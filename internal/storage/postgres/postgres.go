// Package postgres implements the storage ports on database/sql with lib/pq.
//
// Stores resolve their executor from context, so the same store values serve
// both plain reads and transactions started by Backend.RunInTx. Transactions
// run at READ COMMITTED; correctness comes from row locks (FOR UPDATE),
// compare-and-set updates and unique constraints.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"homeledger/internal/storage"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

var tracer = otel.Tracer("homeledger/storage/postgres")

// Backend implements storage.Backend.
type Backend struct {
	db      *sql.DB
	timeout time.Duration
	stores  storage.Stores
}

type Option func(*Backend)

func WithTxTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

func New(db *sql.DB, opts ...Option) *Backend {
	b := &Backend{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(b)
	}
	b.stores = storage.Stores{
		Homes:       &HomeStore{db: db},
		WorkRecords: &WorkRecordStore{db: db},
		Connections: &ConnectionStore{db: db},
		Records:     &RecordStore{db: db},
		Invitations: &InvitationStore{db: db},
		Outbox:      &OutboxStore{db: db},
	}
	return b
}

func (b *Backend) Reader() storage.Stores { return b.stores }

// RunInTx runs fn in a database transaction. A call made while ctx already
// carries a transaction joins it.
func (b *Backend) RunInTx(ctx context.Context, fn func(ctx context.Context, s storage.Stores) error) error {
	if tx.InTx(ctx) {
		return fn(ctx, b.stores)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "storage.tx")
	defer span.End()

	sqlTx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.SetStatus(codes.Error, "begin")
		return mapError(err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), b.stores); err != nil {
		span.SetStatus(codes.Error, "rolled back")
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		span.SetStatus(codes.Error, "commit")
		return mapError(err)
	}
	return nil
}

// mapError translates driver errors into sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return errors.Join(sentinel.ErrConflict, err)
		case "40001", "40P01":
			return errors.Join(sentinel.ErrSerialization, err)
		}
	}
	return err
}

// withSavepoint runs fn so that a failing statement inside it does not abort
// the enclosing transaction. Outside a transaction fn runs as is.
func withSavepoint(ctx context.Context, db *sql.DB, name string, fn func(exec tx.Executor) error) error {
	exec := tx.ExecutorFrom(ctx, db)
	if !tx.InTx(ctx) {
		return fn(exec)
	}
	if _, err := exec.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return mapError(err)
	}
	if err := fn(exec); err != nil {
		if _, rbErr := exec.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if _, err := exec.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return mapError(err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func nullableID[T ~[16]byte](p *T) any {
	if p == nil {
		return nil
	}
	return uuid.UUID(*p)
}

func idPtr[T ~[16]byte](n uuid.NullUUID) *T {
	if !n.Valid {
		return nil
	}
	v := T(n.UUID)
	return &v
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func nullableInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// affectedOne turns a zero-row update into notFound.
func affectedOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
