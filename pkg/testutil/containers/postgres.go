//go:build integration

// Package containers starts throwaway infrastructure for integration tests.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"homeledger/internal/platform/config"
	platformpg "homeledger/internal/platform/postgres"
)

// Postgres is a migrated database owned by one test.
type Postgres struct {
	DB  *sql.DB
	URL string
}

// NewPostgres starts Postgres, applies the embedded migrations and returns
// the connection. The container is terminated when the test ends.
func NewPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("homeledger"),
		tcpostgres.WithUsername("homeledger"),
		tcpostgres.WithPassword("homeledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	db, err := platformpg.OpenAndMigrate(ctx, config.DatabaseConfig{
		URL:          url,
		MaxOpenConns: 10,
		MaxIdleConns: 2,
		ConnMaxLife:  time.Minute,
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Postgres{DB: db, URL: url}
}

// Reset truncates every table between tests sharing one container.
func (p *Postgres) Reset(t *testing.T) {
	t.Helper()
	if _, err := p.DB.Exec(`TRUNCATE outbox, records, connections, work_records, invitations, homes CASCADE`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
