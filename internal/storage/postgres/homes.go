package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/platform/tx"
)

const homeColumns = `id, normalized_address, street, unit, city, region, postal_code, country,
	owner_id, claimed_at, created_at, updated_at`

type HomeStore struct {
	db *sql.DB
}

func scanHome(row scanner) (*propertymodels.Home, error) {
	var (
		h         propertymodels.Home
		homeID    uuid.UUID
		ownerID   uuid.NullUUID
		claimedAt sql.NullTime
	)
	err := row.Scan(&homeID, &h.NormalizedAddress, &h.Address.Street, &h.Address.Unit, &h.Address.City,
		&h.Address.Region, &h.Address.PostalCode, &h.Address.Country, &ownerID, &claimedAt,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	h.ID = id.HomeID(homeID)
	h.OwnerID = idPtr[id.UserID](ownerID)
	h.ClaimedAt = timePtr(claimedAt)
	return &h, nil
}

func (s *HomeStore) Get(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+homeColumns+` FROM homes WHERE id = $1`, uuid.UUID(homeID))
	return scanHome(row)
}

func (s *HomeStore) GetForUpdate(ctx context.Context, homeID id.HomeID) (*propertymodels.Home, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+homeColumns+` FROM homes WHERE id = $1 FOR UPDATE`, uuid.UUID(homeID))
	return scanHome(row)
}

func (s *HomeStore) FindByNormalizedAddress(ctx context.Context, key string) (*propertymodels.Home, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+homeColumns+` FROM homes WHERE normalized_address = $1`, key)
	return scanHome(row)
}

// Create runs in a savepoint so a lost find-or-create race leaves the
// transaction usable for the re-read.
func (s *HomeStore) Create(ctx context.Context, h *propertymodels.Home) error {
	return withSavepoint(ctx, s.db, "home_create", func(exec tx.Executor) error {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO homes (`+homeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.UUID(h.ID), h.NormalizedAddress, h.Address.Street, h.Address.Unit, h.Address.City,
			h.Address.Region, h.Address.PostalCode, h.Address.Country,
			nullableID(h.OwnerID), nullableTime(h.ClaimedAt), h.CreatedAt, h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert home: %w", mapError(err))
		}
		return nil
	})
}

func (s *HomeStore) Update(ctx context.Context, h *propertymodels.Home) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE homes
		SET street = $2, unit = $3, city = $4, region = $5, postal_code = $6, country = $7,
		    owner_id = $8, claimed_at = $9, updated_at = $10
		WHERE id = $1`,
		uuid.UUID(h.ID), h.Address.Street, h.Address.Unit, h.Address.City, h.Address.Region,
		h.Address.PostalCode, h.Address.Country, nullableID(h.OwnerID), nullableTime(h.ClaimedAt), h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update home: %w", mapError(err))
	}
	return affectedOne(res, sentinel.ErrNotFound)
}
