package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	invitationmodels "homeledger/internal/invitation/models"
	propertymodels "homeledger/internal/property/models"
	id "homeledger/pkg/domain"
	"homeledger/pkg/email"
	"homeledger/pkg/platform/sentinel"
	"homeledger/pkg/platform/tx"
)

const invitationColumns = `id, invited_email, invited_by, inviter_role, invited_role, home_id, address,
	message, status, expires_at, accepted_by, accepted_at, cancelled_by, cancelled_at,
	created_at, updated_at`

type InvitationStore struct {
	db *sql.DB
}

func scanInvitation(row scanner) (*invitationmodels.Invitation, error) {
	var (
		inv                              invitationmodels.Invitation
		invID, inviter                   uuid.UUID
		inviterRole, invitedRole, status string
		homeID, acceptedBy, cancelledBy  uuid.NullUUID
		acceptedAt, cancelledAt          sql.NullTime
		address                          []byte
	)
	err := row.Scan(&invID, &inv.InvitedEmail, &inviter, &inviterRole, &invitedRole, &homeID, &address,
		&inv.Message, &status, &inv.ExpiresAt, &acceptedBy, &acceptedAt, &cancelledBy, &cancelledAt,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	inv.ID = id.InvitationID(invID)
	inv.InvitedBy = id.UserID(inviter)
	inv.InviterRole = id.Role(inviterRole)
	inv.InvitedRole = invitationmodels.InvitedRole(invitedRole)
	inv.Status = invitationmodels.Status(status)
	inv.HomeID = idPtr[id.HomeID](homeID)
	inv.AcceptedBy, inv.AcceptedAt = idPtr[id.UserID](acceptedBy), timePtr(acceptedAt)
	inv.CancelledBy, inv.CancelledAt = idPtr[id.UserID](cancelledBy), timePtr(cancelledAt)
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	if len(address) > 0 {
		var parts propertymodels.AddressParts
		if err := json.Unmarshal(address, &parts); err != nil {
			return nil, fmt.Errorf("decode invitation address: %w", err)
		}
		inv.Address = &parts
	}
	return &inv, nil
}

func encodeAddress(a *propertymodels.AddressParts) (any, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode invitation address: %w", err)
	}
	return string(raw), nil
}

func (s *InvitationStore) Get(ctx context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, uuid.UUID(invID))
	return scanInvitation(row)
}

func (s *InvitationStore) GetForUpdate(ctx context.Context, invID id.InvitationID) (*invitationmodels.Invitation, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`, uuid.UUID(invID))
	return scanInvitation(row)
}

func (s *InvitationStore) Create(ctx context.Context, inv *invitationmodels.Invitation) error {
	address, err := encodeAddress(inv.Address)
	if err != nil {
		return err
	}
	_, err = tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		uuid.UUID(inv.ID), inv.InvitedEmail, uuid.UUID(inv.InvitedBy), string(inv.InviterRole),
		string(inv.InvitedRole), nullableID(inv.HomeID), address, inv.Message, string(inv.Status),
		inv.ExpiresAt, nullableID(inv.AcceptedBy), nullableTime(inv.AcceptedAt),
		nullableID(inv.CancelledBy), nullableTime(inv.CancelledAt), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", mapError(err))
	}
	return nil
}

func (s *InvitationStore) Update(ctx context.Context, inv *invitationmodels.Invitation, expected invitationmodels.Status) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE invitations
		SET home_id = $3, status = $4, accepted_by = $5, accepted_at = $6,
		    cancelled_by = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $1 AND status = $2`,
		uuid.UUID(inv.ID), string(expected), nullableID(inv.HomeID), string(inv.Status),
		nullableID(inv.AcceptedBy), nullableTime(inv.AcceptedAt),
		nullableID(inv.CancelledBy), nullableTime(inv.CancelledAt), inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invitation: %w", mapError(err))
	}
	return affectedOne(res, sentinel.ErrInvalidState)
}

// LockInviterEmail takes a transaction-scoped advisory lock keyed on the pair,
// closing the check-then-insert window for duplicate invitations.
func (s *InvitationStore) LockInviterEmail(ctx context.Context, inviter id.UserID, address string) error {
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"invitation:"+inviter.String()+":"+email.Normalize(address))
	if err != nil {
		return fmt.Errorf("lock invitation key: %w", mapError(err))
	}
	return nil
}

func (s *InvitationStore) FindOpen(ctx context.Context, inviter id.UserID, address string, now time.Time) (*invitationmodels.Invitation, error) {
	row := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE invited_by = $1 AND invited_email = $2 AND status = 'PENDING' AND expires_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`,
		uuid.UUID(inviter), email.Normalize(address), now)
	return scanInvitation(row)
}
