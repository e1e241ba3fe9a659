// Package service is the Permanent History Writer. It turns a verified work
// record into an immutable timeline entry and serves timeline reads.
package service

import (
	"context"
	"strings"
	"time"

	"homeledger/internal/access"
	historymodels "homeledger/internal/history/models"
	"homeledger/internal/storage"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/requestcontext"
)

type Service struct {
	backend storage.Backend
	gate    access.Gate
}

func New(backend storage.Backend, gate access.Gate) *Service {
	return &Service{backend: backend, gate: gate}
}

// MaterializeTx writes the Record for w, which must already be in its
// verified-terminal state, and links it back via FinalRecordID. Callers
// guarantee at-most-once invocation per work record; the store rejects a
// second Record for the same source with a conflict.
func (s *Service) MaterializeTx(ctx context.Context, st storage.Stores, w *workmodels.WorkRecord, now time.Time) (*historymodels.Record, error) {
	if !w.Status.IsVerifiedTerminal() || w.VerifiedBy == nil || w.VerifiedAt == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "only verified work becomes history")
	}
	record := &historymodels.Record{
		ID:                 id.NewRecordID(),
		HomeID:             w.HomeID,
		Title:              w.WorkType,
		Note:               w.Description,
		Date:               w.WorkDate,
		Kind:               historymodels.KindVerifiedWork,
		Vendor:             vendorLabel(w),
		CostCents:          w.CostCents,
		CreatedBy:          w.ContractorID,
		VerifiedBy:         *w.VerifiedBy,
		VerifiedAt:         *w.VerifiedAt,
		SourceWorkRecordID: w.ID,
		CreatedAt:          now,
	}
	if err := st.Records.Create(ctx, record); err != nil {
		return nil, storage.DomainError(err, "record not found")
	}
	if err := w.AttachRecord(record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

func vendorLabel(w *workmodels.WorkRecord) string {
	if name := strings.TrimSpace(w.ContractorName); name != "" {
		return name
	}
	return "Unknown contractor"
}

// Get returns one timeline entry.
func (s *Service) Get(ctx context.Context, actor requestcontext.Identity, recordID id.RecordID) (*historymodels.Record, error) {
	record, err := s.backend.Reader().Records.Get(ctx, recordID)
	if err != nil {
		return nil, storage.DomainError(err, "record not found")
	}
	if err := s.authorizeRead(ctx, actor, record.HomeID); err != nil {
		return nil, err
	}
	return record, nil
}

// Timeline lists a home's records, newest work date first. The owner and any
// professional connected to the home may read it.
func (s *Service) Timeline(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID) ([]*historymodels.Record, error) {
	if err := s.authorizeRead(ctx, actor, homeID); err != nil {
		return nil, err
	}
	records, err := s.backend.Reader().Records.ListByHome(ctx, homeID)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	return records, nil
}

func (s *Service) authorizeRead(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID) error {
	owns, err := s.gate.CanActOnHome(ctx, actor.UserID, homeID)
	if err != nil {
		return storage.DomainError(err, "home not found")
	}
	if owns {
		return nil
	}
	conns, err := s.backend.Reader().Connections.ListByHome(ctx, homeID)
	if err != nil {
		return storage.DomainError(err, "home not found")
	}
	for _, c := range conns {
		if c.IsActive() && c.HasParty(actor.UserID) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to view this home's history")
}
