package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"homeledger/internal/access"
	connectionmodels "homeledger/internal/connection/models"
	connectionservice "homeledger/internal/connection/service"
	notificationmodels "homeledger/internal/notification/models"
	"homeledger/internal/storage"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/requestcontext"
)

// VerifyResult is everything one approval produced.
type VerifyResult struct {
	WorkRecord *workmodels.WorkRecord
	RecordID   id.RecordID
	Connection *connectionmodels.Connection
	Events     []notificationmodels.Event
}

// authorizeReview enforces the path's home and the review capability. It
// runs before the transaction because the gate may read storage.
func (s *Service) authorizeReview(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID) error {
	work, caps, err := s.loadWithCaps(ctx, actor, workID)
	if err != nil {
		return err
	}
	if work.HomeID != homeID {
		return dErrors.New(dErrors.CodeForbidden, "work record does not belong to this home")
	}
	if !caps.Has(access.CapReview) {
		return dErrors.New(dErrors.CodeForbidden, "only the home's owner can review this work")
	}
	return nil
}

// lockInHome re-reads the record under a row lock and pins it to homeID.
func lockInHome(ctx context.Context, st storage.Stores, homeID id.HomeID, workID id.WorkRecordID) (*workmodels.WorkRecord, error) {
	work, err := st.WorkRecords.GetForUpdate(ctx, workID)
	if err != nil {
		return nil, storage.DomainError(err, "work record not found")
	}
	if work.HomeID != homeID {
		return nil, dErrors.New(dErrors.CodeForbidden, "work record does not belong to this home")
	}
	return work, nil
}

// Verify approves the work. The approval, its history record and the
// connection refresh commit together or not at all. A record that is already
// terminal fails with invalid_state_transition and nothing is written.
func (s *Service) Verify(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, adj workmodels.Adjustment) (_ *VerifyResult, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.verify", trace.WithAttributes(
		attribute.String("work_record.id", workID.String()),
	))
	defer span.End()
	defer func() { s.observe("verify", err) }()

	if err := s.authorizeReview(ctx, actor, homeID, workID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	start := time.Now()
	result := &VerifyResult{}
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		work, err := lockInHome(ctx, st, homeID, workID)
		if err != nil {
			return err
		}
		previous := work.Status
		if err := work.ApplyVerify(actor.UserID, adj, now); err != nil {
			return err
		}
		record, err := s.history.MaterializeTx(ctx, st, work, now)
		if err != nil {
			return err
		}
		if err := persist(ctx, st, work, previous); err != nil {
			return err
		}

		upsert, err := s.connections.UpsertTx(ctx, st, connectionservice.UpsertRequest{
			Key: connectionmodels.Key{
				HomeID:       work.HomeID,
				HomeownerID:  actor.UserID,
				ContractorID: work.ContractorID,
			},
			Via:            connectionmodels.ViaVerifiedWork,
			Actor:          actor.UserID,
			SourceRecordID: &record.ID,
		}, now)
		if err != nil {
			return err
		}

		events := append([]notificationmodels.Event{
			notificationmodels.New(notificationmodels.KindWorkVerified, actor.UserID, now).
				To(work.ContractorID).
				WithHome(work.HomeID).
				WithWorkRecord(work.ID).
				WithRecord(record.ID).
				WithConnection(upsert.Connection.ID),
		}, upsert.Events...)
		if err := st.Outbox.Append(ctx, events...); err != nil {
			return err
		}

		result.WorkRecord = work
		result.RecordID = record.ID
		result.Connection = upsert.Connection
		result.Events = events
		return nil
	})
	s.metrics.ObserveTx("work.verify", start)
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, "work_record_verified",
		"work_record_id", workID,
		"home_id", homeID,
		"verified_by", actor.UserID,
		"record_id", result.RecordID,
		"connection_id", result.Connection.ID,
	)
	return result, nil
}

// Dispute sends the work back to the contractor. No history is written and
// the connection is untouched.
func (s *Service) Dispute(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.dispute")
	defer span.End()
	defer func() { s.observe("dispute", err) }()

	result, err := s.review(ctx, actor, homeID, workID, notificationmodels.KindWorkDisputed, func(w *workmodels.WorkRecord, now time.Time) error {
		return w.ApplyDispute(actor.UserID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	auditlog.Log(ctx, s.logger, "work_record_disputed",
		"work_record_id", workID,
		"home_id", homeID,
		"disputed_by", actor.UserID,
	)
	return result, nil
}

// Reject closes the work without history.
func (s *Service) Reject(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, reason string) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.reject")
	defer span.End()
	defer func() { s.observe("reject", err) }()

	result, err := s.review(ctx, actor, homeID, workID, notificationmodels.KindWorkRejected, func(w *workmodels.WorkRecord, now time.Time) error {
		return w.ApplyReject(actor.UserID, reason, now)
	})
	if err != nil {
		return nil, err
	}
	auditlog.Log(ctx, s.logger, "work_record_rejected",
		"work_record_id", workID,
		"home_id", homeID,
		"rejected_by", actor.UserID,
	)
	return result, nil
}

// review runs a status-only review transition and notifies the contractor.
func (s *Service) review(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, kind notificationmodels.Kind, apply func(*workmodels.WorkRecord, time.Time) error) (*Result, error) {
	if err := s.authorizeReview(ctx, actor, homeID, workID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	result := &Result{}
	err := s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		work, err := lockInHome(ctx, st, homeID, workID)
		if err != nil {
			return err
		}
		previous := work.Status
		if err := apply(work, now); err != nil {
			return err
		}
		if err := persist(ctx, st, work, previous); err != nil {
			return err
		}
		event := notificationmodels.New(kind, actor.UserID, now).
			To(work.ContractorID).
			WithHome(work.HomeID).
			WithWorkRecord(work.ID)
		if err := st.Outbox.Append(ctx, event); err != nil {
			return err
		}
		result.WorkRecord = work
		result.Events = []notificationmodels.Event{event}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
