package service

import (
	"context"
	"time"

	"homeledger/internal/access"
	notificationmodels "homeledger/internal/notification/models"
	propertymodels "homeledger/internal/property/models"
	"homeledger/internal/storage"
	workmodels "homeledger/internal/workrecord/models"
	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
	"homeledger/pkg/platform/auditlog"
	"homeledger/pkg/requestcontext"
)

// Update replaces the evidence fields of pending or disputed work. Editing
// disputed work resubmits it to the owner.
func (s *Service) Update(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, d workmodels.Details) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.update")
	defer span.End()
	defer func() { s.observe("edit", err) }()

	if err := s.requireAuthor(ctx, actor, homeID, workID, access.CapEditEvidence); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var (
		resubmitted bool
		result      = &Result{}
	)
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		work, err := lockInHome(ctx, st, homeID, workID)
		if err != nil {
			return err
		}
		previous := work.Status
		resubmitted, err = work.ApplyEdit(d, now)
		if err != nil {
			return err
		}
		if err := persist(ctx, st, work, previous); err != nil {
			return err
		}
		result.WorkRecord = work
		if !resubmitted {
			return nil
		}
		home, err := st.Homes.Get(ctx, work.HomeID)
		if err != nil {
			return storage.DomainError(err, "home not found")
		}
		if !home.HasOwner() {
			return nil
		}
		result.Events = []notificationmodels.Event{
			notificationmodels.New(notificationmodels.KindWorkResubmitted, actor.UserID, now).
				To(*home.OwnerID).
				WithHome(home.ID).
				WithWorkRecord(work.ID),
		}
		return st.Outbox.Append(ctx, result.Events...)
	})
	if err != nil {
		return nil, err
	}
	if resubmitted {
		s.observe("resubmit", nil)
	}

	auditlog.Log(ctx, s.logger, "work_record_updated",
		"work_record_id", workID,
		"home_id", homeID,
		"contractor_id", actor.UserID,
		"resubmitted", resubmitted,
	)
	return result, nil
}

// Archive hides work that never became history. Archived work accepts no
// further transition and notifies nobody.
func (s *Service) Archive(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID) (_ *Result, err error) {
	ctx, span := tracer.Start(ctx, "workrecord.archive")
	defer span.End()
	defer func() { s.observe("archive", err) }()

	if err := s.requireAuthor(ctx, actor, homeID, workID, access.CapArchive); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var work *workmodels.WorkRecord
	err = s.backend.RunInTx(ctx, func(ctx context.Context, st storage.Stores) error {
		var err error
		work, err = lockInHome(ctx, st, homeID, workID)
		if err != nil {
			return err
		}
		previous := work.Status
		if err := work.ApplyArchive(now); err != nil {
			return err
		}
		return persist(ctx, st, work, previous)
	})
	if err != nil {
		return nil, err
	}

	auditlog.Log(ctx, s.logger, "work_record_archived",
		"work_record_id", workID,
		"home_id", homeID,
		"contractor_id", actor.UserID,
	)
	return &Result{WorkRecord: work}, nil
}

// requireAuthor hides records the actor cannot view, then enforces the path's
// home and the capability.
func (s *Service) requireAuthor(ctx context.Context, actor requestcontext.Identity, homeID id.HomeID, workID id.WorkRecordID, need access.Capability) error {
	work, caps, err := s.loadWithCaps(ctx, actor, workID)
	if err != nil {
		return err
	}
	if !caps.Has(access.CapView) {
		return dErrors.New(dErrors.CodeNotFound, "work record not found")
	}
	if work.HomeID != homeID {
		return dErrors.New(dErrors.CodeForbidden, "work record does not belong to this home")
	}
	if caps.Has(need) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only the contractor who documented this work can "+need.String())
}

// PromotePendingTx moves unverified pending work on a newly claimed home to
// DOCUMENTED and notifies the new owner once per record. It is registered as
// the property registry's claim hook.
func (s *Service) PromotePendingTx(ctx context.Context, st storage.Stores, home *propertymodels.Home, owner id.UserID, now time.Time) ([]notificationmodels.Event, error) {
	pending, err := st.WorkRecords.ListByHomeAndStatus(ctx, home.ID, workmodels.StatusDocumentedUnverified)
	if err != nil {
		return nil, storage.DomainError(err, "home not found")
	}
	events := make([]notificationmodels.Event, 0, len(pending))
	for _, w := range pending {
		if w.IsArchived() {
			continue
		}
		previous := w.Status
		if err := w.ApplyPromote(now); err != nil {
			return nil, err
		}
		if err := persist(ctx, st, w, previous); err != nil {
			return nil, err
		}
		events = append(events, notificationmodels.New(notificationmodels.KindWorkSubmitted, w.ContractorID, now).
			To(owner).
			WithHome(home.ID).
			WithWorkRecord(w.ID))
	}
	return events, nil
}
