package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "homeledger/pkg/domain"
	dErrors "homeledger/pkg/domain-errors"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func cents(v int64) *int64 { return &v }

func newPending(t *testing.T, owned bool) *WorkRecord {
	t.Helper()
	w, err := New(id.NewWorkRecordID(), id.NewHomeID(), id.NewUserID(), "Bricks Co", Details{
		WorkType:    "Roof repair",
		WorkDate:    testNow.AddDate(0, 0, -3),
		Description: "Replaced flashing",
		CostCents:   cents(45000),
	}, owned, testNow)
	require.NoError(t, err)
	return w
}

func TestNewValidates(t *testing.T) {
	base := Details{WorkType: "Paint", WorkDate: testNow}

	_, err := New(id.NewWorkRecordID(), id.NewHomeID(), id.NewUserID(), "", Details{WorkDate: testNow}, true, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	noDate := base
	noDate.WorkDate = time.Time{}
	_, err = New(id.NewWorkRecordID(), id.NewHomeID(), id.NewUserID(), "", noDate, true, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	zeroCost := base
	zeroCost.CostCents = cents(0)
	_, err = New(id.NewWorkRecordID(), id.NewHomeID(), id.NewUserID(), "", zeroCost, true, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	w, err := New(id.NewWorkRecordID(), id.NewHomeID(), id.NewUserID(), "", base, false, testNow)
	require.NoError(t, err)
	assert.Equal(t, StatusDocumentedUnverified, w.Status)
	assert.False(t, w.HomeHadOwnerAtCreation)
	assert.Nil(t, w.CostCents)
}

func TestApplyVerify(t *testing.T) {
	w := newPending(t, true)
	owner := id.NewUserID()

	require.NoError(t, w.ApplyVerify(owner, Adjustment{CostCents: cents(50000), Note: "Also cleaned gutters"}, testNow))
	assert.Equal(t, StatusApproved, w.Status)
	assert.True(t, w.IsVerified)
	assert.Equal(t, owner, *w.VerifiedBy)
	assert.Equal(t, owner, *w.ApprovedBy)
	assert.Equal(t, owner, *w.ClaimedBy)
	assert.Equal(t, int64(50000), w.Cost())
	assert.Equal(t, "Replaced flashing\n\nHomeowner note: Also cleaned gutters", w.Description)

	err := w.ApplyVerify(owner, Adjustment{}, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
}

func TestApplyVerifyRejectsBadAdjustment(t *testing.T) {
	w := newPending(t, true)
	err := w.ApplyVerify(id.NewUserID(), Adjustment{CostCents: cents(-1)}, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Equal(t, StatusDocumented, w.Status)
}

func TestTerminalStateWinsOverBadInput(t *testing.T) {
	approved := newPending(t, true)
	require.NoError(t, approved.ApplyVerify(id.NewUserID(), Adjustment{}, testNow))
	archived := newPending(t, true)
	require.NoError(t, archived.ApplyArchive(testNow))

	for name, w := range map[string]*WorkRecord{"approved": approved, "archived": archived} {
		t.Run(name, func(t *testing.T) {
			before := *w
			err := w.ApplyVerify(id.NewUserID(), Adjustment{CostCents: cents(-1)}, testNow)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition), "verify got %v", err)
			err = w.ApplyDispute(id.NewUserID(), "  ", testNow)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition), "dispute got %v", err)
			assert.Equal(t, before, *w)
		})
	}
}

func TestDisputeThenResubmit(t *testing.T) {
	w := newPending(t, true)
	owner := id.NewUserID()

	assert.True(t, dErrors.HasCode(w.ApplyDispute(owner, " ", testNow), dErrors.CodeValidation))
	require.NoError(t, w.ApplyDispute(owner, "Wrong date", testNow))
	assert.Equal(t, StatusDisputed, w.Status)
	assert.Equal(t, "Wrong date", w.ReviewReason)
	assert.False(t, w.IsVerified)

	err := w.ApplyDispute(owner, "again", testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	resubmitted, err := w.ApplyEdit(Details{WorkType: "Roof repair", WorkDate: testNow.AddDate(0, 0, -2)}, testNow)
	require.NoError(t, err)
	assert.True(t, resubmitted)
	assert.Equal(t, StatusDocumented, w.Status)
	assert.Empty(t, w.ReviewReason)
}

func TestApplyEditPendingKeepsStatus(t *testing.T) {
	w := newPending(t, false)
	resubmitted, err := w.ApplyEdit(Details{WorkType: "Gutter", WorkDate: testNow}, testNow)
	require.NoError(t, err)
	assert.False(t, resubmitted)
	assert.Equal(t, StatusDocumentedUnverified, w.Status)
	assert.Equal(t, "Gutter", w.WorkType)
}

func TestArchive(t *testing.T) {
	w := newPending(t, true)
	require.NoError(t, w.ApplyArchive(testNow))
	assert.True(t, w.IsArchived())

	assert.True(t, dErrors.HasCode(w.ApplyVerify(id.NewUserID(), Adjustment{}, testNow), dErrors.CodeInvalidStateTransition))
	assert.True(t, dErrors.HasCode(w.ApplyArchive(testNow), dErrors.CodeInvalidStateTransition))
	_, err := w.ApplyEdit(Details{WorkType: "x", WorkDate: testNow}, testNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))

	approved := newPending(t, true)
	require.NoError(t, approved.ApplyVerify(id.NewUserID(), Adjustment{}, testNow))
	assert.True(t, dErrors.HasCode(approved.ApplyArchive(testNow), dErrors.CodeInvalidStateTransition))
}

func TestAttachRecordAndInvariants(t *testing.T) {
	w := newPending(t, true)
	assert.NoError(t, w.CheckInvariants())
	assert.Error(t, w.AttachRecord(id.NewRecordID()))

	require.NoError(t, w.ApplyVerify(id.NewUserID(), Adjustment{}, testNow))
	assert.Error(t, w.CheckInvariants(), "approved without a final record is inconsistent")

	require.NoError(t, w.AttachRecord(id.NewRecordID()))
	assert.NoError(t, w.CheckInvariants())
	assert.Error(t, w.AttachRecord(id.NewRecordID()))
}
