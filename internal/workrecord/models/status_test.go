package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "homeledger/pkg/domain-errors"
)

func TestStatusNext(t *testing.T) {
	tests := []struct {
		from    Status
		t       Transition
		want    Status
		wantErr bool
	}{
		{StatusDocumentedUnverified, TransitionVerify, StatusApproved, false},
		{StatusDocumented, TransitionVerify, StatusApproved, false},
		{StatusDocumented, TransitionDispute, StatusDisputed, false},
		{StatusDocumented, TransitionReject, StatusRejected, false},
		{StatusDocumentedUnverified, TransitionPromote, StatusDocumented, false},
		{StatusDocumented, TransitionPromote, "", true},
		{StatusDisputed, TransitionVerify, StatusApproved, false},
		{StatusDisputed, TransitionReject, StatusRejected, false},
		{StatusDisputed, TransitionResubmit, StatusDocumented, false},
		{StatusDisputed, TransitionDispute, "", true},
		{StatusApproved, TransitionVerify, "", true},
		{StatusApproved, TransitionDispute, "", true},
		{StatusApproved, TransitionReject, "", true},
		{StatusRejected, TransitionVerify, "", true},
		{StatusRejected, TransitionResubmit, "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.t), func(t *testing.T) {
			got, err := tt.from.Next(tt.t)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
				assert.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusDocumented.IsPending())
	assert.True(t, StatusDocumentedUnverified.IsPending())
	assert.False(t, StatusDisputed.IsPending())
	assert.False(t, StatusDisputed.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusApproved.IsVerifiedTerminal())
	assert.False(t, StatusRejected.IsVerifiedTerminal())
	assert.Equal(t, StatusDocumented, InitialStatus(true))
	assert.Equal(t, StatusDocumentedUnverified, InitialStatus(false))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("DISPUTED")
	require.NoError(t, err)
	assert.Equal(t, StatusDisputed, s)

	_, err = ParseStatus("disputed")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
