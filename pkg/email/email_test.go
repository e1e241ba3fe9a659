package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "homeledger/pkg/domain-errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"Jane.Doe@Example.com", "jane.doe@example.com", false},
		{"  pro@bricks.co  ", "pro@bricks.co", false},
		{"", "", true},
		{"not-an-email", "", true},
		{"Jane <jane@example.com>", "", true},
		{"jane@localhost", "", true},
		{"@example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Validate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Owner@Example.com", " owner@example.com"))
	assert.False(t, Equal("owner@example.com", "other@example.com"))
	assert.False(t, Equal("", ""))
}

func TestDeriveDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", DeriveDisplayName("jane.doe@example.com"))
	assert.Equal(t, "Bob", DeriveDisplayName("bob@example.com"))
	assert.Equal(t, "Unknown", DeriveDisplayName("@example.com"))
}
