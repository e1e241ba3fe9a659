package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "homeledger/pkg/domain-errors"
)

func TestParseAPIVersion(t *testing.T) {
	v, err := ParseAPIVersion(" V1 ")
	require.NoError(t, err)
	assert.Equal(t, APIVersionV1, v)

	for _, raw := range []string{"", "v2", "1"} {
		_, err := ParseAPIVersion(raw)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "%q", raw)
	}
}

func TestAPIVersionIsAtLeast(t *testing.T) {
	assert.True(t, APIVersionV1.IsAtLeast(APIVersionV1))
	assert.True(t, APIVersionV1.IsAtLeast("v0"))
	assert.False(t, APIVersion("v9").IsAtLeast(APIVersionV1))
	assert.True(t, APIVersion("").IsNil())
}
