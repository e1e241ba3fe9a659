package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeledger/internal/property/models"
	dErrors "homeledger/pkg/domain-errors"
)

func TestKeyFoldsEquivalentSpellings(t *testing.T) {
	a, err := Key(models.AddressParts{Street: "12 Élm Street", Unit: "Apt. 4", City: "Springfield", PostalCode: "12345"})
	require.NoError(t, err)
	b, err := Key(models.AddressParts{Street: "12 elm st.", Unit: "#4", City: "SPRINGFIELD", PostalCode: "12 345"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeyDistinguishesDifferentHomes(t *testing.T) {
	a, err := Key(models.AddressParts{Street: "12 Elm St", City: "Springfield"})
	require.NoError(t, err)
	b, err := Key(models.AddressParts{Street: "14 Elm St", City: "Springfield"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestKeyDirectionalsAndPostal(t *testing.T) {
	a, err := Key(models.AddressParts{Street: "100 North Main Avenue", PostalCode: "sw1a 1aa"})
	require.NoError(t, err)
	b, err := Key(models.AddressParts{Street: "100 N. Main Ave", PostalCode: "SW1A1AA"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestKeyRejectsIncompleteAddress(t *testing.T) {
	_, err := Key(models.AddressParts{City: "Springfield"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
