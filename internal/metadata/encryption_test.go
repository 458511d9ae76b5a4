package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
)

func TestRegisterEncrypted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterEncrypted("Contact", "taxId", DTypeText))
	require.NoError(t, reg.RegisterUniqueEncrypted("Contact", "email", ""))

	c := reg.MustGet("Contact")
	assert.True(t, c.IsPersisted("taxId"))
	assert.True(t, c.IsPersisted("email"))

	m, ok := c.Encryption("email")
	require.True(t, ok)
	assert.True(t, m.Unique)
	assert.Equal(t, DTypeText, m.DType)

	assert.Equal(t, []EncryptionMarker{
		{Field: "taxId", DType: DTypeText},
		{Field: "email", DType: DTypeText, Unique: true},
	}, c.EncryptedFields())
}

func TestRegisterEncrypted_BothModesRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterEncrypted("Contact", "email", DTypeText))

	err := reg.RegisterUniqueEncrypted("Contact", "email", DTypeText)
	require.Error(t, err)
	assert.True(t, apperror.IsProgrammingError(err))

	m, _ := reg.MustGet("Contact").Encryption("email")
	assert.False(t, m.Unique, "first marker stays")
}

func TestRegisterEncrypted_UnknownDType(t *testing.T) {
	err := NewRegistry().RegisterEncrypted("Contact", "taxId", DType("blob"))
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestSaltPlaintext_RoundTrip(t *testing.T) {
	owner := id.New()
	salted := SaltPlaintext(owner, []byte("jane@example.com"))

	assert.Equal(t, byte(0x00), salted[len(owner.String())])

	gotOwner, plain, err := UnsaltPlaintext(salted)
	require.NoError(t, err)
	assert.Equal(t, owner, gotOwner)
	assert.Equal(t, "jane@example.com", string(plain))

	other := SaltPlaintext(id.New(), []byte("jane@example.com"))
	assert.NotEqual(t, salted, other)

	_, _, err = UnsaltPlaintext([]byte("no separator"))
	assert.True(t, apperror.IsValidation(err))
}
