package crypto

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/domain"
	"advisorcrm/internal/metadata"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, KeySize)
}

func newCipher(t *testing.T) *FieldCipher {
	t.Helper()
	c, err := New(testKey())
	require.NoError(t, err)
	return c
}

func TestNew_KeySize(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)

	_, err = NewFromBase64("not base64!")
	assert.Error(t, err)

	c, err := NewFromBase64(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestRoundTrip(t *testing.T) {
	c := newCipher(t)

	for _, plain := range [][]byte{[]byte("ann@example.com"), {}, bytes.Repeat([]byte("x"), 4096)} {
		ct, err := c.Encrypt("Contact.email", plain)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(ct, "v1:"))

		got, err := c.Decrypt("Contact.email", ct)
		require.NoError(t, err)
		assert.Equal(t, len(plain), len(got))
		assert.True(t, bytes.Equal(plain, got))
	}
}

func TestDeterministicPerField(t *testing.T) {
	c := newCipher(t)

	a, err := c.Encrypt("Contact.email", []byte("ann@example.com"))
	require.NoError(t, err)
	b, err := c.Encrypt("Contact.email", []byte("ann@example.com"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "equal plaintexts must be searchable")

	other, err := c.Encrypt("Household.email", []byte("ann@example.com"))
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	different, err := c.Encrypt("Contact.email", []byte("bob@example.com"))
	require.NoError(t, err)
	assert.NotEqual(t, a, different)

	again, err := New(testKey())
	require.NoError(t, err)
	fresh, err := again.Encrypt("Contact.email", []byte("ann@example.com"))
	require.NoError(t, err)
	assert.Equal(t, a, fresh, "stable across processes")
}

func TestDecrypt_Rejects(t *testing.T) {
	c := newCipher(t)
	ct, err := c.Encrypt("Contact.email", []byte("ann@example.com"))
	require.NoError(t, err)

	_, err = c.Decrypt("Contact.taxId", ct)
	assert.ErrorIs(t, err, ErrAuth, "ciphertext is bound to its field")

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ct, "v1:"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt("Contact.email", "v1:"+base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrAuth)

	for _, bad := range []string{"", "plain", "v2:" + strings.TrimPrefix(ct, "v1:"), "v1:***", "v1:AAAA"} {
		_, err := c.Decrypt("Contact.email", bad)
		assert.ErrorIs(t, err, ErrMalformed, bad)
	}

	otherKey, err := New(bytes.Repeat([]byte{9}, KeySize))
	require.NoError(t, err)
	_, err = otherKey.Decrypt("Contact.email", ct)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestConcurrentUse(t *testing.T) {
	c := newCipher(t)
	want, err := c.Encrypt("Contact.email", []byte("ann@example.com"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Encrypt("Contact.email", []byte("ann@example.com"))
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestWithCodec(t *testing.T) {
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Define("Contact", func(b *metadata.ClassBuilder) {
		b.Required("id").
			Encrypted("email", metadata.DTypeText).
			UniqueEncrypted("taxId", metadata.DTypeText)
	}))
	require.NoError(t, reg.Freeze())
	meta := reg.MustGet("Contact")

	codec := domain.NewCodec(newCipher(t))
	owner := id.New()

	sealed, err := codec.Seal(meta, owner, entity.Attributes{"id": owner, "email": "ann@example.com", "taxId": "123-45-6789"})
	require.NoError(t, err)
	assert.NotEqual(t, "ann@example.com", sealed["email"])

	row := map[string]any(sealed)
	require.NoError(t, codec.Open(meta, row))
	assert.Equal(t, "ann@example.com", row["email"])
	assert.Equal(t, "123-45-6789", row["taxId"])
}
