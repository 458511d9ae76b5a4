package domain

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// reversibleCipher tags ciphertext with the field so tests can read it back.
type reversibleCipher struct{}

func (reversibleCipher) Encrypt(field string, plaintext []byte) (string, error) {
	return field + ":" + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (reversibleCipher) Decrypt(field string, ciphertext string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, field+":"))
}

func encryptedContact(t *testing.T) *metadata.ClassMetadata {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Define("Contact", func(b *metadata.ClassBuilder) {
		b.Persisted("id", "firstName").
			Encrypted("email", metadata.DTypeText).
			UniqueEncrypted("taxId", metadata.DTypeText).
			Encrypted("netWorth", metadata.DTypeDecimal).
			Encrypted("birthDate", metadata.DTypeDate)
	}))
	require.NoError(t, reg.Freeze())
	return reg.MustGet("Contact")
}

func TestCodec_SealOpenRoundTrip(t *testing.T) {
	meta := encryptedContact(t)
	codec := NewCodec(reversibleCipher{})
	owner := id.New()

	values := entity.Attributes{
		"id":        owner,
		"firstName": "Jane",
		"email":     "jane@example.com",
		"taxId":     "123-45-6789",
		"netWorth":  decimal.RequireFromString("1250000.50"),
		"birthDate": time.Date(1970, 4, 2, 0, 0, 0, 0, time.UTC),
	}

	sealed, err := codec.Seal(meta, owner, values)
	require.NoError(t, err)
	assert.Equal(t, "Jane", sealed["firstName"])
	assert.NotEqual(t, values["email"], sealed["email"])
	assert.Equal(t, "jane@example.com", values["email"], "input is not modified")

	row := map[string]any(sealed.Clone())
	require.NoError(t, codec.Open(meta, row))
	assert.Equal(t, "jane@example.com", row["email"])
	assert.Equal(t, "123-45-6789", row["taxId"])
	assert.True(t, decimal.RequireFromString("1250000.50").Equal(row["netWorth"].(decimal.Decimal)))
	assert.Equal(t, time.Date(1970, 4, 2, 0, 0, 0, 0, time.UTC), row["birthDate"])
}

func TestCodec_UniqueFieldSaltedPerOwner(t *testing.T) {
	meta := encryptedContact(t)
	codec := NewCodec(reversibleCipher{})
	a, b := id.New(), id.New()

	sa, err := codec.Seal(meta, a, entity.Attributes{"taxId": "123", "email": "x@y.z"})
	require.NoError(t, err)
	sb, err := codec.Seal(meta, b, entity.Attributes{"taxId": "123", "email": "x@y.z"})
	require.NoError(t, err)

	assert.NotEqual(t, sa["taxId"], sb["taxId"])
	assert.Equal(t, sa["email"], sb["email"], "deterministic fields stay searchable")

	moved := map[string]any{"id": b, "taxId": sa["taxId"]}
	err = codec.Open(meta, moved)
	assert.True(t, apperror.IsValidation(err))
}

func TestCodec_SealFilter(t *testing.T) {
	meta := encryptedContact(t)
	codec := NewCodec(reversibleCipher{})

	tests := []struct {
		name    string
		item    metadata.Item
		wantErr bool
	}{
		{"equal on deterministic field", metadata.Item{Field: "email", Operator: metadata.Equal, Value: "a@b.c"}, false},
		{"in list", metadata.Item{Field: "email", Operator: metadata.InList, Value: []string{"a@b.c", "d@e.f"}}, false},
		{"null check", metadata.Item{Field: "taxId", Operator: metadata.IsNull}, false},
		{"plain field untouched", metadata.Item{Field: "firstName", Operator: metadata.Contains, Value: "Ja"}, false},
		{"contains on encrypted", metadata.Item{Field: "email", Operator: metadata.Contains, Value: "a"}, true},
		{"equal on salted", metadata.Item{Field: "taxId", Operator: metadata.Equal, Value: "1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &metadata.Filter{Class: "Contact", Items: []metadata.Item{tt.item}}
			err := codec.SealFilter(meta, f)
			if tt.wantErr {
				assert.True(t, apperror.IsValidation(err))
				return
			}
			require.NoError(t, err)
			switch tt.item.Operator {
			case metadata.Equal:
				assert.Equal(t, "Contact.email:"+base64.StdEncoding.EncodeToString([]byte("a@b.c")), f.Items[0].Value)
			case metadata.InList:
				assert.Len(t, f.Items[0].Value, 2)
			default:
				assert.Equal(t, tt.item.Value, f.Items[0].Value)
			}
		})
	}
}

func TestCodec_WithoutCipher(t *testing.T) {
	meta := encryptedContact(t)
	codec := NewCodec(nil)

	_, err := codec.Seal(meta, id.New(), entity.Attributes{"firstName": "Jane", "email": nil})
	require.NoError(t, err, "nil values are not encrypted")

	_, err = codec.Seal(meta, id.New(), entity.Attributes{"email": "a@b.c"})
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestCodec_RejectsWrongPlainType(t *testing.T) {
	meta := encryptedContact(t)
	_, err := NewCodec(reversibleCipher{}).Seal(meta, id.New(), entity.Attributes{"email": 42})
	assert.True(t, apperror.IsValidation(err))
}
