package metadata

import (
	"bytes"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
)

// DType tells the cipher how to encode a field value into plaintext bytes.
type DType string

const (
	DTypeText    DType = "text"
	DTypeDecimal DType = "decimal"
	DTypeDate    DType = "date"
	DTypeJSON    DType = "json"
)

// EncryptionMarker flags a field stored as ciphertext. Unique markers salt the
// plaintext with the owning row's id so equal values never share ciphertext.
type EncryptionMarker struct {
	Field  string `json:"field"`
	DType  DType  `json:"dtype"`
	Unique bool   `json:"unique"`
}

// saltSeparator sits between the owner id and the plaintext.
const saltSeparator = 0x00

// Encryption returns the marker for field.
func (c *ClassMetadata) Encryption(field string) (EncryptionMarker, bool) {
	m, ok := c.encrypted[field]
	return m, ok
}

// EncryptedFields returns markers in registration order.
func (c *ClassMetadata) EncryptedFields() []EncryptionMarker {
	out := make([]EncryptionMarker, 0, len(c.encryptedList))
	for _, f := range c.encryptedList {
		out = append(out, c.encrypted[f])
	}
	return out
}

// RegisterEncrypted marks field for deterministic encryption.
func (r *Registry) RegisterEncrypted(class, field string, dtype DType) error {
	return r.registerEncryption(class, EncryptionMarker{Field: field, DType: dtype})
}

// RegisterUniqueEncrypted marks field for salted encryption.
func (r *Registry) RegisterUniqueEncrypted(class, field string, dtype DType) error {
	return r.registerEncryption(class, EncryptionMarker{Field: field, DType: dtype, Unique: true})
}

func (r *Registry) registerEncryption(class string, m EncryptionMarker) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if m.Field == "" {
		return apperror.NewProgramming("%s: encrypted field name is empty", class)
	}
	switch m.DType {
	case DTypeText, DTypeDecimal, DTypeDate, DTypeJSON:
	case "":
		m.DType = DTypeText
	default:
		return apperror.NewProgramming("%s.%s: unknown encryption dtype %q", class, m.Field, m.DType)
	}
	if existing, ok := c.encrypted[m.Field]; ok {
		if existing.Unique != m.Unique {
			return apperror.NewProgramming("%s.%s: field cannot be both plain and unique encrypted", class, m.Field)
		}
		return apperror.NewProgramming("%s.%s: field already marked encrypted", class, m.Field)
	}
	if _, ok := c.computed[m.Field]; ok {
		return apperror.NewProgramming("%s.%s: derived attributes cannot be encrypted", class, m.Field)
	}
	c.markPersisted(m.Field)
	c.encrypted[m.Field] = m
	c.encryptedList = append(c.encryptedList, m.Field)
	return nil
}

// SaltPlaintext prefixes plaintext with the owner id and a separator byte.
func SaltPlaintext(owner id.ID, plaintext []byte) []byte {
	prefix := owner.String()
	out := make([]byte, 0, len(prefix)+1+len(plaintext))
	out = append(out, prefix...)
	out = append(out, saltSeparator)
	return append(out, plaintext...)
}

// UnsaltPlaintext splits a salted plaintext back into owner id and value.
func UnsaltPlaintext(salted []byte) (id.ID, []byte, error) {
	i := bytes.IndexByte(salted, saltSeparator)
	if i < 0 {
		return id.Nil(), nil, apperror.NewValidation("salted value has no separator")
	}
	owner, err := id.Parse(string(salted[:i]))
	if err != nil {
		return id.Nil(), nil, apperror.NewValidation("salted value has a malformed owner id").WithCause(err)
	}
	return owner, salted[i+1:], nil
}
