package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/core/types"
	"advisorcrm/internal/metadata"
)

const dateLayout = "2006-01-02"

// Codec applies the encryption markers of a class to rows on their way to and
// from storage.
type Codec struct {
	cipher FieldCipher
}

// NewCodec creates a codec. A nil cipher is allowed for schemas without
// encrypted fields; sealing a marked non-nil value then fails.
func NewCodec(cipher FieldCipher) *Codec {
	return &Codec{cipher: cipher}
}

// Seal returns a copy of values with every marked field replaced by its
// ciphertext. Unique markers salt the plaintext with owner.
func (c *Codec) Seal(meta *metadata.ClassMetadata, owner id.ID, values entity.Attributes) (entity.Attributes, error) {
	out := values.Clone()
	for _, m := range meta.EncryptedFields() {
		v, ok := out[m.Field]
		if !ok || v == nil {
			continue
		}
		ct, err := c.seal(meta.Name(), m, owner, v)
		if err != nil {
			return nil, err
		}
		out[m.Field] = ct
	}
	return out, nil
}

func (c *Codec) seal(class string, m metadata.EncryptionMarker, owner id.ID, v any) (string, error) {
	if c == nil || c.cipher == nil {
		return "", apperror.NewProgramming("%s.%s is encrypted but no cipher is configured", class, m.Field)
	}
	plain, err := encodePlain(m.DType, v)
	if err != nil {
		return "", apperror.NewValidation(fmt.Sprintf("%s.%s: %v", class, m.Field, err)).
			WithDetail("class", class).
			WithDetail("field", m.Field)
	}
	if m.Unique {
		if id.IsNil(owner) {
			return "", apperror.NewProgramming("%s.%s: unique encryption needs the owner id", class, m.Field)
		}
		plain = metadata.SaltPlaintext(owner, plain)
	}
	ct, err := c.cipher.Encrypt(class+"."+m.Field, plain)
	if err != nil {
		return "", fmt.Errorf("encrypt %s.%s: %w", class, m.Field, err)
	}
	return ct, nil
}

// Open decrypts the marked fields of a scanned row in place. Salted values
// must belong to the row's id.
func (c *Codec) Open(meta *metadata.ClassMetadata, row map[string]any) error {
	markers := meta.EncryptedFields()
	if len(markers) == 0 {
		return nil
	}
	owner, _ := id.FromValue(row["id"])
	for _, m := range markers {
		v, ok := row[m.Field]
		if !ok || v == nil {
			continue
		}
		ct, ok := v.(string)
		if !ok {
			return apperror.NewInternal(fmt.Errorf("%s.%s: ciphertext is %T", meta.Name(), m.Field, v))
		}
		if c == nil || c.cipher == nil {
			return apperror.NewProgramming("%s.%s is encrypted but no cipher is configured", meta.Name(), m.Field)
		}
		plain, err := c.cipher.Decrypt(meta.Name()+"."+m.Field, ct)
		if err != nil {
			return fmt.Errorf("decrypt %s.%s: %w", meta.Name(), m.Field, err)
		}
		if m.Unique {
			salt, rest, err := metadata.UnsaltPlaintext(plain)
			if err != nil {
				return err
			}
			if salt != owner {
				return apperror.NewValidation(fmt.Sprintf("%s.%s: ciphertext belongs to another row", meta.Name(), m.Field)).
					WithDetail("class", meta.Name()).
					WithDetail("field", m.Field)
			}
			plain = rest
		}
		val, err := decodePlain(m.DType, plain)
		if err != nil {
			return apperror.NewInternal(err).WithDetail("field", m.Field)
		}
		row[m.Field] = val
	}
	return nil
}

// SealFilter rewrites equality conditions on deterministic fields into
// ciphertext comparisons. Salted fields cannot be searched.
func (c *Codec) SealFilter(meta *metadata.ClassMetadata, filter *metadata.Filter) error {
	for i, it := range filter.Items {
		m, ok := meta.Encryption(it.Field)
		if !ok {
			continue
		}
		if it.Operator == metadata.IsNull || it.Operator == metadata.IsNotNull {
			continue
		}
		if m.Unique {
			return unsearchable(meta.Name(), it)
		}
		switch it.Operator {
		case metadata.Equal, metadata.NotEqual:
			ct, err := c.seal(meta.Name(), m, id.Nil(), it.Value)
			if err != nil {
				return err
			}
			filter.Items[i].Value = ct
		case metadata.InList, metadata.NotInList:
			list, err := toList(it.Value)
			if err != nil {
				return apperror.NewValidation(err.Error()).WithDetail("field", it.Field)
			}
			sealed := make([]any, len(list))
			for j, v := range list {
				if sealed[j], err = c.seal(meta.Name(), m, id.Nil(), v); err != nil {
					return err
				}
			}
			filter.Items[i].Value = sealed
		default:
			return unsearchable(meta.Name(), it)
		}
	}
	return nil
}

func unsearchable(class string, it metadata.Item) error {
	return apperror.NewValidation(fmt.Sprintf("%s.%s: operator %s is not supported on an encrypted field", class, it.Field, it.Operator)).
		WithDetail("class", class).
		WithDetail("field", it.Field)
}

func toList(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("list operator needs a slice, got %T", v)
	}
}

func encodePlain(dtype metadata.DType, v any) ([]byte, error) {
	switch dtype {
	case metadata.DTypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("text value is %T", v)
		}
		return []byte(s), nil
	case metadata.DTypeDecimal:
		d, err := types.MoneyFromValue(v)
		if err != nil {
			return nil, err
		}
		return []byte(d.String()), nil
	case metadata.DTypeDate:
		switch t := v.(type) {
		case time.Time:
			return []byte(t.Format(dateLayout)), nil
		case string:
			if _, err := time.Parse(dateLayout, t); err != nil {
				return nil, err
			}
			return []byte(t), nil
		default:
			return nil, fmt.Errorf("date value is %T", v)
		}
	case metadata.DTypeJSON:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
}

func decodePlain(dtype metadata.DType, b []byte) (any, error) {
	switch dtype {
	case metadata.DTypeText:
		return string(b), nil
	case metadata.DTypeDecimal:
		return decimal.NewFromString(string(b))
	case metadata.DTypeDate:
		return time.Parse(dateLayout, string(b))
	case metadata.DTypeJSON:
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown dtype %q", dtype)
	}
}
