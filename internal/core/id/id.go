// Package id provides UUIDv7 identifiers for every CRM entity row.
// UUIDv7 is time-ordered, so new contacts and activities sort by creation time.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		// V7 only fails when the random source does
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// FromValue normalizes a hydrated property value (ID, *ID, string or []byte
// as scanned by pgx) into an ID.
func FromValue(v any) (ID, error) {
	switch t := v.(type) {
	case ID:
		return t, nil
	case *ID:
		if t == nil {
			return uuid.Nil, nil
		}
		return *t, nil
	case string:
		return uuid.Parse(t)
	case [16]byte:
		return ID(t), nil
	case []byte:
		return uuid.FromBytes(t)
	case nil:
		return uuid.Nil, nil
	default:
		return uuid.Nil, fmt.Errorf("unsupported id value %T", v)
	}
}
