// Package entity implements the in-memory side of the CRM entity engine:
// Instance (value map, committed baseline, loaded set, dirty set, calculated
// cache) and the typed accessors built on it.
package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Attributes is a loose property map: instance snapshots, change payloads and
// JSONB custom fields (Contact.customFields).
// Implements sql.Scanner and driver.Valuer for PostgreSQL JSONB mapping.
//
// Numbers decode as json.Number so money keeps its precision.
type Attributes map[string]any

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
func (a *Attributes) Scan(src any) error {
	var source []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		source = v
	case string:
		source = []byte(v)
	case map[string]any:
		*a = v
		return nil
	default:
		return fmt.Errorf("unsupported type for Attributes: %T", src)
	}
	if len(source) == 0 {
		*a = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(source))
	decoder.UseNumber()

	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return fmt.Errorf("failed to decode Attributes: %w", err)
	}
	*a = result
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Keys returns the keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GetString returns the string at key, or "" when absent or of another type.
func (a Attributes) GetString(key string) string {
	v, _ := a[key].(string)
	return v
}

// GetBool returns the bool at key.
func (a Attributes) GetBool(key string) bool {
	v, _ := a[key].(bool)
	return v
}

// GetDecimal returns the decimal at key with full precision.
func (a Attributes) GetDecimal(key string) decimal.Decimal {
	switch v := a[key].(type) {
	case decimal.Decimal:
		return v
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// Has checks if key exists (including nil values).
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Clone creates a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	result := make(Attributes, len(a))
	for k, v := range a {
		result[k] = v
	}
	return result
}
