package postgres

import (
	"maps"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"advisorcrm/internal/metadata"
)

// columnCache holds property -> column maps per row struct type.
var columnCache sync.Map // map[reflect.Type]map[string]string

// ColumnsOf returns the property -> column mapping carried by the json and db
// tags of a row struct. Fields without a db tag, or tagged "-", are skipped.
// Embedded structs are flattened.
//
// Usage:
//
//	cols := ColumnsOf(crm.ContactRow{})
//	// cols["householdId"] == "household_id"
func ColumnsOf(v any) map[string]string {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return maps.Clone(cached.(map[string]string))
	}

	out := make(map[string]string)
	collectColumns(t, out)
	columnCache.Store(t, out)
	return maps.Clone(out)
}

func collectColumns(t reflect.Type, out map[string]string) {
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			collectColumns(ft, out)
			continue
		}
		if field.PkgPath != "" {
			continue
		}

		db, ok := field.Tag.Lookup("db")
		if !ok || db == "" || db == "-" {
			continue
		}
		out[propertyName(field)] = db
	}
}

func propertyName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name
		}
	}
	runes := []rune(field.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// columnMap resolves property names to column names per class. Unmapped
// properties use their snake_case form.
type columnMap map[string]map[string]string

func (m columnMap) column(class, property string) string {
	if c, ok := m[class][property]; ok {
		return c
	}
	return metadata.SnakeCase(property)
}

// property is the inverse of column for one class.
func (m columnMap) property(meta *metadata.ClassMetadata, column string) (string, bool) {
	for _, p := range meta.Persisted() {
		if m.column(meta.Name(), p) == column {
			return p, true
		}
	}
	return "", false
}
