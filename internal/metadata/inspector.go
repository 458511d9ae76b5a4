package metadata

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
)

var (
	idType      = reflect.TypeOf(id.ID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// Inspect registers the schema facts carried by the tags of a struct:
//
//	json     property name (camelCase field name when absent)
//	db       column; "-" or missing means not persisted
//	binding  "required" marks the property required
//	default  literal default; "new" on an id field generates a fresh id
//	encrypt  "<dtype>" or "<dtype>,unique"
//
// Embedded structs are flattened.
func (r *Registry) Inspect(class string, v any) error {
	t := reflect.TypeOf(v)
	if t == nil {
		return apperror.NewProgramming("%s: cannot inspect nil", class)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return apperror.NewProgramming("%s: cannot inspect %s", class, t.Kind())
	}
	return r.inspectStruct(class, t)
}

func (r *Registry) inspectStruct(class string, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := r.inspectStruct(class, ft); err != nil {
					return err
				}
			}
			continue
		}
		if field.PkgPath != "" { // unexported
			continue
		}

		name := jsonName(field)
		if name == "-" {
			continue
		}
		db, hasDB := field.Tag.Lookup("db")
		if !hasDB || db == "-" {
			continue
		}

		if isRequired(field) {
			if err := r.RegisterRequired(class, name); err != nil {
				return err
			}
		} else if err := r.RegisterPersisted(class, name); err != nil {
			return err
		}

		if raw, ok := field.Tag.Lookup("default"); ok {
			value, err := parseDefault(field.Type, raw)
			if err != nil {
				return apperror.NewProgramming("%s.%s: bad default %q: %v", class, name, raw, err)
			}
			if err := r.RegisterDefault(class, name, value); err != nil {
				return err
			}
		}

		if enc, ok := field.Tag.Lookup("encrypt"); ok {
			parts := strings.Split(enc, ",")
			dtype := DType(parts[0])
			var err error
			if len(parts) > 1 && parts[1] == "unique" {
				err = r.RegisterUniqueEncrypted(class, name, dtype)
			} else {
				err = r.RegisterEncrypted(class, name, dtype)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func parseDefault(t reflect.Type, raw string) (any, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch {
	case t == idType:
		if raw == "new" {
			return func() any { return id.New() }, nil
		}
		return id.Parse(raw)
	case t == decimalType:
		return decimal.NewFromString(raw)
	}
	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		return int(n), err
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			return parts[0]
		}
	}
	// Fallback: camelCase
	runes := []rune(field.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func isRequired(field reflect.StructField) bool {
	if tag, ok := field.Tag.Lookup("binding"); ok {
		return strings.Contains(tag, "required")
	}
	return false
}
