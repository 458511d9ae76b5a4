package entity

import (
	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/core/types"
)

// Field is a typed accessor for one property. Entity wrappers declare one per
// property so callers never touch the value map directly:
//
//	var phone = entity.Field[string]{Name: "phone"}
//	func (c *Contact) Phone() (string, error) { return phone.Get(c.Instance) }
type Field[T any] struct {
	Name string
}

// Get reads the property through Instance.Get. A stored NULL yields the zero value.
func (f Field[T]) Get(inst *Instance) (T, error) {
	return Read[T](inst, f.Name)
}

// Set writes the property through Instance.Set.
func (f Field[T]) Set(inst *Instance, v T) error {
	return inst.Set(f.Name, v)
}

// Read returns property converted to T. IDs and decimals are normalised from
// the representations the storage driver returns.
func Read[T any](inst *Instance, property string) (T, error) {
	var zero T
	v, err := inst.Get(property)
	if err != nil || v == nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	var converted any
	switch any(zero).(type) {
	case id.ID:
		converted, err = id.FromValue(v)
	case types.Money:
		converted, err = types.MoneyFromValue(v)
	default:
		return zero, apperror.NewProgramming("%s.%s holds %T, not %T", inst.Class(), property, v, zero)
	}
	if err != nil {
		return zero, apperror.NewProgramming("%s.%s: %v", inst.Class(), property, err)
	}
	return converted.(T), nil
}

// Must panics on error. Only for values known to be loaded.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
