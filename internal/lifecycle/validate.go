package lifecycle

import (
	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
)

// Validate checks required properties and class rules. New instances must
// carry every required property; stored ones are checked for what is loaded.
func Validate(inst *entity.Instance) error {
	meta := inst.Meta()
	for _, p := range meta.Required() {
		if !inst.IsLoaded(p) {
			if inst.IsNew() {
				return requiredError(inst.Class(), p)
			}
			continue
		}
		v, err := inst.Get(p)
		if err != nil {
			return err
		}
		if isEmpty(v) {
			return requiredError(inst.Class(), p)
		}
	}

	values := inst.Values()
	for _, rule := range meta.Rules() {
		if err := rule.Check(inst.Class(), values); err != nil {
			return err
		}
	}
	return nil
}

func requiredError(class, property string) error {
	return apperror.NewValidation(property+" is required").
		WithDetail("class", class).
		WithDetail("field", property)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
