package entity

import (
	"fmt"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/metadata"
)

// calculate evaluates a calculated attribute. Dependencies are checked in
// declared order and the first missing one is reported.
func (i *Instance) calculate(a metadata.ComputedAttribute) (any, error) {
	if missing := i.firstMissing(a); missing != "" {
		return nil, apperror.NewUnloadedDependency(i.Class(), a.Name, missing)
	}
	if a.Cache && i.cached[a.Name] {
		return i.cache[a.Name], nil
	}
	v, err := a.Compute(i)
	if err != nil {
		return nil, fmt.Errorf("calculate %s.%s: %w", i.Class(), a.Name, err)
	}
	if a.Cache {
		i.cache[a.Name] = v
		i.cached[a.Name] = true
	}
	return v, nil
}

func (i *Instance) firstMissing(a metadata.ComputedAttribute) string {
	for _, dep := range a.Dependencies {
		if _, ok := i.loaded[dep]; !ok {
			return dep
		}
	}
	return ""
}

// invalidate drops cached calculated dependents of key. Any write counts,
// including one that stores an identical value.
func (i *Instance) invalidate(key string) {
	for _, name := range i.meta.Dependents(key) {
		delete(i.cached, name)
		delete(i.cache, name)
	}
}

// checkUpdatable walks the stored dependents key would cascade into. An
// update function folds the previous value into the next one, so on a stored
// instance that value has to be hydrated before any of its inputs change.
func (i *Instance) checkUpdatable(key string) error {
	seen := map[string]struct{}{key: {}}
	queue := []string{key}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, name := range i.meta.Dependents(k) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			a, _ := i.meta.Computed(name)
			if a.Kind == metadata.KindCalculated {
				continue
			}
			if !i.isNew && a.Update != nil {
				if _, ok := i.loaded[name]; !ok {
					return apperror.NewUnloadedDependency(i.Class(), key, name)
				}
			}
			queue = append(queue, name)
		}
	}
	return nil
}

// cascade re-evaluates the direct dependents of key. Calculated dependents are
// invalidated. Stored dependents are recomputed once all their dependencies
// are loaded and written back through Set, so declared chains continue.
func (i *Instance) cascade(key string) error {
	for _, name := range i.meta.Dependents(key) {
		a, _ := i.meta.Computed(name)
		if a.Kind == metadata.KindCalculated {
			delete(i.cached, name)
			delete(i.cache, name)
			continue
		}
		if i.firstMissing(a) != "" {
			continue
		}

		var (
			v   any
			err error
		)
		if a.Update != nil {
			v, err = a.Update(i, i.values[name])
		} else {
			v, err = a.Compute(i)
		}
		if err != nil {
			return fmt.Errorf("compute %s.%s: %w", i.Class(), name, err)
		}
		if err := i.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
