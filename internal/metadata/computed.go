package metadata

import (
	"slices"

	"advisorcrm/internal/core/apperror"
)

// ComputedKind distinguishes ephemeral from stored derived attributes.
type ComputedKind string

const (
	// KindCalculated attributes are derived on read and never stored.
	KindCalculated ComputedKind = "calculated"
	// KindComputed attributes are stored and rewritten when a dependency changes.
	KindComputed ComputedKind = "computed"
)

// ComputeFunc derives an attribute from a record whose dependencies are loaded.
type ComputeFunc func(rec Record) (any, error)

// UpdateFunc merges a dependency change into the current stored value instead
// of overwriting it.
type UpdateFunc func(rec Record, current any) (any, error)

// ComputedAttribute describes a derived attribute.
type ComputedAttribute struct {
	Name         string       `json:"name"`
	Kind         ComputedKind `json:"kind"`
	Dependencies []string     `json:"dependencies"`
	Compute      ComputeFunc  `json:"-"`
	Update       UpdateFunc   `json:"-"`
	Cache        bool         `json:"cache,omitempty"`
}

// Persisted reports whether the attribute is stored.
func (a ComputedAttribute) Persisted() bool { return a.Kind == KindComputed }

// Computed returns the derived attribute named property.
func (c *ClassMetadata) Computed(property string) (ComputedAttribute, bool) {
	d, ok := c.computed[property]
	if !ok {
		return ComputedAttribute{}, false
	}
	return *d, true
}

// ComputedAttributes returns derived attributes in registration order.
func (c *ClassMetadata) ComputedAttributes() []ComputedAttribute {
	out := make([]ComputedAttribute, 0, len(c.computedList))
	for _, p := range c.computedList {
		out = append(out, *c.computed[p])
	}
	return out
}

// Dependents returns the attributes that declare key as a direct dependency,
// in registration order.
func (c *ClassMetadata) Dependents(key string) []string {
	return slices.Clone(c.dependents[key])
}

// DependencyMap returns a copy of the inverted dependency map.
func (c *ClassMetadata) DependencyMap() map[string][]string {
	out := make(map[string][]string, len(c.dependents))
	for k, v := range c.dependents {
		out[k] = slices.Clone(v)
	}
	return out
}

// RegisterCalculated declares an ephemeral derived attribute.
func (r *Registry) RegisterCalculated(class string, a ComputedAttribute) error {
	if a.Update != nil {
		return apperror.NewProgramming("%s.%s: calculated attributes cannot declare an update function", class, a.Name)
	}
	a.Kind = KindCalculated
	return r.registerDerived(class, a)
}

// RegisterComputed declares a stored derived attribute. The attribute becomes persisted.
func (r *Registry) RegisterComputed(class string, a ComputedAttribute) error {
	a.Kind = KindComputed
	return r.registerDerived(class, a)
}

func (r *Registry) registerDerived(class string, a ComputedAttribute) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if a.Name == "" {
		return apperror.NewProgramming("%s: derived attribute needs a name", class)
	}
	if a.Compute == nil {
		return apperror.NewProgramming("%s.%s: compute function is nil", class, a.Name)
	}
	if len(a.Dependencies) == 0 {
		return apperror.NewProgramming("%s.%s: derived attribute has no dependencies", class, a.Name)
	}
	if _, ok := c.computed[a.Name]; ok {
		return apperror.NewProgramming("%s.%s: derived attribute already declared", class, a.Name)
	}
	if _, ok := c.relationships[a.Name]; ok {
		return apperror.NewProgramming("%s.%s: derived attribute shadows a relationship", class, a.Name)
	}
	if a.Kind == KindCalculated && c.IsPersisted(a.Name) {
		return apperror.NewProgramming("%s.%s: calculated attribute shadows a persisted property", class, a.Name)
	}
	seen := make(map[string]struct{}, len(a.Dependencies))
	for _, dep := range a.Dependencies {
		if dep == a.Name {
			return apperror.NewProgramming("%s.%s: attribute depends on itself", class, a.Name)
		}
		if _, dup := seen[dep]; dup {
			return apperror.NewProgramming("%s.%s: dependency %q listed twice", class, a.Name, dep)
		}
		seen[dep] = struct{}{}
	}

	desc := a
	desc.Dependencies = slices.Clone(a.Dependencies)
	c.computed[a.Name] = &desc
	c.computedList = append(c.computedList, a.Name)
	for _, dep := range desc.Dependencies {
		c.dependents[dep] = append(c.dependents[dep], a.Name)
	}
	if desc.Persisted() {
		c.markPersisted(a.Name)
	}
	return nil
}

// validateComputed checks that dependencies are declared, that calculated
// attributes are never dependencies, and that stored attributes form no cycle.
func validateComputed(c *ClassMetadata) error {
	for _, name := range c.computedList {
		a := c.computed[name]
		for _, dep := range a.Dependencies {
			if !c.Declares(dep) {
				return apperror.NewProgramming("%s.%s: dependency %q is not declared", c.name, name, dep)
			}
			if d, ok := c.computed[dep]; ok && d.Kind == KindCalculated {
				return apperror.NewProgramming("%s.%s: dependency %q is a calculated attribute", c.name, name, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.computedList))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return apperror.NewProgramming("%s: derived attribute cycle %v", c.name, append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range c.computed[name].Dependencies {
			if _, ok := c.computed[dep]; !ok {
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, name := range c.computedList {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
