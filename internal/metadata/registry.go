package metadata

import (
	"slices"

	"advisorcrm/internal/core/apperror"
)

// Registry stores entity class metadata.
// It is written during start-up, sealed by Freeze and read-only afterwards.
type Registry struct {
	classes map[string]*ClassMetadata
	order   []string
	frozen  bool
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*ClassMetadata),
	}
}

// Get returns class metadata by name.
func (r *Registry) Get(class string) (*ClassMetadata, bool) {
	c, ok := r.classes[class]
	return c, ok
}

// MustGet returns class metadata or panics. Use for classes known to be registered.
func (r *Registry) MustGet(class string) *ClassMetadata {
	c, ok := r.classes[class]
	if !ok {
		panic(apperror.NewProgramming("class %q is not registered", class))
	}
	return c
}

// Classes returns class names in registration order.
func (r *Registry) Classes() []string { return slices.Clone(r.order) }

// Frozen reports whether Freeze has sealed the registry.
func (r *Registry) Frozen() bool { return r.frozen }

// writable returns the metadata for class, creating it on first use.
func (r *Registry) writable(class string) (*ClassMetadata, error) {
	if r.frozen {
		return nil, apperror.NewProgramming("registry is frozen: cannot modify class %q", class)
	}
	if class == "" {
		return nil, apperror.NewProgramming("class name is empty")
	}
	c := r.holder(class)
	c.referencedBy = ""
	return c, nil
}

// holder returns the metadata for class without counting as a declaration.
// A class first created here must still be declared before Freeze.
func (r *Registry) holder(class string) *ClassMetadata {
	c, ok := r.classes[class]
	if !ok {
		c = newClassMetadata(class)
		r.classes[class] = c
		r.order = append(r.order, class)
	}
	return c
}

// RegisterClass declares a class without properties, optionally overriding its table.
func (r *Registry) RegisterClass(class, table string) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if table != "" {
		c.table = table
	}
	return nil
}

// RegisterPersisted marks properties as stored columns.
func (r *Registry) RegisterPersisted(class string, properties ...string) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	for _, p := range properties {
		if p == "" {
			return apperror.NewProgramming("%s: empty property name", class)
		}
		c.markPersisted(p)
	}
	return nil
}

func (c *ClassMetadata) markPersisted(property string) {
	if _, ok := c.persistedSet[property]; ok {
		return
	}
	c.persistedSet[property] = struct{}{}
	c.persisted = append(c.persisted, property)
}

// RegisterRequired marks properties as required. Required implies persisted.
func (r *Registry) RegisterRequired(class string, properties ...string) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	for _, p := range properties {
		if p == "" {
			return apperror.NewProgramming("%s: empty property name", class)
		}
		c.markPersisted(p)
		if _, ok := c.requiredSet[p]; !ok {
			c.requiredSet[p] = struct{}{}
			c.required = append(c.required, p)
		}
	}
	return nil
}

// RegisterDefault sets the default for property. A value of type func() any
// is stored as a generator and called for every new instance.
func (r *Registry) RegisterDefault(class, property string, value any) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if property == "" {
		return apperror.NewProgramming("%s: empty property name", class)
	}
	if fn, ok := value.(func() any); ok {
		if fn == nil {
			return apperror.NewProgramming("%s.%s: nil default generator", class, property)
		}
		c.defaults[property] = Default{Func: fn}
		return nil
	}
	c.defaults[property] = Default{Value: value}
	return nil
}

// Freeze validates cross-class facts and seals the registry.
// Any error leaves the registry unsealed.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	for _, name := range r.order {
		c := r.classes[name]
		if c.referencedBy != "" {
			return apperror.NewProgramming("class %q is referenced by %s but never declared", name, c.referencedBy)
		}
		if err := r.validateRelationships(c); err != nil {
			return err
		}
		if err := r.validateJoinTables(c); err != nil {
			return err
		}
		if err := r.validateJoinedFields(c); err != nil {
			return err
		}
		if err := validateComputed(c); err != nil {
			return err
		}
	}
	if _, err := r.DependencyOrder(); err != nil {
		return err
	}
	for _, c := range r.classes {
		c.frozen = true
	}
	r.frozen = true
	return nil
}
