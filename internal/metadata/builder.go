package metadata

// ClassBuilder is the declarative form of the Register* operations for one
// class. Every call funnels into the registry; the first failure is kept and
// later calls become no-ops.
//
//	reg.Define("Contact", func(b *metadata.ClassBuilder) {
//		b.Required("firstName", "lastName").
//			Persisted("phone").
//			BelongsTo("household", "Household", "householdId", "members").
//			Before(metadata.EventCreate, canonicalPhone)
//	})
type ClassBuilder struct {
	reg   *Registry
	class string
	err   error
}

// Define runs fn against a builder for class and returns the first
// configuration fault it produced.
func (r *Registry) Define(class string, fn func(b *ClassBuilder)) error {
	b := &ClassBuilder{reg: r, class: class}
	b.err = r.RegisterClass(class, "")
	if b.err == nil {
		fn(b)
	}
	return b.err
}

// MustDefine is Define for start-up code; it panics on a configuration fault.
func (r *Registry) MustDefine(class string, fn func(b *ClassBuilder)) {
	if err := r.Define(class, fn); err != nil {
		panic(err)
	}
}

// Err returns the first error recorded so far.
func (b *ClassBuilder) Err() error { return b.err }

func (b *ClassBuilder) do(fn func() error) *ClassBuilder {
	if b.err == nil {
		b.err = fn()
	}
	return b
}

func (b *ClassBuilder) Table(name string) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterClass(b.class, name) })
}

func (b *ClassBuilder) Persisted(properties ...string) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterPersisted(b.class, properties...) })
}

func (b *ClassBuilder) Required(properties ...string) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterRequired(b.class, properties...) })
}

func (b *ClassBuilder) Default(property string, value any) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterDefault(b.class, property, value) })
}

// Inspect registers the facts carried by a struct's tags.
func (b *ClassBuilder) Inspect(v any) *ClassBuilder {
	return b.do(func() error { return b.reg.Inspect(b.class, v) })
}

func (b *ClassBuilder) Relationship(d RelationshipDescriptor) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterRelationship(b.class, d) })
}

// BelongsTo declares a single relation owning the foreign key idProperty.
func (b *ClassBuilder) BelongsTo(property, target, idProperty, reverse string) *ClassBuilder {
	return b.Relationship(RelationshipDescriptor{
		Property:       property,
		TargetClass:    target,
		IDProperty:     idProperty,
		ReverseField:   reverse,
		IsRelationRoot: true,
	})
}

// HasMany declares the to-many reverse side of a BelongsTo on target.
func (b *ClassBuilder) HasMany(property, target, reverse string) *ClassBuilder {
	return b.Relationship(RelationshipDescriptor{
		Property:     property,
		TargetClass:  target,
		ReverseField: reverse,
		IsArray:      true,
	})
}

// HasOne declares the single reverse side of a BelongsTo on target.
func (b *ClassBuilder) HasOne(property, target, reverse string) *ClassBuilder {
	return b.Relationship(RelationshipDescriptor{
		Property:     property,
		TargetClass:  target,
		ReverseField: reverse,
	})
}

func (b *ClassBuilder) JoinTable(d JoinTableDescriptor) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterJoinTable(b.class, d) })
}

// Joined exposes sourceField of an intermediate class as property when the
// class is reached through one of via.
func (b *ClassBuilder) Joined(property, sourceField string, via ...JoinRef) *ClassBuilder {
	return b.do(func() error {
		return b.reg.RegisterJoinedField(b.class, JoinedFieldDescriptor{Property: property, SourceField: sourceField, Via: via})
	})
}

// Calculated declares an ephemeral attribute.
func (b *ClassBuilder) Calculated(name string, deps []string, fn ComputeFunc, cache bool) *ClassBuilder {
	return b.do(func() error {
		return b.reg.RegisterCalculated(b.class, ComputedAttribute{Name: name, Dependencies: deps, Compute: fn, Cache: cache})
	})
}

// Computed declares a stored attribute. update may be nil.
func (b *ClassBuilder) Computed(name string, deps []string, fn ComputeFunc, update UpdateFunc) *ClassBuilder {
	return b.do(func() error {
		return b.reg.RegisterComputed(b.class, ComputedAttribute{Name: name, Dependencies: deps, Compute: fn, Update: update})
	})
}

func (b *ClassBuilder) Hook(event Event, when When, h Handler) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterHook(b.class, event, when, h) })
}

func (b *ClassBuilder) Before(event Event, h Handler) *ClassBuilder { return b.Hook(event, Before, h) }
func (b *ClassBuilder) After(event Event, h Handler) *ClassBuilder  { return b.Hook(event, After, h) }

func (b *ClassBuilder) Encrypted(field string, dtype DType) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterEncrypted(b.class, field, dtype) })
}

func (b *ClassBuilder) UniqueEncrypted(field string, dtype DType) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterUniqueEncrypted(b.class, field, dtype) })
}

func (b *ClassBuilder) Rule(name, expr, message string) *ClassBuilder {
	return b.do(func() error { return b.reg.RegisterRule(b.class, name, expr, message) })
}
