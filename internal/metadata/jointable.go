package metadata

import (
	"advisorcrm/internal/core/apperror"
)

// JoinIDMode says how rows of the intermediate class are keyed.
type JoinIDMode string

const (
	// JoinIDNone keys intermediate rows by the two foreign keys.
	JoinIDNone JoinIDMode = "none"
	// JoinIDGenerated gives every intermediate row its own id.
	JoinIDGenerated JoinIDMode = "generated"
)

// JoinTableDescriptor describes a many-to-many property realised through rows
// of JoinClass. ThisForeignKey references the declaring class, OtherForeignKey
// references TargetClass. JoinField is the declaring class's property that
// holds the intermediate rows when they are loaded. ReverseJoinField, if set,
// is the property on TargetClass exposing the same join from the other end.
type JoinTableDescriptor struct {
	Property         string     `json:"property"`
	TargetClass      string     `json:"targetClass"`
	JoinClass        string     `json:"joinClass"`
	JoinField        string     `json:"joinField,omitempty"`
	ThisForeignKey   string     `json:"thisForeignKey"`
	OtherForeignKey  string     `json:"otherForeignKey"`
	IDMode           JoinIDMode `json:"idMode"`
	ReverseJoinField string     `json:"reverseJoinField,omitempty"`
}

// JoinRef points at the owning side of a join table.
type JoinRef struct {
	Class    string `json:"class"`
	Property string `json:"property"`
}

// JoinDirection tells whether a join is walked from its declaring class or from the target.
type JoinDirection int

const (
	JoinForward JoinDirection = iota
	JoinReverse
)

func (d JoinDirection) String() string {
	if d == JoinReverse {
		return "reverse"
	}
	return "forward"
}

// ResolvedJoin is a join table as seen from one of its two ends.
type ResolvedJoin struct {
	Descriptor JoinTableDescriptor
	Owner      string
	Direction  JoinDirection
}

// FromClass returns the class the traversal starts at.
func (j ResolvedJoin) FromClass() string {
	if j.Direction == JoinReverse {
		return j.Descriptor.TargetClass
	}
	return j.Owner
}

// ToClass returns the class whose instances the join yields.
func (j ResolvedJoin) ToClass() string {
	if j.Direction == JoinReverse {
		return j.Owner
	}
	return j.Descriptor.TargetClass
}

// FromKey is the intermediate column referencing FromClass.
func (j ResolvedJoin) FromKey() string {
	if j.Direction == JoinReverse {
		return j.Descriptor.OtherForeignKey
	}
	return j.Descriptor.ThisForeignKey
}

// ToKey is the intermediate column referencing ToClass.
func (j ResolvedJoin) ToKey() string {
	if j.Direction == JoinReverse {
		return j.Descriptor.ThisForeignKey
	}
	return j.Descriptor.OtherForeignKey
}

// JoinedFieldDescriptor exposes SourceField of an intermediate class as
// Property on the declaring (target) class. It resolves only when the target
// is reached through one of the Via join properties.
type JoinedFieldDescriptor struct {
	Property    string    `json:"property"`
	SourceField string    `json:"sourceField"`
	Via         []JoinRef `json:"via"`
}

// Traversal is the hop that led to an instance: Property on class From.
type Traversal struct {
	From     string
	Property string
}

// JoinTable returns the join table declared on property.
func (c *ClassMetadata) JoinTable(property string) (JoinTableDescriptor, bool) {
	d, ok := c.joinTables[property]
	if !ok {
		return JoinTableDescriptor{}, false
	}
	return *d, true
}

// JoinTables returns join tables declared on the class in registration order.
func (c *ClassMetadata) JoinTables() []JoinTableDescriptor {
	out := make([]JoinTableDescriptor, 0, len(c.joinList))
	for _, p := range c.joinList {
		out = append(out, *c.joinTables[p])
	}
	return out
}

// ReverseJoins returns properties of this class that walk a join table declared elsewhere.
func (c *ClassMetadata) ReverseJoins() map[string]JoinRef {
	out := make(map[string]JoinRef, len(c.reverseJoins))
	for k, v := range c.reverseJoins {
		out[k] = v
	}
	return out
}

// JoinedField returns the joined field descriptor for property.
func (c *ClassMetadata) JoinedField(property string) (JoinedFieldDescriptor, bool) {
	d, ok := c.joinedFields[property]
	if !ok {
		return JoinedFieldDescriptor{}, false
	}
	return *d, true
}

// JoinedFields returns every joined field declared for the class.
func (c *ClassMetadata) JoinedFields() []JoinedFieldDescriptor {
	out := make([]JoinedFieldDescriptor, 0, len(c.joinedList))
	for _, p := range c.joinedList {
		out = append(out, *c.joinedFields[p])
	}
	return out
}

// RegisterJoinTable declares a many-to-many property on class and indexes
// the reverse property on the target.
func (r *Registry) RegisterJoinTable(class string, d JoinTableDescriptor) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if d.Property == "" || d.TargetClass == "" || d.JoinClass == "" {
		return apperror.NewProgramming("%s: join table needs a property, target class and join class", class)
	}
	if d.ThisForeignKey == "" || d.OtherForeignKey == "" {
		return apperror.NewProgramming("%s.%s: join table needs both foreign keys", class, d.Property)
	}
	if d.ThisForeignKey == d.OtherForeignKey {
		return apperror.NewProgramming("%s.%s: join foreign keys must differ", class, d.Property)
	}
	switch d.IDMode {
	case "":
		d.IDMode = JoinIDNone
	case JoinIDNone, JoinIDGenerated:
	default:
		return apperror.NewProgramming("%s.%s: unknown join id mode %q", class, d.Property, d.IDMode)
	}
	if c.Declares(d.Property) {
		return apperror.NewProgramming("%s.%s: property already declared", class, d.Property)
	}

	if d.ReverseJoinField != "" {
		_, known := r.classes[d.TargetClass]
		target := r.holder(d.TargetClass)
		if !known {
			target.referencedBy = class + "." + d.Property
		}
		if target.Declares(d.ReverseJoinField) {
			return apperror.NewProgramming("%s.%s: reverse join field %s.%s already declared",
				class, d.Property, d.TargetClass, d.ReverseJoinField)
		}
		target.reverseJoins[d.ReverseJoinField] = JoinRef{Class: class, Property: d.Property}
	}

	desc := d
	c.joinTables[d.Property] = &desc
	c.joinList = append(c.joinList, d.Property)
	return nil
}

// RegisterJoinedField declares a field of an intermediate class that shows up
// on class instances reached through one of d.Via.
func (r *Registry) RegisterJoinedField(class string, d JoinedFieldDescriptor) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if d.Property == "" || len(d.Via) == 0 {
		return apperror.NewProgramming("%s: joined field needs a property and at least one join path", class)
	}
	if c.Declares(d.Property) {
		return apperror.NewProgramming("%s.%s: joined field shadows a declared property", class, d.Property)
	}
	if _, ok := c.joinedFields[d.Property]; ok {
		return apperror.NewProgramming("%s.%s: joined field already declared", class, d.Property)
	}
	if d.SourceField == "" {
		d.SourceField = d.Property
	}
	desc := d
	desc.Via = append([]JoinRef(nil), d.Via...)
	c.joinedFields[d.Property] = &desc
	c.joinedList = append(c.joinedList, d.Property)
	return nil
}

// ResolveJoin returns the join table behind class.property and the direction
// it is walked in.
func (r *Registry) ResolveJoin(class, property string) (ResolvedJoin, error) {
	c, ok := r.classes[class]
	if !ok {
		return ResolvedJoin{}, apperror.NewPropertyNotFound(class, property)
	}
	if d, ok := c.joinTables[property]; ok {
		return ResolvedJoin{Descriptor: *d, Owner: class, Direction: JoinForward}, nil
	}
	if ref, ok := c.reverseJoins[property]; ok {
		owner := r.classes[ref.Class]
		return ResolvedJoin{Descriptor: *owner.joinTables[ref.Property], Owner: ref.Class, Direction: JoinReverse}, nil
	}
	return ResolvedJoin{}, apperror.NewPropertyNotFound(class, property)
}

func (r *Registry) validateJoinTables(c *ClassMetadata) error {
	for _, p := range c.joinList {
		d := c.joinTables[p]
		if _, ok := r.classes[d.TargetClass]; !ok {
			return apperror.NewProgramming("%s.%s: target class %q is not registered", c.name, p, d.TargetClass)
		}
		join, ok := r.classes[d.JoinClass]
		if !ok {
			return apperror.NewProgramming("%s.%s: join class %q is not registered", c.name, p, d.JoinClass)
		}
		for _, fk := range []string{d.ThisForeignKey, d.OtherForeignKey} {
			if !join.IsPersisted(fk) {
				return apperror.NewProgramming("%s.%s: %s.%s is not persisted", c.name, p, d.JoinClass, fk)
			}
		}
		if d.IDMode == JoinIDGenerated && !join.IsPersisted("id") {
			return apperror.NewProgramming("%s.%s: join class %s has no id", c.name, p, d.JoinClass)
		}
	}
	return nil
}

// validateJoinedFields checks that every Via path is a join leading to the
// declaring class and that the source field exists on its intermediate class.
func (r *Registry) validateJoinedFields(c *ClassMetadata) error {
	for _, p := range c.joinedList {
		d := c.joinedFields[p]
		for _, via := range d.Via {
			join, err := r.ResolveJoin(via.Class, via.Property)
			if err != nil {
				return apperror.NewProgramming("%s.%s: join path %s.%s is not declared", c.name, d.Property, via.Class, via.Property)
			}
			if join.ToClass() != c.name {
				return apperror.NewProgramming("%s.%s: join path %s.%s leads to %s",
					c.name, d.Property, via.Class, via.Property, join.ToClass())
			}
			if jc, ok := r.classes[join.Descriptor.JoinClass]; !ok || !jc.IsPersisted(d.SourceField) {
				return apperror.NewProgramming("%s.%s: %s.%s is not persisted",
					c.name, d.Property, join.Descriptor.JoinClass, d.SourceField)
			}
		}
	}
	return nil
}

// FieldKind classifies a resolved property.
type FieldKind string

const (
	FieldPersisted    FieldKind = "persisted"
	FieldComputed     FieldKind = "computed"
	FieldCalculated   FieldKind = "calculated"
	FieldRelationship FieldKind = "relationship"
	FieldJoinTable    FieldKind = "jointable"
	FieldJoined       FieldKind = "joined"
)

// Field is the result of LookupField.
type Field struct {
	Class        string
	Name         string
	Kind         FieldKind
	Relationship *RelationshipDescriptor
	Join         *ResolvedJoin
	Computed     *ComputedAttribute
	Joined       *JoinedFieldDescriptor
}

// LookupField resolves class.property. via is the join hop the instance was
// reached through, or nil for a top-level read. Joined fields resolve only
// when via matches one of their declared paths.
func (r *Registry) LookupField(class, property string, via *Traversal) (Field, error) {
	c, ok := r.classes[class]
	if !ok {
		return Field{}, apperror.NewPropertyNotFound(class, property)
	}
	f := Field{Class: class, Name: property}

	if d, ok := c.computed[property]; ok {
		f.Kind = FieldComputed
		if d.Kind == KindCalculated {
			f.Kind = FieldCalculated
		}
		cp := *d
		f.Computed = &cp
		return f, nil
	}
	if d, ok := c.relationships[property]; ok {
		cp := *d
		f.Kind = FieldRelationship
		f.Relationship = &cp
		return f, nil
	}
	if _, ok := c.joinTables[property]; ok {
		return r.joinField(f, class, property)
	}
	if _, ok := c.reverseJoins[property]; ok {
		return r.joinField(f, class, property)
	}
	if c.IsPersisted(property) {
		f.Kind = FieldPersisted
		return f, nil
	}
	if d, ok := c.joinedFields[property]; ok && via != nil {
		for _, path := range d.Via {
			if path.Class == via.From && path.Property == via.Property {
				cp := *d
				f.Kind = FieldJoined
				f.Joined = &cp
				return f, nil
			}
		}
	}
	return Field{}, apperror.NewPropertyNotFound(class, property)
}

func (r *Registry) joinField(f Field, class, property string) (Field, error) {
	join, err := r.ResolveJoin(class, property)
	if err != nil {
		return Field{}, err
	}
	f.Kind = FieldJoinTable
	f.Join = &join
	return f, nil
}
