package metadata

import (
	"slices"
	"strings"

	"advisorcrm/internal/core/apperror"
)

// RelationshipDescriptor describes a foreign-key relation from a class property
// to instances of TargetClass.
//
// The root side owns the physical key: IDProperty is a persisted property of
// the declaring class. The reverse side names the root's IDProperty on the target.
type RelationshipDescriptor struct {
	Property       string `json:"property"`
	TargetClass    string `json:"targetClass"`
	IDProperty     string `json:"idProperty,omitempty"`
	ReverseField   string `json:"reverseField,omitempty"`
	IsRelationRoot bool   `json:"isRelationRoot"`
	IsArray        bool   `json:"isArray"`
}

// Relationship returns the relationship declared on property.
func (c *ClassMetadata) Relationship(property string) (RelationshipDescriptor, bool) {
	d, ok := c.relationships[property]
	if !ok {
		return RelationshipDescriptor{}, false
	}
	return *d, true
}

// Relationships returns relationship descriptors in registration order.
func (c *ClassMetadata) Relationships() []RelationshipDescriptor {
	out := make([]RelationshipDescriptor, 0, len(c.relationshipList))
	for _, p := range c.relationshipList {
		out = append(out, *c.relationships[p])
	}
	return out
}

// RootByIDProperty returns the root relationship whose key is idProperty.
func (c *ClassMetadata) RootByIDProperty(idProperty string) (RelationshipDescriptor, bool) {
	p, ok := c.rootByIDProperty[idProperty]
	if !ok {
		return RelationshipDescriptor{}, false
	}
	return *c.relationships[p], true
}

// RegisterRelationship declares a relation on class.
func (r *Registry) RegisterRelationship(class string, d RelationshipDescriptor) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if d.Property == "" || d.TargetClass == "" {
		return apperror.NewProgramming("%s: relationship needs a property and a target class", class)
	}
	if d.IsArray && d.IsRelationRoot {
		return apperror.NewProgramming("%s.%s: a to-many relationship cannot own the foreign key", class, d.Property)
	}
	if d.IsRelationRoot && d.IDProperty == "" {
		return apperror.NewProgramming("%s.%s: root relationship needs an id property", class, d.Property)
	}
	if c.Declares(d.Property) {
		return apperror.NewProgramming("%s.%s: property already declared", class, d.Property)
	}
	if d.IsRelationRoot {
		if owner, ok := c.rootByIDProperty[d.IDProperty]; ok {
			return apperror.NewProgramming("%s.%s: id property %q already owned by %q", class, d.Property, d.IDProperty, owner)
		}
	}

	// The pair may already be half-registered from the other side.
	if d.ReverseField != "" {
		if target, ok := r.classes[d.TargetClass]; ok {
			if other, ok := target.relationships[d.ReverseField]; ok && other.TargetClass == class && other.ReverseField == d.Property {
				if other.IsRelationRoot && d.IsRelationRoot {
					return apperror.NewProgramming("%s.%s and %s.%s both claim to be the relation root",
						class, d.Property, d.TargetClass, d.ReverseField)
				}
			}
		}
	}

	desc := d
	c.relationships[d.Property] = &desc
	c.relationshipList = append(c.relationshipList, d.Property)
	if d.IsRelationRoot {
		c.rootByIDProperty[d.IDProperty] = d.Property
		c.markPersisted(d.IDProperty)
	}
	return nil
}

// validateRelationships checks that every declared pair has exactly one root
// and fills the reverse side's IDProperty from the root.
func (r *Registry) validateRelationships(c *ClassMetadata) error {
	for _, p := range c.relationshipList {
		d := c.relationships[p]
		target, ok := r.classes[d.TargetClass]
		if !ok {
			return apperror.NewProgramming("%s.%s: target class %q is not registered", c.name, p, d.TargetClass)
		}
		if d.ReverseField == "" {
			if !d.IsRelationRoot {
				return apperror.NewProgramming("%s.%s: one-sided relationship must own the foreign key", c.name, p)
			}
			continue
		}
		other, ok := target.relationships[d.ReverseField]
		if !ok {
			return apperror.NewProgramming("%s.%s: reverse field %s.%s is not declared", c.name, p, d.TargetClass, d.ReverseField)
		}
		if other.TargetClass != c.name || other.ReverseField != p {
			return apperror.NewProgramming("%s.%s: reverse field %s.%s points to %s.%s",
				c.name, p, d.TargetClass, d.ReverseField, other.TargetClass, other.ReverseField)
		}
		switch {
		case d.IsRelationRoot && other.IsRelationRoot:
			return apperror.NewProgramming("%s.%s and %s.%s both claim to be the relation root", c.name, p, target.name, other.Property)
		case !d.IsRelationRoot && !other.IsRelationRoot:
			return apperror.NewProgramming("%s.%s and %s.%s: no side owns the foreign key", c.name, p, target.name, other.Property)
		case !d.IsRelationRoot:
			if d.IDProperty == "" {
				d.IDProperty = other.IDProperty
			} else if d.IDProperty != other.IDProperty {
				return apperror.NewProgramming("%s.%s: id property %q does not match root key %s.%s",
					c.name, p, d.IDProperty, target.name, other.IDProperty)
			}
		}
	}
	return nil
}

// DependencyOrder sorts classes so that the targets of root relationships come
// before the classes that hold their keys. Self references are ignored.
func (r *Registry) DependencyOrder() ([]string, error) {
	edges := make(map[string][]string, len(r.order))
	outDegree := make(map[string]int, len(r.order))
	reverse := make(map[string][]string, len(r.order))
	for _, name := range r.order {
		c := r.classes[name]
		for _, p := range c.relationshipList {
			d := c.relationships[p]
			if !d.IsRelationRoot || d.TargetClass == name || slices.Contains(edges[name], d.TargetClass) {
				continue
			}
			if _, ok := r.classes[d.TargetClass]; !ok {
				continue
			}
			edges[name] = append(edges[name], d.TargetClass)
			reverse[d.TargetClass] = append(reverse[d.TargetClass], name)
		}
		outDegree[name] = len(edges[name])
	}

	queue := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if outDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	result := make([]string, 0, len(r.order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)
		for _, dependent := range reverse[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(r.order) {
		var stuck []string
		for _, name := range r.order {
			if !slices.Contains(result, name) {
				stuck = append(stuck, name)
			}
		}
		return nil, apperror.NewProgramming("circular foreign key ownership between %s", strings.Join(stuck, ", "))
	}
	return result, nil
}
