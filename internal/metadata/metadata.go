// Package metadata holds the per-class schema facts of the CRM entity engine:
// persisted and required properties, defaults, relationships, join tables,
// derived attributes, lifecycle hooks, encryption markers and validation rules.
//
// A Registry is populated once during start-up and sealed with Freeze.
// After that it is read-only and safe for concurrent use without locking.
package metadata

import (
	"slices"
	"strings"
	"unicode"
)

// Default is a default value for a property. Func, when set, is called for
// every new instance (id generators, timestamps); otherwise Value is copied.
type Default struct {
	Value any
	Func  func() any
}

// Resolve returns the default value for a new instance.
func (d Default) Resolve() any {
	if d.Func != nil {
		return d.Func()
	}
	return d.Value
}

// ClassMetadata describes one entity class.
type ClassMetadata struct {
	name  string
	table string

	persisted    []string
	persistedSet map[string]struct{}
	required     []string
	requiredSet  map[string]struct{}
	defaults     map[string]Default

	relationships    map[string]*RelationshipDescriptor
	relationshipList []string
	rootByIDProperty map[string]string

	joinTables   map[string]*JoinTableDescriptor
	joinList     []string
	reverseJoins map[string]JoinRef
	joinedFields map[string]*JoinedFieldDescriptor
	joinedList   []string

	computed     map[string]*ComputedAttribute
	computedList []string
	dependents   map[string][]string

	hooks map[bucket][]Handler

	encrypted     map[string]EncryptionMarker
	encryptedList []string

	rules []*Rule

	// set while the class exists only as the target of a reverse join
	referencedBy string
	frozen       bool
}

func newClassMetadata(name string) *ClassMetadata {
	return &ClassMetadata{
		name:             name,
		table:            TableName(name),
		persistedSet:     make(map[string]struct{}),
		requiredSet:      make(map[string]struct{}),
		defaults:         make(map[string]Default),
		relationships:    make(map[string]*RelationshipDescriptor),
		rootByIDProperty: make(map[string]string),
		joinTables:       make(map[string]*JoinTableDescriptor),
		reverseJoins:     make(map[string]JoinRef),
		joinedFields:     make(map[string]*JoinedFieldDescriptor),
		computed:         make(map[string]*ComputedAttribute),
		dependents:       make(map[string][]string),
		hooks:            make(map[bucket][]Handler),
		encrypted:        make(map[string]EncryptionMarker),
	}
}

// Name returns the class name.
func (c *ClassMetadata) Name() string { return c.name }

// Frozen reports whether the owning registry has been sealed.
func (c *ClassMetadata) Frozen() bool { return c.frozen }

// Table returns the storage table name.
func (c *ClassMetadata) Table() string { return c.table }

// Persisted returns persisted properties in registration order.
func (c *ClassMetadata) Persisted() []string { return slices.Clone(c.persisted) }

// IsPersisted reports whether property is stored.
func (c *ClassMetadata) IsPersisted(property string) bool {
	_, ok := c.persistedSet[property]
	return ok
}

// Required returns required properties in registration order.
func (c *ClassMetadata) Required() []string { return slices.Clone(c.required) }

// IsRequired reports whether property must be non-empty before a write.
func (c *ClassMetadata) IsRequired(property string) bool {
	_, ok := c.requiredSet[property]
	return ok
}

// Default returns the default registered for property.
func (c *ClassMetadata) Default(property string) (Default, bool) {
	d, ok := c.defaults[property]
	return d, ok
}

// Defaults returns a copy of all registered defaults.
func (c *ClassMetadata) Defaults() map[string]Default {
	out := make(map[string]Default, len(c.defaults))
	for k, v := range c.defaults {
		out[k] = v
	}
	return out
}

// Declares reports whether property is part of the class's own schema.
// Joined fields are not: they only exist through a join traversal.
func (c *ClassMetadata) Declares(property string) bool {
	if c.IsPersisted(property) {
		return true
	}
	if _, ok := c.computed[property]; ok {
		return true
	}
	if _, ok := c.relationships[property]; ok {
		return true
	}
	if _, ok := c.joinTables[property]; ok {
		return true
	}
	_, ok := c.reverseJoins[property]
	return ok
}

// Properties returns every declared property: persisted first, then derived
// attributes, relationships and join properties.
func (c *ClassMetadata) Properties() []string {
	out := slices.Clone(c.persisted)
	seen := make(map[string]struct{}, len(out))
	for _, p := range out {
		seen[p] = struct{}{}
	}
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range c.computedList {
		add(p)
	}
	for _, p := range c.relationshipList {
		add(p)
	}
	for _, p := range c.joinList {
		add(p)
	}
	reverse := make([]string, 0, len(c.reverseJoins))
	for p := range c.reverseJoins {
		reverse = append(reverse, p)
	}
	slices.Sort(reverse)
	for _, p := range reverse {
		add(p)
	}
	return out
}

// TableName derives a snake_case plural table name from a class name:
// "ActivityParticipant" -> "activity_participants".
func TableName(class string) string {
	name := SnakeCase(class)
	switch {
	case strings.HasSuffix(name, "s"):
		return name + "es"
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ey"):
		return strings.TrimSuffix(name, "y") + "ies"
	default:
		return name + "s"
	}
}

// SnakeCase converts a property name to its column name: "householdId" -> "household_id".
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
