package metadata

import (
	"advisorcrm/internal/core/apperror"
)

// FieldView is the serialisable description of one property.
type FieldView struct {
	Name         string            `json:"name"`
	Kind         FieldKind         `json:"kind"`
	Required     bool              `json:"required,omitempty"`
	HasDefault   bool              `json:"hasDefault,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Dependents   []string          `json:"dependents,omitempty"`
	Cached       bool              `json:"cached,omitempty"`
	Encryption   *EncryptionMarker `json:"encryption,omitempty"`
}

// ClassView is the serialisable description of a class, used by the
// introspection API and CLI.
type ClassView struct {
	Name          string                   `json:"name"`
	Table         string                   `json:"table"`
	Fields        []FieldView              `json:"fields"`
	Relationships []RelationshipDescriptor `json:"relationships,omitempty"`
	JoinTables    []JoinTableDescriptor    `json:"joinTables,omitempty"`
	ReverseJoins  map[string]JoinRef       `json:"reverseJoins,omitempty"`
	JoinedFields  []JoinedFieldDescriptor  `json:"joinedFields,omitempty"`
	Hooks         map[string]int           `json:"hooks,omitempty"`
	Rules         []Rule                   `json:"rules,omitempty"`
}

// Describe builds the view of class.
func (r *Registry) Describe(class string) (ClassView, error) {
	c, ok := r.classes[class]
	if !ok {
		return ClassView{}, apperror.NewNotFound("class", class)
	}

	view := ClassView{
		Name:          c.name,
		Table:         c.table,
		Relationships: c.Relationships(),
		JoinTables:    c.JoinTables(),
		JoinedFields:  c.JoinedFields(),
		Hooks:         make(map[string]int),
	}
	if len(c.reverseJoins) > 0 {
		view.ReverseJoins = c.ReverseJoins()
	}

	for _, p := range c.Properties() {
		f, err := r.LookupField(class, p, nil)
		if err != nil {
			return ClassView{}, err
		}
		fv := FieldView{
			Name:       p,
			Kind:       f.Kind,
			Required:   c.IsRequired(p),
			Dependents: c.Dependents(p),
		}
		_, fv.HasDefault = c.defaults[p]
		if f.Computed != nil {
			fv.Dependencies = f.Computed.Dependencies
			fv.Cached = f.Computed.Cache
		}
		if m, ok := c.encrypted[p]; ok {
			fv.Encryption = &m
		}
		view.Fields = append(view.Fields, fv)
	}

	for _, event := range Events {
		for _, when := range []When{Before, After} {
			if n := c.HookCount(event, when); n > 0 {
				view.Hooks[string(event)+"."+string(when)] = n
			}
		}
	}
	for _, rule := range c.rules {
		view.Rules = append(view.Rules, Rule{Name: rule.Name, Expr: rule.Expr, Message: rule.Message})
	}
	return view, nil
}
