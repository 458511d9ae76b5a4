package metadata

import "slices"

// ComparisonType is a filter operator.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	Less           ComparisonType = "lt"
	LessOrEqual    ComparisonType = "lte"
	Greater        ComparisonType = "gt"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	NotInList      ComparisonType = "nin"
	Contains       ComparisonType = "contains"  // ILIKE %val%
	NotContains    ComparisonType = "ncontains" // NOT ILIKE %val%
	IsNull         ComparisonType = "null"
	IsNotNull      ComparisonType = "not_null"
)

// Item is one filter condition on a property.
type Item struct {
	Field    string         `json:"field"`
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Include asks a read to hydrate a relationship or join property as well.
type Include struct {
	Property string   `json:"property"`
	Fields   []string `json:"fields,omitempty"`
}

// Filter is a pending read. It is handed to read.before hooks, which may
// narrow it or veto the read.
type Filter struct {
	Class   string    `json:"class"`
	Items   []Item    `json:"items,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
	Include []Include `json:"include,omitempty"`
	OrderBy string    `json:"orderBy,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// Where appends a condition and returns the filter for chaining.
func (f *Filter) Where(field string, op ComparisonType, value any) *Filter {
	f.Items = append(f.Items, Item{Field: field, Operator: op, Value: value})
	return f
}

// HasCondition reports whether any condition targets field.
func (f *Filter) HasCondition(field string) bool {
	return slices.ContainsFunc(f.Items, func(it Item) bool { return it.Field == field })
}

// Clone returns a deep copy of the filter's slices.
func (f *Filter) Clone() *Filter {
	out := *f
	out.Items = slices.Clone(f.Items)
	out.Fields = slices.Clone(f.Fields)
	out.Include = make([]Include, len(f.Include))
	for i, inc := range f.Include {
		out.Include[i] = Include{Property: inc.Property, Fields: slices.Clone(inc.Fields)}
	}
	return &out
}
