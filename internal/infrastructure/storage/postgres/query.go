package postgres

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/metadata"
)

// psql builds statements with PostgreSQL placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// selection returns the persisted properties a read fetches, in declaration
// order. No fields means every persisted property. Calculated attributes are
// replaced by their dependencies and "id" is always fetched.
func selection(meta *metadata.ClassMetadata, fields []string) ([]string, error) {
	if len(fields) == 0 {
		return meta.Persisted(), nil
	}

	want := map[string]struct{}{"id": {}}
	var add func(p string) error
	add = func(p string) error {
		switch {
		case meta.IsPersisted(p):
			want[p] = struct{}{}
		case isCalculated(meta, p):
			a, _ := meta.Computed(p)
			for _, dep := range a.Dependencies {
				if err := add(dep); err != nil {
					return err
				}
			}
		case meta.Declares(p):
			// relationships and joins are fetched as includes
			if rel, ok := meta.Relationship(p); ok && rel.IsRelationRoot {
				want[rel.IDProperty] = struct{}{}
			}
		default:
			return apperror.NewPropertyNotFound(meta.Name(), p)
		}
		return nil
	}
	for _, f := range fields {
		if err := add(f); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(want))
	for _, p := range meta.Persisted() {
		if _, ok := want[p]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func isCalculated(meta *metadata.ClassMetadata, property string) bool {
	a, ok := meta.Computed(property)
	return ok && a.Kind == metadata.KindCalculated
}

// buildSelect turns a filter into a SELECT over the class table. Columns are
// aliased to property names so scanned rows hydrate directly.
func (e *Engine) buildSelect(meta *metadata.ClassMetadata, filter *metadata.Filter) (squirrel.SelectBuilder, []string, error) {
	props, err := selection(meta, filter.Fields)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}
	// owner includes need the local key
	for _, inc := range filter.Include {
		if rel, ok := meta.Relationship(inc.Property); ok && rel.IsRelationRoot && !slices.Contains(props, rel.IDProperty) {
			props = append(props, rel.IDProperty)
		}
	}

	cols := make([]string, len(props))
	for i, p := range props {
		cols[i] = fmt.Sprintf(`%s AS "%s"`, e.columns.column(meta.Name(), p), p)
	}

	q := psql.Select(cols...).From(meta.Table())

	q, err = e.applyFilters(q, meta, filter.Items)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}

	orderBy, err := e.parseOrderBy(meta, filter.OrderBy)
	if err != nil {
		return squirrel.SelectBuilder{}, nil, err
	}
	q = q.OrderBy(orderBy...)

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q, props, nil
}

// applyFilters adds one WHERE condition per item. Only persisted properties
// can be filtered on.
func (e *Engine) applyFilters(q squirrel.SelectBuilder, meta *metadata.ClassMetadata, items []metadata.Item) (squirrel.SelectBuilder, error) {
	for _, item := range items {
		if !meta.IsPersisted(item.Field) {
			return q, apperror.NewValidation("invalid filter field").
				WithDetail("class", meta.Name()).
				WithDetail("field", item.Field)
		}
		col := e.columns.column(meta.Name(), item.Field)

		switch item.Operator {
		case metadata.Equal:
			q = q.Where(squirrel.Eq{col: item.Value})
		case metadata.NotEqual:
			// NULL is "not equal" to any value
			q = q.Where(squirrel.Or{squirrel.NotEq{col: item.Value}, squirrel.Eq{col: nil}})
		case metadata.Less:
			q = q.Where(squirrel.Lt{col: item.Value})
		case metadata.LessOrEqual:
			q = q.Where(squirrel.LtOrEq{col: item.Value})
		case metadata.Greater:
			q = q.Where(squirrel.Gt{col: item.Value})
		case metadata.GreaterOrEqual:
			q = q.Where(squirrel.GtOrEq{col: item.Value})
		case metadata.InList:
			q = q.Where(squirrel.Eq{col: item.Value})
		case metadata.NotInList:
			q = q.Where(squirrel.NotEq{col: item.Value})
		case metadata.IsNull:
			q = q.Where(squirrel.Eq{col: nil})
		case metadata.IsNotNull:
			q = q.Where(squirrel.NotEq{col: nil})
		case metadata.Contains:
			q = q.Where(squirrel.ILike{col: fmt.Sprintf("%%%v%%", item.Value)})
		case metadata.NotContains:
			q = q.Where(squirrel.NotILike{col: fmt.Sprintf("%%%v%%", item.Value)})
		default:
			return q, apperror.NewValidation("unknown filter operator").
				WithDetail("field", item.Field).
				WithDetail("operator", string(item.Operator))
		}
	}
	return q, nil
}

// parseOrderBy accepts a comma separated list of properties, each optionally
// prefixed with "-" for DESC or "+" for ASC. The empty string orders by id.
func (e *Engine) parseOrderBy(meta *metadata.ClassMetadata, orderBy string) ([]string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return []string{e.columns.column(meta.Name(), "id") + " ASC"}, nil
	}

	var out []string
	for _, part := range strings.Split(orderBy, ",") {
		part = strings.TrimSpace(part)
		direction := "ASC"
		field := part
		if strings.HasPrefix(part, "-") {
			direction = "DESC"
			field = strings.TrimPrefix(part, "-")
		} else if strings.HasPrefix(part, "+") {
			field = strings.TrimPrefix(part, "+")
		}

		field = strings.TrimSpace(field)
		if field == "" {
			return nil, apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy)
		}
		if !meta.IsPersisted(field) {
			return nil, apperror.NewValidation("invalid orderBy").WithDetail("orderBy", orderBy).WithDetail("field", field)
		}
		if _, ok := meta.Encryption(field); ok {
			return nil, apperror.NewValidation("cannot order by an encrypted field").WithDetail("field", field)
		}
		out = append(out, e.columns.column(meta.Name(), field)+" "+direction)
	}
	return out, nil
}
