package postgres

import (
	"context"
	"maps"
	"slices"

	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// preload hydrates inc.Property on every parent with one extra query per
// hop. Included rows are fetched without read hooks.
func (e *Engine) preload(ctx context.Context, meta *metadata.ClassMetadata, parents []*entity.Instance, inc metadata.Include) error {
	if len(parents) == 0 {
		return nil
	}
	if rel, ok := meta.Relationship(inc.Property); ok {
		if rel.IsRelationRoot {
			return e.preloadOwner(ctx, parents, rel, inc.Fields)
		}
		return e.preloadOwned(ctx, parents, rel, inc.Fields)
	}
	join, err := e.registry.ResolveJoin(meta.Name(), inc.Property)
	if err != nil {
		return err
	}
	return e.preloadJoin(ctx, parents, join, inc)
}

// preloadOwner follows a root relationship: parents hold the key.
func (e *Engine) preloadOwner(ctx context.Context, parents []*entity.Instance, rel metadata.RelationshipDescriptor, fields []string) error {
	target, err := e.class(rel.TargetClass)
	if err != nil {
		return err
	}

	keys := make([]id.ID, len(parents))
	var want []id.ID
	for i, p := range parents {
		keys[i] = keyOf(p, rel.IDProperty)
		if !id.IsNil(keys[i]) && !slices.Contains(want, keys[i]) {
			want = append(want, keys[i])
		}
	}

	byID := make(map[id.ID]*entity.Instance, len(want))
	if len(want) > 0 {
		owners, err := e.fetchWhereIn(ctx, target, "id", want, fields)
		if err != nil {
			return err
		}
		for _, o := range owners {
			byID[o.ID()] = o
		}
	}

	for i, p := range parents {
		var v any
		if o, ok := byID[keys[i]]; ok {
			v = o
		}
		if err := p.Hydrate(map[string]any{rel.Property: v}); err != nil {
			return err
		}
	}
	return nil
}

// preloadOwned follows the reverse side: the target rows hold the key.
func (e *Engine) preloadOwned(ctx context.Context, parents []*entity.Instance, rel metadata.RelationshipDescriptor, fields []string) error {
	target, err := e.class(rel.TargetClass)
	if err != nil {
		return err
	}
	if len(fields) > 0 && !slices.Contains(fields, rel.IDProperty) {
		fields = append(slices.Clone(fields), rel.IDProperty)
	}

	children, err := e.fetchWhereIn(ctx, target, rel.IDProperty, idsOf(parents), fields)
	if err != nil {
		return err
	}
	groups := make(map[id.ID][]*entity.Instance)
	for _, c := range children {
		k := keyOf(c, rel.IDProperty)
		groups[k] = append(groups[k], c)
	}

	for _, p := range parents {
		group := groups[p.ID()]
		if rel.ReverseField != "" {
			for _, c := range group {
				if err := c.Hydrate(map[string]any{rel.ReverseField: p}); err != nil {
					return err
				}
			}
		}

		var v any
		switch {
		case rel.IsArray:
			if group == nil {
				group = []*entity.Instance{}
			}
			v = group
		case len(group) > 0:
			v = group[0]
		}
		if err := p.Hydrate(map[string]any{rel.Property: v}); err != nil {
			return err
		}
	}
	return nil
}

// preloadJoin walks a join table. Every intermediate row yields its own
// target instance carrying the joined fields of that row.
func (e *Engine) preloadJoin(ctx context.Context, parents []*entity.Instance, join metadata.ResolvedJoin, inc metadata.Include) error {
	linkMeta, err := e.class(join.Descriptor.JoinClass)
	if err != nil {
		return err
	}
	toMeta, err := e.class(join.ToClass())
	if err != nil {
		return err
	}

	links, err := e.fetchWhereIn(ctx, linkMeta, join.FromKey(), idsOf(parents), nil)
	if err != nil {
		return err
	}
	var toIDs []id.ID
	for _, l := range links {
		if k := keyOf(l, join.ToKey()); !id.IsNil(k) && !slices.Contains(toIDs, k) {
			toIDs = append(toIDs, k)
		}
	}

	rowsByID := make(map[id.ID]map[string]any, len(toIDs))
	if len(toIDs) > 0 {
		rows, _, err := e.selectRows(ctx, toMeta, &metadata.Filter{
			Class:  toMeta.Name(),
			Items:  []metadata.Item{{Field: "id", Operator: metadata.InList, Value: toIDs}},
			Fields: inc.Fields,
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			k, _ := id.FromValue(row["id"])
			rowsByID[k] = row
		}
	}

	via := metadata.Traversal{From: join.FromClass(), Property: inc.Property}
	joined := visibleJoinedFields(toMeta, via)

	groups := make(map[id.ID][]*entity.Instance)
	for _, l := range links {
		row, ok := rowsByID[keyOf(l, join.ToKey())]
		if !ok {
			continue
		}
		inst, err := entity.Hydrate(toMeta, maps.Clone(row))
		if err != nil {
			return err
		}
		values := make(map[string]any, len(joined))
		for _, jf := range joined {
			if l.IsLoaded(jf.SourceField) {
				values[jf.Property], _ = l.Get(jf.SourceField)
			}
		}
		if err := inst.HydrateJoined(via, values); err != nil {
			return err
		}
		from := keyOf(l, join.FromKey())
		groups[from] = append(groups[from], inst)
	}

	for _, p := range parents {
		group := groups[p.ID()]
		if group == nil {
			group = []*entity.Instance{}
		}
		if err := p.Hydrate(map[string]any{inc.Property: group}); err != nil {
			return err
		}
	}
	return nil
}

// visibleJoinedFields returns the joined fields of meta reachable through via.
func visibleJoinedFields(meta *metadata.ClassMetadata, via metadata.Traversal) []metadata.JoinedFieldDescriptor {
	var out []metadata.JoinedFieldDescriptor
	for _, jf := range meta.JoinedFields() {
		if slices.Contains(jf.Via, metadata.JoinRef{Class: via.From, Property: via.Property}) {
			out = append(out, jf)
		}
	}
	return out
}

// fetchWhereIn loads instances of meta whose property is one of keys.
func (e *Engine) fetchWhereIn(ctx context.Context, meta *metadata.ClassMetadata, property string, keys []id.ID, fields []string) ([]*entity.Instance, error) {
	rows, _, err := e.selectRows(ctx, meta, &metadata.Filter{
		Class:  meta.Name(),
		Items:  []metadata.Item{{Field: property, Operator: metadata.InList, Value: keys}},
		Fields: fields,
	})
	if err != nil {
		return nil, err
	}
	return hydrateAll(meta, rows)
}

func idsOf(instances []*entity.Instance) []id.ID {
	out := make([]id.ID, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.ID())
	}
	return out
}

// keyOf reads a key property, returning Nil when it is unloaded or NULL.
func keyOf(inst *entity.Instance, property string) id.ID {
	if !inst.IsLoaded(property) {
		return id.Nil()
	}
	v, err := inst.Get(property)
	if err != nil || v == nil {
		return id.Nil()
	}
	k, err := id.FromValue(v)
	if err != nil {
		return id.Nil()
	}
	return k
}
