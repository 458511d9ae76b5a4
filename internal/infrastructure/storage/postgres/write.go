package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// classBatch is the slice of a write batch belonging to one class.
type classBatch struct {
	meta      *metadata.ClassMetadata
	instances []*entity.Instance
}

// planWrite groups instances by class in dependency order: targets of root
// relationships come before the classes holding their keys. A root
// relationship pointing at an unsaved instance outside the batch cannot be
// written.
func (e *Engine) planWrite(instances []*entity.Instance) ([]classBatch, error) {
	order, err := e.registry.DependencyOrder()
	if err != nil {
		return nil, err
	}

	inBatch := make(map[*entity.Instance]struct{}, len(instances))
	byClass := make(map[string][]*entity.Instance)
	for _, inst := range instances {
		inBatch[inst] = struct{}{}
		byClass[inst.Class()] = append(byClass[inst.Class()], inst)
	}

	for _, inst := range instances {
		for _, rel := range inst.Meta().Relationships() {
			target := relatedInstance(inst, rel)
			if target == nil || !target.IsNew() {
				continue
			}
			if _, ok := inBatch[target]; !ok {
				return nil, apperror.NewProgramming("%s.%s references an unsaved %s outside the batch",
					inst.Class(), rel.Property, target.Class())
			}
		}
	}

	plan := make([]classBatch, 0, len(byClass))
	for _, class := range order {
		group, ok := byClass[class]
		if !ok {
			continue
		}
		meta, err := e.class(class)
		if err != nil {
			return nil, err
		}
		plan = append(plan, classBatch{meta: meta, instances: group})
	}
	return plan, nil
}

// relatedInstance returns the instance assigned to a loaded root relationship.
func relatedInstance(inst *entity.Instance, rel metadata.RelationshipDescriptor) *entity.Instance {
	if !rel.IsRelationRoot || !inst.IsLoaded(rel.Property) {
		return nil
	}
	v, err := inst.Get(rel.Property)
	if err != nil {
		return nil
	}
	target, _ := v.(*entity.Instance)
	return target
}

// insertValues returns the sealed persisted values of a new instance. Keys of
// root relationships assigned before their target had an id are filled here.
func (e *Engine) insertValues(inst *entity.Instance) (entity.Attributes, error) {
	values := inst.Values()
	for _, rel := range inst.Meta().Relationships() {
		target := relatedInstance(inst, rel)
		if target == nil {
			continue
		}
		if v, ok := values[rel.IDProperty]; !ok || v == nil {
			values[rel.IDProperty] = target.ID()
		}
	}
	return e.codec.Seal(inst.Meta(), inst.ID(), values)
}

// insertStatement builds one multi-row INSERT. Columns not loaded on a row
// take their column DEFAULT.
func (e *Engine) insertStatement(batch classBatch) (string, []any, error) {
	rows := make([]entity.Attributes, len(batch.instances))
	present := make(map[string]struct{})
	for i, inst := range batch.instances {
		values, err := e.insertValues(inst)
		if err != nil {
			return "", nil, err
		}
		rows[i] = values
		for k := range values {
			present[k] = struct{}{}
		}
	}

	var props []string
	for _, p := range batch.meta.Persisted() {
		if _, ok := present[p]; ok {
			props = append(props, p)
		}
	}
	if len(props) == 0 {
		return "", nil, apperror.NewProgramming("%s: nothing to insert", batch.meta.Name())
	}

	cols := make([]string, len(props))
	for i, p := range props {
		cols[i] = e.columns.column(batch.meta.Name(), p)
	}
	q := psql.Insert(batch.meta.Table()).Columns(cols...)
	for _, row := range rows {
		vals := make([]any, len(props))
		for i, p := range props {
			if v, ok := row[p]; ok {
				vals[i] = v
			} else {
				vals[i] = squirrel.Expr("DEFAULT")
			}
		}
		q = q.Values(vals...)
	}
	return q.ToSql()
}

// Insert implements domain.Repository.
func (e *Engine) Insert(ctx context.Context, instances []*entity.Instance) error {
	plan, err := e.planWrite(instances)
	if err != nil {
		return err
	}
	querier := e.db.GetQuerier(ctx)
	for _, batch := range plan {
		sql, args, err := e.insertStatement(batch)
		if err != nil {
			return err
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert %s: %w", batch.meta.Table(), mapPgError(batch.meta.Name(), err))
		}
	}
	return nil
}

// updateQueries builds one UPDATE per dirty instance, in dependency order.
func (e *Engine) updateQueries(instances []*entity.Instance) ([]BatchQuery, []*entity.Instance, error) {
	plan, err := e.planWrite(instances)
	if err != nil {
		return nil, nil, err
	}

	var queries []BatchQuery
	var targets []*entity.Instance
	for _, batch := range plan {
		for _, inst := range batch.instances {
			dirty := inst.DirtyFields()
			if len(dirty) == 0 {
				continue
			}
			all := inst.Values()
			changed := make(entity.Attributes, len(dirty))
			for _, p := range dirty {
				changed[p] = all[p]
			}
			sealed, err := e.codec.Seal(batch.meta, inst.ID(), changed)
			if err != nil {
				return nil, nil, err
			}

			set := make(map[string]any, len(sealed))
			for p, v := range sealed {
				set[e.columns.column(batch.meta.Name(), p)] = v
			}
			sql, args, err := psql.Update(batch.meta.Table()).
				SetMap(set).
				Where(squirrel.Eq{e.columns.column(batch.meta.Name(), "id"): inst.ID()}).
				ToSql()
			if err != nil {
				return nil, nil, fmt.Errorf("build update: %w", err)
			}
			queries = append(queries, BatchQuery{SQL: sql, Args: args})
			targets = append(targets, inst)
		}
	}
	return queries, targets, nil
}

// Update implements domain.Repository. All statements travel in one pgx batch.
func (e *Engine) Update(ctx context.Context, instances []*entity.Instance) error {
	queries, targets, err := e.updateQueries(instances)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		return nil
	}

	tags, err := ExecuteBatch(ctx, e.db.GetQuerier(ctx), queries)
	if err != nil {
		var failed *BatchError
		if errors.As(err, &failed) {
			inst := targets[failed.Index]
			return fmt.Errorf("update %s: %w", inst.Meta().Table(), mapPgError(inst.Class(), failed.Err))
		}
		return err
	}
	for i, tag := range tags {
		if tag.RowsAffected() == 0 {
			return apperror.NewNotFound(targets[i].Class(), targets[i].ID().String())
		}
	}
	return nil
}

// deleteStatements builds one DELETE per class, dependents first.
func (e *Engine) deleteStatements(instances []*entity.Instance) ([]BatchQuery, [][]id.ID, []*metadata.ClassMetadata, error) {
	plan, err := e.planWrite(instances)
	if err != nil {
		return nil, nil, nil, err
	}
	slices.Reverse(plan)

	queries := make([]BatchQuery, 0, len(plan))
	keys := make([][]id.ID, 0, len(plan))
	metas := make([]*metadata.ClassMetadata, 0, len(plan))
	for _, batch := range plan {
		ids := idsOf(batch.instances)
		idCol := e.columns.column(batch.meta.Name(), "id")
		sql, args, err := psql.Delete(batch.meta.Table()).
			Where(squirrel.Eq{idCol: ids}).
			Suffix("RETURNING " + idCol).
			ToSql()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build delete: %w", err)
		}
		queries = append(queries, BatchQuery{SQL: sql, Args: args})
		keys = append(keys, ids)
		metas = append(metas, batch.meta)
	}
	return queries, keys, metas, nil
}

// Delete implements domain.Repository. A missing row fails the batch.
func (e *Engine) Delete(ctx context.Context, instances []*entity.Instance) error {
	queries, keys, metas, err := e.deleteStatements(instances)
	if err != nil {
		return err
	}
	querier := e.db.GetQuerier(ctx)
	for i, q := range queries {
		var deleted []id.ID
		if err := pgxscan.Select(ctx, querier, &deleted, q.SQL, q.Args...); err != nil {
			return fmt.Errorf("delete %s: %w", metas[i].Table(), mapPgError(metas[i].Name(), err))
		}
		for _, k := range keys[i] {
			if !slices.Contains(deleted, k) {
				return apperror.NewNotFound(metas[i].Name(), k.String())
			}
		}
	}
	return nil
}
