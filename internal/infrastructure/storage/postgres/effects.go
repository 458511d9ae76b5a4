package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/lifecycle"
	"advisorcrm/internal/metadata"
)

// RegisterEffects binds the CRM deferred effects to their SQL executors.
func RegisterEffects(effects *lifecycle.Effects, engine *Engine, audit *AuditLog) error {
	if err := effects.Register(crm.EffectHouseholdTouch, engine.TouchHouseholds); err != nil {
		return err
	}
	return effects.Register(crm.EffectAudit, audit.Execute)
}

// touchStatement collapses touches into one UPDATE stamped with the latest time.
func (e *Engine) touchStatement(ops []metadata.DeferredOp) (string, []any, error) {
	meta, err := e.class(crm.ClassHousehold)
	if err != nil {
		return "", nil, err
	}

	var ids []id.ID
	var latest time.Time
	for _, op := range ops {
		t, ok := op.(crm.HouseholdTouch)
		if !ok {
			return "", nil, apperror.NewProgramming("household touch executor got %T", op)
		}
		if !slices.Contains(ids, t.HouseholdID) {
			ids = append(ids, t.HouseholdID)
		}
		if t.At.After(latest) {
			latest = t.At
		}
	}
	if len(ids) == 0 {
		return "", nil, nil
	}

	return psql.Update(meta.Table()).
		Set(e.columns.column(meta.Name(), "lastActivityAt"), latest).
		Where(squirrel.Eq{e.columns.column(meta.Name(), "id"): ids}).
		ToSql()
}

// TouchHouseholds is the lifecycle executor for crm.EffectHouseholdTouch.
func (e *Engine) TouchHouseholds(ctx context.Context, ops []metadata.DeferredOp) error {
	sql, args, err := e.touchStatement(ops)
	if err != nil || sql == "" {
		return err
	}
	if _, err := e.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("touch households: %w", err)
	}
	return nil
}
