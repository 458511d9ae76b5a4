package lifecycle

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/tx"
	"advisorcrm/internal/metadata"
	"advisorcrm/pkg/logger"
)

var tracer = otel.Tracer("advisorcrm/lifecycle")

// WriteFunc performs the bulk storage write for a commit.
type WriteFunc func(ctx context.Context, instances []*entity.Instance) error

// FetchFunc performs a read for a (possibly hook-altered) filter and returns
// the hydrated instances together with the properties it fetched.
type FetchFunc func(ctx context.Context, filter *metadata.Filter) ([]*entity.Instance, []string, error)

// Dispatcher runs hooks registered in a frozen registry.
type Dispatcher struct {
	registry *metadata.Registry
	txm      tx.Manager
	effects  EffectExecutor
}

// NewDispatcher creates a dispatcher. txm wraps the bulk write together with
// the before-hook effects; effects executes deferred ops.
func NewDispatcher(registry *metadata.Registry, txm tx.Manager, effects EffectExecutor) *Dispatcher {
	if txm == nil {
		txm = tx.Passthrough
	}
	if effects == nil {
		effects = NewEffects()
	}
	return &Dispatcher{registry: registry, txm: txm, effects: effects}
}

// Registry returns the registry the dispatcher reads hooks from.
func (d *Dispatcher) Registry() *metadata.Registry { return d.registry }

// RunResult is the combined result of one hook bucket.
type RunResult struct {
	Aborted  bool
	Reason   string
	Deferred []metadata.DeferredOp
}

// Run invokes the handlers of call's bucket in registration order. An abort
// stops the bucket; handlers after it do not run.
func (d *Dispatcher) Run(ctx context.Context, call *metadata.HookCall) (RunResult, error) {
	meta, ok := d.registry.Get(call.Class)
	if !ok {
		return RunResult{}, apperror.NewProgramming("class %q is not registered", call.Class)
	}

	var res RunResult
	for i, h := range meta.Hooks(call.Event, call.When) {
		effect, err := invoke(ctx, h, call)
		if err != nil {
			return RunResult{}, apperror.NewProgramming("%s.%s.%s hook #%d: %v",
				call.Class, call.Event, call.When, i, err)
		}
		switch effect.Kind() {
		case metadata.EffectProceed:
		case metadata.EffectAbort:
			if !metadata.CanAbort(call.Event, call.When) {
				return RunResult{}, apperror.NewProgramming("%s.%s.%s hook #%d: abort is not allowed here",
					call.Class, call.Event, call.When, i)
			}
			res.Aborted = true
			res.Reason = effect.Reason()
			return res, nil
		case metadata.EffectDefer:
			if effect.Op() == nil {
				return RunResult{}, apperror.NewProgramming("%s.%s.%s hook #%d: deferred nil op",
					call.Class, call.Event, call.When, i)
			}
			res.Deferred = append(res.Deferred, effect.Op())
		case metadata.EffectFail:
			if effect.Err() == nil {
				return RunResult{}, apperror.NewProgramming("%s.%s.%s hook #%d: failed without an error",
					call.Class, call.Event, call.When, i)
			}
			return RunResult{}, fmt.Errorf("%s.%s.%s hook #%d: %w", call.Class, call.Event, call.When, i, effect.Err())
		default:
			return RunResult{}, apperror.NewProgramming("%s.%s.%s hook #%d: unknown effect %v",
				call.Class, call.Event, call.When, i, effect.Kind())
		}
	}
	return res, nil
}

// invoke calls h and turns a panic into an error.
func invoke(ctx context.Context, h metadata.Handler, call *metadata.HookCall) (effect metadata.Effect, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, call), nil
}

// Commit writes instances for a create, update or delete:
//
//  1. every instance's before-hooks run, collecting deferred ops and vetoes;
//  2. any veto aborts the whole batch before a write (updates are rolled back);
//  3. required fields and rules are validated;
//  4. the bulk write and the before-hook ops, grouped by kind, run in one transaction;
//  5. after-hooks run and their ops are flushed.
//
// A veto returns an aborted Outcome and a nil error.
func (d *Dispatcher) Commit(ctx context.Context, event metadata.Event, instances []*entity.Instance, write WriteFunc) (Outcome, error) {
	if event == metadata.EventRead {
		return Outcome{}, apperror.NewProgramming("read is not a commit event")
	}
	if len(instances) == 0 {
		return Outcome{Status: StatusCommitted}, nil
	}
	batch := len(instances) > 1

	ctx, span := tracer.Start(ctx, "lifecycle.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("lifecycle.event", string(event)),
		attribute.String("lifecycle.class", instances[0].Class()),
		attribute.Int("lifecycle.batch_size", len(instances)),
	)
	log := logger.FromContext(ctx).WithComponent("lifecycle")

	ops := make([]*Operation, len(instances))
	var (
		deferred []metadata.DeferredOp
		vetoed   = -1
	)
	for i, inst := range instances {
		op := NewOperation(inst, event)
		ops[i] = op
		if err := op.transition(StateRunningBefore); err != nil {
			return Outcome{}, err
		}
		res, err := d.Run(ctx, &metadata.HookCall{
			Class:  inst.Class(),
			Event:  event,
			When:   metadata.Before,
			Record: inst,
			Batch:  batch,
		})
		if err != nil {
			log.Errorw("before hook failed", "class", inst.Class(), "event", event, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, err
		}
		if res.Aborted {
			if err := op.abort(res.Reason); err != nil {
				return Outcome{}, err
			}
			if vetoed < 0 {
				vetoed = i
			}
			continue
		}
		if err := op.transition(StateProceeding); err != nil {
			return Outcome{}, err
		}
		op.deferred = res.Deferred
		deferred = append(deferred, res.Deferred...)
	}

	if vetoed >= 0 {
		out := d.abortBatch(ops, vetoed)
		log.Infow("commit aborted by hook", "class", out.Class, "event", event, "index", out.Index, "reason", out.Reason)
		span.SetAttributes(attribute.String("lifecycle.abort_reason", out.Reason))
		return out, nil
	}

	if event != metadata.EventDelete {
		for _, op := range ops {
			if err := Validate(op.Instance); err != nil {
				for _, o := range ops {
					_ = o.abort("validation failed")
				}
				return Outcome{}, err
			}
		}
	}

	err := d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := write(ctx, instances); err != nil {
			return err
		}
		return d.flush(ctx, deferred)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}
	for _, op := range ops {
		if err := op.transition(StatePersisted); err != nil {
			return Outcome{}, err
		}
	}

	var after []metadata.DeferredOp
	for _, op := range ops {
		if err := op.transition(StateRunningAfter); err != nil {
			return Outcome{}, err
		}
		res, err := d.Run(ctx, &metadata.HookCall{
			Class:  op.Instance.Class(),
			Event:  event,
			When:   metadata.After,
			Record: op.Instance,
			Batch:  batch,
		})
		if err != nil {
			log.Errorw("after hook contract violation", "class", op.Instance.Class(), "event", event, "error", err)
			return Outcome{}, err
		}
		after = append(after, res.Deferred...)
	}
	if len(after) > 0 {
		if err := d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			return d.flush(ctx, after)
		}); err != nil {
			span.RecordError(err)
			return Outcome{}, err
		}
	}

	for _, op := range ops {
		op.Instance.MarkCommitted()
		if err := op.transition(StateSettled); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Status: StatusCommitted, Effects: len(deferred) + len(after)}, nil
}

// abortBatch moves every operation to Aborted and rolls back pending update
// changes. Deferred ops are dropped.
func (d *Dispatcher) abortBatch(ops []*Operation, vetoed int) Outcome {
	for _, op := range ops {
		if op.State() != StateAborted {
			_ = op.abort("batch aborted")
		}
		op.deferred = nil
		if op.Event == metadata.EventUpdate {
			op.Instance.Rollback()
		}
	}
	v := ops[vetoed]
	return Outcome{
		Status: StatusAborted,
		Reason: v.Reason(),
		Class:  v.Instance.Class(),
		Index:  vetoed,
	}
}

// flush executes ops grouped by kind in first-seen order.
func (d *Dispatcher) flush(ctx context.Context, ops []metadata.DeferredOp) error {
	for _, g := range groupByKind(ops) {
		logger.Debug(ctx, "flushing deferred effects", "kind", g.kind, "count", len(g.ops))
		if err := d.effects.ExecuteEffects(ctx, g.kind, g.ops); err != nil {
			return err
		}
	}
	return nil
}

// Query runs read.before with the pending filter, fetches, then runs
// read.after for every hydrated instance with the fetched properties.
// A read.before veto returns an aborted Outcome without fetching.
func (d *Dispatcher) Query(ctx context.Context, filter *metadata.Filter, fetch FetchFunc) ([]*entity.Instance, Outcome, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.Query")
	defer span.End()
	span.SetAttributes(attribute.String("lifecycle.class", filter.Class))

	res, err := d.Run(ctx, &metadata.HookCall{
		Class:  filter.Class,
		Event:  metadata.EventRead,
		When:   metadata.Before,
		Filter: filter,
	})
	if err != nil {
		return nil, Outcome{}, err
	}
	if res.Aborted {
		logger.Info(ctx, "read aborted by hook", "class", filter.Class, "reason", res.Reason)
		return nil, Outcome{Status: StatusAborted, Reason: res.Reason, Class: filter.Class}, nil
	}

	instances, fetched, err := fetch(ctx, filter)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("fetch %s: %w", filter.Class, err)
	}
	if err := d.flushStandalone(ctx, res.Deferred); err != nil {
		return nil, Outcome{}, err
	}
	if err := d.AfterRead(ctx, instances, fetched); err != nil {
		return nil, Outcome{}, err
	}
	return instances, Outcome{Status: StatusCommitted, Effects: len(res.Deferred)}, nil
}

// AfterRead fires read.after for instances hydrated outside Query, such as a
// direct load by id. Deferred ops of all instances are flushed together.
func (d *Dispatcher) AfterRead(ctx context.Context, instances []*entity.Instance, fetched []string) error {
	var deferred []metadata.DeferredOp
	for _, inst := range instances {
		res, err := d.Run(ctx, &metadata.HookCall{
			Class:   inst.Class(),
			Event:   metadata.EventRead,
			When:    metadata.After,
			Record:  inst,
			Batch:   len(instances) > 1,
			Fetched: fetched,
		})
		if err != nil {
			return err
		}
		deferred = append(deferred, res.Deferred...)
	}
	return d.flushStandalone(ctx, deferred)
}

func (d *Dispatcher) flushStandalone(ctx context.Context, ops []metadata.DeferredOp) error {
	if len(ops) == 0 {
		return nil
	}
	return d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return d.flush(ctx, ops)
	})
}
