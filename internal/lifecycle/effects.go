package lifecycle

import (
	"context"
	"fmt"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/metadata"
)

// EffectExecutor runs every deferred op of one kind as a single aggregate operation.
type EffectExecutor interface {
	ExecuteEffects(ctx context.Context, kind string, ops []metadata.DeferredOp) error
}

// EffectFunc executes a group of ops of one kind.
type EffectFunc func(ctx context.Context, ops []metadata.DeferredOp) error

// Effects maps effect kinds to their aggregate executors.
// Populated at start-up, read-only afterwards.
type Effects struct {
	handlers map[string]EffectFunc
}

// NewEffects creates an empty executor table.
func NewEffects() *Effects {
	return &Effects{handlers: make(map[string]EffectFunc)}
}

// Register binds kind to fn. Registering a kind twice or a nil fn is a configuration fault.
func (e *Effects) Register(kind string, fn EffectFunc) error {
	if fn == nil {
		return apperror.NewProgramming("effect %q: nil executor", kind)
	}
	if _, ok := e.handlers[kind]; ok {
		return apperror.NewProgramming("effect %q: executor already registered", kind)
	}
	e.handlers[kind] = fn
	return nil
}

// Kinds returns the number of registered kinds.
func (e *Effects) Kinds() int { return len(e.handlers) }

// ExecuteEffects implements EffectExecutor.
func (e *Effects) ExecuteEffects(ctx context.Context, kind string, ops []metadata.DeferredOp) error {
	fn, ok := e.handlers[kind]
	if !ok {
		return apperror.NewProgramming("effect %q: no executor registered", kind)
	}
	if err := fn(ctx, ops); err != nil {
		return fmt.Errorf("effect %s: %w", kind, err)
	}
	return nil
}

// effectGroup holds ops of one kind.
type effectGroup struct {
	kind string
	ops  []metadata.DeferredOp
}

// groupByKind groups ops by kind, keeping kinds in first-seen order and ops
// in collection order within a kind.
func groupByKind(ops []metadata.DeferredOp) []effectGroup {
	var groups []effectGroup
	index := make(map[string]int)
	for _, op := range ops {
		k := op.EffectKind()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, effectGroup{kind: k})
		}
		groups[i].ops = append(groups[i].ops, op)
	}
	return groups
}
