package metadata

import (
	"context"
	"slices"

	"advisorcrm/internal/core/apperror"
)

// Event is a lifecycle operation.
type Event string

const (
	EventCreate Event = "create"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
	EventRead   Event = "read"
)

// Events lists every lifecycle event.
var Events = []Event{EventCreate, EventUpdate, EventDelete, EventRead}

// When places a hook before or after the storage operation.
type When string

const (
	Before When = "before"
	After  When = "after"
)

type bucket struct {
	event Event
	when  When
}

// Record is the view of an entity instance handed to hooks and derived
// attribute functions.
type Record interface {
	Class() string
	Get(property string) (any, error)
	Set(property string, value any) error
	IsLoaded(property string) bool
}

// HookCall carries everything a handler sees for one instance at one boundary.
type HookCall struct {
	Class string
	Event Event
	When  When

	// Record is the instance. Nil for read.before.
	Record Record

	// Batch is set when the instance is committed together with others.
	Batch bool

	// Filter is the pending query for read.before. Handlers may change it.
	Filter *Filter

	// Fetched lists exactly the properties hydrated by the read, for read.after.
	Fetched []string
}

// Handler is a lifecycle hook.
type Handler func(ctx context.Context, call *HookCall) Effect

// EffectKind tags a handler result.
type EffectKind uint8

const (
	EffectProceed EffectKind = iota
	EffectAbort
	EffectDefer
	EffectFail
)

func (k EffectKind) String() string {
	switch k {
	case EffectProceed:
		return "proceed"
	case EffectAbort:
		return "abort"
	case EffectDefer:
		return "defer"
	case EffectFail:
		return "fail"
	default:
		return "unknown"
	}
}

// DeferredOp is an opaque operation executed at commit time together with all
// other ops of the same kind.
type DeferredOp interface {
	EffectKind() string
}

// Effect is the single result type of a hook. The zero value proceeds.
type Effect struct {
	kind   EffectKind
	reason string
	op     DeferredOp
	err    error
}

// Proceed lets the operation continue.
func Proceed() Effect { return Effect{kind: EffectProceed} }

// Abort vetoes the operation. Legal only in update, delete and read before-hooks.
func Abort(reason string) Effect { return Effect{kind: EffectAbort, reason: reason} }

// Defer schedules op for the batch commit.
func Defer(op DeferredOp) Effect { return Effect{kind: EffectDefer, op: op} }

// Fail stops the operation with err. Unlike Abort it is legal in every bucket
// and is reported to the caller as an error.
func Fail(err error) Effect { return Effect{kind: EffectFail, err: err} }

func (e Effect) Kind() EffectKind { return e.kind }
func (e Effect) Reason() string   { return e.reason }
func (e Effect) Op() DeferredOp   { return e.op }
func (e Effect) Err() error       { return e.err }

// CanAbort reports whether handlers of the bucket may veto.
func CanAbort(event Event, when When) bool {
	return when == Before && event != EventCreate
}

// RegisterHook appends handler to the (event, when) bucket of class.
// Handlers run in registration order.
func (r *Registry) RegisterHook(class string, event Event, when When, handler Handler) error {
	c, err := r.writable(class)
	if err != nil {
		return err
	}
	if handler == nil {
		return apperror.NewProgramming("%s: nil %s.%s hook", class, event, when)
	}
	if !slices.Contains(Events, event) {
		return apperror.NewProgramming("%s: unknown hook event %q", class, event)
	}
	if when != Before && when != After {
		return apperror.NewProgramming("%s: unknown hook position %q", class, when)
	}
	b := bucket{event: event, when: when}
	c.hooks[b] = append(c.hooks[b], handler)
	return nil
}

// Hooks returns the handlers of a bucket in registration order.
func (c *ClassMetadata) Hooks(event Event, when When) []Handler {
	return slices.Clone(c.hooks[bucket{event: event, when: when}])
}

// HookCount returns the number of handlers in a bucket.
func (c *ClassMetadata) HookCount(event Event, when When) int {
	return len(c.hooks[bucket{event: event, when: when}])
}
