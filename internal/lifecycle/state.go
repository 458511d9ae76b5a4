// Package lifecycle runs entity lifecycle hooks around storage operations:
// ordered before/after buckets, vetoes, and deferred effects collapsed per
// kind at batch commit.
package lifecycle

import (
	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/metadata"
)

// State is the lifecycle position of one instance within a commit.
type State uint8

const (
	StatePending State = iota
	StateRunningBefore
	StateAborted
	StateProceeding
	StatePersisted
	StateRunningAfter
	StateSettled
)

var stateNames = [...]string{
	StatePending:       "pending",
	StateRunningBefore: "running_before",
	StateAborted:       "aborted",
	StateProceeding:    "proceeding",
	StatePersisted:     "persisted",
	StateRunningAfter:  "running_after",
	StateSettled:       "settled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// A proceeding instance can still be aborted by a sibling in its batch or by
// validation.
var transitions = map[State][]State{
	StatePending:       {StateRunningBefore},
	StateRunningBefore: {StateAborted, StateProceeding},
	StateProceeding:    {StatePersisted, StateAborted},
	StatePersisted:     {StateRunningAfter},
	StateRunningAfter:  {StateSettled},
}

// Operation tracks one instance through a commit.
type Operation struct {
	Instance *entity.Instance
	Event    metadata.Event

	state    State
	reason   string
	deferred []metadata.DeferredOp
}

// NewOperation starts an operation in StatePending.
func NewOperation(inst *entity.Instance, event metadata.Event) *Operation {
	return &Operation{Instance: inst, Event: event}
}

// State returns the current state.
func (o *Operation) State() State { return o.state }

// Reason returns the abort reason, if any.
func (o *Operation) Reason() string { return o.reason }

// Deferred returns the effects collected by before-hooks.
func (o *Operation) Deferred() []metadata.DeferredOp { return o.deferred }

func (o *Operation) transition(to State) error {
	for _, allowed := range transitions[o.state] {
		if allowed == to {
			o.state = to
			return nil
		}
	}
	return apperror.NewProgramming("%s %s: illegal lifecycle transition %s -> %s",
		o.Instance.Class(), o.Event, o.state, to)
}

func (o *Operation) abort(reason string) error {
	if err := o.transition(StateAborted); err != nil {
		return err
	}
	o.reason = reason
	return nil
}

// Status is the result of a commit or read.
type Status uint8

const (
	StatusCommitted Status = iota
	StatusAborted
)

func (s Status) String() string {
	if s == StatusAborted {
		return "aborted"
	}
	return "committed"
}

// Outcome reports how an operation ended. A veto is an Outcome, not an error.
type Outcome struct {
	Status Status
	Reason string
	// Class and Index identify the instance whose hook vetoed.
	Class string
	Index int
	// Effects is the number of deferred ops executed.
	Effects int
}

// OK reports whether the operation went through.
func (o Outcome) OK() bool { return o.Status == StatusCommitted }
