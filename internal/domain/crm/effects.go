package crm

import (
	"time"

	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// Deferred effect kinds. Executors are registered by the storage layer.
const (
	EffectHouseholdTouch = "household.touch"
	EffectAudit          = "audit"
)

// HouseholdTouch bumps a household's lastActivityAt. Any number of touches
// in one batch collapse into a single statement.
type HouseholdTouch struct {
	HouseholdID id.ID
	At          time.Time
}

// EffectKind implements metadata.DeferredOp.
func (HouseholdTouch) EffectKind() string { return EffectHouseholdTouch }

// AuditEntry records one committed change.
type AuditEntry struct {
	Class    string                   `json:"class"`
	ObjectID id.ID                    `json:"objectId"`
	Event    metadata.Event           `json:"event"`
	Changes  map[string]entity.Change `json:"changes,omitempty"`
	Actor    string                   `json:"actor,omitempty"`
	At       time.Time                `json:"at"`
}

// EffectKind implements metadata.DeferredOp.
func (AuditEntry) EffectKind() string { return EffectAudit }
