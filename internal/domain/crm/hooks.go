package crm

import (
	"context"
	"time"

	appctx "advisorcrm/internal/core/context"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
	"advisorcrm/pkg/logger"
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// optString reads a string property, treating unloaded and NULL as "".
func optString(rec metadata.Record, property string) string {
	if !rec.IsLoaded(property) {
		return ""
	}
	v, err := rec.Get(property)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// setOrFail assigns property and turns a rejected write into a failed hook.
func setOrFail(rec metadata.Record, property string, value any) metadata.Effect {
	if err := rec.Set(property, value); err != nil {
		return metadata.Fail(err)
	}
	return metadata.Proceed()
}

func addressOf(rec metadata.Record) Address {
	return Address{
		Street:  optString(rec, "street"),
		City:    optString(rec, "city"),
		State:   optString(rec, "state"),
		Zip:     optString(rec, "zip"),
		Country: optString(rec, "country"),
	}
}

// canonicalizePhone stores phone numbers as digits only.
func canonicalizePhone(_ context.Context, call *metadata.HookCall) metadata.Effect {
	raw := optString(call.Record, "phone")
	if raw == "" {
		return metadata.Proceed()
	}
	if canonical := CanonicalPhone(raw); canonical != raw {
		return setOrFail(call.Record, "phone", canonical)
	}
	return metadata.Proceed()
}

// assignTimezone fills timezone on create. Batches take the in-process guess;
// a single commit asks the locator for the precise zone.
func assignTimezone(locator Locator) metadata.Handler {
	return func(ctx context.Context, call *metadata.HookCall) metadata.Effect {
		if optString(call.Record, "timezone") != "" {
			return metadata.Proceed()
		}
		addr := addressOf(call.Record)
		tz := ""
		if call.Batch {
			tz = locator.GuessTimezone(addr.State, addr.Country)
		} else {
			var err error
			tz, err = locator.LookupTimezone(ctx, addr)
			if err != nil {
				logger.Warn(ctx, "timezone lookup failed, using guess", "address", addr.String(), "error", err)
				tz = locator.GuessTimezone(addr.State, addr.Country)
			}
		}
		if tz != "" {
			return setOrFail(call.Record, "timezone", tz)
		}
		return metadata.Proceed()
	}
}

// protectArchived vetoes edits of archived contacts other than un-archiving.
func protectArchived(_ context.Context, call *metadata.HookCall) metadata.Effect {
	inst, ok := call.Record.(*entity.Instance)
	if !ok {
		return metadata.Proceed()
	}
	if _, changed := inst.Changes()["status"]; changed {
		return metadata.Proceed()
	}
	if optString(inst, "status") == StatusArchived {
		return metadata.Abort("archived contacts are read-only")
	}
	return metadata.Proceed()
}

// requireArchivedBeforeDelete keeps active relationships from being deleted by accident.
func requireArchivedBeforeDelete(_ context.Context, call *metadata.HookCall) metadata.Effect {
	if optString(call.Record, "status") != StatusArchived {
		return metadata.Abort("contact must be archived before deletion")
	}
	return metadata.Proceed()
}

// hideArchived scopes reads to non-archived contacts unless the caller asks
// about status explicitly.
func hideArchived(_ context.Context, call *metadata.HookCall) metadata.Effect {
	if !call.Filter.HasCondition("status") {
		call.Filter.Where("status", metadata.NotEqual, StatusArchived)
	}
	return metadata.Proceed()
}

// audit defers an audit entry for the committed change.
func audit(ctx context.Context, call *metadata.HookCall) metadata.Effect {
	inst, ok := call.Record.(*entity.Instance)
	if !ok {
		return metadata.Proceed()
	}
	entry := AuditEntry{
		Class:    call.Class,
		ObjectID: inst.ID(),
		Event:    call.Event,
		Actor:    appctx.GetAdvisorID(ctx),
		At:       now(),
	}
	if call.Event == metadata.EventUpdate {
		entry.Changes = inst.Changes()
	}
	return metadata.Defer(entry)
}

// touchHousehold defers a lastActivityAt bump for the contact's household.
func touchHousehold(_ context.Context, call *metadata.HookCall) metadata.Effect {
	if !call.Record.IsLoaded("householdId") {
		return metadata.Proceed()
	}
	v, err := call.Record.Get("householdId")
	if err != nil || v == nil {
		return metadata.Proceed()
	}
	hh, err := id.FromValue(v)
	if err != nil || id.IsNil(hh) {
		return metadata.Proceed()
	}
	return metadata.Defer(HouseholdTouch{HouseholdID: hh, At: now()})
}
