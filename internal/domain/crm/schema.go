package crm

import (
	"strings"

	"advisorcrm/internal/core/types"
	"advisorcrm/internal/metadata"
)

// Register declares the CRM classes on reg. The caller freezes the registry.
func Register(reg *metadata.Registry, locator Locator) error {
	if locator == nil {
		locator = NewStaticLocator()
	}

	defs := []struct {
		class string
		fn    func(b *metadata.ClassBuilder)
	}{
		{ClassHousehold, func(b *metadata.ClassBuilder) {
			b.Inspect(HouseholdRow{}).
				HasMany("contacts", ClassContact, "household")
		}},
		{ClassContact, func(b *metadata.ClassBuilder) {
			b.Inspect(ContactRow{}).
				Default("createdAt", func() any { return now() }).
				BelongsTo("household", ClassHousehold, "householdId", "contacts").
				HasMany("accounts", ClassAccount, "owner").
				Joined("rsvp", "rsvp", metadata.JoinRef{Class: ClassActivity, Property: "participants"}).
				Calculated("fullName", []string{"firstName", "lastName"}, fullName, true).
				Calculated("address", []string{"street", "city", "state", "zip", "country"}, formatAddress, true).
				Calculated("displayPhone", []string{"phone"}, displayPhone, false).
				Computed("sortName", []string{"lastName", "firstName"}, sortName, nil).
				Rule("email_format", `!('email' in self) || self.email == null || self.email.contains('@')`,
					"email must contain @").
				Rule("status_known", `!('status' in self) || self.status in ['active', 'prospect', 'archived']`,
					"unknown contact status").
				Before(metadata.EventCreate, canonicalizePhone).
				Before(metadata.EventCreate, assignTimezone(locator)).
				Before(metadata.EventUpdate, protectArchived).
				Before(metadata.EventUpdate, canonicalizePhone).
				Before(metadata.EventDelete, requireArchivedBeforeDelete).
				Before(metadata.EventRead, hideArchived).
				After(metadata.EventCreate, audit).
				After(metadata.EventCreate, touchHousehold).
				After(metadata.EventUpdate, audit).
				After(metadata.EventUpdate, touchHousehold).
				After(metadata.EventDelete, audit)
		}},
		{ClassAccount, func(b *metadata.ClassBuilder) {
			b.Inspect(AccountRow{}).
				BelongsTo("owner", ClassContact, "ownerId", "accounts").
				Computed("peakBalance", []string{"balance"}, currentBalance, keepPeak).
				Rule("balance_non_negative", `!('balance' in self) || self.balance == null || self.balance >= 0.0`,
					"balance cannot be negative").
				After(metadata.EventUpdate, audit)
		}},
		{ClassActivity, func(b *metadata.ClassBuilder) {
			b.Inspect(ActivityRow{}).
				Default("occursAt", func() any { return now() }).
				JoinTable(metadata.JoinTableDescriptor{
					Property:         "participants",
					TargetClass:      ClassContact,
					JoinClass:        ClassActivityParticipant,
					JoinField:        "participantLinks",
					ThisForeignKey:   "activityId",
					OtherForeignKey:  "contactId",
					IDMode:           metadata.JoinIDGenerated,
					ReverseJoinField: "activities",
				})
		}},
		{ClassActivityParticipant, func(b *metadata.ClassBuilder) {
			b.Inspect(ActivityParticipantRow{}).
				BelongsTo("activity", ClassActivity, "activityId", "").
				BelongsTo("contact", ClassContact, "contactId", "")
		}},
	}
	for _, d := range defs {
		if err := reg.Define(d.class, d.fn); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a frozen registry holding the CRM schema.
func NewRegistry(locator Locator) (*metadata.Registry, error) {
	reg := metadata.NewRegistry()
	if err := Register(reg, locator); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

func fullName(rec metadata.Record) (any, error) {
	first, _ := rec.Get("firstName")
	last, _ := rec.Get("lastName")
	f, _ := first.(string)
	l, _ := last.(string)
	switch {
	case l == "":
		return f, nil
	case f == "":
		return l, nil
	}
	return f + " " + l, nil
}

func formatAddress(rec metadata.Record) (any, error) {
	return addressOf(rec).String(), nil
}

func displayPhone(rec metadata.Record) (any, error) {
	v, _ := rec.Get("phone")
	s, _ := v.(string)
	return DisplayPhone(CanonicalPhone(s)), nil
}

func sortName(rec metadata.Record) (any, error) {
	first, _ := rec.Get("firstName")
	last, _ := rec.Get("lastName")
	f, _ := first.(string)
	l, _ := last.(string)
	return strings.ToLower(l + ", " + f), nil
}

func currentBalance(rec metadata.Record) (any, error) {
	v, err := rec.Get("balance")
	if err != nil {
		return nil, err
	}
	return types.MoneyFromValue(v)
}

// keepPeak raises the stored peak to the new balance, never lowers it.
func keepPeak(rec metadata.Record, current any) (any, error) {
	bal, err := currentBalance(rec)
	if err != nil {
		return nil, err
	}
	b := bal.(types.Money)
	if current == nil {
		return b, nil
	}
	peak, err := types.MoneyFromValue(current)
	if err != nil {
		return nil, err
	}
	if b.GreaterThan(peak) {
		return b, nil
	}
	return peak, nil
}
