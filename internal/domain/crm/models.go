// Package crm declares the advisor CRM schema: households, contacts, their
// accounts and the activities they take part in.
package crm

import (
	"time"

	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/core/types"
)

// Class names.
const (
	ClassHousehold           = "Household"
	ClassContact             = "Contact"
	ClassAccount             = "Account"
	ClassActivity            = "Activity"
	ClassActivityParticipant = "ActivityParticipant"
)

// Contact statuses.
const (
	StatusActive   = "active"
	StatusProspect = "prospect"
	StatusArchived = "archived"
)

// Row structs carry the column facts of each class in their tags; the
// registry reads them with Inspect.

type HouseholdRow struct {
	ID             id.ID      `json:"id" db:"id" binding:"required" default:"new"`
	Name           string     `json:"name" db:"name" binding:"required"`
	AdvisorID      *string    `json:"advisorId" db:"advisor_id"`
	LastActivityAt *time.Time `json:"lastActivityAt" db:"last_activity_at"`
}

type ContactRow struct {
	ID           id.ID          `json:"id" db:"id" binding:"required" default:"new"`
	FirstName    string         `json:"firstName" db:"first_name" binding:"required"`
	LastName     string         `json:"lastName" db:"last_name"`
	Email        *string        `json:"email" db:"email" encrypt:"text"`
	TaxID        *string        `json:"taxId" db:"tax_id" encrypt:"text,unique"`
	Phone        *string        `json:"phone" db:"phone"`
	Street       *string        `json:"street" db:"street"`
	City         *string        `json:"city" db:"city"`
	State        *string        `json:"state" db:"state"`
	Zip          *string        `json:"zip" db:"zip"`
	Country      *string        `json:"country" db:"country"`
	Timezone     *string        `json:"timezone" db:"timezone"`
	Status       string         `json:"status" db:"status" default:"active"`
	HouseholdID  *id.ID         `json:"householdId" db:"household_id"`
	CustomFields map[string]any `json:"customFields" db:"custom_fields"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
}

type AccountRow struct {
	ID          id.ID       `json:"id" db:"id" binding:"required" default:"new"`
	OwnerID     id.ID       `json:"ownerId" db:"owner_id" binding:"required"`
	Name        string      `json:"name" db:"name" binding:"required"`
	AccountType string      `json:"accountType" db:"account_type" default:"brokerage"`
	Balance     types.Money `json:"balance" db:"balance" default:"0"`
}

type ActivityRow struct {
	ID       id.ID     `json:"id" db:"id" binding:"required" default:"new"`
	Subject  string    `json:"subject" db:"subject" binding:"required"`
	Kind     string    `json:"kind" db:"kind" default:"meeting"`
	OccursAt time.Time `json:"occursAt" db:"occurs_at"`
	Notes    *string   `json:"notes" db:"notes"`
}

type ActivityParticipantRow struct {
	ID         id.ID  `json:"id" db:"id" binding:"required" default:"new"`
	ActivityID id.ID  `json:"activityId" db:"activity_id" binding:"required"`
	ContactID  id.ID  `json:"contactId" db:"contact_id" binding:"required"`
	RSVP       string `json:"rsvp" db:"rsvp" default:"pending"`
}

var (
	contactFirstName   = entity.Field[string]{Name: "firstName"}
	contactLastName    = entity.Field[string]{Name: "lastName"}
	contactPhone       = entity.Field[string]{Name: "phone"}
	contactDisplay     = entity.Field[string]{Name: "displayPhone"}
	contactFullName    = entity.Field[string]{Name: "fullName"}
	contactAddress     = entity.Field[string]{Name: "address"}
	contactTimezone    = entity.Field[string]{Name: "timezone"}
	contactStatus      = entity.Field[string]{Name: "status"}
	contactHouseholdID = entity.Field[id.ID]{Name: "householdId"}

	accountBalance = entity.Field[types.Money]{Name: "balance"}
	accountPeak    = entity.Field[types.Money]{Name: "peakBalance"}
)

// Contact is a typed view over a Contact instance.
type Contact struct{ *entity.Instance }

func (c Contact) FirstName() (string, error)    { return contactFirstName.Get(c.Instance) }
func (c Contact) SetFirstName(v string) error   { return contactFirstName.Set(c.Instance, v) }
func (c Contact) LastName() (string, error)     { return contactLastName.Get(c.Instance) }
func (c Contact) SetLastName(v string) error    { return contactLastName.Set(c.Instance, v) }
func (c Contact) Phone() (string, error)        { return contactPhone.Get(c.Instance) }
func (c Contact) SetPhone(v string) error       { return contactPhone.Set(c.Instance, v) }
func (c Contact) DisplayPhone() (string, error) { return contactDisplay.Get(c.Instance) }
func (c Contact) FullName() (string, error)     { return contactFullName.Get(c.Instance) }
func (c Contact) Address() (string, error)      { return contactAddress.Get(c.Instance) }
func (c Contact) Timezone() (string, error)     { return contactTimezone.Get(c.Instance) }
func (c Contact) Status() (string, error)       { return contactStatus.Get(c.Instance) }
func (c Contact) SetStatus(v string) error      { return contactStatus.Set(c.Instance, v) }
func (c Contact) HouseholdID() (id.ID, error)   { return contactHouseholdID.Get(c.Instance) }

// SetAddress assigns all five address parts.
func (c Contact) SetAddress(a Address) error {
	for _, kv := range []struct {
		prop  string
		value string
	}{
		{"street", a.Street}, {"city", a.City}, {"state", a.State}, {"zip", a.Zip}, {"country", a.Country},
	} {
		if err := c.Set(kv.prop, kv.value); err != nil {
			return err
		}
	}
	return nil
}

// Account is a typed view over an Account instance.
type Account struct{ *entity.Instance }

func (a Account) Balance() (types.Money, error)     { return accountBalance.Get(a.Instance) }
func (a Account) SetBalance(v types.Money) error    { return accountBalance.Set(a.Instance, v) }
func (a Account) PeakBalance() (types.Money, error) { return accountPeak.Get(a.Instance) }

// Rows maps each class to its row struct. Storage engines read column names
// from the db tags.
func Rows() map[string]any {
	return map[string]any{
		ClassHousehold:           HouseholdRow{},
		ClassContact:             ContactRow{},
		ClassAccount:             AccountRow{},
		ClassActivity:            ActivityRow{},
		ClassActivityParticipant: ActivityParticipantRow{},
	}
}
