package metadata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/id"
)

type auditedRow struct {
	ID        id.ID `json:"id" db:"id" default:"new"`
	CreatedBy string `json:"createdBy" db:"created_by"`
}

type accountRow struct {
	auditedRow
	Name     string          `json:"name" db:"name" binding:"required"`
	Cash     decimal.Decimal `json:"cash" db:"cash" default:"0"`
	Kind     string          `json:"kind" db:"kind" default:"brokerage"`
	Number   string          `json:"number" db:"number" encrypt:"text,unique"`
	Notes    string          `json:"notes" db:"notes" encrypt:"text"`
	Priority int             `db:"priority" default:"3"`
	Ignored  string          `json:"-" db:"ignored"`
	Display  string          `json:"display"`
	internal string
}

func TestInspect(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Define("Account", func(b *ClassBuilder) { b.Inspect(&accountRow{}) }))

	c := reg.MustGet("Account")
	assert.Equal(t, []string{"id", "createdBy", "name", "cash", "kind", "number", "notes", "priority"}, c.Persisted())
	assert.Equal(t, []string{"name"}, c.Required())

	gen, ok := c.Default("id")
	require.True(t, ok)
	first, second := gen.Resolve(), gen.Resolve()
	assert.IsType(t, id.ID{}, first)
	assert.NotEqual(t, first, second)

	cash, _ := c.Default("cash")
	assert.True(t, decimal.Zero.Equal(cash.Resolve().(decimal.Decimal)))
	kind, _ := c.Default("kind")
	assert.Equal(t, "brokerage", kind.Resolve())
	prio, _ := c.Default("priority")
	assert.Equal(t, 3, prio.Resolve())

	number, ok := c.Encryption("number")
	require.True(t, ok)
	assert.True(t, number.Unique)
	notes, _ := c.Encryption("notes")
	assert.False(t, notes.Unique)
}

func TestInspect_Rejections(t *testing.T) {
	type badDefault struct {
		Count int `json:"count" db:"count" default:"many"`
	}
	reg := NewRegistry()

	assert.True(t, apperror.IsProgrammingError(reg.Inspect("X", badDefault{})))
	assert.True(t, apperror.IsProgrammingError(reg.Inspect("X", nil)))
	assert.True(t, apperror.IsProgrammingError(reg.Inspect("X", 42)))
}

func TestDescribe(t *testing.T) {
	reg := activitySchema(t)

	view, err := reg.Describe("Activity")
	require.NoError(t, err)
	assert.Equal(t, "activities", view.Table)
	require.Len(t, view.JoinTables, 1)
	assert.Equal(t, "participants", view.JoinTables[0].Property)

	contact, err := reg.Describe("Contact")
	require.NoError(t, err)
	assert.Equal(t, JoinRef{Class: "Activity", Property: "participants"}, contact.ReverseJoins["activities"])
	require.Len(t, contact.JoinedFields, 1)

	names := make([]string, 0, len(contact.Fields))
	for _, f := range contact.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "firstName", "activities"}, names)

	_, err = reg.Describe("Ghost")
	assert.True(t, apperror.IsNotFound(err))
}
