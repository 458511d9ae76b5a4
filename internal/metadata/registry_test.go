package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
)

func constant(v any) ComputeFunc {
	return func(Record) (any, error) { return v, nil }
}

func TestRegisterRequired_ImpliesPersisted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequired("Contact", "firstName", "lastName"))
	require.NoError(t, reg.RegisterPersisted("Contact", "phone", "firstName"))

	c := reg.MustGet("Contact")
	for _, p := range c.Required() {
		assert.True(t, c.IsPersisted(p), p)
	}
	assert.Equal(t, []string{"firstName", "lastName", "phone"}, c.Persisted())
	assert.False(t, c.IsRequired("phone"))
}

func TestRegisterDefault(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.RegisterDefault("Contact", "status", "active"))
	require.NoError(t, reg.RegisterDefault("Contact", "seq", func() any { calls++; return calls }))

	c := reg.MustGet("Contact")
	d, ok := c.Default("status")
	require.True(t, ok)
	assert.Equal(t, "active", d.Resolve())

	gen, _ := c.Default("seq")
	assert.Equal(t, 1, gen.Resolve())
	assert.Equal(t, 2, gen.Resolve())
}

func TestFreeze_SealsRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPersisted("Household", "name"))
	require.NoError(t, reg.Freeze())
	assert.True(t, reg.Frozen())

	err := reg.RegisterPersisted("Household", "tier")
	assert.True(t, apperror.IsProgrammingError(err))
	assert.False(t, reg.MustGet("Household").IsPersisted("tier"))
}

func TestMustGet_PanicsOnUnknownClass(t *testing.T) {
	assert.Panics(t, func() { NewRegistry().MustGet("Ghost") })
}

func TestRegisterHook_RejectsNilHandler(t *testing.T) {
	reg := NewRegistry()
	err := reg.RegisterHook("Contact", EventUpdate, Before, nil)

	require.Error(t, err)
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestRegisterHook_KeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	var order []string
	h := func(name string) Handler {
		return func(context.Context, *HookCall) Effect {
			order = append(order, name)
			return Proceed()
		}
	}
	require.NoError(t, reg.RegisterHook("Contact", EventUpdate, Before, h("h1")))
	require.NoError(t, reg.RegisterHook("Contact", EventUpdate, Before, h("h2")))
	require.NoError(t, reg.RegisterHook("Contact", EventUpdate, After, h("after")))

	for _, fn := range reg.MustGet("Contact").Hooks(EventUpdate, Before) {
		fn(context.Background(), &HookCall{})
	}
	assert.Equal(t, []string{"h1", "h2"}, order)
	assert.Equal(t, 1, reg.MustGet("Contact").HookCount(EventUpdate, After))
	assert.Zero(t, reg.MustGet("Contact").HookCount(EventRead, Before))
}

func TestRegisterHook_RejectsUnknownBucket(t *testing.T) {
	reg := NewRegistry()
	noop := func(context.Context, *HookCall) Effect { return Proceed() }

	assert.True(t, apperror.IsProgrammingError(reg.RegisterHook("Contact", Event("upsert"), Before, noop)))
	assert.True(t, apperror.IsProgrammingError(reg.RegisterHook("Contact", EventCreate, When("during"), noop)))
}

func TestEffect(t *testing.T) {
	var zero Effect
	assert.Equal(t, EffectProceed, zero.Kind())
	assert.Equal(t, EffectAbort, Abort("archived").Kind())
	assert.Equal(t, "archived", Abort("archived").Reason())

	op := touchOp{}
	assert.Equal(t, EffectDefer, Defer(op).Kind())
	assert.Equal(t, op, Defer(op).Op())

	boom := apperror.NewPropertyNotFound("Contact", "phone")
	assert.Equal(t, EffectFail, Fail(boom).Kind())
	assert.Equal(t, boom, Fail(boom).Err())

	assert.False(t, CanAbort(EventCreate, Before))
	assert.True(t, CanAbort(EventUpdate, Before))
	assert.True(t, CanAbort(EventRead, Before))
	assert.False(t, CanAbort(EventUpdate, After))
}

type touchOp struct{}

func (touchOp) EffectKind() string { return "touch" }

func TestDefine_ReportsFirstFault(t *testing.T) {
	reg := NewRegistry()
	err := reg.Define("Contact", func(b *ClassBuilder) {
		b.Persisted("phone").
			Hook(EventCreate, Before, nil).
			Persisted("email")
	})

	require.Error(t, err)
	assert.True(t, apperror.IsProgrammingError(err))
	c := reg.MustGet("Contact")
	assert.True(t, c.IsPersisted("phone"))
	assert.False(t, c.IsPersisted("email"))

	assert.Panics(t, func() {
		reg.MustDefine("Account", func(b *ClassBuilder) { b.Calculated("x", []string{"y"}, nil, false) })
	})
}

func TestTableName(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{"Contact", "contacts"},
		{"Household", "households"},
		{"Activity", "activities"},
		{"ActivityParticipant", "activity_participants"},
		{"Address", "addresses"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			assert.Equal(t, tt.want, TableName(tt.class))
		})
	}
	assert.Equal(t, "household_id", SnakeCase("householdId"))
	assert.Equal(t, "tax_id", SnakeCase("taxID"))
}

func TestRegisterClass_OverridesTable(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Define("Contact", func(b *ClassBuilder) { b.Table("crm_contacts") }))
	assert.Equal(t, "crm_contacts", reg.MustGet("Contact").Table())
	assert.Equal(t, []string{"Contact"}, reg.Classes())
}
