package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
)

func householdPair(t *testing.T, reg *Registry) {
	t.Helper()
	require.NoError(t, reg.Define("Household", func(b *ClassBuilder) {
		b.Required("id", "name").HasMany("members", "Contact", "household")
	}))
	require.NoError(t, reg.Define("Contact", func(b *ClassBuilder) {
		b.Required("id", "firstName").BelongsTo("household", "Household", "householdId", "members")
	}))
}

func TestRelationship_RootIndexesIDProperty(t *testing.T) {
	reg := NewRegistry()
	householdPair(t, reg)
	require.NoError(t, reg.Freeze())

	contact := reg.MustGet("Contact")
	assert.True(t, contact.IsPersisted("householdId"))

	rel, ok := contact.RootByIDProperty("householdId")
	require.True(t, ok)
	assert.Equal(t, "household", rel.Property)

	_, ok = reg.MustGet("Household").RootByIDProperty("householdId")
	assert.False(t, ok, "reverse side never indexes the key")

	members, ok := reg.MustGet("Household").Relationship("members")
	require.True(t, ok)
	assert.Equal(t, "householdId", members.IDProperty, "reverse side inherits the root key at Freeze")
}

func TestRelationship_SecondRootRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRelationship("Contact", RelationshipDescriptor{
		Property: "spouse", TargetClass: "Spouse", IDProperty: "spouseId", ReverseField: "partner", IsRelationRoot: true,
	}))

	err := reg.RegisterRelationship("Spouse", RelationshipDescriptor{
		Property: "partner", TargetClass: "Contact", IDProperty: "contactId", ReverseField: "spouse", IsRelationRoot: true,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsProgrammingError(err))

	_, ok := reg.MustGet("Spouse").Relationship("partner")
	assert.False(t, ok, "rejected side is not recorded")
}

func TestRelationship_Rejections(t *testing.T) {
	tests := []struct {
		name string
		d    RelationshipDescriptor
	}{
		{"array root", RelationshipDescriptor{Property: "members", TargetClass: "Contact", IDProperty: "contactId", IsArray: true, IsRelationRoot: true}},
		{"root without key", RelationshipDescriptor{Property: "household", TargetClass: "Household", IsRelationRoot: true}},
		{"no target", RelationshipDescriptor{Property: "household"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().RegisterRelationship("Contact", tt.d)
			assert.True(t, apperror.IsProgrammingError(err))
		})
	}
}

func TestRelationship_DuplicatePropertyRejected(t *testing.T) {
	reg := NewRegistry()
	householdPair(t, reg)

	err := reg.RegisterRelationship("Contact", RelationshipDescriptor{
		Property: "household", TargetClass: "Household", IDProperty: "otherId", IsRelationRoot: true,
	})
	assert.True(t, apperror.IsProgrammingError(err))
}

func TestFreeze_PairWithoutRoot(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Define("Household", func(b *ClassBuilder) { b.HasMany("members", "Contact", "household") }))
	require.NoError(t, reg.Define("Contact", func(b *ClassBuilder) { b.HasOne("household", "Household", "members") }))

	err := reg.Freeze()
	require.Error(t, err)
	assert.True(t, apperror.IsProgrammingError(err))
	assert.False(t, reg.Frozen())
}

func TestFreeze_MissingReverseSide(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPersisted("Household", "id"))
	require.NoError(t, reg.Define("Contact", func(b *ClassBuilder) {
		b.BelongsTo("household", "Household", "householdId", "members")
	}))

	assert.True(t, apperror.IsProgrammingError(reg.Freeze()))
}

func TestDependencyOrder_TargetsFirst(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Define("Account", func(b *ClassBuilder) {
		b.BelongsTo("owner", "Contact", "ownerId", "")
	}))
	householdPair(t, reg)
	require.NoError(t, reg.Define("Contact", func(b *ClassBuilder) {
		b.BelongsTo("referrer", "Contact", "referrerId", "")
	}))

	order, err := reg.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Household", "Contact", "Account"}, order)
}

func TestDependencyOrder_Cycle(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRelationship("A", RelationshipDescriptor{Property: "b", TargetClass: "B", IDProperty: "bId", IsRelationRoot: true}))
	require.NoError(t, reg.RegisterRelationship("B", RelationshipDescriptor{Property: "a", TargetClass: "A", IDProperty: "aId", IsRelationRoot: true}))

	_, err := reg.DependencyOrder()
	assert.True(t, apperror.IsProgrammingError(err))
	assert.True(t, apperror.IsProgrammingError(reg.Freeze()))
}
