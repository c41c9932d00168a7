package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCaseInsensitiveLookup(t *testing.T) {
	b := NewBuilder()
	b.Add(KindCharacter, "Old_Man_Willow", &Character{Ref: "Old_Man_Willow"})
	cat, err := b.Build()
	require.NoError(t, err)

	c, ok := cat.Character("old_man_willow")
	require.True(t, ok)
	assert.Equal(t, "Old_Man_Willow", c.Ref)

	c2, ok := cat.Character("OLD_MAN_WILLOW")
	require.True(t, ok)
	assert.Same(t, c, c2)
}

func TestBuilderRejectsDuplicateKey(t *testing.T) {
	b := NewBuilder()
	b.Add(KindTool, "pickaxe", &Item{Ref: "pickaxe", Kind: KindTool})
	b.Add(KindTool, "Pickaxe", &Item{Ref: "Pickaxe", Kind: KindTool})
	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilderRejectsSelfAsKey(t *testing.T) {
	b := NewBuilder()
	b.Add(KindQuestToken, "@self", &QuestToken{Ref: "@self"})
	_, err := b.Build()
	require.Error(t, err)
}

func TestCatalogExistsAcceptsSelfWithoutRegistration(t *testing.T) {
	b := NewBuilder()
	cat, err := b.Build()
	require.NoError(t, err)
	assert.True(t, cat.Exists(KindCharacter, "@self"))
	assert.True(t, cat.Exists(KindCharacter, "@SELF"))
	assert.False(t, cat.Exists(KindCharacter, "nobody"))
}

func TestCatalogResolveWrapsMissAsUnknownRef(t *testing.T) {
	b := NewBuilder()
	cat, err := b.Build()
	require.NoError(t, err)
	_, err = cat.Resolve(KindCharacter, "nobody")
	require.Error(t, err)
}

func TestFactionLevelFor(t *testing.T) {
	f := &Faction{Ref: "townsfolk", Levels: []FactionLevel{
		{MinValue: -100, Name: "Hated"},
		{MinValue: 0, Name: "Neutral"},
		{MinValue: 50, Name: "Friendly"},
		{MinValue: 100, Name: "Honored"},
	}}
	assert.Equal(t, "Neutral", f.LevelFor(10))
	assert.Equal(t, "Hated", f.LevelFor(-999))
	assert.Equal(t, "Honored", f.LevelFor(250))
	assert.Equal(t, "Friendly", f.LevelFor(50))
}

func TestKindStacking(t *testing.T) {
	assert.Equal(t, StackIdempotent, KindEquipment.Stacking())
	assert.Equal(t, StackIdempotent, KindTool.Stacking())
	assert.Equal(t, StackIdempotent, KindSpell.Stacking())
	assert.Equal(t, StackByQuantity, KindConsumable.Stacking())
	assert.Equal(t, StackByQuantity, KindBuildingMaterial.Stacking())
}
