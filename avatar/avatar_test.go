package avatar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironvale/sagaengine/catalog"
)

func TestGiveItemIdempotentForEquipment(t *testing.T) {
	a := New("avatar-1")
	a.GiveItem(catalog.KindEquipment, "iron_sword", 1)
	a.GiveItem(catalog.KindEquipment, "iron_sword", 1)
	assert.True(t, a.HasItem(catalog.KindEquipment, "iron_sword"))
	assert.Len(t, a.Equipment, 1)
}

func TestGiveItemStacksConsumablesByQuantity(t *testing.T) {
	a := New("avatar-1")
	a.GiveItem(catalog.KindConsumable, "healing_potion", 2)
	a.GiveItem(catalog.KindConsumable, "healing_potion", 3)
	assert.Equal(t, 5, a.Consumables["healing_potion"])
}

func TestTakeItemRemovesIdempotentOwnership(t *testing.T) {
	a := New("avatar-1")
	a.GiveItem(catalog.KindTool, "pickaxe", 1)
	require.True(t, a.TakeItem(catalog.KindTool, "pickaxe", 1))
	assert.False(t, a.HasItem(catalog.KindTool, "pickaxe"))
	assert.False(t, a.TakeItem(catalog.KindTool, "pickaxe", 1))
}

func TestTakeItemFailsWhenInsufficientQuantity(t *testing.T) {
	a := New("avatar-1")
	a.GiveItem(catalog.KindBuildingMaterial, "stone", 2)
	assert.False(t, a.TakeItem(catalog.KindBuildingMaterial, "stone", 5))
	assert.Equal(t, 2, a.Materials["stone"])
}

func TestClampVitalsEnforcesUnitRange(t *testing.T) {
	a := New("avatar-1")
	a.Health = 1.5
	a.Stamina = -0.2
	a.Mana = 0.5
	a.ClampVitals()
	assert.Equal(t, 1.0, a.Health)
	assert.Equal(t, 0.0, a.Stamina)
	assert.Equal(t, 0.5, a.Mana)
}

func TestCreditsMayGoNegative(t *testing.T) {
	a := New("avatar-1")
	a.Credits = 10
	a.Credits -= 25
	assert.Equal(t, -15, a.Credits)
}
