// Package avatar defines the mutable runtime entity the engine
// receives by reference for the duration of a single call. The engine
// never retains an Avatar across calls; the host owns its lifetime
// and persistence.
package avatar

import (
	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
)

// Avatar is a player's runtime state: vitals, inventory, and social
// standing markers. Health/Stamina/Mana always clamp to [0,1];
// Credits may go negative for transfer actions.
type Avatar struct {
	ID string

	Health  float64
	Stamina float64
	Mana    float64
	Credits int

	Equipment   map[string]bool
	Tools       map[string]bool
	Spells      map[string]bool
	Consumables map[string]int
	Materials   map[string]int

	Achievements map[string]bool
	Traits       map[string]bool
	Affinities   map[string]bool
	CombatStance string

	Party []string

	X, Z float64
}

// New creates an Avatar with empty collections and full vitals.
func New(id string) *Avatar {
	return &Avatar{
		ID:           id,
		Health:       1,
		Stamina:      1,
		Mana:         1,
		Equipment:    make(map[string]bool),
		Tools:        make(map[string]bool),
		Spells:       make(map[string]bool),
		Consumables:  make(map[string]int),
		Materials:    make(map[string]int),
		Achievements: make(map[string]bool),
		Traits:       make(map[string]bool),
		Affinities:   make(map[string]bool),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampVitals enforces the engine's vital invariant after any action
// mutates Health, Stamina, or Mana.
func (a *Avatar) ClampVitals() {
	a.Health = clamp01(a.Health)
	a.Stamina = clamp01(a.Stamina)
	a.Mana = clamp01(a.Mana)
}

// HasItem reports whether the avatar owns ref under kind: presence
// for idempotent kinds, quantity > 0 for stacking kinds.
func (a *Avatar) HasItem(kind catalog.Kind, ref string) bool {
	ref = core.NormalizeRef(ref)
	switch kind {
	case catalog.KindEquipment:
		return a.Equipment[ref]
	case catalog.KindTool:
		return a.Tools[ref]
	case catalog.KindSpell:
		return a.Spells[ref]
	case catalog.KindConsumable:
		return a.Consumables[ref] > 0
	case catalog.KindBuildingMaterial:
		return a.Materials[ref] > 0
	default:
		return false
	}
}

// GiveItem grants quantity of ref under kind, applying the kind's
// stacking rule: idempotent kinds set membership once; stacking kinds
// accumulate quantity.
func (a *Avatar) GiveItem(kind catalog.Kind, ref string, quantity int) {
	ref = core.NormalizeRef(ref)
	switch kind.Stacking() {
	case catalog.StackIdempotent:
		switch kind {
		case catalog.KindEquipment:
			a.Equipment[ref] = true
		case catalog.KindTool:
			a.Tools[ref] = true
		case catalog.KindSpell:
			a.Spells[ref] = true
		}
	case catalog.StackByQuantity:
		if quantity <= 0 {
			quantity = 1
		}
		switch kind {
		case catalog.KindConsumable:
			a.Consumables[ref] += quantity
		case catalog.KindBuildingMaterial:
			a.Materials[ref] += quantity
		}
	}
}

// TakeItem removes quantity of ref under kind. For idempotent kinds it
// clears ownership outright and quantity is ignored. Returns false if
// the avatar doesn't have enough to take (idempotent kinds: doesn't
// own it at all).
func (a *Avatar) TakeItem(kind catalog.Kind, ref string, quantity int) bool {
	ref = core.NormalizeRef(ref)
	switch kind.Stacking() {
	case catalog.StackIdempotent:
		if !a.HasItem(kind, ref) {
			return false
		}
		switch kind {
		case catalog.KindEquipment:
			delete(a.Equipment, ref)
		case catalog.KindTool:
			delete(a.Tools, ref)
		case catalog.KindSpell:
			delete(a.Spells, ref)
		}
		return true
	case catalog.StackByQuantity:
		if quantity <= 0 {
			quantity = 1
		}
		var store map[string]int
		switch kind {
		case catalog.KindConsumable:
			store = a.Consumables
		case catalog.KindBuildingMaterial:
			store = a.Materials
		default:
			return false
		}
		if store[ref] < quantity {
			return false
		}
		store[ref] -= quantity
		if store[ref] == 0 {
			delete(store, ref)
		}
		return true
	}
	return false
}
