package worldvalidate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
)

func buildCatalog(t *testing.T, entries map[catalog.Kind]map[string]any) *catalog.Catalog {
	t.Helper()
	b := catalog.NewBuilder()
	for kind, byRef := range entries {
		for ref, entry := range byRef {
			b.Add(kind, ref, entry)
		}
	}
	cat, err := b.Build()
	require.NoError(t, err)
	return cat
}

func TestValidatePassesOnEmptyCatalog(t *testing.T) {
	cat := buildCatalog(t, nil)
	assert.NoError(t, Validate(cat))
}

func TestValidateCatchesUnknownFeatureReference(t *testing.T) {
	arc := &catalog.SagaArc{Ref: "lost_mill", SagaFeatureRef: "nope"}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindSagaArc: {"lost_mill": arc},
	})
	err := Validate(cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world data validation failed")
}

func TestValidateCatchesUnknownQuestTokenReferenceOnTrigger(t *testing.T) {
	arc := &catalog.SagaArc{
		Ref: "watchtower",
		Items: []catalog.ArcItem{
			{InlineTrigger: &catalog.SagaTrigger{Ref: "approach", EnterRadius: 10, RequiresQuestTokens: []string{"missing_token"}}},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindSagaArc: {"watchtower": arc},
	})
	err := Validate(cat)
	require.Error(t, err)
}

func TestValidateAllowsSelfReferenceEverywhere(t *testing.T) {
	feature := &catalog.SagaFeature{
		Ref: "signpost",
		Interactable: &catalog.Interactable{
			RequiresQuestTokens: []string{"@self"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindSagaFeature: {"signpost": feature},
	})
	assert.NoError(t, Validate(cat))
}

func TestValidateDialogueTreeDetectsUnknownStartNode(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "merchant",
		StartNodeID: "missing",
		Nodes: map[string]*catalog.DialogueNode{
			"greet": {NodeID: "greet"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"merchant": tree},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "start_node_id")
}

func TestValidateDialogueTreeDetectsUnreachableNode(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "merchant",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet":    {NodeID: "greet", Choices: []catalog.DialogueChoice{{NextNodeID: "end"}}},
			"end":      {NodeID: "end"},
			"orphaned": {NodeID: "orphaned", Choices: []catalog.DialogueChoice{{NextNodeID: "end"}}},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"merchant": tree},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, `"orphaned" is unreachable`)
}

func TestValidateDialogueTreeDetectsDeadEndNode(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "merchant",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet": {NodeID: "greet", Choices: []catalog.DialogueChoice{{NextNodeID: "stuck"}}},
			"stuck": {NodeID: "stuck"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"merchant": tree},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "dead end")
}

func TestValidateDialogueTreeAcceptsNamingConventionTerminal(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "merchant",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet":      {NodeID: "greet", Choices: []catalog.DialogueChoice{{NextNodeID: "trade_end"}}},
			"trade_end":  {NodeID: "trade_end"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"merchant": tree},
	})
	assert.NoError(t, Validate(cat))
}

func TestValidateQuestDetectsUnreachableStage(t *testing.T) {
	quest := &catalog.Quest{
		Ref:        "find_the_relic",
		StartStage: "accept",
		Stages: map[string]*catalog.QuestStage{
			"accept": {StageID: "accept", NextStage: "deliver"},
			"deliver": {StageID: "deliver"},
			"orphaned_epilogue": {StageID: "orphaned_epilogue"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindQuest: {"find_the_relic": quest},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, `"orphaned_epilogue" is unreachable`)
}

func TestValidateQuestDetectsMissingTerminalStage(t *testing.T) {
	quest := &catalog.Quest{
		Ref:        "infinite_loop",
		StartStage: "a",
		Stages: map[string]*catalog.QuestStage{
			"a": {StageID: "a", NextStage: "b"},
			"b": {StageID: "b", NextStage: "a"},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindQuest: {"infinite_loop": quest},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "no terminal stage is reachable")
}

func TestValidateStatRangeRejectsOverOneWithoutBossFight(t *testing.T) {
	character := &catalog.Character{
		Ref:   "village_elder",
		Stats: catalog.Stats{Strength: 1.5},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindCharacter: {"village_elder": character},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "strength")
}

func TestValidateStatRangeAllowsUpToTwoForBossFight(t *testing.T) {
	character := &catalog.Character{
		Ref:    "ancient_dragon",
		Stats:  catalog.Stats{Strength: 1.8},
		Traits: map[catalog.Trait]bool{catalog.TraitBossFight: true},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindCharacter: {"ancient_dragon": character},
	})
	assert.NoError(t, Validate(cat))
}

func TestValidateDialogueLootConsistencyRequiresMatchingLootEntry(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "blacksmith_dialogue",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet": {
				NodeID: "greet",
				Actions: []map[string]any{
					{"type": "GiveEquipment", "ref": "Iron Sword"},
					{"type": "OpenMerchantTrade"},
				},
			},
		},
	}
	blacksmith := &catalog.Character{
		Ref: "Blacksmith",
		Interactable: &catalog.Interactable{
			DialogueTreeRef: "blacksmith_dialogue",
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"blacksmith_dialogue": tree},
		catalog.KindCharacter:    {"Blacksmith": blacksmith},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "not present in")
}

func TestValidateDialogueLootConsistencyPassesWhenLootMatches(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "blacksmith_dialogue",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet": {
				NodeID: "greet",
				Actions: []map[string]any{
					{"type": "GiveEquipment", "ref": "Iron Sword"},
					{"type": "OpenMerchantTrade"},
				},
			},
		},
	}
	blacksmith := &catalog.Character{
		Ref: "Blacksmith",
		Interactable: &catalog.Interactable{
			DialogueTreeRef: "blacksmith_dialogue",
			Loot:            []catalog.LootEntry{{ItemRef: "Iron Sword", ItemKind: catalog.KindEquipment, Quantity: 1}},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"blacksmith_dialogue": tree},
		catalog.KindCharacter:    {"Blacksmith": blacksmith},
		catalog.KindEquipment:    {"Iron Sword": &catalog.Item{Ref: "Iron Sword", Kind: catalog.KindEquipment, Condition: 1}},
	})
	assert.NoError(t, Validate(cat))
}

func TestValidateHeuristicFlagsStartCombatWithoutStateChange(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "bandit_dialogue",
		StartNodeID: "threaten",
		Nodes: map[string]*catalog.DialogueNode{
			"threaten": {
				NodeID: "threaten",
				Actions: []map[string]any{
					{"type": "StartCombat"},
				},
			},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindDialogueTree: {"bandit_dialogue": tree},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "starts combat without")
}

func TestValidateHeuristicFlagsSpawnReachedOnlyThroughPatternRef(t *testing.T) {
	// A Friendly trait keeps the character from counting as ambient.
	character := &catalog.Character{Ref: "lonely_villager", Traits: map[catalog.Trait]bool{catalog.TraitFriendly: true}}
	pattern := &catalog.SagaTriggerPattern{
		Ref: "village_watch",
		Triggers: []catalog.SagaTrigger{
			{
				Ref:         "approach",
				EnterRadius: 10,
				Spawns:      []catalog.CharacterSpawn{{CharacterRef: "lonely_villager", Count: 1}},
			},
		},
	}
	arc := &catalog.SagaArc{
		Ref:   "village",
		Items: []catalog.ArcItem{{PatternRef: "village_watch"}},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindCharacter:          {"lonely_villager": character},
		catalog.KindSagaTriggerPattern: {"village_watch": pattern},
		catalog.KindSagaArc:            {"village": arc},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "lonely_villager")
}

func TestValidateHeuristicFlagsArchetypePoolMember(t *testing.T) {
	// A Friendly trait keeps the character from counting as ambient.
	guard := &catalog.Character{Ref: "guard_variant_a", Traits: map[catalog.Trait]bool{catalog.TraitFriendly: true}}
	archetype := &catalog.CharacterArchetype{Ref: "guard_pool", Pool: []string{"guard_variant_a"}}
	arc := &catalog.SagaArc{
		Ref: "barracks",
		Items: []catalog.ArcItem{
			{InlineTrigger: &catalog.SagaTrigger{
				Ref:         "approach",
				EnterRadius: 10,
				Spawns:      []catalog.CharacterSpawn{{CharacterArchetypeRef: "guard_pool", Count: 1}},
			}},
		},
	}
	cat := buildCatalog(t, map[catalog.Kind]map[string]any{
		catalog.KindCharacter:          {"guard_variant_a": guard},
		catalog.KindCharacterArchetype: {"guard_pool": archetype},
		catalog.KindSagaArc:            {"barracks": arc},
	})
	err := Validate(cat)
	require.Error(t, err)
	wv := err.(*core.WorldValidationFailed)
	assertAnyContains(t, wv.Errors, "guard_variant_a")
}

func assertAnyContains(t *testing.T, errs []string, substr string) {
	t.Helper()
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return
		}
	}
	t.Fatalf("no error contained %q, got: %v", substr, errs)
}
