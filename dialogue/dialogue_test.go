package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironvale/sagaengine/avatar"
	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/sagastate"
)

func newCtx(av *avatar.Avatar, state *sagastate.SagaState) Context {
	return Context{Avatar: av, State: state, CharacterRef: "Merchant"}
}

func emptyState() *sagastate.SagaState {
	s, _ := sagastate.Fold(nil)
	return s
}

func TestEvaluateConditionHasEquipment(t *testing.T) {
	av := avatar.New("a1")
	av.GiveItem(catalog.KindEquipment, "lantern", 1)
	ctx := newCtx(av, emptyState())

	assert.True(t, EvaluateCondition(map[string]any{"type": "HasEquipment", "ref": "lantern"}, ctx))
	assert.False(t, EvaluateCondition(map[string]any{"type": "LacksEquipment", "ref": "lantern"}, ctx))
	assert.True(t, EvaluateCondition(map[string]any{"type": "LacksEquipment", "ref": "shield"}, ctx))
}

func TestEvaluateConditionUnknownTypeFailsClosed(t *testing.T) {
	ctx := newCtx(avatar.New("a1"), emptyState())
	assert.False(t, EvaluateCondition(map[string]any{"type": "SomeTypo"}, ctx))
}

func TestApplyActionGiveAndTakeConsumable(t *testing.T) {
	av := avatar.New("a1")
	ctx := newCtx(av, emptyState())
	ApplyAction(map[string]any{"type": "GiveConsumable", "ref": "potion", "quantity": float64(3)}, ctx)
	assert.Equal(t, 3, av.Consumables["potion"])

	ApplyAction(map[string]any{"type": "TakeConsumable", "ref": "potion", "quantity": float64(2)}, ctx)
	assert.Equal(t, 1, av.Consumables["potion"])
}

func TestApplyActionTransferCurrencyProducesEffect(t *testing.T) {
	av := avatar.New("a1")
	ctx := newCtx(av, emptyState())
	effects := ApplyAction(map[string]any{"type": "TransferCurrency", "amount": float64(-50)}, ctx)
	assert.Equal(t, -50, av.Credits)
	require.Len(t, effects, 1)
}

func TestApplyActionChangeReputationUpdatesState(t *testing.T) {
	state := emptyState()
	av := avatar.New("a1")
	ctx := newCtx(av, state)
	ApplyAction(map[string]any{"type": "ChangeReputation", "faction_ref": "townsfolk", "delta": float64(10)}, ctx)
	assert.Equal(t, 10, state.Reputations["townsfolk"])
}

func TestVisitNodeAppliesActionsOnlyOnFirstVisit(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "merchant_greeting",
		StartNodeID: "greet",
		Nodes: map[string]*catalog.DialogueNode{
			"greet": {
				NodeID: "greet",
				Actions: []map[string]any{
					{"type": "GiveConsumable", "ref": "welcome_gift", "quantity": float64(1)},
				},
			},
		},
	}
	g := NewGraph(tree)
	av := avatar.New("a1")
	state := emptyState()
	ctx := newCtx(av, state)

	result, err := VisitNode(g, "greet", ctx)
	require.NoError(t, err)
	assert.True(t, result.FirstVisit)
	assert.Equal(t, 1, av.Consumables["welcome_gift"])

	// Simulate the fold advancing visit_count after the first visit's
	// transaction is recorded, then visit again.
	state.DialogueVisits[sagastate.DialogueVisitKey("a1", "Merchant", "greet")] = &sagastate.DialogueVisit{VisitCount: 1}

	result2, err := VisitNode(g, "greet", ctx)
	require.NoError(t, err)
	assert.False(t, result2.FirstVisit)
	assert.Equal(t, 1, av.Consumables["welcome_gift"]) // unchanged: no duplicate reward
}

func TestVisitNodeFiltersChoicesByCondition(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "gatekeeper",
		StartNodeID: "ask",
		Nodes: map[string]*catalog.DialogueNode{
			"ask": {
				NodeID: "ask",
				Choices: []catalog.DialogueChoice{
					{Text: "Show badge", NextNodeID: "enter", Conditions: []map[string]any{{"type": "HasEquipment", "ref": "badge"}}},
					{Text: "Leave", NextNodeID: "end"},
				},
			},
		},
	}
	g := NewGraph(tree)
	av := avatar.New("a1")
	ctx := newCtx(av, emptyState())

	result, err := VisitNode(g, "ask", ctx)
	require.NoError(t, err)
	require.Len(t, result.AvailableChoices, 1)
	assert.Equal(t, "Leave", result.AvailableChoices[0].Text)

	av.GiveItem(catalog.KindEquipment, "badge", 1)
	result2, err := VisitNode(g, "ask", ctx)
	require.NoError(t, err)
	assert.Len(t, result2.AvailableChoices, 2)
}

func TestNodeIsTerminalByActionOrNamingConvention(t *testing.T) {
	terminalByAction := &catalog.DialogueNode{NodeID: "fight", Actions: []map[string]any{{"type": "StartCombat"}}}
	assert.True(t, NodeIsTerminal(terminalByAction))

	terminalByName := &catalog.DialogueNode{NodeID: "quest_end", Choices: []catalog.DialogueChoice{{NextNodeID: "x"}}}
	assert.True(t, NodeIsTerminal(terminalByName))

	nonTerminal := &catalog.DialogueNode{NodeID: "continue", Choices: []catalog.DialogueChoice{{NextNodeID: "next"}}}
	assert.False(t, NodeIsTerminal(nonTerminal))

	deadEnd := &catalog.DialogueNode{NodeID: "stub"}
	assert.True(t, NodeIsTerminal(deadEnd))
}

func TestGraphNodeLookupIsCaseInsensitive(t *testing.T) {
	tree := &catalog.DialogueTree{
		Ref:         "t",
		StartNodeID: "Greet",
		Nodes:       map[string]*catalog.DialogueNode{"Greet": {NodeID: "Greet"}},
	}
	g := NewGraph(tree)
	n, ok := g.Node("GREET")
	require.True(t, ok)
	assert.Equal(t, "Greet", n.NodeID)
}
