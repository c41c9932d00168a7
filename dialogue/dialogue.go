// Package dialogue interprets a DialogueTree: it evaluates node and
// choice conditions against an avatar and saga state, and applies node
// actions, honoring the first-visit-only reward rule. It is built as
// an arena of nodes with a normalized id index rather than a literal
// transition-guard state machine, since a node's choices are data, not
// registered transitions.
package dialogue

import (
	"fmt"

	"github.com/ironvale/sagaengine/avatar"
	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/sagastate"
	"github.com/ironvale/sagaengine/txlog"
)

// terminalActionTypes are action "type" values that close out an
// interaction: reaching a node carrying one of these (as an action or
// as the node's sole purpose) ends the conversation flow.
var terminalActionTypes = map[string]bool{
	"StartCombat":      true,
	"StartBossBattle":  true,
	"EndBattle":        true,
	"AcceptQuest":      true,
	"CompleteQuest":    true,
	"OpenMerchantTrade": true,
}

// IsTerminalActionType reports whether actionType ends the dialogue
// flow once executed.
func IsTerminalActionType(actionType string) bool {
	return terminalActionTypes[actionType]
}

// Graph wraps a catalog.DialogueTree with a case-insensitive node
// index, built once and reused across every visit.
type Graph struct {
	Tree  *catalog.DialogueTree
	index map[string]*catalog.DialogueNode
}

// NewGraph builds the normalized node index for tree.
func NewGraph(tree *catalog.DialogueTree) *Graph {
	g := &Graph{Tree: tree, index: make(map[string]*catalog.DialogueNode, len(tree.Nodes))}
	for id, node := range tree.Nodes {
		g.index[core.NormalizeRef(id)] = node
		_ = id
	}
	return g
}

// Node resolves a node id case-insensitively.
func (g *Graph) Node(id string) (*catalog.DialogueNode, bool) {
	n, ok := g.index[core.NormalizeRef(id)]
	return n, ok
}

// StartNode resolves the tree's configured entry point.
func (g *Graph) StartNode() (*catalog.DialogueNode, bool) {
	return g.Node(g.Tree.StartNodeID)
}

// Context bundles everything condition/action evaluation needs: the
// avatar being mutated, the derived saga state it's interacting
// within, which character is speaking, and the catalog for resolving
// referenced content.
type Context struct {
	Avatar       *avatar.Avatar
	State        *sagastate.SagaState
	CharacterRef string
	Catalog      *catalog.Catalog
}

// Effect is one transaction the caller should append after a
// successful action application. Action handlers never touch txlog
// directly — dialogue stays a pure function over its inputs.
type Effect struct {
	Type txlog.Type
	Data map[string]string
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func numf(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func numi(m map[string]any, key string) int {
	return int(numf(m, key))
}

// EvaluateCondition evaluates one condition map against ctx. Unknown
// condition types evaluate false rather than error, so authored
// content with a typo fails closed instead of corrupting replay.
func EvaluateCondition(cond map[string]any, ctx Context) bool {
	switch str(cond, "type") {
	case "HasEquipment":
		return ctx.Avatar.HasItem(catalog.KindEquipment, str(cond, "ref"))
	case "LacksEquipment":
		return !ctx.Avatar.HasItem(catalog.KindEquipment, str(cond, "ref"))
	case "HasTool":
		return ctx.Avatar.HasItem(catalog.KindTool, str(cond, "ref"))
	case "LacksTool":
		return !ctx.Avatar.HasItem(catalog.KindTool, str(cond, "ref"))
	case "HasSpell":
		return ctx.Avatar.HasItem(catalog.KindSpell, str(cond, "ref"))
	case "LacksSpell":
		return !ctx.Avatar.HasItem(catalog.KindSpell, str(cond, "ref"))
	case "HasConsumable":
		return ctx.Avatar.HasItem(catalog.KindConsumable, str(cond, "ref"))
	case "LacksConsumable":
		return !ctx.Avatar.HasItem(catalog.KindConsumable, str(cond, "ref"))
	case "HasMaterial":
		return ctx.Avatar.HasItem(catalog.KindBuildingMaterial, str(cond, "ref"))
	case "LacksMaterial":
		return !ctx.Avatar.HasItem(catalog.KindBuildingMaterial, str(cond, "ref"))
	case "HasAchievement":
		return ctx.Avatar.Achievements[str(cond, "ref")]
	case "HasTrait":
		return ctx.Avatar.Traits[str(cond, "ref")]
	case "LacksTrait":
		return !ctx.Avatar.Traits[str(cond, "ref")]
	case "CreditsAtLeast":
		return float64(ctx.Avatar.Credits) >= numf(cond, "value")
	case "CreditsAtMost":
		return float64(ctx.Avatar.Credits) <= numf(cond, "value")
	case "HealthAtLeast":
		return ctx.Avatar.Health >= numf(cond, "value")
	case "HealthAtMost":
		return ctx.Avatar.Health <= numf(cond, "value")
	case "PlayerVisitCount":
		v := ctx.State.DialogueVisits[sagastate.DialogueVisitKey(ctx.Avatar.ID, ctx.CharacterRef, str(cond, "node_id"))]
		count := 0
		if v != nil {
			count = v.VisitCount
		}
		return count >= numi(cond, "at_least")
	case "NodeVisited":
		_, ok := ctx.State.DialogueVisits[sagastate.DialogueVisitKey(ctx.Avatar.ID, ctx.CharacterRef, str(cond, "node_id"))]
		return ok
	case "QuestActive":
		q := ctx.State.Quests[str(cond, "quest_ref")]
		return q != nil && q.Status == sagastate.QuestActive
	case "QuestCompleted":
		q := ctx.State.Quests[str(cond, "quest_ref")]
		return q != nil && q.Status == sagastate.QuestCompleted
	case "QuestNotStarted":
		q := ctx.State.Quests[str(cond, "quest_ref")]
		return q == nil || q.Status == sagastate.QuestNotStarted
	case "ReputationAtLeast":
		return ctx.State.Reputations[str(cond, "faction_ref")] >= numi(cond, "value")
	case "ReputationLevel":
		faction, ok := ctx.Catalog.Faction(str(cond, "faction_ref"))
		if !ok {
			return false
		}
		return faction.LevelFor(ctx.State.Reputations[str(cond, "faction_ref")]) == str(cond, "level")
	default:
		return false
	}
}

// EvaluateConditions ANDs every condition in conds; an empty list is
// vacuously true.
func EvaluateConditions(conds []map[string]any, ctx Context) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, ctx) {
			return false
		}
	}
	return true
}

// ApplyAction mutates ctx.Avatar per act's type and returns the
// transaction(s) the caller should append. An unrecognized action
// type is a no-op producing no effects. worldvalidate does not check
// action type names, so such an action is not reported there either.
func ApplyAction(act map[string]any, ctx Context) []Effect {
	actType := str(act, "type")
	switch actType {
	case "GiveEquipment":
		ctx.Avatar.GiveItem(catalog.KindEquipment, str(act, "ref"), 1)
	case "GiveTool":
		ctx.Avatar.GiveItem(catalog.KindTool, str(act, "ref"), 1)
	case "GiveSpell":
		ctx.Avatar.GiveItem(catalog.KindSpell, str(act, "ref"), 1)
	case "GiveConsumable":
		ctx.Avatar.GiveItem(catalog.KindConsumable, str(act, "ref"), numi(act, "quantity"))
	case "GiveMaterial":
		ctx.Avatar.GiveItem(catalog.KindBuildingMaterial, str(act, "ref"), numi(act, "quantity"))
	case "TakeEquipment":
		ctx.Avatar.TakeItem(catalog.KindEquipment, str(act, "ref"), 1)
	case "TakeTool":
		ctx.Avatar.TakeItem(catalog.KindTool, str(act, "ref"), 1)
	case "TakeSpell":
		ctx.Avatar.TakeItem(catalog.KindSpell, str(act, "ref"), 1)
	case "TakeConsumable":
		ctx.Avatar.TakeItem(catalog.KindConsumable, str(act, "ref"), numi(act, "quantity"))
	case "TakeMaterial":
		ctx.Avatar.TakeItem(catalog.KindBuildingMaterial, str(act, "ref"), numi(act, "quantity"))
	case "TransferCurrency":
		ctx.Avatar.Credits += numi(act, "amount")
		return []Effect{{Type: txlog.TypeItemTraded, Data: map[string]string{
			"Amount": fmt.Sprintf("%d", numi(act, "amount")),
		}}}
	case "GiveQuestToken":
		ref := str(act, "ref")
		return []Effect{{Type: txlog.TypeQuestTokenAwarded, Data: map[string]string{"QuestTokenRef": ref}}}
	case "UnlockAchievement":
		ref := str(act, "ref")
		ctx.Avatar.Achievements[ref] = true
	case "ChangeReputation":
		factionRef := str(act, "faction_ref")
		delta := numi(act, "delta")
		ctx.State.Reputations[factionRef] += delta
		return []Effect{{Type: txlog.TypeReputationChanged, Data: map[string]string{
			"FactionRef": factionRef,
			"Delta":      fmt.Sprintf("%d", delta),
		}}}
	case "AcceptQuest":
		return []Effect{{Type: txlog.TypeQuestAccepted, Data: map[string]string{"QuestRef": str(act, "quest_ref")}}}
	case "CompleteQuest":
		return []Effect{{Type: txlog.TypeQuestCompleted, Data: map[string]string{"QuestRef": str(act, "quest_ref")}}}
	case "AbandonQuest":
		return []Effect{{Type: txlog.TypeQuestAbandoned, Data: map[string]string{"QuestRef": str(act, "quest_ref")}}}
	case "ChangeStance":
		ctx.Avatar.CombatStance = str(act, "ref")
	case "ChangeAffinity", "GrantAffinity":
		ctx.Avatar.Affinities[str(act, "ref")] = true
	case "HealSelf":
		ctx.Avatar.Health += numf(act, "amount")
		ctx.Avatar.ClampVitals()
	case "CastSpell":
		return []Effect{{Type: txlog.TypeEffectApplied, Data: map[string]string{"SpellRef": str(act, "ref")}}}
	case "ApplyStatusEffect":
		return []Effect{{Type: txlog.TypeStatusEffectApplied, Data: map[string]string{"Effect": str(act, "ref")}}}
	case "SummonAlly", "SpawnCharacters":
		return []Effect{{Type: txlog.TypeCharacterSpawned, Data: map[string]string{"CharacterRef": str(act, "character_ref")}}}
	case "StartCombat":
		return []Effect{{Type: txlog.TypeBattleStarted, Data: map[string]string{"CharacterRef": ctx.CharacterRef}}}
	case "StartBossBattle":
		return []Effect{{Type: txlog.TypeBattleStarted, Data: map[string]string{"CharacterRef": ctx.CharacterRef, "Boss": "true"}}}
	case "EndBattle":
		return []Effect{{Type: txlog.TypeBattleEnded, Data: map[string]string{"CharacterRef": ctx.CharacterRef}}}
	case "OpenMerchantTrade":
		return []Effect{{Type: txlog.TypeItemTraded, Data: map[string]string{"CharacterRef": ctx.CharacterRef, "Mode": "open"}}}
	case "AssignTrait":
		ctx.Avatar.Traits[str(act, "ref")] = true
		return []Effect{{Type: txlog.TypeTraitAssigned, Data: map[string]string{"Trait": str(act, "ref")}}}
	case "RemoveTrait":
		delete(ctx.Avatar.Traits, str(act, "ref"))
		return []Effect{{Type: txlog.TypeTraitRemoved, Data: map[string]string{"Trait": str(act, "ref")}}}
	case "SetCharacterState":
		return []Effect{{Type: txlog.TypeTraitAssigned, Data: map[string]string{
			"CharacterRef": ctx.CharacterRef, "Trait": str(act, "state"),
		}}}
	case "JoinParty":
		ctx.Avatar.Party = append(ctx.Avatar.Party, str(act, "ref"))
	case "LeaveParty":
		out := ctx.Avatar.Party[:0]
		for _, ref := range ctx.Avatar.Party {
			if ref != str(act, "ref") {
				out = append(out, ref)
			}
		}
		ctx.Avatar.Party = out
	}
	return nil
}

// VisitResult is what VisitNode produced: the node reached, whether
// this was the first-ever visit (and therefore whether its actions
// ran), and the transactions the caller should append.
type VisitResult struct {
	Node         *catalog.DialogueNode
	FirstVisit   bool
	Effects      []Effect
	AvailableChoices []catalog.DialogueChoice
}

// VisitNode resolves nodeID, applies its actions only on the first
// recorded visit for (avatar, character, node), and returns the
// choices whose conditions currently pass. The caller is responsible
// for recording the DialogueNodeVisited transaction; VisitNode does not
// advance visit_count in State (the fold does that for the next call),
// though a ChangeReputation action adds its delta to State.Reputations.
func VisitNode(g *Graph, nodeID string, ctx Context) (*VisitResult, error) {
	node, ok := g.Node(nodeID)
	if !ok {
		return nil, core.UnknownRef("dialogue_node", nodeID)
	}
	if !EvaluateConditions(node.Conditions, ctx) {
		return nil, core.InvalidInput("dialogue_node", fmt.Sprintf("node %q conditions not satisfied", nodeID))
	}

	key := sagastate.DialogueVisitKey(ctx.Avatar.ID, ctx.CharacterRef, node.NodeID)
	visit := ctx.State.DialogueVisits[key]
	firstVisit := visit == nil || visit.IsFirstVisit()

	var effects []Effect
	if firstVisit {
		for _, action := range node.Actions {
			effects = append(effects, ApplyAction(action, ctx)...)
		}
	}

	var available []catalog.DialogueChoice
	for _, choice := range node.Choices {
		if EvaluateConditions(choice.Conditions, ctx) {
			available = append(available, choice)
		}
	}

	return &VisitResult{Node: node, FirstVisit: firstVisit, Effects: effects, AvailableChoices: available}, nil
}

// NodeIsTerminal reports whether node ends the dialogue flow: it
// carries a terminal action, its id follows the "end"/"*_end"/
// "battle_*" naming convention for intentional terminals, or it has no
// choices at all.
func NodeIsTerminal(node *catalog.DialogueNode) bool {
	for _, action := range node.Actions {
		if IsTerminalActionType(str(action, "type")) {
			return true
		}
	}
	id := core.NormalizeRef(node.NodeID)
	if id == "end" {
		return true
	}
	if len(id) >= 4 && id[len(id)-4:] == "_end" {
		return true
	}
	if len(id) >= 7 && id[:7] == "battle_" {
		return true
	}
	return len(node.Choices) == 0
}
