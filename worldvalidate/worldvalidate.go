// Package worldvalidate runs the one-time, load-time checks that
// enforce the invariants the rest of the engine assumes about
// authored content: referential integrity, dialogue/quest graph
// reachability, stat ranges, and dialogue/loot consistency. It never
// mutates the catalog; it only reports.
package worldvalidate

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/dialogue"
)

var structValidator = validator.New()

// Validate runs every check over cat and returns a
// core.WorldValidationFailed aggregating every problem found, or nil
// if the catalog passes.
func Validate(cat *catalog.Catalog) error {
	var errs []string
	errs = append(errs, checkReferences(cat)...)
	errs = append(errs, checkDialogueTrees(cat)...)
	errs = append(errs, checkQuests(cat)...)
	errs = append(errs, checkStatRanges(cat)...)
	errs = append(errs, checkDialogueLootConsistency(cat)...)
	errs = append(errs, checkHeuristics(cat)...)

	if len(errs) == 0 {
		return nil
	}
	sort.Strings(errs)
	return &core.WorldValidationFailed{Errors: errs}
}

func ref(cat *catalog.Catalog, kind catalog.Kind, value, context string) []string {
	if value == "" {
		return nil
	}
	if !cat.Exists(kind, value) {
		return []string{fmt.Sprintf("%s: unknown %s reference %q", context, kind, value)}
	}
	return nil
}

func refs(cat *catalog.Catalog, kind catalog.Kind, values []string, context string) []string {
	var out []string
	for _, v := range values {
		out = append(out, ref(cat, kind, v, context)...)
	}
	return out
}

func checkInteractable(cat *catalog.Catalog, it *catalog.Interactable, context string) []string {
	if it == nil {
		return nil
	}
	var out []string
	out = append(out, refs(cat, catalog.KindQuestToken, it.RequiresQuestTokens, context)...)
	out = append(out, refs(cat, catalog.KindQuestToken, it.GivesQuestTokens, context)...)
	out = append(out, ref(cat, catalog.KindDialogueTree, it.DialogueTreeRef, context)...)
	for _, loot := range it.Loot {
		out = append(out, ref(cat, loot.ItemKind, loot.ItemRef, context)...)
	}
	return out
}

func checkReferences(cat *catalog.Catalog) []string {
	var out []string

	for _, entry := range cat.All(catalog.KindSagaArc) {
		arc := entry.(*catalog.SagaArc)
		ctx := fmt.Sprintf("saga_arc %q", arc.Ref)
		out = append(out, ref(cat, catalog.KindSagaFeature, arc.SagaFeatureRef, ctx)...)
		for _, item := range arc.Items {
			switch {
			case item.InlineTrigger != nil:
				out = append(out, checkTriggerRefs(cat, item.InlineTrigger, ctx)...)
			case item.PatternRef != "":
				out = append(out, ref(cat, catalog.KindSagaTriggerPattern, item.PatternRef, ctx)...)
			}
		}
	}

	for _, entry := range cat.All(catalog.KindSagaTriggerPattern) {
		pattern := entry.(*catalog.SagaTriggerPattern)
		ctx := fmt.Sprintf("saga_trigger_pattern %q", pattern.Ref)
		for i := range pattern.Triggers {
			out = append(out, checkTriggerRefs(cat, &pattern.Triggers[i], ctx)...)
		}
	}

	for _, entry := range cat.All(catalog.KindSagaFeature) {
		feature := entry.(*catalog.SagaFeature)
		out = append(out, checkInteractable(cat, feature.Interactable, fmt.Sprintf("saga_feature %q", feature.Ref))...)
	}

	for _, entry := range cat.All(catalog.KindCharacter) {
		character := entry.(*catalog.Character)
		ctx := fmt.Sprintf("character %q", character.Ref)
		out = append(out, checkInteractable(cat, character.Interactable, ctx)...)
		for _, bt := range character.BattleDialogueTriggers {
			out = append(out, ref(cat, catalog.KindDialogueTree, bt.DialogueTreeRef, ctx)...)
		}
	}

	for _, entry := range cat.All(catalog.KindCharacterArchetype) {
		archetype := entry.(*catalog.CharacterArchetype)
		out = append(out, refs(cat, catalog.KindCharacter, archetype.Pool, fmt.Sprintf("character_archetype %q", archetype.Ref))...)
	}

	for _, entry := range cat.All(catalog.KindQuest) {
		quest := entry.(*catalog.Quest)
		ctx := fmt.Sprintf("quest %q", quest.Ref)
		for _, stage := range quest.Stages {
			for _, reward := range stage.Rewards {
				out = append(out, ref(cat, reward.ItemKind, reward.ItemRef, ctx)...)
			}
		}
	}

	return out
}

func checkTriggerRefs(cat *catalog.Catalog, t *catalog.SagaTrigger, ctx string) []string {
	var out []string
	out = append(out, refs(cat, catalog.KindQuestToken, t.RequiresQuestTokens, ctx)...)
	out = append(out, refs(cat, catalog.KindQuestToken, t.GivesQuestTokens, ctx)...)
	for _, spawn := range t.Spawns {
		if spawn.CharacterRef != "" {
			out = append(out, ref(cat, catalog.KindCharacter, spawn.CharacterRef, ctx)...)
		}
		if spawn.CharacterArchetypeRef != "" {
			out = append(out, ref(cat, catalog.KindCharacterArchetype, spawn.CharacterArchetypeRef, ctx)...)
		}
	}
	return out
}

func checkDialogueTrees(cat *catalog.Catalog) []string {
	var out []string

	battleEntryPoints := make(map[string]map[string]bool) // tree ref -> node id -> true
	for _, entry := range cat.All(catalog.KindCharacter) {
		character := entry.(*catalog.Character)
		for _, bt := range character.BattleDialogueTriggers {
			if battleEntryPoints[bt.DialogueTreeRef] == nil {
				battleEntryPoints[bt.DialogueTreeRef] = make(map[string]bool)
			}
			battleEntryPoints[bt.DialogueTreeRef][bt.NodeID] = true
		}
	}

	for _, entry := range cat.All(catalog.KindDialogueTree) {
		tree := entry.(*catalog.DialogueTree)
		ctx := fmt.Sprintf("dialogue_tree %q", tree.Ref)
		g := dialogue.NewGraph(tree)

		if _, ok := g.StartNode(); !ok {
			out = append(out, fmt.Sprintf("%s: start_node_id %q does not exist", ctx, tree.StartNodeID))
			continue
		}

		entryPoints := []string{tree.StartNodeID}
		for nodeID := range battleEntryPoints[tree.Ref] {
			entryPoints = append(entryPoints, nodeID)
		}

		for _, node := range tree.Nodes {
			for _, choice := range node.Choices {
				if _, ok := g.Node(choice.NextNodeID); !ok {
					out = append(out, fmt.Sprintf("%s: node %q choice references unknown next_node_id %q", ctx, node.NodeID, choice.NextNodeID))
				}
			}
		}

		reachable := bfsDialogue(g, entryPoints)
		for id, node := range tree.Nodes {
			if !reachable[core.NormalizeRef(id)] {
				out = append(out, fmt.Sprintf("%s: node %q is unreachable from any entry point", ctx, id))
				continue
			}
			if len(node.Choices) == 0 && !isIntentionalTerminal(node) {
				out = append(out, fmt.Sprintf("%s: node %q is a dead end with no terminal action or naming convention", ctx, id))
			}
		}
	}

	return out
}

// isIntentionalTerminal reports whether node is a deliberate stopping
// point per the authored conventions (a terminal action, or an "end"/
// "*_end"/"battle_*" id), as opposed to merely having no choices.
// dialogue.NodeIsTerminal also treats zero choices as terminal, which
// is right for the runtime ("nowhere to go, stop here") but wrong for
// validation, where a choice-less node that nobody intended to end the
// conversation is exactly the authoring bug this check exists to catch.
func isIntentionalTerminal(node *catalog.DialogueNode) bool {
	for _, action := range node.Actions {
		actType, _ := action["type"].(string)
		if dialogue.IsTerminalActionType(actType) {
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
	return false
}

func bfsDialogue(g *dialogue.Graph, entryPoints []string) map[string]bool {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, e := range entryPoints {
		if node, ok := g.Node(e); ok {
			key := core.NormalizeRef(node.NodeID)
			if !seen[key] {
				seen[key] = true
				queue = append(queue, node.NodeID)
			}
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, ok := g.Node(id)
		if !ok {
			continue
		}
		for _, choice := range node.Choices {
			next, ok := g.Node(choice.NextNodeID)
			if !ok {
				continue
			}
			key := core.NormalizeRef(next.NodeID)
			if !seen[key] {
				seen[key] = true
				queue = append(queue, next.NodeID)
			}
		}
	}
	return seen
}

func checkQuests(cat *catalog.Catalog) []string {
	var out []string
	for _, entry := range cat.All(catalog.KindQuest) {
		quest := entry.(*catalog.Quest)
		ctx := fmt.Sprintf("quest %q", quest.Ref)

		if _, ok := quest.Stages[quest.StartStage]; !ok {
			out = append(out, fmt.Sprintf("%s: start_stage %q does not exist", ctx, quest.StartStage))
			continue
		}

		for _, stage := range quest.Stages {
			if stage.NextStage != "" {
				if _, ok := quest.Stages[stage.NextStage]; !ok {
					out = append(out, fmt.Sprintf("%s: stage %q next_stage %q does not exist", ctx, stage.StageID, stage.NextStage))
				}
			}
			for _, branch := range stage.Branches {
				if _, ok := quest.Stages[branch.LeadsToStage]; !ok {
					out = append(out, fmt.Sprintf("%s: stage %q branch leads_to_stage %q does not exist", ctx, stage.StageID, branch.LeadsToStage))
				}
			}
		}

		reachable := bfsQuest(quest)
		for id := range quest.Stages {
			if !reachable[id] {
				out = append(out, fmt.Sprintf("%s: stage %q is unreachable from start_stage", ctx, id))
			}
		}

		terminalReachable := false
		for id := range reachable {
			stage := quest.Stages[id]
			if stage != nil && stage.NextStage == "" && len(stage.Branches) == 0 {
				terminalReachable = true
				break
			}
		}
		if !terminalReachable {
			out = append(out, fmt.Sprintf("%s: no terminal stage is reachable from start_stage", ctx))
		}
	}
	return out
}

func bfsQuest(quest *catalog.Quest) map[string]bool {
	seen := map[string]bool{quest.StartStage: true}
	queue := []string{quest.StartStage}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		stage, ok := quest.Stages[id]
		if !ok {
			continue
		}
		next := make([]string, 0, len(stage.Branches)+1)
		if stage.NextStage != "" {
			next = append(next, stage.NextStage)
		}
		for _, b := range stage.Branches {
			next = append(next, b.LeadsToStage)
		}
		for _, n := range next {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return seen
}

func checkStatRanges(cat *catalog.Catalog) []string {
	var out []string
	for _, entry := range cat.All(catalog.KindCharacter) {
		character := entry.(*catalog.Character)
		max := 1.0
		if character.HasTrait(catalog.TraitBossFight) {
			max = 2.0
		}
		stats := character.Stats
		for name, v := range map[string]float64{
			"strength": stats.Strength, "agility": stats.Agility, "intellect": stats.Intellect,
			"vitality": stats.Vitality, "willpower": stats.Willpower, "charisma": stats.Charisma, "luck": stats.Luck,
		} {
			if v < 0 || v > max {
				out = append(out, fmt.Sprintf("character %q: stat %s=%.3f out of range [0,%.1f]", character.Ref, name, v, max))
			}
		}
		if stats.Credits < 0 {
			out = append(out, fmt.Sprintf("character %q: credits %d is negative", character.Ref, stats.Credits))
		}
	}

	for _, kind := range []catalog.Kind{catalog.KindEquipment, catalog.KindTool, catalog.KindSpell, catalog.KindConsumable, catalog.KindBuildingMaterial} {
		for _, entry := range cat.All(kind) {
			item := entry.(*catalog.Item)
			if err := structValidator.Struct(item); err != nil {
				out = append(out, fmt.Sprintf("%s %q: %v", kind, item.Ref, err))
			}
		}
	}

	for _, entry := range cat.All(catalog.KindCombatStance) {
		stance := entry.(*catalog.CombatStance)
		if err := structValidator.Struct(stance); err != nil {
			out = append(out, fmt.Sprintf("combat_stance %q: %v", stance.Ref, err))
		}
	}

	return out
}

func checkDialogueLootConsistency(cat *catalog.Catalog) []string {
	var out []string

	treeOwner := make(map[string]*catalog.Character)
	for _, entry := range cat.All(catalog.KindCharacter) {
		character := entry.(*catalog.Character)
		if character.Interactable != nil && character.Interactable.DialogueTreeRef != "" {
			treeOwner[core.NormalizeRef(character.Interactable.DialogueTreeRef)] = character
		}
	}

	for _, entry := range cat.All(catalog.KindDialogueTree) {
		tree := entry.(*catalog.DialogueTree)
		owner, hasOwner := treeOwner[core.NormalizeRef(tree.Ref)]
		for _, node := range tree.Nodes {
			for _, action := range node.Actions {
				actType, _ := action["type"].(string)
				itemRef, _ := action["ref"].(string)
				switch actType {
				case "GiveEquipment", "GiveTool", "GiveSpell", "GiveConsumable", "GiveMaterial":
					if !hasOwner || owner.Interactable == nil {
						out = append(out, fmt.Sprintf("dialogue_tree %q: node %q gives %s but the tree has no owning character interactable", tree.Ref, node.NodeID, itemRef))
						continue
					}
					if !lootContains(owner.Interactable.Loot, itemRef) {
						out = append(out, fmt.Sprintf("dialogue_tree %q: node %q gives %q not present in %q's loot table", tree.Ref, node.NodeID, itemRef, owner.Ref))
					}
				case "GiveQuestToken":
					if !cat.Exists(catalog.KindQuestToken, itemRef) {
						out = append(out, fmt.Sprintf("dialogue_tree %q: node %q gives unknown quest token %q", tree.Ref, node.NodeID, itemRef))
					}
				}
			}
		}
	}

	return out
}

func lootContains(loot []catalog.LootEntry, itemRef string) bool {
	for _, l := range loot {
		if core.NormalizeRef(l.ItemRef) == core.NormalizeRef(itemRef) && l.Quantity >= 1 {
			return true
		}
	}
	return false
}

func checkHeuristics(cat *catalog.Catalog) []string {
	var out []string

	for _, entry := range cat.All(catalog.KindDialogueTree) {
		tree := entry.(*catalog.DialogueTree)
		for _, node := range tree.Nodes {
			var targetsCombat, setsState bool
			for _, action := range node.Actions {
				actType, _ := action["type"].(string)
				if actType == "StartCombat" {
					targetsCombat = true
				}
				if actType == "SetCharacterState" {
					setsState = true
				}
			}
			if targetsCombat && !setsState {
				out = append(out, fmt.Sprintf("dialogue_tree %q: node %q starts combat without a preceding SetCharacterState action", tree.Ref, node.NodeID))
			}
		}
	}

	for _, entry := range cat.All(catalog.KindSagaArc) {
		arc := entry.(*catalog.SagaArc)
		for _, item := range arc.Items {
			switch {
			case item.InlineTrigger != nil:
				out = append(out, checkSpawnsHeuristic(cat, item.InlineTrigger.Spawns)...)
			case item.PatternRef != "":
				pattern, ok := cat.SagaTriggerPattern(item.PatternRef)
				if !ok {
					continue
				}
				for _, t := range pattern.Triggers {
					out = append(out, checkSpawnsHeuristic(cat, t.Spawns)...)
				}
			}
		}
	}

	return out
}

// checkSpawnsHeuristic resolves every concrete character a CharacterSpawn
// can produce — a direct CharacterRef, or every member of a
// CharacterArchetypeRef's pool — and runs the dialogue/ambient heuristic
// against each one.
func checkSpawnsHeuristic(cat *catalog.Catalog, spawns []catalog.CharacterSpawn) []string {
	var out []string
	for _, spawn := range spawns {
		for _, characterRef := range spawnedCharacterRefs(cat, spawn) {
			character, ok := cat.Character(characterRef)
			if !ok {
				continue
			}
			out = append(out, checkSpawnedCharacterHasDialogueOrIsAmbient(character)...)
		}
	}
	return out
}

// spawnedCharacterRefs resolves the set of concrete character refs a
// CharacterSpawn can produce at runtime: itself for a direct
// CharacterRef, or every pool member for a CharacterArchetypeRef (the
// archetype's random pick at runtime means every pool member is a
// possible spawn and so must pass the heuristic).
func spawnedCharacterRefs(cat *catalog.Catalog, spawn catalog.CharacterSpawn) []string {
	if spawn.CharacterRef != "" {
		return []string{spawn.CharacterRef}
	}
	if spawn.CharacterArchetypeRef != "" {
		archetype, ok := cat.CharacterArchetype(spawn.CharacterArchetypeRef)
		if !ok {
			return nil
		}
		return archetype.Pool
	}
	return nil
}

func checkSpawnedCharacterHasDialogueOrIsAmbient(character *catalog.Character) []string {
	hasDialogue := character.Interactable != nil && character.Interactable.DialogueTreeRef != ""
	if hasDialogue {
		return nil
	}
	isBossBattleOnly := character.HasTrait(catalog.TraitBossFight) && character.HasTrait(catalog.TraitHostile) && len(character.BattleDialogueTriggers) > 0
	isPurelyHostile := character.HasTrait(catalog.TraitHostile) && !character.HasTrait(catalog.TraitFriendly) && !character.HasTrait(catalog.TraitWillingToBargain)
	isAmbient := len(character.Traits) == 0 && character.Interactable == nil
	if isBossBattleOnly || isPurelyHostile || isAmbient {
		return nil
	}
	return []string{fmt.Sprintf("character %q: saga-spawned but has no dialogue tree and doesn't qualify as boss-battle, hostile, or ambient", character.Ref)}
}
