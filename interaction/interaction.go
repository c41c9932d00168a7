// Package interaction drives a SagaInstance forward: proximity-based
// trigger activation/deactivation, feature interaction with loot
// application, and deterministic spawn/despawn/respawn, all expressed
// as appended transactions. Every mutating operation validates first
// and appends either the full set of transactions for the operation
// or none at all.
package interaction

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ironvale/sagaengine/availability"
	"github.com/ironvale/sagaengine/avatar"
	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/dialogue"
	"github.com/ironvale/sagaengine/geo"
	"github.com/ironvale/sagaengine/obs"
	"github.com/ironvale/sagaengine/sagastate"
	"github.com/ironvale/sagaengine/trigger"
	"github.com/ironvale/sagaengine/txlog"
)

// SpawnCircleRadius is the fixed radius around the avatar that
// freshly spawned characters are placed on.
const SpawnCircleRadius = 2.0

// Instance is one (avatar_id, saga_ref)'s runtime handle: its log, the
// concrete triggers its arc expands to, and the catalog they reference.
type Instance struct {
	SagaRef     string
	AvatarID    string
	Center      geo.Point
	Triggers    []trigger.Expanded
	Log         *txlog.Log
	Cat         *catalog.Catalog
	seedCounter int64

	// Metrics is optional; when set by the host via SetMetrics, every
	// appended transaction is counted, and UpdateWithAvatarPosition,
	// InteractWithFeature and VisitDialogueNode each count one
	// interaction (CompleteTrigger does not). A nil
	// Metrics is always safe to use — no tracing/metrics dependency is
	// implied for a bare in-process instance.
	Metrics *obs.Metrics
}

// SetMetrics attaches the ambient metrics surface to inst. Passing nil
// disables metrics recording.
func (inst *Instance) SetMetrics(m *obs.Metrics) {
	inst.Metrics = m
}

// NewInstance expands arc's triggers and builds the runtime handle for
// one avatar's progress through it.
func NewInstance(cat *catalog.Catalog, arc *catalog.SagaArc, scale geo.Scale, avatarID string, log *txlog.Log, baseSeed int64) (*Instance, error) {
	expanded, err := trigger.Expand(cat, arc)
	if err != nil {
		return nil, err
	}
	return &Instance{
		SagaRef:     arc.Ref,
		AvatarID:    avatarID,
		Center:      geo.ToModel(arc.Center, scale),
		Triggers:    expanded,
		Log:         log,
		Cat:         cat,
		seedCounter: baseSeed,
	}, nil
}

func (inst *Instance) nextSeed() int64 {
	inst.seedCounter++
	return inst.seedCounter
}

func (inst *Instance) state() (*sagastate.SagaState, error) {
	committed, err := inst.Log.Committed()
	if err != nil {
		return nil, err
	}
	if inst.Metrics == nil {
		return sagastate.Fold(committed)
	}
	start := time.Now()
	st, err := sagastate.Fold(committed)
	inst.Metrics.ReplayDuration.Record(context.Background(), time.Since(start).Seconds())
	return st, err
}

func f6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func (inst *Instance) append(txType txlog.Type, now time.Time, data map[string]string) (*txlog.Transaction, error) {
	tx := txlog.New(txType, inst.AvatarID, now, data)
	if err := inst.Log.Append(tx); err != nil {
		return nil, err
	}
	if err := inst.Log.Commit(tx.ID); err != nil {
		return nil, err
	}
	if inst.Metrics != nil {
		inst.Metrics.TransactionsAppended.Add(context.Background(), 1)
	}
	return tx, nil
}

func (inst *Instance) triggerByRef(ref string) (trigger.Expanded, bool) {
	for _, t := range inst.Triggers {
		if t.Ref == ref {
			return t, true
		}
	}
	return trigger.Expanded{}, false
}

// UpdateWithAvatarPosition runs the proximity tick: phase 1 exits
// already-active triggers the avatar has moved outside of (despawning
// their characters), phase 2 activates inactive triggers the avatar
// has moved inside of (subject to the quest-token gate, spawning
// characters), and phase 3 respawns eligible defeated characters.
func (inst *Instance) UpdateWithAvatarPosition(av *avatar.Avatar, x, z float64, now time.Time) error {
	if inst.Metrics != nil {
		inst.Metrics.InteractionsTotal.Add(context.Background(), 1)
	}
	point := geo.Point{X: x, Y: z}

	if err := inst.phaseExits(point, now); err != nil {
		return err
	}

	st, err := inst.state()
	if err != nil {
		return err
	}

	if err := inst.phaseEnters(point, av, st, now); err != nil {
		return err
	}

	st, err = inst.state()
	if err != nil {
		return err
	}
	return inst.phaseRespawn(st, now)
}

func (inst *Instance) phaseExits(point geo.Point, now time.Time) error {
	st, err := inst.state()
	if err != nil {
		return err
	}

	for _, t := range inst.Triggers {
		trig, ok := st.Triggers[t.Ref]
		if !ok || trig.Status != sagastate.TriggerActive {
			continue
		}
		distance := geo.Distance(point, inst.Center)
		exitRadius := geo.ExitRadius(t.EnterRadius)
		if distance <= exitRadius {
			continue
		}

		if _, err := inst.append(txlog.TypePlayerExited, now, map[string]string{
			"TriggerRef":     t.Ref,
			"DistanceMeters": f6(distance),
			"ExitRadius":     f6(exitRadius),
		}); err != nil {
			return err
		}

		for instanceID, cs := range st.Characters {
			if cs.SpawnedByTriggerRef != t.Ref || !cs.IsAlive || !cs.IsSpawned {
				continue
			}
			if _, err := inst.append(txlog.TypeCharacterDespawned, now, map[string]string{
				"CharacterInstanceId": instanceID,
				"CharacterRef":        cs.CharacterRef,
				"Reason":              "PlayerExited",
				"TriggerRef":          t.Ref,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (inst *Instance) phaseEnters(point geo.Point, av *avatar.Avatar, st *sagastate.SagaState, now time.Time) error {
	for _, t := range inst.Triggers {
		trig, ok := st.Triggers[t.Ref]
		status := sagastate.TriggerInactive
		if ok {
			status = trig.Status
		}
		if status != sagastate.TriggerInactive {
			continue
		}

		distance := geo.Distance(point, inst.Center)
		if distance > t.EnterRadius {
			continue
		}

		if ok, _ := availability.TriggerGate(t.RequiresQuestTokens, st.QuestTokens); !ok {
			continue
		}

		if _, err := inst.append(txlog.TypePlayerEntered, now, map[string]string{
			"TriggerRef":     t.Ref,
			"DistanceMeters": f6(distance),
			"EnterRadius":    f6(t.EnterRadius),
		}); err != nil {
			return err
		}

		seed := inst.nextSeed()
		if _, err := inst.append(txlog.TypeTriggerActivated, now, map[string]string{
			"SagaTriggerRef": t.Ref,
			"AvatarX":        f6(point.X),
			"AvatarZ":        f6(point.Y),
			"Seed":           fmt.Sprintf("%d", seed),
		}); err != nil {
			return err
		}

		for _, given := range t.GivesQuestTokens {
			if _, err := inst.append(txlog.TypeQuestTokenAwarded, now, map[string]string{
				"QuestTokenRef":  given,
				"Reason":         "TriggerActivated",
				"SagaTriggerRef": t.Ref,
			}); err != nil {
				return err
			}
		}

		if err := inst.spawnTriggerCharacters(t, point, seed, now); err != nil {
			return err
		}

		// Re-fold so a later trigger in this same call sees the
		// effects of this one (e.g. a quest token this trigger gives on
		// activation satisfying a later trigger's requirement in the
		// same tick).
		refreshed, err := inst.state()
		if err != nil {
			return err
		}
		st = refreshed
	}
	return nil
}

func (inst *Instance) spawnTriggerCharacters(t trigger.Expanded, center geo.Point, seed int64, now time.Time) error {
	type resolved struct {
		ref string
	}
	var units []resolved

	r := rand.New(rand.NewSource(seed))
	for _, spawn := range t.Spawns {
		ref := spawn.CharacterRef
		if ref == "" && spawn.CharacterArchetypeRef != "" {
			archetype, ok := inst.Cat.CharacterArchetype(spawn.CharacterArchetypeRef)
			if !ok || len(archetype.Pool) == 0 {
				return core.UnknownRef("character_archetype", spawn.CharacterArchetypeRef)
			}
			ref = archetype.Pool[r.Intn(len(archetype.Pool))]
		}
		count := spawn.Count
		if count < 1 {
			count = 1
		}
		for i := 0; i < count; i++ {
			units = append(units, resolved{ref: ref})
		}
	}

	for i, u := range units {
		pos := geo.SpawnPosition(center, SpawnCircleRadius, i, len(units), seed)
		if _, err := inst.append(txlog.TypeCharacterSpawned, now, map[string]string{
			"CharacterInstanceId": uuid.NewString(),
			"CharacterRef":        u.ref,
			"SagaTriggerRef":      t.Ref,
			"X":                   f6(pos.X),
			"Z":                   f6(pos.Y),
			"SpawnHeight":         f6(0),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (inst *Instance) phaseRespawn(st *sagastate.SagaState, now time.Time) error {
	for instanceID, cs := range st.Characters {
		if cs.IsAlive || cs.DefeatedAt == nil || cs.SpawnedByTriggerRef == "" {
			continue
		}
		character, ok := inst.Cat.Character(cs.CharacterRef)
		if !ok || character.RespawnIntervalSeconds <= 0 {
			continue
		}
		elapsed := now.Sub(*cs.DefeatedAt)
		if elapsed < time.Duration(character.RespawnIntervalSeconds)*time.Second {
			continue
		}
		if laterSpawnExists(st, cs.CharacterRef, cs.SpawnedByTriggerRef, *cs.DefeatedAt) {
			continue
		}

		if _, err := inst.append(txlog.TypeCharacterSpawned, now, map[string]string{
			"CharacterInstanceId": uuid.NewString(),
			"CharacterRef":        cs.CharacterRef,
			"SagaTriggerRef":      cs.SpawnedByTriggerRef,
			"X":                   f6(cs.X),
			"Z":                   f6(cs.Z),
			"SpawnHeight":         f6(0),
			"IsRespawn":           "true",
			"PreviousInstanceId":  instanceID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func laterSpawnExists(st *sagastate.SagaState, characterRef, triggerRef string, after time.Time) bool {
	for _, other := range st.Characters {
		if other.CharacterRef != characterRef || other.SpawnedByTriggerRef != triggerRef {
			continue
		}
		if other.IsAlive && other.PreviousInstanceID != "" {
			return true
		}
	}
	return false
}

// CompleteTrigger marks an Active trigger Completed and awards its
// progression completion token, if it carries one. This is how a
// progression-enforced pattern's next trigger unlocks: something
// outside the proximity tick (a battle ending, an objective closing)
// decides a trigger is done and calls this.
func (inst *Instance) CompleteTrigger(triggerRef string, now time.Time) error {
	t, ok := inst.triggerByRef(triggerRef)
	if !ok {
		return core.UnknownRef("saga_trigger", triggerRef)
	}
	st, err := inst.state()
	if err != nil {
		return err
	}
	trig, ok := st.Triggers[triggerRef]
	if !ok || trig.Status != sagastate.TriggerActive {
		return core.TriggerNotActivatable(fmt.Sprintf("trigger %q is not active", triggerRef))
	}

	if _, err := inst.append(txlog.TypeTriggerCompleted, now, map[string]string{"SagaTriggerRef": triggerRef}); err != nil {
		return err
	}
	for _, token := range t.CompletionGrants {
		if _, err := inst.append(txlog.TypeQuestTokenAwarded, now, map[string]string{
			"QuestTokenRef":  token,
			"Reason":         "TriggerCompleted",
			"SagaTriggerRef": triggerRef,
		}); err != nil {
			return err
		}
	}
	return nil
}

// InteractWithFeature emits the transactions for one feature
// interaction, applying loot and effects to av. x, z is the avatar's
// current position, checked against the feature's approach radius
// before anything else. Fails with FeatureNotInteractable without
// appending anything if the approach-radius or availability gate
// blocks it.
func (inst *Instance) InteractWithFeature(featureRef string, av *avatar.Avatar, x, z float64, now time.Time) error {
	if inst.Metrics != nil {
		inst.Metrics.InteractionsTotal.Add(context.Background(), 1)
	}
	feature, ok := inst.Cat.SagaFeature(featureRef)
	if !ok {
		return core.UnknownRef("saga_feature", featureRef)
	}

	if feature.Interactable != nil {
		point := geo.Point{X: x, Y: z}
		if !geo.IsWithin(point, inst.Center, feature.Interactable.ApproachRadius) {
			return core.FeatureNotInteractable(fmt.Sprintf(
				"%s is not within approach radius %.2fm (distance %.2fm)",
				featureRef, feature.Interactable.ApproachRadius, geo.Distance(point, inst.Center)))
		}
	}

	st, err := inst.state()
	if err != nil {
		return err
	}

	count := 0
	if byAvatar, ok := st.FeatureInteractions[featureRef]; ok {
		if fi, ok := byAvatar[inst.AvatarID]; ok {
			count = fi.Count
		}
	}

	ok, _, reason := availability.FeatureGate(feature.Interactable, st.QuestTokens, count)
	if !ok {
		return core.FeatureNotInteractable(reason)
	}

	if _, err := inst.append(txlog.TypeEntityInteracted, now, map[string]string{
		"FeatureRef":  featureRef,
		"FeatureType": "saga_feature",
	}); err != nil {
		return err
	}

	if feature.Interactable == nil {
		return nil
	}

	if len(feature.Interactable.Loot) > 0 {
		if _, err := inst.append(txlog.TypeLootAwarded, now, map[string]string{"FeatureRef": featureRef}); err != nil {
			return err
		}
		for _, loot := range feature.Interactable.Loot {
			av.GiveItem(loot.ItemKind, loot.ItemRef, loot.Quantity)
		}
		av.ClampVitals()
	}

	for _, given := range feature.Interactable.GivesQuestTokens {
		if _, err := inst.append(txlog.TypeQuestTokenAwarded, now, map[string]string{
			"QuestTokenRef": given,
			"Reason":        "EntityInteracted",
			"FeatureRef":    featureRef,
		}); err != nil {
			return err
		}
	}

	return nil
}

// VisitDialogueNode drives one step of a dialogue interaction with a
// character: it evaluates nodeID's conditions/actions against av and
// the state replayed so far, then appends the transactions that make
// the visit durable — DialogueStarted on the very first visit to the
// tree's start node, DialogueNodeVisited for this node, whatever
// effects VisitNode returned (only populated on the node's first
// visit, per §4.H), and DialogueCompleted if nodeID is terminal. This
// is component H's entry point into the shared log: dialogue.VisitNode
// itself never touches txlog, so nothing advances visit_count for the
// next call until this method appends the DialogueNodeVisited entry
// sagastate folds over.
func (inst *Instance) VisitDialogueNode(g *dialogue.Graph, characterRef, nodeID string, av *avatar.Avatar, now time.Time) (*dialogue.VisitResult, error) {
	if inst.Metrics != nil {
		inst.Metrics.InteractionsTotal.Add(context.Background(), 1)
	}

	st, err := inst.state()
	if err != nil {
		return nil, err
	}

	_, alreadyVisitedStart := st.DialogueVisits[sagastate.DialogueVisitKey(av.ID, characterRef, g.Tree.StartNodeID)]
	startingConversation := core.NormalizeRef(nodeID) == core.NormalizeRef(g.Tree.StartNodeID) && !alreadyVisitedStart

	ctx := dialogue.Context{Avatar: av, State: st, CharacterRef: characterRef, Catalog: inst.Cat}
	result, err := dialogue.VisitNode(g, nodeID, ctx)
	if err != nil {
		return nil, err
	}

	if startingConversation {
		if _, err := inst.append(txlog.TypeDialogueStarted, now, map[string]string{
			"CharacterRef":    characterRef,
			"DialogueTreeRef": g.Tree.Ref,
		}); err != nil {
			return nil, err
		}
	}

	if _, err := inst.append(txlog.TypeDialogueNodeVisited, now, map[string]string{
		"CharacterRef": characterRef,
		"NodeId":       result.Node.NodeID,
	}); err != nil {
		return nil, err
	}

	for _, effect := range result.Effects {
		if _, err := inst.append(effect.Type, now, effect.Data); err != nil {
			return nil, err
		}
	}

	if dialogue.NodeIsTerminal(result.Node) {
		if _, err := inst.append(txlog.TypeDialogueCompleted, now, map[string]string{
			"CharacterRef":    characterRef,
			"DialogueTreeRef": g.Tree.Ref,
			"NodeId":          result.Node.NodeID,
		}); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ProximityInfo is one trigger's current distance/status, for
// non-mutating UI queries.
type ProximityInfo struct {
	TriggerRef string
	Distance   float64
	EnterRadius float64
	ExitRadius  float64
	Status      sagastate.TriggerStatus
}

// ListProximityInfo reports every trigger's distance and status
// without mutating anything.
func (inst *Instance) ListProximityInfo(x, z float64) ([]ProximityInfo, error) {
	st, err := inst.state()
	if err != nil {
		return nil, err
	}
	point := geo.Point{X: x, Y: z}
	out := make([]ProximityInfo, 0, len(inst.Triggers))
	for _, t := range inst.Triggers {
		status := sagastate.TriggerInactive
		if trig, ok := st.Triggers[t.Ref]; ok {
			status = trig.Status
		}
		out = append(out, ProximityInfo{
			TriggerRef:  t.Ref,
			Distance:    geo.Distance(point, inst.Center),
			EnterRadius: t.EnterRadius,
			ExitRadius:  geo.ExitRadius(t.EnterRadius),
			Status:      status,
		})
	}
	return out, nil
}

// PeekInnermostTrigger returns the smallest-enter-radius trigger the
// position currently falls within, or false if none.
func (inst *Instance) PeekInnermostTrigger(x, z float64) (trigger.Expanded, bool, error) {
	point := geo.Point{X: x, Y: z}
	var best trigger.Expanded
	found := false
	for _, t := range inst.Triggers {
		if geo.IsWithin(point, inst.Center, t.EnterRadius) {
			if !found || t.EnterRadius < best.EnterRadius {
				best = t
				found = true
			}
		}
	}
	return best, found, nil
}

// CanActivateTrigger is the non-mutating check behind the proximity
// gate in phaseEnters, exposed for UI/host use.
func (inst *Instance) CanActivateTrigger(triggerRef string, x, z float64) (bool, []string, error) {
	t, ok := inst.triggerByRef(triggerRef)
	if !ok {
		return false, nil, core.UnknownRef("saga_trigger", triggerRef)
	}
	st, err := inst.state()
	if err != nil {
		return false, nil, err
	}
	point := geo.Point{X: x, Y: z}
	if !geo.IsWithin(point, inst.Center, t.EnterRadius) {
		return false, nil, nil
	}
	ok2, missing := availability.TriggerGate(t.RequiresQuestTokens, st.QuestTokens)
	return ok2, missing, nil
}

// CanInteractWithFeature is the non-mutating check behind
// InteractWithFeature's gate, including the approach-radius check.
func (inst *Instance) CanInteractWithFeature(featureRef string, x, z float64) (bool, []string, string, error) {
	feature, ok := inst.Cat.SagaFeature(featureRef)
	if !ok {
		return false, nil, "", core.UnknownRef("saga_feature", featureRef)
	}

	if feature.Interactable != nil {
		point := geo.Point{X: x, Y: z}
		if !geo.IsWithin(point, inst.Center, feature.Interactable.ApproachRadius) {
			return false, nil, fmt.Sprintf(
				"%s is not within approach radius %.2fm (distance %.2fm)",
				featureRef, feature.Interactable.ApproachRadius, geo.Distance(point, inst.Center)), nil
		}
	}

	st, err := inst.state()
	if err != nil {
		return false, nil, "", err
	}
	count := 0
	if byAvatar, ok := st.FeatureInteractions[featureRef]; ok {
		if fi, ok := byAvatar[inst.AvatarID]; ok {
			count = fi.Count
		}
	}
	ok2, missing, reason := availability.FeatureGate(feature.Interactable, st.QuestTokens, count)
	return ok2, missing, reason, nil
}
