// Package sagastate folds a SagaInstance's committed transaction log
// into its current derived state. Folding is pure and deterministic:
// the same committed vector always yields an equal SagaState, and
// reversed transactions are excluded upstream by txlog, so Fold itself
// never needs undo logic.
package sagastate

import (
	"strconv"
	"time"

	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/txlog"
)

// TriggerStatus is a trigger's lifecycle within one SagaInstance.
type TriggerStatus string

const (
	TriggerInactive  TriggerStatus = "Inactive"
	TriggerActive    TriggerStatus = "Active"
	TriggerCooldown  TriggerStatus = "OnCooldown"
	TriggerCompleted TriggerStatus = "Completed"
)

// TriggerState is the derived state of one concrete trigger.
type TriggerState struct {
	Status            TriggerStatus
	FirstActivatedAt  *time.Time
	LastActivatedAt   *time.Time
	ActivationCount   int
	TriggeredBy       map[string]bool
	CompletedAt       *time.Time
}

// CharacterState is the derived state of one spawned character
// instance.
type CharacterState struct {
	InstanceID          string
	CharacterRef        string
	SpawnedByTriggerRef string
	X, Z                float64
	IsAlive             bool
	IsSpawned           bool
	DefeatedAt          *time.Time
	PreviousInstanceID  string
	Traits              map[string]bool
}

// FeatureInteraction tracks one avatar's interaction count with one
// feature, used by availability's max-interactions gate.
type FeatureInteraction struct {
	Count  int
	LastAt time.Time
}

// DialogueVisit tracks how many times (avatar, character, node) has
// been visited, gating node-bound rewards to the first visit only.
type DialogueVisit struct {
	VisitCount int
}

// IsFirstVisit reports whether the visit about to be folded is the
// first one recorded for this key.
func (v *DialogueVisit) IsFirstVisit() bool { return v.VisitCount == 0 }

// QuestStatus is a quest's progress within one SagaInstance.
type QuestStatus string

const (
	QuestNotStarted QuestStatus = "NotStarted"
	QuestActive     QuestStatus = "Active"
	QuestCompleted  QuestStatus = "Completed"
	QuestFailed     QuestStatus = "Failed"
	QuestAbandoned  QuestStatus = "Abandoned"
)

// QuestState is the derived state of one quest.
type QuestState struct {
	Status            QuestStatus
	CurrentStage      string
	ObjectivesDone    map[string]bool
	AcceptedAt        *time.Time
	CompletedAt       *time.Time
}

// SagaState is the complete derived state of one SagaInstance,
// produced by folding its committed transactions.
type SagaState struct {
	Triggers            map[string]*TriggerState
	Characters          map[string]*CharacterState
	FeatureInteractions map[string]map[string]*FeatureInteraction // feature_ref -> avatar_id
	DialogueVisits      map[string]*DialogueVisit                 // "avatar|character|node"
	Quests              map[string]*QuestState
	Discoveries         map[string]time.Time // landmark ref -> first discovered
	Reputations         map[string]int       // faction ref -> value
	QuestTokens         map[string]bool       // held quest tokens, idempotent
}

func empty() *SagaState {
	return &SagaState{
		Triggers:            make(map[string]*TriggerState),
		Characters:          make(map[string]*CharacterState),
		FeatureInteractions: make(map[string]map[string]*FeatureInteraction),
		DialogueVisits:      make(map[string]*DialogueVisit),
		Quests:              make(map[string]*QuestState),
		Discoveries:         make(map[string]time.Time),
		Reputations:         make(map[string]int),
		QuestTokens:         make(map[string]bool),
	}
}

// DialogueVisitKey builds the visit-idempotency key folded transactions
// and callers both use to address a (avatar, character, node) triple.
func DialogueVisitKey(avatarID, characterRef, nodeID string) string {
	return avatarID + "|" + characterRef + "|" + nodeID
}

func (s *SagaState) trigger(ref string) *TriggerState {
	t, ok := s.Triggers[ref]
	if !ok {
		t = &TriggerState{Status: TriggerInactive, TriggeredBy: make(map[string]bool)}
		s.Triggers[ref] = t
	}
	return t
}

func (s *SagaState) quest(ref string) *QuestState {
	q, ok := s.Quests[ref]
	if !ok {
		q = &QuestState{Status: QuestNotStarted, ObjectivesDone: make(map[string]bool)}
		s.Quests[ref] = q
	}
	return q
}

func requireField(tx *txlog.Transaction, key string) (string, error) {
	v, ok := tx.Data[key]
	if !ok || v == "" {
		return "", core.StateCorrupt("transaction " + tx.ID + " (" + string(tx.Type) + ") is missing required field " + key)
	}
	return v, nil
}

func requireFloat(tx *txlog.Transaction, key string) (float64, error) {
	v, err := requireField(tx, key)
	if err != nil {
		return 0, err
	}
	f, parseErr := strconv.ParseFloat(v, 64)
	if parseErr != nil {
		return 0, core.StateCorrupt("transaction " + tx.ID + " field " + key + " is not a number: " + v)
	}
	return f, nil
}

// Fold replays committed, in append order, into a fresh SagaState.
// Folding the same vector twice yields an equal SagaState (idempotent
// replay): Fold always starts from empty() and never consults prior
// output.
func Fold(committed []*txlog.Transaction) (*SagaState, error) {
	s := empty()
	for _, tx := range committed {
		if err := foldOne(s, tx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func foldOne(s *SagaState, tx *txlog.Transaction) error {
	ts := tx.GetCanonicalTimestamp()

	switch tx.Type {
	case txlog.TypeTriggerActivated:
		ref, err := requireField(tx, "SagaTriggerRef")
		if err != nil {
			return err
		}
		t := s.trigger(ref)
		t.Status = TriggerActive
		t.ActivationCount++
		t.TriggeredBy[tx.AvatarID] = true
		if t.FirstActivatedAt == nil {
			first := ts
			t.FirstActivatedAt = &first
		}
		last := ts
		t.LastActivatedAt = &last

	case txlog.TypeTriggerCompleted:
		ref, err := requireField(tx, "SagaTriggerRef")
		if err != nil {
			return err
		}
		t := s.trigger(ref)
		t.Status = TriggerCompleted
		completed := ts
		t.CompletedAt = &completed

	case txlog.TypePlayerExited:
		ref, err := requireField(tx, "TriggerRef")
		if err != nil {
			return err
		}
		t := s.trigger(ref)
		if t.Status == TriggerActive {
			t.Status = TriggerInactive
		}

	case txlog.TypeCharacterSpawned:
		instanceID, err := requireField(tx, "CharacterInstanceId")
		if err != nil {
			return err
		}
		characterRef, err := requireField(tx, "CharacterRef")
		if err != nil {
			return err
		}
		x, err := requireFloat(tx, "X")
		if err != nil {
			return err
		}
		z, err := requireFloat(tx, "Z")
		if err != nil {
			return err
		}
		cs := &CharacterState{
			InstanceID:          instanceID,
			CharacterRef:        characterRef,
			SpawnedByTriggerRef: tx.Data["SagaTriggerRef"],
			X:                   x,
			Z:                   z,
			IsAlive:             true,
			IsSpawned:           true,
			PreviousInstanceID:  tx.Data["PreviousInstanceId"],
			Traits:              make(map[string]bool),
		}
		s.Characters[instanceID] = cs

	case txlog.TypeCharacterDespawned:
		instanceID, err := requireField(tx, "CharacterInstanceId")
		if err != nil {
			return err
		}
		if cs, ok := s.Characters[instanceID]; ok {
			cs.IsSpawned = false
		}

	case txlog.TypeCharacterDamaged, txlog.TypeCharacterHealed:
		instanceID, err := requireField(tx, "CharacterInstanceId")
		if err != nil {
			return err
		}
		// Health tracking itself lives on the host-owned character
		// runtime object, not SagaState; the fold only needs the
		// instance to already exist to accept the transaction.
		if _, ok := s.Characters[instanceID]; !ok {
			return core.StateCorrupt("transaction " + tx.ID + " references unknown character instance " + instanceID)
		}

	case txlog.TypeCharacterDefeated:
		instanceID, err := requireField(tx, "CharacterInstanceId")
		if err != nil {
			return err
		}
		cs, ok := s.Characters[instanceID]
		if !ok {
			return core.StateCorrupt("transaction " + tx.ID + " defeats unknown character instance " + instanceID)
		}
		cs.IsAlive = false
		defeated := ts
		cs.DefeatedAt = &defeated

	case txlog.TypeQuestTokenAwarded:
		ref, err := requireField(tx, "QuestTokenRef")
		if err != nil {
			return err
		}
		s.QuestTokens[core.NormalizeRef(ref)] = true

	case txlog.TypeDialogueNodeVisited:
		characterRef, err := requireField(tx, "CharacterRef")
		if err != nil {
			return err
		}
		nodeID, err := requireField(tx, "NodeId")
		if err != nil {
			return err
		}
		key := DialogueVisitKey(tx.AvatarID, characterRef, nodeID)
		v, ok := s.DialogueVisits[key]
		if !ok {
			v = &DialogueVisit{}
			s.DialogueVisits[key] = v
		}
		v.VisitCount++

	case txlog.TypeEntityInteracted:
		featureRef, err := requireField(tx, "FeatureRef")
		if err != nil {
			return err
		}
		byAvatar, ok := s.FeatureInteractions[featureRef]
		if !ok {
			byAvatar = make(map[string]*FeatureInteraction)
			s.FeatureInteractions[featureRef] = byAvatar
		}
		fi, ok := byAvatar[tx.AvatarID]
		if !ok {
			fi = &FeatureInteraction{}
			byAvatar[tx.AvatarID] = fi
		}
		fi.Count++
		fi.LastAt = ts

	case txlog.TypeReputationChanged:
		factionRef, err := requireField(tx, "FactionRef")
		if err != nil {
			return err
		}
		delta, err := requireFloat(tx, "Delta")
		if err != nil {
			return err
		}
		s.Reputations[factionRef] += int(delta)

	case txlog.TypeTraitAssigned, txlog.TypeTraitRemoved:
		instanceID, err := requireField(tx, "CharacterInstanceId")
		if err != nil {
			return err
		}
		traitName, err := requireField(tx, "Trait")
		if err != nil {
			return err
		}
		cs, ok := s.Characters[instanceID]
		if !ok {
			return core.StateCorrupt("transaction " + tx.ID + " assigns a trait to unknown character instance " + instanceID)
		}
		if cs.Traits == nil {
			cs.Traits = make(map[string]bool)
		}
		cs.Traits[traitName] = tx.Type == txlog.TypeTraitAssigned

	case txlog.TypeQuestAccepted:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		q := s.quest(ref)
		q.Status = QuestActive
		q.CurrentStage = tx.Data["StageId"]
		accepted := ts
		q.AcceptedAt = &accepted

	case txlog.TypeQuestObjectiveCompleted:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		objective, err := requireField(tx, "Objective")
		if err != nil {
			return err
		}
		q := s.quest(ref)
		q.ObjectivesDone[objective] = true

	case txlog.TypeQuestStageAdvanced, txlog.TypeQuestBranchChosen:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		stageID, err := requireField(tx, "StageId")
		if err != nil {
			return err
		}
		q := s.quest(ref)
		q.CurrentStage = stageID

	case txlog.TypeQuestCompleted:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		q := s.quest(ref)
		q.Status = QuestCompleted
		completed := ts
		q.CompletedAt = &completed

	case txlog.TypeQuestFailed:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		s.quest(ref).Status = QuestFailed

	case txlog.TypeQuestAbandoned:
		ref, err := requireField(tx, "QuestRef")
		if err != nil {
			return err
		}
		s.quest(ref).Status = QuestAbandoned

	case txlog.TypeLandmarkDiscovered:
		ref, err := requireField(tx, "LandmarkRef")
		if err != nil {
			return err
		}
		if _, already := s.Discoveries[ref]; !already {
			s.Discoveries[ref] = ts
		}

	// SagaDiscovered, SagaCompleted, PlayerEntered, ItemTraded,
	// EffectApplied, DialogueStarted, DialogueCompleted,
	// BattleStarted/TurnExecuted/Ended, StatusEffectApplied/Removed,
	// StructureDamaged/Repaired, the anti-cheat claim types,
	// InventorySnapshot, StateSnapshot, and TransactionReversed carry
	// no additional SagaState beyond what their handlers above already
	// capture (spawn/trigger/quest/reputation state) or are pure audit
	// records consumed directly from the log by their own readers.
	default:
	}

	return nil
}
