// Package txlog implements the append-only transaction log each
// SagaInstance replays to derive its state. A committed transaction's
// data is never changed and it is never deleted; rollback marks its
// status Reversed and appends a compensating TransactionReversed entry.
package txlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironvale/sagaengine/core"
)

// Status is a transaction's lifecycle state. Only Committed
// transactions influence derived state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCommitted Status = "Committed"
	StatusRejected  Status = "Rejected"
	StatusReversed  Status = "Reversed"
)

// Type enumerates every transaction kind the engine emits.
type Type string

const (
	TypeSagaDiscovered          Type = "SagaDiscovered"
	TypeSagaCompleted           Type = "SagaCompleted"
	TypeTriggerActivated        Type = "TriggerActivated"
	TypeTriggerCompleted        Type = "TriggerCompleted"
	TypeCharacterSpawned        Type = "CharacterSpawned"
	TypeCharacterDamaged        Type = "CharacterDamaged"
	TypeCharacterHealed         Type = "CharacterHealed"
	TypeCharacterDefeated       Type = "CharacterDefeated"
	TypeCharacterDespawned      Type = "CharacterDespawned"
	TypePlayerEntered           Type = "PlayerEntered"
	TypePlayerExited            Type = "PlayerExited"
	TypeEntityInteracted        Type = "EntityInteracted"
	TypeDialogueStarted         Type = "DialogueStarted"
	TypeDialogueNodeVisited     Type = "DialogueNodeVisited"
	TypeDialogueCompleted       Type = "DialogueCompleted"
	TypeTraitAssigned           Type = "TraitAssigned"
	TypeTraitRemoved            Type = "TraitRemoved"
	TypeReputationChanged       Type = "ReputationChanged"
	TypeItemTraded              Type = "ItemTraded"
	TypeLootAwarded             Type = "LootAwarded"
	TypeEffectApplied           Type = "EffectApplied"
	TypeQuestTokenAwarded       Type = "QuestTokenAwarded"
	TypeQuestAccepted           Type = "QuestAccepted"
	TypeQuestObjectiveCompleted Type = "QuestObjectiveCompleted"
	TypeQuestStageAdvanced      Type = "QuestStageAdvanced"
	TypeQuestBranchChosen       Type = "QuestBranchChosen"
	TypeQuestCompleted          Type = "QuestCompleted"
	TypeQuestFailed             Type = "QuestFailed"
	TypeQuestAbandoned          Type = "QuestAbandoned"
	TypeBattleStarted           Type = "BattleStarted"
	TypeBattleTurnExecuted      Type = "BattleTurnExecuted"
	TypeBattleEnded             Type = "BattleEnded"
	TypeStatusEffectApplied     Type = "StatusEffectApplied"
	TypeStatusEffectRemoved     Type = "StatusEffectRemoved"
	TypeStructureDamaged        Type = "StructureDamaged"
	TypeStructureRepaired       Type = "StructureRepaired"
	TypeLandmarkDiscovered      Type = "LandmarkDiscovered"
	TypeLocationClaimed         Type = "LocationClaimed"
	TypeToolWearClaimed         Type = "ToolWearClaimed"
	TypeMiningSessionClaimed    Type = "MiningSessionClaimed"
	TypeBuildingSessionClaimed  Type = "BuildingSessionClaimed"
	TypeInventorySnapshot       Type = "InventorySnapshot"
	TypeStateSnapshot           Type = "StateSnapshot"
	TypeTransactionReversed     Type = "TransactionReversed"
)

// Transaction is one entry in a SagaInstance's append-only log.
// CanonicalTimestamp is nil until server confirmation; until then
// GetCanonicalTimestamp falls back to LocalTimestamp.
type Transaction struct {
	ID                 string
	Type               Type
	AvatarID           string
	Status             Status
	LocalTimestamp     time.Time
	CanonicalTimestamp *time.Time
	Data               map[string]string
}

// GetCanonicalTimestamp returns CanonicalTimestamp if the transaction
// has been server-confirmed, otherwise LocalTimestamp.
func (tx *Transaction) GetCanonicalTimestamp() time.Time {
	if tx.CanonicalTimestamp != nil {
		return *tx.CanonicalTimestamp
	}
	return tx.LocalTimestamp
}

// New builds a Pending transaction with a fresh UUID v4 id and
// LocalTimestamp set to now. data may be nil; a non-nil map is always
// stored so callers can assign into it directly.
func New(txType Type, avatarID string, now time.Time, data map[string]string) *Transaction {
	if data == nil {
		data = make(map[string]string)
	}
	return &Transaction{
		ID:             uuid.NewString(),
		Type:           txType,
		AvatarID:       avatarID,
		Status:         StatusPending,
		LocalTimestamp: now,
		Data:           data,
	}
}

// Store is the interface a host persistence layer implements to back
// a SagaInstance's log durably. The engine ships only the in-memory
// Log below; Store exists so a host can swap in real storage without
// the engine depending on it.
type Store interface {
	Append(tx *Transaction) error
	Committed() ([]*Transaction, error)
	Get(id string) (*Transaction, bool, error)
}

// Log is the in-memory, append-only Store implementation used
// directly by tests and by hosts with no external persistence need.
// Safe for concurrent use; a single SagaInstance is still expected to
// be driven from one logical task per the engine's concurrency model.
type Log struct {
	mu  sync.Mutex
	all []*Transaction
	idx map[string]int
}

// NewLog creates an empty transaction log.
func NewLog() *Log {
	return &Log{idx: make(map[string]int)}
}

// Append adds tx to the log, preserving append order. Rejects a
// duplicate id outright — the log never overwrites an entry.
func (l *Log) Append(tx *Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.idx[tx.ID]; exists {
		return core.InvalidInput("transaction_id", "duplicate transaction id "+tx.ID)
	}
	l.idx[tx.ID] = len(l.all)
	l.all = append(l.all, tx)
	return nil
}

// All returns every transaction in append order, committed or not.
func (l *Log) All() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Transaction, len(l.all))
	copy(out, l.all)
	return out
}

// Committed returns only the Committed transactions, in append order —
// the stream sagastate folds over.
func (l *Log) Committed() ([]*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Transaction, 0, len(l.all))
	for _, tx := range l.all {
		if tx.Status == StatusCommitted {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Get looks up a transaction by id.
func (l *Log) Get(id string) (*Transaction, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.idx[id]
	if !ok {
		return nil, false, nil
	}
	return l.all[i], true, nil
}

// Commit marks a Pending transaction Committed.
func (l *Log) Commit(id string) error {
	return l.setStatus(id, StatusCommitted)
}

// Reject marks a Pending transaction Rejected. A rejected transaction
// never influences replay, but stays in the log for audit purposes.
func (l *Log) Reject(id string) error {
	return l.setStatus(id, StatusRejected)
}

func (l *Log) setStatus(id string, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.idx[id]
	if !ok {
		return core.InvalidInput("transaction_id", "unknown transaction id "+id)
	}
	l.all[i].Status = status
	return nil
}

// Reverse marks originalID Reversed and appends a new Committed
// TransactionReversed entry referencing it — the log's only form of
// rollback. Returns the compensating transaction.
func (l *Log) Reverse(originalID, avatarID string, now time.Time) (*Transaction, error) {
	if err := l.setStatus(originalID, StatusReversed); err != nil {
		return nil, err
	}
	reversal := New(TypeTransactionReversed, avatarID, now, map[string]string{
		"OriginalTransactionId": originalID,
	})
	reversal.Status = StatusCommitted
	if err := l.Append(reversal); err != nil {
		return nil, err
	}
	return reversal, nil
}
