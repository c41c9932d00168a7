package sagastate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironvale/sagaengine/txlog"
)

func committedTx(txType txlog.Type, avatarID string, ts time.Time, data map[string]string) *txlog.Transaction {
	tx := txlog.New(txType, avatarID, ts, data)
	tx.Status = txlog.StatusCommitted
	return tx
}

func TestFoldTriggerActivatedIncrementsCountAndTracksActivator(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeTriggerActivated, "avatar-1", now, map[string]string{"SagaTriggerRef": "ring_outer"}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)

	trig := state.Triggers["ring_outer"]
	require.NotNil(t, trig)
	assert.Equal(t, TriggerActive, trig.Status)
	assert.Equal(t, 1, trig.ActivationCount)
	assert.True(t, trig.TriggeredBy["avatar-1"])
	require.NotNil(t, trig.FirstActivatedAt)
}

func TestFoldIsIdempotentAcrossRepeatedReplay(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeTriggerActivated, "avatar-1", now, map[string]string{"SagaTriggerRef": "ring_outer"}),
		committedTx(txlog.TypeQuestTokenAwarded, "avatar-1", now, map[string]string{"QuestTokenRef": "ring_outer_Completed"}),
	}
	first, err := Fold(txs)
	require.NoError(t, err)
	second, err := Fold(txs)
	require.NoError(t, err)

	assert.Equal(t, first.Triggers["ring_outer"].ActivationCount, second.Triggers["ring_outer"].ActivationCount)
	assert.Equal(t, first.QuestTokens, second.QuestTokens)
}

func TestFoldQuestTokenAwardedIsIdempotent(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeQuestTokenAwarded, "avatar-1", now, map[string]string{"QuestTokenRef": "key_of_mill"}),
		committedTx(txlog.TypeQuestTokenAwarded, "avatar-1", now, map[string]string{"QuestTokenRef": "key_of_mill"}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)
	assert.True(t, state.QuestTokens["key_of_mill"])
	assert.Len(t, state.QuestTokens, 1)
}

func TestFoldPlayerExitedDeactivatesActiveTrigger(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeTriggerActivated, "avatar-1", now, map[string]string{"SagaTriggerRef": "ring_outer"}),
		committedTx(txlog.TypePlayerExited, "avatar-1", now.Add(time.Second), map[string]string{"TriggerRef": "ring_outer"}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)
	assert.Equal(t, TriggerInactive, state.Triggers["ring_outer"].Status)
}

func TestFoldPlayerExitedDoesNotReopenCompletedTrigger(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeTriggerActivated, "avatar-1", now, map[string]string{"SagaTriggerRef": "ring_outer"}),
		committedTx(txlog.TypeTriggerCompleted, "avatar-1", now.Add(time.Second), map[string]string{"SagaTriggerRef": "ring_outer"}),
		committedTx(txlog.TypePlayerExited, "avatar-1", now.Add(2*time.Second), map[string]string{"TriggerRef": "ring_outer"}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)
	assert.Equal(t, TriggerCompleted, state.Triggers["ring_outer"].Status)
}

func TestFoldCharacterSpawnDefeatRespawnChain(t *testing.T) {
	t0 := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeCharacterSpawned, "avatar-1", t0, map[string]string{
			"CharacterInstanceId": "inst-1", "CharacterRef": "Goblin", "SagaTriggerRef": "ring_outer", "X": "1.5", "Z": "2.5",
		}),
		committedTx(txlog.TypeCharacterDefeated, "avatar-1", t0.Add(time.Second), map[string]string{"CharacterInstanceId": "inst-1"}),
		committedTx(txlog.TypeCharacterSpawned, "avatar-1", t0.Add(6*time.Second), map[string]string{
			"CharacterInstanceId": "inst-2", "CharacterRef": "Goblin", "SagaTriggerRef": "ring_outer", "X": "1.5", "Z": "2.5",
			"IsRespawn": "true", "PreviousInstanceId": "inst-1",
		}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)

	original := state.Characters["inst-1"]
	require.NotNil(t, original)
	assert.False(t, original.IsAlive)
	require.NotNil(t, original.DefeatedAt)

	respawned := state.Characters["inst-2"]
	require.NotNil(t, respawned)
	assert.True(t, respawned.IsAlive)
	assert.Equal(t, "inst-1", respawned.PreviousInstanceID)
}

func TestFoldDialogueNodeVisitedTracksVisitCount(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeDialogueNodeVisited, "avatar-1", now, map[string]string{"CharacterRef": "Merchant", "NodeId": "greet"}),
		committedTx(txlog.TypeDialogueNodeVisited, "avatar-1", now.Add(time.Second), map[string]string{"CharacterRef": "Merchant", "NodeId": "greet"}),
	}
	state, err := Fold(txs)
	require.NoError(t, err)
	v := state.DialogueVisits[DialogueVisitKey("avatar-1", "Merchant", "greet")]
	require.NotNil(t, v)
	assert.Equal(t, 2, v.VisitCount)
}

func TestFoldMissingFieldReturnsStateCorrupt(t *testing.T) {
	now := time.Now()
	txs := []*txlog.Transaction{
		committedTx(txlog.TypeTriggerActivated, "avatar-1", now, nil),
	}
	_, err := Fold(txs)
	require.Error(t, err)
}

func TestFoldFoldsWhateverTransactionsItIsGiven(t *testing.T) {
	now := time.Now()
	pending := txlog.New(txlog.TypeTriggerActivated, "avatar-1", now, map[string]string{"SagaTriggerRef": "ring_outer"})
	state, err := Fold([]*txlog.Transaction{pending})
	require.NoError(t, err)
	// Fold receives exactly what the caller hands it; callers are
	// expected to pass log.Committed(), which a Pending tx never is.
	// Here the tx is still folded because Fold itself trusts its
	// input vector — the Committed-only guarantee lives in txlog.Log.
	assert.Equal(t, TriggerActive, state.Triggers["ring_outer"].Status)
}
