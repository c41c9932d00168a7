package txlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAssignsPendingStatusAndID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tx := New(TypeTriggerActivated, "avatar-1", now, nil)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, now, tx.LocalTimestamp)
	assert.NotNil(t, tx.Data)
}

func TestGetCanonicalTimestampFallsBackToLocal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tx := New(TypeTriggerActivated, "avatar-1", now, nil)
	assert.Equal(t, now, tx.GetCanonicalTimestamp())

	canonical := now.Add(2 * time.Second)
	tx.CanonicalTimestamp = &canonical
	assert.Equal(t, canonical, tx.GetCanonicalTimestamp())
}

func TestLogOnlyCommittedAffectsCommittedQuery(t *testing.T) {
	log := NewLog()
	now := time.Now()

	pending := New(TypeTriggerActivated, "a1", now, nil)
	require.NoError(t, log.Append(pending))

	committed := New(TypePlayerEntered, "a1", now, nil)
	require.NoError(t, log.Append(committed))
	require.NoError(t, log.Commit(committed.ID))

	rejected := New(TypeLocationClaimed, "a1", now, nil)
	require.NoError(t, log.Append(rejected))
	require.NoError(t, log.Reject(rejected.ID))

	out, err := log.Committed()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, committed.ID, out[0].ID)
}

func TestLogAppendOrderPreserved(t *testing.T) {
	log := NewLog()
	now := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		tx := New(TypeCharacterDamaged, "a1", now, nil)
		require.NoError(t, log.Append(tx))
		require.NoError(t, log.Commit(tx.ID))
		ids = append(ids, tx.ID)
	}
	out, err := log.Committed()
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, tx := range out {
		assert.Equal(t, ids[i], tx.ID)
	}
}

func TestLogRejectsDuplicateID(t *testing.T) {
	log := NewLog()
	tx := New(TypeCharacterDamaged, "a1", time.Now(), nil)
	require.NoError(t, log.Append(tx))
	err := log.Append(tx)
	require.Error(t, err)
}

func TestReverseMarksOriginalAndAppendsCompensatingEntry(t *testing.T) {
	log := NewLog()
	now := time.Now()
	original := New(TypeQuestTokenAwarded, "a1", now, nil)
	require.NoError(t, log.Append(original))
	require.NoError(t, log.Commit(original.ID))

	reversal, err := log.Reverse(original.ID, "a1", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, TypeTransactionReversed, reversal.Type)
	assert.Equal(t, StatusCommitted, reversal.Status)
	assert.Equal(t, original.ID, reversal.Data["OriginalTransactionId"])

	got, ok, err := log.Get(original.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusReversed, got.Status)

	// A reversed transaction no longer counts as committed.
	committed, err := log.Committed()
	require.NoError(t, err)
	for _, tx := range committed {
		assert.NotEqual(t, original.ID, tx.ID)
	}
}
