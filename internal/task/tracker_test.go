package task

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdeck/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrackerRecordsLifecycle(t *testing.T) {
	db := openTestDB(t)
	tracker := NewTracker(db)

	recordID := tracker.Begin("prod", "s-1")
	require.NotEmpty(t, recordID)

	records, err := tracker.History("prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(StateSubmitted), records[0].State)
	assert.Nil(t, records[0].CompletedAt)

	tracker.Finish(recordID, Snapshot{TaskID: "t-9", ContextID: "ctx-1", State: StateCompleted}, nil)

	records, err = tracker.History("prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "t-9", records[0].TaskID)
	assert.Equal(t, "ctx-1", records[0].ContextID)
	assert.Equal(t, string(StateCompleted), records[0].State)
	assert.NotNil(t, records[0].CompletedAt)
	assert.Nil(t, records[0].ErrorMessage)
}

func TestTrackerRecordsFailure(t *testing.T) {
	db := openTestDB(t)
	tracker := NewTracker(db)

	recordID := tracker.Begin("prod", "s-1")
	tracker.Finish(recordID, Snapshot{State: StateFailed}, errors.New("backend returned 502"))

	records, err := tracker.History("prod")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(StateFailed), records[0].State)
	require.NotNil(t, records[0].ErrorMessage)
	assert.Contains(t, *records[0].ErrorMessage, "502")
}

func TestNilTrackerIsInert(t *testing.T) {
	var tracker *Tracker

	assert.Empty(t, tracker.Begin("prod", "s-1"))
	tracker.Finish("x", Snapshot{}, nil)

	records, err := tracker.History("prod")
	assert.NoError(t, err)
	assert.Nil(t, records)
}
