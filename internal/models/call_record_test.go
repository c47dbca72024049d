package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupCallRecordTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&CallRecord{})
	require.NoError(t, err)

	return db
}

func TestCallRecord_CreateAndRetrieve(t *testing.T) {
	db := setupCallRecordTestDB(t)

	record := &CallRecord{
		ID:             "call-1",
		Status:         CallRecordStatusInitiated,
		StartedAt:      time.Now(),
		AgentID:        "agent-1",
		CustomerNumber: "+14155551234",
	}
	require.NoError(t, record.SetTranscript([]TranscriptEntry{
		{Role: "user", Content: "hi", Timestamp: time.Now()},
	}))

	require.NoError(t, CreateCallRecord(db, record))

	retrieved, err := GetCallRecordByID(db, "call-1")
	require.NoError(t, err)
	assert.Equal(t, CallRecordStatusInitiated, retrieved.Status)
	assert.Equal(t, "agent-1", retrieved.AgentID)

	transcript, err := retrieved.Transcript()
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, "hi", transcript[0].Content)
}

func TestCallRecord_UpdateStatusAndFinish(t *testing.T) {
	db := setupCallRecordTestDB(t)

	record := &CallRecord{ID: "call-2", Status: CallRecordStatusInitiated, StartedAt: time.Now()}
	require.NoError(t, CreateCallRecord(db, record))

	require.NoError(t, UpdateCallRecordStatus(db, "call-2", CallRecordStatusInProgress))

	retrieved, err := GetCallRecordByID(db, "call-2")
	require.NoError(t, err)
	assert.Equal(t, CallRecordStatusInProgress, retrieved.Status)

	endedAt := time.Now()
	require.NoError(t, FinishCallRecord(db, "call-2", CallRecordStatusCompleted, "user_hangup", "https://example.com/call-2.wav", endedAt, 42))

	retrieved, err = GetCallRecordByID(db, "call-2")
	require.NoError(t, err)
	assert.Equal(t, CallRecordStatusCompleted, retrieved.Status)
	assert.Equal(t, "user_hangup", retrieved.EndedReason)
	assert.Equal(t, "https://example.com/call-2.wav", retrieved.RecordingURL)
	assert.Equal(t, 42, retrieved.DurationSeconds)
	require.NotNil(t, retrieved.EndedAt)
}

func TestCallRecord_EmptyTranscriptReturnsNil(t *testing.T) {
	record := &CallRecord{ID: "call-3"}
	transcript, err := record.Transcript()
	require.NoError(t, err)
	assert.Nil(t, transcript)
}
