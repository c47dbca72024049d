package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/code-100-precent/LingEcho/internal/models"
	"github.com/code-100-precent/LingEcho/pkg/llm"
	"github.com/code-100-precent/LingEcho/pkg/media/hosted"
	"github.com/code-100-precent/LingEcho/pkg/orchestrator"
	"github.com/code-100-precent/LingEcho/pkg/recognizer"
	"github.com/code-100-precent/LingEcho/pkg/recording"
	"github.com/code-100-precent/LingEcho/pkg/sip"
	"github.com/code-100-precent/LingEcho/pkg/synthesizer"
)

type noopRecognizerProvider struct{}

func (noopRecognizerProvider) Start(context.Context, func(recognizer.Event), func(error)) error {
	return nil
}
func (noopRecognizerProvider) SendAudio([]byte) error { return nil }
func (noopRecognizerProvider) Close() error           { return nil }

type echoChatProvider struct{}

func (echoChatProvider) GetResponse(_ context.Context, _ []llm.Turn, userText string, onChunk func(string)) (string, error) {
	if onChunk != nil {
		onChunk(userText)
	}
	return userText, nil
}

type captureSynth struct{}

func (c *captureSynth) Synthesize(_ context.Context, handler synthesizer.Handler, text string) error {
	handler.OnMessage([]byte(text))
	return nil
}
func (c *captureSynth) Format() synthesizer.Format { return synthesizer.Format{Encoding: "mulaw"} }
func (c *captureSynth) Stop()                      {}
func (c *captureSynth) Close() error               { return nil }

func newTestOrchestratorSession() *orchestrator.Session {
	utt := recognizer.NewUtterance(noopRecognizerProvider{}, 0, nil, nil, nil)
	_ = utt.Start(context.Background())
	client := llm.NewClient(echoChatProvider{}, 20, 5)
	return orchestrator.New(context.Background(), orchestrator.Config{
		FirstMessageMode: orchestrator.FirstMessageModeUserSpeaksFirst,
	}, utt, client, &captureSynth{})
}

func setupCallRecordDB(t *testing.T, callID string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CallRecord{}))
	require.NoError(t, models.CreateCallRecord(db, &models.CallRecord{
		ID:        callID,
		Status:    models.CallRecordStatusInitiated,
		StartedAt: time.Now(),
	}))
	return db
}

func TestHostedBridgeRoutesMediaToOrchestratorAndFinishesRecord(t *testing.T) {
	db := setupCallRecordDB(t, "call-hosted-1")
	registry := recording.NewRegistry(nil)
	sess := newTestOrchestratorSession()
	sess.Start()

	conn := &hosted.Connection{}
	NewHostedBridge(db, registry, conn, sess, "call-hosted-1")

	require.NotNil(t, conn.OnMedia)
	conn.OnMedia([]byte{0x01, 0x02, 0x03})

	rec, ok := registry.Get("call-hosted-1")
	require.True(t, ok)
	assert.NotNil(t, rec)

	sess.End(orchestrator.EndReasonUserHangup)

	record, err := models.GetCallRecordByID(db, "call-hosted-1")
	require.NoError(t, err)
	assert.Equal(t, models.CallRecordStatusCompleted, record.Status)
	assert.Equal(t, "user_hangup", record.EndedReason)
}

func TestHostedBridgeStopEventEndsSession(t *testing.T) {
	db := setupCallRecordDB(t, "call-hosted-2")
	registry := recording.NewRegistry(nil)
	sess := newTestOrchestratorSession()
	sess.Start()

	conn := &hosted.Connection{}
	NewHostedBridge(db, registry, conn, sess, "call-hosted-2")

	require.NotNil(t, conn.OnStop)
	conn.OnStop()

	assert.Equal(t, orchestrator.StateEnded, sess.State())
}

func TestDialogRouterDispatchesByCallID(t *testing.T) {
	router := NewDialogRouter()
	var gotA, gotB int

	router.Register("call-a", func(sip.DialogEndedEvent) { gotA++ })
	router.Register("call-b", func(sip.DialogEndedEvent) { gotB++ })

	router.Dispatch(sip.DialogEndedEvent{CallID: "call-a", Reason: "remote_hangup"})
	assert.Equal(t, 1, gotA)
	assert.Equal(t, 0, gotB)

	router.Remove("call-a")
	router.Dispatch(sip.DialogEndedEvent{CallID: "call-a"})
	assert.Equal(t, 1, gotA, "removed handler should not fire again")
}
