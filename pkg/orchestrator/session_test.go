package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-100-precent/LingEcho/pkg/llm"
	"github.com/code-100-precent/LingEcho/pkg/recognizer"
	"github.com/code-100-precent/LingEcho/pkg/synthesizer"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	onEvent func(recognizer.Event)
	closed  bool
}

func (f *fakeRecognizer) Start(_ context.Context, onEvent func(recognizer.Event), _ func(error)) error {
	f.mu.Lock()
	f.onEvent = onEvent
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) SendAudio(_ []byte) error { return nil }

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRecognizer) fireFinal(text string) {
	f.mu.Lock()
	ev := f.onEvent
	f.mu.Unlock()
	ev(recognizer.Event{Text: text, IsFinal: true})
}

type fakeChatProvider struct {
	reply string
	err   error
}

func (f *fakeChatProvider) GetResponse(_ context.Context, _ []llm.Turn, _ string, onChunk func(string)) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if onChunk != nil {
		onChunk(f.reply)
	}
	return f.reply, nil
}

type fakeSynth struct {
	mu        sync.Mutex
	delivered [][]byte
	err       error
	stopped   bool
}

func (f *fakeSynth) Synthesize(ctx context.Context, handler synthesizer.Handler, text string) error {
	if f.err != nil {
		return f.err
	}
	handler.OnMessage([]byte(text))
	f.mu.Lock()
	f.delivered = append(f.delivered, []byte(text))
	f.mu.Unlock()
	return nil
}

func (f *fakeSynth) Format() synthesizer.Format { return synthesizer.Format{Encoding: "mulaw"} }
func (f *fakeSynth) Stop()                      { f.mu.Lock(); f.stopped = true; f.mu.Unlock() }
func (f *fakeSynth) Close() error               { return nil }

func newTestSession(t *testing.T, cfg Config, chat *fakeChatProvider, tts *fakeSynth) (*Session, *fakeRecognizer) {
	t.Helper()
	rec := &fakeRecognizer{}
	utt := recognizer.NewUtterance(rec, 0, nil, nil, nil)
	require.NoError(t, utt.Start(context.Background()))

	client := llm.NewClient(chat, 20, 5)
	sess := New(context.Background(), cfg, utt, client, tts)

	// NewUtterance took a nil onFinal above, so the recognizer is not wired to
	// the session; tests call CommitUtterance directly instead.
	return sess, rec
}

func TestSessionUserSpeaksFirstEntersListening(t *testing.T) {
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{reply: "hi"}, &fakeSynth{})
	sess.Start()
	assert.Equal(t, StateListening, sess.State())
}

func TestSessionAssistantSpeaksFirstThenListens(t *testing.T) {
	tts := &fakeSynth{}
	sess, _ := newTestSession(t, Config{
		FirstMessageMode: FirstMessageModeAssistantSpeaksFirst,
		FirstMessage:     "hello there",
	}, &fakeChatProvider{reply: "hi"}, tts)

	sess.Start()
	assert.Equal(t, StateListening, sess.State())
	assert.Len(t, tts.delivered, 1)
	assert.Equal(t, "hello there", string(tts.delivered[0]))
}

func TestCommitUtteranceProducesOneLLMCallAndReturnsToListening(t *testing.T) {
	tts := &fakeSynth{}
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{reply: "an answer"}, tts)
	sess.Start()

	sess.CommitUtterance("what time is it")

	assert.Equal(t, StateListening, sess.State())
	transcript := sess.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "what time is it", transcript[0].Content)
	assert.Equal(t, "assistant", transcript[1].Role)
	assert.Equal(t, "an answer", transcript[1].Content)
	assert.Len(t, tts.delivered, 1)
}

func TestCommitUtteranceIgnoredOutsideListening(t *testing.T) {
	tts := &fakeSynth{}
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{reply: "x"}, tts)
	// state starts idle, not listening
	sess.CommitUtterance("too early")
	assert.Empty(t, sess.Transcript())
}

func TestLLMErrorTriggersApologyAndReturnsToListening(t *testing.T) {
	tts := &fakeSynth{}
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{err: errors.New("boom")}, tts)
	sess.Start()

	sess.CommitUtterance("hello")

	assert.Equal(t, StateListening, sess.State())
	require.Len(t, tts.delivered, 1)
	assert.Equal(t, apologyText, string(tts.delivered[0]))
}

func TestApologyFailureEndsCallWithError(t *testing.T) {
	tts := &fakeSynth{err: errors.New("tts down")}
	var endedReason EndReason
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{err: errors.New("boom")}, tts)
	sess.OnEnded = func(reason EndReason) { endedReason = reason }
	sess.Start()

	sess.CommitUtterance("hello")

	assert.Equal(t, StateEnded, sess.State())
	assert.Equal(t, EndReasonError, endedReason)
}

func TestEndIsIdempotentAndFiresOnEndedOnce(t *testing.T) {
	tts := &fakeSynth{}
	calls := 0
	sess, _ := newTestSession(t, Config{FirstMessageMode: FirstMessageModeUserSpeaksFirst}, &fakeChatProvider{reply: "x"}, tts)
	sess.OnEnded = func(_ EndReason) { calls++ }
	sess.Start()

	sess.End(EndReasonUserHangup)
	sess.End(EndReasonRemoteHangup)

	assert.Equal(t, 1, calls)
	assert.True(t, tts.stopped)
}

func TestSilenceTimeoutEndsCall(t *testing.T) {
	tts := &fakeSynth{}
	var endedReason EndReason
	var mu sync.Mutex
	sess, _ := newTestSession(t, Config{
		FirstMessageMode:      FirstMessageModeUserSpeaksFirst,
		SilenceTimeoutSeconds: 1,
	}, &fakeChatProvider{reply: "x"}, tts)
	sess.OnEnded = func(reason EndReason) {
		mu.Lock()
		endedReason = reason
		mu.Unlock()
	}
	sess.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return endedReason == EndReasonSilenceTimeout
	}, 3*time.Second, 10*time.Millisecond)
}
