// Package orchestrator drives one call's conversation state machine,
// coordinating the speech recognizer, chat client, and speech synthesizer
// with barge-in and cancellation semantics (§4.9).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/code-100-precent/LingEcho/pkg/llm"
	"github.com/code-100-precent/LingEcho/pkg/recognizer"
	"github.com/code-100-precent/LingEcho/pkg/synthesizer"
)

// State is a conversation state.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
	StateEnded     State = "ended"
)

// EndReason names why a call ended, matching the persisted record's
// endedReason values (§6.3, §8 invariant 3).
type EndReason string

const (
	EndReasonUserHangup     EndReason = "user_hangup"
	EndReasonRemoteHangup   EndReason = "remote_hangup"
	EndReasonSilenceTimeout EndReason = "silence_timeout"
	EndReasonMaxDuration    EndReason = "max_duration"
	EndReasonTransportError EndReason = "transport_error"
	EndReasonError          EndReason = "error"
)

// FirstMessageMode controls which party speaks first on call start.
type FirstMessageMode string

const (
	FirstMessageModeUserSpeaksFirst      FirstMessageMode = "user-speaks-first"
	FirstMessageModeAssistantSpeaksFirst FirstMessageMode = "assistant-speaks-first"
)

const bargeInClearWindow = 500 * time.Millisecond

const apologyText = "Sorry, I encountered an issue. Could you please repeat that?"

// TranscriptEntry is one turn in the call's logged transcript (§6.3).
type TranscriptEntry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Config carries the per-call settings that drive timers and first-message
// behavior.
type Config struct {
	FirstMessageMode      FirstMessageMode
	FirstMessage          string
	SilenceTimeoutSeconds int
	MaxDurationSeconds    int
	ResponseDelaySeconds  float64
}

// Session is one call's conversation orchestrator.
type Session struct {
	cfg    Config
	stt    *recognizer.Utterance
	chat   *llm.Client
	tts    synthesizer.Provider
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	aborted    bool
	transcript []TranscriptEntry

	silenceTimer *time.Timer
	maxDurTimer  *time.Timer

	// OnAudio receives outbound mu-law audio to be sent to the peer.
	OnAudio func(mulaw []byte)
	// OnEnded fires exactly once, when the session transitions to ended.
	OnEnded func(reason EndReason)
}

// New builds a Session wired to a recognizer, chat client, and synthesizer.
func New(ctx context.Context, cfg Config, stt *recognizer.Utterance, chat *llm.Client, tts synthesizer.Provider) *Session {
	sessCtx, cancel := context.WithCancel(ctx)
	return &Session{
		cfg:    cfg,
		stt:    stt,
		chat:   chat,
		tts:    tts,
		ctx:    sessCtx,
		cancel: cancel,
		state:  StateIdle,
	}
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the accumulated transcript.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Start transitions out of idle per the configured first-message mode and
// arms the max-duration timer (§4.9).
func (s *Session) Start() {
	s.mu.Lock()
	s.armMaxDurationLocked()
	speakFirst := s.cfg.FirstMessageMode == FirstMessageModeAssistantSpeaksFirst && s.cfg.FirstMessage != ""
	if speakFirst {
		s.transcript = append(s.transcript, TranscriptEntry{Role: "assistant", Content: s.cfg.FirstMessage, Timestamp: time.Now()})
	}
	s.mu.Unlock()

	if speakFirst {
		s.speak(s.cfg.FirstMessage)
		return
	}
	s.enterListening()
}

// ProcessIncomingAudio forwards raw mu-law audio to the recognizer; it is
// always shipped regardless of suppression state so the recognizer session
// stays alive (§4.9 Barge-in / echo suppression).
func (s *Session) ProcessIncomingAudio(mulaw []byte) {
	if s.isAborted() {
		return
	}
	if err := s.stt.SendAudio(mulaw); err != nil {
		logrus.WithError(err).Warn("orchestrator: send audio to recognizer failed")
	}
}

func (s *Session) enterListening() {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.state = StateListening
	s.stt.SetSuppressed(false)
	s.armSilenceTimerLocked()
	s.mu.Unlock()
}

func (s *Session) armSilenceTimerLocked() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	timeout := s.cfg.SilenceTimeoutSeconds
	if timeout <= 0 {
		return
	}
	s.silenceTimer = time.AfterFunc(time.Duration(timeout)*time.Second, func() {
		s.End(EndReasonSilenceTimeout)
	})
}

func (s *Session) armMaxDurationLocked() {
	maxDur := s.cfg.MaxDurationSeconds
	if maxDur <= 0 {
		return
	}
	s.maxDurTimer = time.AfterFunc(time.Duration(maxDur)*time.Second, func() {
		s.End(EndReasonMaxDuration)
	})
}

// ResetSilenceTimer restarts the silence timer on any interim transcript
// activity, wired to the recognizer's onInterim callback.
func (s *Session) ResetSilenceTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateListening {
		s.armSilenceTimerLocked()
	}
}

// CommitUtterance handles a finalized user utterance: the recognizer's
// onFinal callback should invoke this. It transitions listening → thinking,
// waits the configured response delay, invokes the LLM, and transitions to
// speaking via speak (§4.9).
func (s *Session) CommitUtterance(text string) {
	s.mu.Lock()
	if s.aborted || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.state = StateThinking
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.stt.SetSuppressed(true)
	s.transcript = append(s.transcript, TranscriptEntry{Role: "user", Content: text, Timestamp: time.Now()})
	s.mu.Unlock()

	delay := s.cfg.ResponseDelaySeconds
	if delay > 0 {
		select {
		case <-time.After(time.Duration(delay * float64(time.Second))):
		case <-s.ctx.Done():
			return
		}
	}
	if s.isAborted() {
		return
	}

	s.stt.ClearBuffer(bargeInClearWindow)
	reply, err := s.chat.GetResponse(s.ctx, text, nil)
	if s.isAborted() {
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("orchestrator: llm request failed")
		s.recoverWithApology()
		return
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, TranscriptEntry{Role: "assistant", Content: reply, Timestamp: time.Now()})
	s.mu.Unlock()

	s.speak(reply)
}

// speak transitions to speaking and synthesizes text, returning to
// listening on completion unless aborted (§4.9 thinking → speaking →
// listening).
func (s *Session) speak(text string) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.state = StateSpeaking
	s.mu.Unlock()

	s.stt.ClearBuffer(bargeInClearWindow)

	handler := synthesizer.HandlerFunc(func(audio []byte) {
		if s.isAborted() {
			return
		}
		if s.OnAudio != nil {
			s.OnAudio(audio)
		}
	})

	err := s.tts.Synthesize(s.ctx, handler, text)
	if s.isAborted() {
		return
	}
	if err != nil {
		logrus.WithError(err).Warn("orchestrator: tts synthesis failed")
		s.recoverWithApology()
		return
	}

	s.enterListening()
}

// recoverWithApology implements the LLMError/TTSError recovery policy: speak
// a fixed apology and return to listening; if the apology itself fails to
// synthesize, end the call with reason error (§7).
func (s *Session) recoverWithApology() {
	if s.isAborted() {
		return
	}
	handler := synthesizer.HandlerFunc(func(audio []byte) {
		if s.isAborted() {
			return
		}
		if s.OnAudio != nil {
			s.OnAudio(audio)
		}
	})
	if err := s.tts.Synthesize(s.ctx, handler, apologyText); err != nil {
		logrus.WithError(err).Error("orchestrator: apology synthesis failed")
		s.End(EndReasonError)
		return
	}
	if s.isAborted() {
		return
	}
	s.enterListening()
}

func (s *Session) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// End is idempotent: it marks the session aborted, stops timers, cancels
// any in-flight synthesis, closes the recognizer, and fires OnEnded exactly
// once (§4.9 Abort, §8 invariant 3).
func (s *Session) End(reason EndReason) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.state = StateEnded
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	if s.maxDurTimer != nil {
		s.maxDurTimer.Stop()
	}
	s.mu.Unlock()

	s.tts.Stop()
	s.cancel()
	if err := s.stt.Close(); err != nil {
		logrus.WithError(err).Warn("orchestrator: close recognizer failed")
	}
	s.chat.Forget()

	if s.OnEnded != nil {
		s.OnEnded(reason)
	}
}
