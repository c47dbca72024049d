package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Utterance wraps a streaming Provider and turns its noisy interim/final
// event stream into exactly one committed final per user speech turn. It
// also implements the echo-suppression window the orchestrator relies on
// during barge-in: while suppressed, audio still reaches the recognizer
// (keeping the session alive) but events are dropped.
type Utterance struct {
	provider  Provider
	fallback  time.Duration
	onInterim func(text string)
	onFinal   func(text string)
	onError   func(error)

	mu            sync.Mutex
	lastInterim   string
	fallbackTimer *time.Timer
	ignoreUntil   time.Time
	ignoreAlways  bool
	closed        bool
}

// NewUtterance wraps provider with the finalization policy described in
// §4.2: an empty final or an UtteranceEnd event salvages the last interim, a
// 1500ms (by default) timer fires if no final ever arrives. onInterim fires
// on every non-empty interim transcript, ahead of any commit, so callers can
// reset activity timers on speech that hasn't finalized yet.
func NewUtterance(provider Provider, fallback time.Duration, onInterim func(string), onFinal func(string), onError func(error)) *Utterance {
	if fallback <= 0 {
		fallback = 1500 * time.Millisecond
	}
	return &Utterance{provider: provider, fallback: fallback, onInterim: onInterim, onFinal: onFinal, onError: onError}
}

// Start begins the underlying provider stream.
func (u *Utterance) Start(ctx context.Context) error {
	return u.provider.Start(ctx, u.handleEvent, u.handleError)
}

// SendAudio forwards raw mu-law audio to the recognizer regardless of
// suppression state — suppression only affects which events are surfaced.
func (u *Utterance) SendAudio(pcmu []byte) error {
	return u.provider.SendAudio(pcmu)
}

// Close stops the fallback timer and the underlying provider.
func (u *Utterance) Close() error {
	u.mu.Lock()
	u.closed = true
	if u.fallbackTimer != nil {
		u.fallbackTimer.Stop()
	}
	u.mu.Unlock()
	return u.provider.Close()
}

// ClearBuffer suppresses transcript events for d (default 500ms), used
// before invoking the LLM or TTS to avoid the agent transcribing itself.
func (u *Utterance) ClearBuffer(d time.Duration) {
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	u.mu.Lock()
	u.ignoreUntil = time.Now().Add(d)
	u.lastInterim = ""
	if u.fallbackTimer != nil {
		u.fallbackTimer.Stop()
	}
	u.mu.Unlock()
}

// SetSuppressed enables or disables indefinite suppression, used while the
// orchestrator is in the thinking/speaking states.
func (u *Utterance) SetSuppressed(suppressed bool) {
	u.mu.Lock()
	u.ignoreAlways = suppressed
	if suppressed {
		u.lastInterim = ""
		if u.fallbackTimer != nil {
			u.fallbackTimer.Stop()
		}
	}
	u.mu.Unlock()
}

func (u *Utterance) suppressed() bool {
	return u.ignoreAlways || time.Now().Before(u.ignoreUntil)
}

func (u *Utterance) handleEvent(ev Event) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed || u.suppressed() {
		return
	}

	switch {
	case ev.UtteranceEnd:
		if u.lastInterim != "" {
			u.commitLocked(u.lastInterim)
		}
	case ev.IsFinal:
		if ev.Text != "" {
			u.commitLocked(ev.Text)
		} else if u.lastInterim != "" {
			u.commitLocked(u.lastInterim)
		}
	default:
		if ev.Text == "" {
			return
		}
		u.lastInterim = ev.Text
		u.armFallbackLocked()
		if u.onInterim != nil {
			cb := u.onInterim
			text := ev.Text
			go cb(text)
		}
	}
}

// armFallbackLocked (re)starts the fallback timer. Caller holds u.mu.
func (u *Utterance) armFallbackLocked() {
	if u.fallbackTimer != nil {
		u.fallbackTimer.Stop()
	}
	u.fallbackTimer = time.AfterFunc(u.fallback, func() {
		u.mu.Lock()
		text := u.lastInterim
		suppressed := u.closed || u.suppressed()
		u.mu.Unlock()
		if text != "" && !suppressed {
			u.mu.Lock()
			u.commitLocked(text)
			u.mu.Unlock()
		}
	})
}

// commitLocked surfaces text as the committed final. Caller holds u.mu.
func (u *Utterance) commitLocked(text string) {
	u.lastInterim = ""
	if u.fallbackTimer != nil {
		u.fallbackTimer.Stop()
	}
	cb := u.onFinal
	go cb(text)
}

func (u *Utterance) handleError(err error) {
	logrus.WithError(err).Warn("recognizer stream error")
	if u.onError != nil {
		u.onError(err)
	}
}
