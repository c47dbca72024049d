// Package media bridges a telephony transport (SIP/RTP or hosted
// WebSocket media stream) to the conversation orchestrator, and fans out
// audio to the recording sink (§4.8).
package media

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/code-100-precent/LingEcho/internal/models"
	"github.com/code-100-precent/LingEcho/pkg/media/hosted"
	"github.com/code-100-precent/LingEcho/pkg/metrics"
	"github.com/code-100-precent/LingEcho/pkg/orchestrator"
	"github.com/code-100-precent/LingEcho/pkg/recording"
	"github.com/code-100-precent/LingEcho/pkg/rtp"
	"github.com/code-100-precent/LingEcho/pkg/sip"
)

// DialogRouter demultiplexes a single sip.Transport's OnDialogEnded
// callback across the many concurrent calls that share that transport.
// cmd/ wires transport.OnDialogEnded = router.Dispatch once at startup;
// each SIP bridge registers and unregisters itself by call-id (§5 Calls
// are isolated from one another).
type DialogRouter struct {
	mu       sync.RWMutex
	byCallID map[string]func(sip.DialogEndedEvent)
}

// NewDialogRouter builds an empty DialogRouter.
func NewDialogRouter() *DialogRouter {
	return &DialogRouter{byCallID: make(map[string]func(sip.DialogEndedEvent))}
}

// Register installs handler for callID, replacing any previous one.
func (r *DialogRouter) Register(callID string, handler func(sip.DialogEndedEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCallID[callID] = handler
}

// Remove drops the handler for callID.
func (r *DialogRouter) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byCallID, callID)
}

// Dispatch routes ev to the handler registered for its call-id, if any.
func (r *DialogRouter) Dispatch(ev sip.DialogEndedEvent) {
	r.mu.RLock()
	handler := r.byCallID[ev.CallID]
	r.mu.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

// AudioSender abstracts the outbound leg of a call's media transport: an
// rtp.Session for SIP calls, a hosted.Connection for WebSocket calls.
type AudioSender interface {
	SendAudio(mulaw []byte)
}

// rtpAudioSender adapts *rtp.Session.SendAudio (no error) to AudioSender.
type rtpAudioSender struct{ session *rtp.Session }

func (a rtpAudioSender) SendAudio(mulaw []byte) { a.session.SendAudio(mulaw) }

// hostedAudioSender adapts *hosted.Connection.SendMedia (returns error) to
// AudioSender, logging send failures rather than panicking mid-call.
type hostedAudioSender struct{ conn *hosted.Connection }

func (a hostedAudioSender) SendAudio(mulaw []byte) {
	if err := a.conn.SendMedia(mulaw); err != nil {
		logrus.WithError(err).Warn("media: send to hosted transport failed")
	}
}

// Bridge owns one call's wiring between a transport, the orchestrator, the
// recording sink, and the persisted call record.
type Bridge struct {
	db         *gorm.DB
	recordings *recording.Registry

	callID  string
	sess    *orchestrator.Session
	rec     *recording.Recording
	sender  AudioSender
	startedAt time.Time
}

// NewSIPBridge wires a SIP transport/dialog/RTP session to an orchestrator
// session for one call (§4.8 "For a SIP call").
func NewSIPBridge(ctx context.Context, db *gorm.DB, recordings *recording.Registry, transport *sip.Transport, router *DialogRouter, dialog *sip.Dialog, sess *orchestrator.Session, callID string) (*Bridge, error) {
	b := &Bridge{
		db:         db,
		recordings: recordings,
		callID:     callID,
		sess:       sess,
		rec:        recordings.Start(callID),
		startedAt:  time.Now(),
	}

	rtpSession, err := rtp.NewSession(dialog.LocalRTPPort, dialog.RemoteRTPHost, dialog.RemoteRTPPort, dialog.RemoteCodec, dialog, func(payload []byte) {
		b.handleInboundAudio(payload)
	})
	if err != nil {
		return nil, err
	}
	b.sender = rtpAudioSender{session: rtpSession}
	rtpSession.Start(ctx)
	metrics.CallsStarted.WithLabelValues("sip").Inc()
	metrics.ActiveCalls.Inc()

	sess.OnAudio = func(mulaw []byte) {
		b.rec.AppendAgent(mulaw)
		b.sender.SendAudio(mulaw)
	}
	sess.OnEnded = func(reason orchestrator.EndReason) {
		rtpSession.Close()
		router.Remove(callID)
		if err := transport.Hangup(dialog); err != nil {
			logrus.WithError(err).Warn("media: hangup failed")
		}
		b.finish(reason)
	}
	router.Register(callID, func(sip.DialogEndedEvent) {
		sess.End(orchestrator.EndReasonRemoteHangup)
	})

	return b, nil
}

// NewHostedBridge wires a hosted WebSocket media-stream connection to an
// orchestrator session (§4.8 "For a hosted media-stream transport").
func NewHostedBridge(db *gorm.DB, recordings *recording.Registry, conn *hosted.Connection, sess *orchestrator.Session, callID string) *Bridge {
	b := &Bridge{
		db:         db,
		recordings: recordings,
		callID:     callID,
		sess:       sess,
		rec:        recordings.Start(callID),
		sender:     hostedAudioSender{conn: conn},
		startedAt:  time.Now(),
	}
	metrics.CallsStarted.WithLabelValues("hosted").Inc()
	metrics.ActiveCalls.Inc()

	conn.OnMedia = func(payload []byte) {
		b.handleInboundAudio(payload)
	}
	conn.OnStop = func() {
		sess.End(orchestrator.EndReasonRemoteHangup)
	}

	sess.OnAudio = func(mulaw []byte) {
		b.rec.AppendAgent(mulaw)
		b.sender.SendAudio(mulaw)
	}
	sess.OnEnded = func(reason orchestrator.EndReason) {
		conn.Close()
		b.finish(reason)
	}

	return b
}

func (b *Bridge) handleInboundAudio(payload []byte) {
	b.rec.AppendCaller(payload)
	b.sess.ProcessIncomingAudio(payload)
}

// finish persists the call's final status/transcript/recording and releases
// the recording buffer, run once from the orchestrator's OnEnded callback.
func (b *Bridge) finish(reason orchestrator.EndReason) {
	metrics.ActiveCalls.Dec()
	metrics.CallsEnded.WithLabelValues(string(reason)).Inc()

	ctx := context.Background()
	url, err := b.recordings.Finish(ctx, b.callID)
	if err != nil {
		logrus.WithError(err).WithField("call_id", b.callID).Warn("media: finish recording failed")
	}

	status := models.CallRecordStatusCompleted
	if reason == orchestrator.EndReasonTransportError || reason == orchestrator.EndReasonError {
		status = models.CallRecordStatusFailed
	}

	endedAt := time.Now()
	duration := int(endedAt.Sub(b.startedAt).Seconds())
	metrics.CallDurationSeconds.Observe(float64(duration))

	if b.db == nil {
		return
	}

	record, err := models.GetCallRecordByID(b.db, b.callID)
	if err == nil {
		entries := make([]models.TranscriptEntry, 0, len(b.sess.Transcript()))
		for _, t := range b.sess.Transcript() {
			entries = append(entries, models.TranscriptEntry{Role: t.Role, Content: t.Content, Timestamp: t.Timestamp})
		}
		_ = record.SetTranscript(entries)
		_ = b.db.Save(record).Error
	}

	if err := models.FinishCallRecord(b.db, b.callID, status, string(reason), url, endedAt, duration); err != nil {
		logrus.WithError(err).WithField("call_id", b.callID).Warn("media: finish call record failed")
	}
}
