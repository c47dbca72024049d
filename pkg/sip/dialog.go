package sip

import (
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
)

// symmetricRTPLockout is how long the RTP endpoint is pinned to the SDP
// address after a mid-call re-route is observed (§4.6 step 3, §4.7).
const symmetricRTPLockout = 5 * time.Second

// Dialog tracks one call's SIP signalling state (§3 SIP dialog state).
type Dialog struct {
	mu sync.Mutex

	CallID string
	FromTag string
	ToTag   string
	cseq    uint32

	RemoteRTPHost string
	RemoteRTPPort int
	LocalRTPPort  int
	RemoteCodec   int

	answered   bool
	authSent   bool
	byeReceived bool

	EndpointLockoutUntil time.Time
	SDPRerouteOccurred   bool

	InviteReq    *sip.Request
	LastResponse *sip.Response
}

// NewDialog starts a dialog with a fresh Call-ID and an initial CSeq of 1.
func NewDialog(callID string, localRTPPort int) *Dialog {
	return &Dialog{
		CallID:       callID,
		cseq:         1,
		LocalRTPPort: localRTPPort,
		RemoteCodec:  CodecPCMU,
	}
}

// NextCSeq returns the next CSeq number for this dialog, incrementing the
// monotonic per-dialog counter.
func (d *Dialog) NextCSeq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cseq++
	return d.cseq
}

// MarkAnswered records a 200 OK and is a one-shot: it reports whether this
// is the *first* answer for the dialog.
func (d *Dialog) MarkAnswered() (first bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	first = !d.answered
	d.answered = true
	return first
}

// MarkAuthSent reports whether digest credentials have already been sent
// once for this dialog (authSent is one-shot per §4.6 step 2).
func (d *Dialog) MarkAuthSent() (alreadySent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	alreadySent = d.authSent
	d.authSent = true
	return alreadySent
}

// MarkByeReceived reports whether a BYE has already been processed for
// this dialog (byeReceived is one-shot per §4.6 In-dialog request handling).
func (d *Dialog) MarkByeReceived() (alreadyReceived bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	alreadyReceived = d.byeReceived
	d.byeReceived = true
	return alreadyReceived
}

// UpdateRemoteEndpoint applies a new remote RTP endpoint learned from SDP,
// arming the symmetric-RTP lockout and recording a re-route has occurred
// once the dialog has already been answered once (§4.6 step 3).
func (d *Dialog) UpdateRemoteEndpoint(host string, port, codec int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	changed := d.RemoteRTPHost != host || d.RemoteRTPPort != port
	d.RemoteRTPHost = host
	d.RemoteRTPPort = port
	d.RemoteCodec = codec
	if changed && d.answered {
		d.SDPRerouteOccurred = true
		d.EndpointLockoutUntil = time.Now().Add(symmetricRTPLockout)
	}
}

// AllowsSymmetricRTPUpdate reports whether the RTP session may update its
// send endpoint from an observed source address right now (§4.7 Symmetric RTP).
func (d *Dialog) AllowsSymmetricRTPUpdate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SDPRerouteOccurred {
		return false
	}
	return time.Now().After(d.EndpointLockoutUntil)
}
