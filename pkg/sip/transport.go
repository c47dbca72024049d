// Package sip implements a minimal outbound SIP user agent: trunk
// registration, call origination with digest authentication, and in-dialog
// teardown (§4.6).
package sip

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
)

const (
	inviteWatchdogTimeout = 30 * time.Second
	publicIPDiscoveryURL  = "https://api.ipify.org"
)

// AudioEvent is an inbound RTP payload surfaced on a call's Call-ID, the
// wire event the media bridge subscribes to (§4.8).
type AudioEvent struct {
	CallID  string
	Payload []byte
}

// DialogEndedEvent reports why a dialog was torn down.
type DialogEndedEvent struct {
	CallID string
	Reason string
}

// Config carries the registration and trunk settings for a Transport.
type Config struct {
	ListenAddr    string // e.g. "0.0.0.0:5060"
	TrunkHost     string
	TrunkPort     int
	Username      string
	Password      string
	DisplayName   string
	RegisterEvery time.Duration
}

// Transport is a minimal SIP UA bound to one UDP listen address.
type Transport struct {
	cfg Config

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	publicIP     string
	publicIPOnce sync.Once

	mu      sync.RWMutex
	dialogs map[string]*Dialog

	OnAudio        func(AudioEvent)
	OnDialogEnded  func(DialogEndedEvent)
	OnInboundInvite func(req *sip.Request, tx sip.ServerTransaction)
}

// NewTransport builds a Transport bound to cfg.ListenAddr, wiring inbound
// BYE/ACK/OPTIONS/CANCEL handlers.
func NewTransport(cfg Config) (*Transport, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("sip: create user agent: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("sip: create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, fmt.Errorf("sip: create client: %w", err)
	}

	t := &Transport{
		cfg:     cfg,
		ua:      ua,
		client:  client,
		server:  server,
		dialogs: make(map[string]*Dialog),
	}

	server.OnBye(t.handleBye)
	server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {})
	server.OnCancel(t.handleCancel)
	server.OnOptions(func(req *sip.Request, tx sip.ServerTransaction) {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
	})
	server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		if t.OnInboundInvite != nil {
			t.OnInboundInvite(req, tx)
		}
	})

	return t, nil
}

// ListenAndServe blocks serving SIP requests on the configured UDP address.
func (t *Transport) ListenAndServe(ctx context.Context) error {
	return t.server.ListenAndServe(ctx, "udp", t.cfg.ListenAddr)
}

// Close releases the UA's listening socket.
func (t *Transport) Close() error {
	return t.server.Close()
}

// PublicIP discovers (once) the process's public IPv4 address via a
// well-known HTTPS endpoint, falling back to the local route address used
// to reach 8.8.8.8:80 (§4.6 Public-IP discovery).
func (t *Transport) PublicIP(ctx context.Context) string {
	t.publicIPOnce.Do(func() {
		if ip := fetchPublicIP(ctx); ip != "" {
			t.publicIP = ip
			return
		}
		t.publicIP = localRouteIP()
	})
	return t.publicIP
}

func fetchPublicIP(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, publicIPDiscoveryURL, nil)
	if err != nil {
		return ""
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return ""
	}
	ip := net.ParseIP(string(body))
	if ip == nil {
		return ""
	}
	return ip.String()
}

func localRouteIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// Register sends REGISTER to the trunk, retrying once with digest
// credentials on a 401/407 challenge (§4.6 REGISTER flow), and returns once
// registration succeeds or a final failure is received.
func (t *Transport) Register(ctx context.Context) error {
	publicIP := t.PublicIP(ctx)
	trunkURI := sip.Uri{Host: t.cfg.TrunkHost, Port: t.cfg.TrunkPort}

	req := t.newRegisterRequest(publicIP, trunkURI, "")
	resp, err := t.roundTrip(ctx, req)
	if err != nil {
		return fmt.Errorf("sip: register: %w", err)
	}

	if isAuthChallenge(resp.StatusCode) {
		authenticate, authorization := challengeHeaderName(resp.StatusCode)
		challengeHeader := resp.GetHeader(authenticate)
		if challengeHeader == nil {
			return fmt.Errorf("sip: register challenged but no %s header present", authenticate)
		}
		cred, err := digestAuthHeader(challengeHeader.Value(), sip.REGISTER.String(), trunkURI.String(), t.cfg.Username, t.cfg.Password)
		if err != nil {
			return fmt.Errorf("sip: compute digest credentials: %w", err)
		}
		req = t.newRegisterRequest(publicIP, trunkURI, "")
		req.AppendHeader(sip.NewHeader(authorization, cred))
		req.CSeq().SeqNo = 2
		resp, err = t.roundTrip(ctx, req)
		if err != nil {
			return fmt.Errorf("sip: register retry: %w", err)
		}
	}

	if resp.StatusCode != sip.StatusOK {
		return fmt.Errorf("sip: register failed: %d %s", resp.StatusCode, resp.Reason)
	}
	logrus.WithField("trunk", t.cfg.TrunkHost).Info("sip: registered")
	return nil
}

// RunRegistrationLoop registers immediately and then re-registers every
// cfg.RegisterEvery until ctx is cancelled.
func (t *Transport) RunRegistrationLoop(ctx context.Context) {
	if err := t.Register(ctx); err != nil {
		logrus.WithError(err).Error("sip: initial registration failed")
	}
	interval := t.cfg.RegisterEvery
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Register(ctx); err != nil {
				logrus.WithError(err).Warn("sip: re-registration failed")
			}
		}
	}
}

func (t *Transport) newRegisterRequest(localIP string, trunkURI sip.Uri, authHeader string) *sip.Request {
	req := sip.NewRequest(sip.REGISTER, &sip.Uri{Host: t.cfg.TrunkHost, Port: t.cfg.TrunkPort})

	fromURI := sip.Uri{User: t.cfg.Username, Host: localIP}
	from := &sip.FromHeader{DisplayName: t.cfg.DisplayName, Address: fromURI, Params: sip.NewParams()}
	from.Params.Add("tag", generateRandomHex(8))
	req.AppendHeader(from)

	to := &sip.ToHeader{Address: fromURI, Params: sip.NewParams()}
	req.AppendHeader(to)

	callID := sip.CallIDHeader(generateRandomHex(16))
	req.AppendHeader(&callID)

	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.REGISTER})
	req.AppendHeader(&sip.ContactHeader{Address: sip.Uri{User: t.cfg.Username, Host: localIP}})
	req.AppendHeader(sip.NewHeader("Expires", "3600"))

	cl := sip.ContentLengthHeader(0)
	req.AppendHeader(&cl)
	return req
}

func (t *Transport) roundTrip(ctx context.Context, req *sip.Request) (*sip.Response, error) {
	tx, err := t.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()
	select {
	case res, ok := <-tx.Responses():
		if !ok {
			return nil, fmt.Errorf("sip: response channel closed")
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) storeDialog(d *Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialogs[d.CallID] = d
}

func (t *Transport) dialog(callID string) (*Dialog, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.dialogs[callID]
	return d, ok
}

func (t *Transport) dropDialog(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dialogs, callID)
}

func (t *Transport) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callIDHeader := req.CallID()
	if callIDHeader == nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
		return
	}
	callID := callIDHeader.Value()

	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))

	d, ok := t.dialog(callID)
	if !ok {
		return
	}
	if d.MarkByeReceived() {
		return // already processed
	}
	t.dropDialog(callID)
	if t.OnDialogEnded != nil {
		t.OnDialogEnded(DialogEndedEvent{CallID: callID, Reason: "remote_hangup"})
	}
}

func (t *Transport) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	_ = tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil))
}

func generateRandomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func generateCallID() string {
	return generateRandomHex(16)
}
