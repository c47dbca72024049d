// Package rtp paces outbound telephony audio into 20ms RTP packets and
// surfaces inbound payloads, with symmetric-RTP endpoint tracking (§4.7).
package rtp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/code-100-precent/LingEcho/pkg/codec"
)

const (
	// SamplesPerPacket is 20ms of audio at 8kHz.
	SamplesPerPacket = 160
	packetInterval   = 20 * time.Millisecond
	keepAliveIdle    = 40 * time.Millisecond

	muLawKeepAliveByte = 0xFF
	aLawKeepAliveByte  = 0xD5

	// CodecPCMU and CodecPCMA are the RTP payload types this package
	// understands; keep in sync with pkg/sip's codec constants.
	CodecPCMU = 0
	CodecPCMA = 8
)

// EndpointGate reports whether the current source address may replace the
// session's remote send endpoint (symmetric RTP, §4.7), letting the SIP
// dialog's lockout/re-route state decide.
type EndpointGate interface {
	AllowsSymmetricRTPUpdate() bool
}

// Session owns one call's RTP UDP socket: a 20ms pacer draining an audio
// queue, a keep-alive generator, and a receive loop surfacing inbound
// payloads (§3 RTP session state, §4.7).
type Session struct {
	conn   *net.UDPConn
	gate   EndpointGate
	onAudio func([]byte)

	mu           sync.Mutex
	remoteAddr   *net.UDPAddr
	remoteCodec  int // 0 = PCMU, 8 = PCMA
	sequence     uint16
	timestamp    uint32
	ssrc         uint32
	queue        [][]byte
	lastAudioAt  time.Time
	isSendingAudio bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession opens a UDP socket on localPort and targets remoteHost:remotePort
// with the given initial codec (0 = PCMU, 8 = PCMA).
func NewSession(localPort int, remoteHost string, remotePort, remoteCodec int, gate EndpointGate, onAudio func([]byte)) (*Session, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		return nil, err
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)))
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := &Session{
		conn:        conn,
		gate:        gate,
		onAudio:     onAudio,
		remoteAddr:  remoteAddr,
		remoteCodec: remoteCodec,
		ssrc:        randomUint32(),
		done:        make(chan struct{}),
	}
	return s, nil
}

// Start launches the pacer and receive loop; cancel via Close.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.pacerLoop(ctx)
	go s.receiveLoop(ctx)
}

// Close stops the session's goroutines and closes its socket.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.conn.Close()
	if s.cancel != nil {
		<-s.done
	}
	return err
}

// SetRemoteCodec updates the negotiated payload type for outbound packets
// (e.g. a mid-call codec change in a re-INVITE).
func (s *Session) SetRemoteCodec(codecID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteCodec = codecID
}

// SendAudio splits a mu-law buffer into 160-byte chunks and enqueues them
// for the pacer (§4.7 Send path).
func (s *Session) SendAudio(muLaw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(muLaw); i += SamplesPerPacket {
		end := i + SamplesPerPacket
		if end > len(muLaw) {
			end = len(muLaw)
		}
		chunk := make([]byte, SamplesPerPacket)
		copy(chunk, muLaw[i:end])
		if end-i < SamplesPerPacket {
			for j := end - i; j < SamplesPerPacket; j++ {
				chunk[j] = codec.SilenceByte
			}
		}
		s.queue = append(s.queue, chunk)
	}
	s.isSendingAudio = len(s.queue) > 0
}

func (s *Session) pacerLoop(ctx context.Context) {
	ticker := time.NewTicker(packetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	var payload []byte
	if len(s.queue) > 0 {
		payload = s.queue[0]
		s.queue = s.queue[1:]
		s.lastAudioAt = time.Now()
		if len(s.queue) == 0 {
			s.isSendingAudio = false
		}
	} else if time.Since(s.lastAudioAt) >= keepAliveIdle {
		payload = s.keepAlivePayloadLocked()
	}
	remoteCodec := s.remoteCodec
	remoteAddr := s.remoteAddr
	s.mu.Unlock()

	if payload == nil {
		return
	}
	s.sendPacket(payload, remoteCodec, remoteAddr)
}

func (s *Session) keepAlivePayloadLocked() []byte {
	b := muLawKeepAliveByte
	if s.remoteCodec == 8 {
		b = aLawKeepAliveByte
	}
	payload := make([]byte, SamplesPerPacket)
	for i := range payload {
		payload[i] = byte(b)
	}
	return payload
}

func (s *Session) sendPacket(muLawPayload []byte, remoteCodec int, remoteAddr *net.UDPAddr) {
	payload := muLawPayload
	payloadType := uint8(0)
	if remoteCodec == 8 {
		payload = codec.MuLawToALaw(muLawPayload)
		payloadType = 8
	}

	s.mu.Lock()
	s.sequence++
	s.timestamp += SamplesPerPacket
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    payloadType,
			SequenceNumber: s.sequence,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.mu.Unlock()

	data, err := pkt.Marshal()
	if err != nil {
		logrus.WithError(err).Warn("rtp: marshal packet failed")
		return
	}
	if _, err := s.conn.WriteToUDP(data, remoteAddr); err != nil {
		logrus.WithError(err).Warn("rtp: send packet failed")
	}
}

func (s *Session) receiveLoop(ctx context.Context) {
	defer close(s.done)
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n <= 12 {
			continue
		}

		var pkt pionrtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		s.maybeUpdateRemote(addr)

		if s.onAudio != nil {
			s.onAudio(pkt.Payload)
		}
	}
}

func (s *Session) maybeUpdateRemote(addr *net.UDPAddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remoteAddr != nil && s.remoteAddr.IP.Equal(addr.IP) && s.remoteAddr.Port == addr.Port {
		return
	}
	if s.gate != nil && !s.gate.AllowsSymmetricRTPUpdate() {
		return
	}
	s.remoteAddr = addr
}

func randomUint32() uint32 {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return binary.BigEndian.Uint32(buf)
}

