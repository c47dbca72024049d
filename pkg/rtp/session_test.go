package rtp

import (
	"context"
	"net"
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysAllow struct{}

func (alwaysAllow) AllowsSymmetricRTPUpdate() bool { return true }

type neverAllow struct{}

func (neverAllow) AllowsSymmetricRTPUpdate() bool { return false }

func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func TestSessionSendsPacedPacketsWithIncrementingHeaders(t *testing.T) {
	listenerPort := freePort(t)
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: listenerPort})
	require.NoError(t, err)
	defer listener.Close()

	sessionPort := freePort(t)
	s, err := NewSession(sessionPort, "127.0.0.1", listenerPort, CodecPCMU, alwaysAllow{}, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.SendAudio(make([]byte, SamplesPerPacket*2))

	buf := make([]byte, 1500)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))

	var firstSeq, secondSeq uint16
	var firstTS, secondTS uint32
	for i := 0; i < 2; i++ {
		n, _, err := listener.ReadFromUDP(buf)
		require.NoError(t, err)
		var pkt pionrtp.Packet
		require.NoError(t, pkt.Unmarshal(buf[:n]))
		assert.Equal(t, uint8(2), pkt.Version)
		assert.Len(t, pkt.Payload, SamplesPerPacket)
		if i == 0 {
			firstSeq, firstTS = pkt.SequenceNumber, pkt.Timestamp
		} else {
			secondSeq, secondTS = pkt.SequenceNumber, pkt.Timestamp
		}
	}
	assert.Equal(t, firstSeq+1, secondSeq)
	assert.Equal(t, firstTS+SamplesPerPacket, secondTS)
}

func TestSessionSurfacesInboundAudio(t *testing.T) {
	sessionPort := freePort(t)
	received := make(chan []byte, 1)
	s, err := NewSession(sessionPort, "127.0.0.1", freePort(t), CodecPCMU, alwaysAllow{}, func(payload []byte) {
		received <- payload
	})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	sender, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: sessionPort})
	require.NoError(t, err)
	defer sender.Close()

	pkt := &pionrtp.Packet{
		Header:  pionrtp.Header{Version: 2, PayloadType: 0, SequenceNumber: 1, Timestamp: 0, SSRC: 1},
		Payload: []byte{1, 2, 3, 4},
	}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = sender.Write(data)
	require.NoError(t, err)

	select {
	case payload := <-received:
		assert.Equal(t, []byte{1, 2, 3, 4}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound audio")
	}
}

func TestSessionIgnoresEndpointUpdateWhenGated(t *testing.T) {
	sessionPort := freePort(t)
	s, err := NewSession(sessionPort, "127.0.0.1", freePort(t), CodecPCMU, neverAllow{}, nil)
	require.NoError(t, err)
	defer s.Close()

	original := s.remoteAddr
	s.maybeUpdateRemote(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 9999})
	assert.Equal(t, original, s.remoteAddr)
}
