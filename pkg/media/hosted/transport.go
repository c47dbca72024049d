// Package hosted implements the alternative hosted media-stream WebSocket
// transport (§4.8, §6.2), a drop-in for the SIP/RTP path that frames
// bidirectional μ-law audio as JSON over a single WebSocket connection.
package hosted

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const startEventBufferSize = 500

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wireMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *wireStart    `json:"start,omitempty"`
	Media     *wireMedia    `json:"media,omitempty"`
}

type wireStart struct {
	StreamSID       string            `json:"streamSid"`
	CallSID         string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type wireMedia struct {
	Payload string `json:"payload"`
}

// Event is a decoded inbound message surfaced to the session owner.
type Event struct {
	Type      string // "start", "media", "stop"
	AgentID   string
	MediaUlaw []byte
}

// Connection wraps one hosted-transport WebSocket session. Media frames
// that arrive before the caller has loaded its agent configuration are
// buffered (bounded at startEventBufferSize) and replayed once Ready is
// called (§4.8).
type Connection struct {
	ws *websocket.Conn

	mu        sync.Mutex
	streamSID string
	ready     bool
	buffered  [][]byte

	OnMedia func(payload []byte)
	OnStart func(agentID, callSID string)
	OnStop  func()
}

// Accept upgrades an HTTP request to a hosted-transport WebSocket connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Connection{ws: ws}, nil
}

// Ready marks the session as having loaded its agent configuration,
// draining any media buffered since the start event in arrival order.
func (c *Connection) Ready() {
	c.mu.Lock()
	c.ready = true
	buffered := c.buffered
	c.buffered = nil
	onMedia := c.OnMedia
	c.mu.Unlock()

	if onMedia == nil {
		return
	}
	for _, payload := range buffered {
		onMedia(payload)
	}
}

// ReadLoop decodes inbound frames until the connection closes or errors.
func (c *Connection) ReadLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "start":
			if msg.Start == nil {
				continue
			}
			c.mu.Lock()
			c.streamSID = msg.Start.StreamSID
			c.mu.Unlock()
			agentID := ""
			if msg.Start.CustomParameters != nil {
				agentID = msg.Start.CustomParameters["agentId"]
			}
			if c.OnStart != nil {
				c.OnStart(agentID, msg.Start.CallSID)
			}
		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			c.handleMedia(payload)
		case "stop":
			if c.OnStop != nil {
				c.OnStop()
			}
			return
		}
	}
}

func (c *Connection) handleMedia(payload []byte) {
	c.mu.Lock()
	if !c.ready {
		if len(c.buffered) >= startEventBufferSize {
			c.buffered = c.buffered[1:]
		}
		c.buffered = append(c.buffered, payload)
		c.mu.Unlock()
		return
	}
	onMedia := c.OnMedia
	c.mu.Unlock()

	if onMedia != nil {
		onMedia(payload)
	}
}

// SendMedia writes an outbound μ-law audio frame (§6.2 Outbound JSON).
func (c *Connection) SendMedia(payload []byte) error {
	c.mu.Lock()
	streamSID := c.streamSID
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	msg := wireMessage{
		Event:     "media",
		StreamSID: streamSID,
		Media:     &wireMedia{Payload: base64.StdEncoding.EncodeToString(payload)},
	}
	if err := ws.WriteJSON(msg); err != nil {
		logrus.WithError(err).Warn("hosted transport: send media failed")
		return err
	}
	return nil
}

// Close closes the underlying WebSocket.
func (c *Connection) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}
