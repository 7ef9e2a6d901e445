package connect

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Close codes used by the registry and gateway.
const (
	statusReplaced  = int(websocket.StatusPolicyViolation)
	statusGoingAway = int(websocket.StatusGoingAway)
)

const sendTimeout = 5 * time.Second

// Envelope is the wire shape for everything pushed down a channel.
type Envelope struct {
	Type        string `json:"type"`
	MessageID   string `json:"messageId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	CharacterID string `json:"characterId,omitempty"`
	Content     string `json:"content,omitempty"`
}

const (
	// EnvelopeMessage is a reply within the user's own turn.
	EnvelopeMessage = "message"
	// EnvelopeProactive is a character-initiated message.
	EnvelopeProactive = "proactive_message"
)

// wsChannel adapts a websocket connection to the registry's Channel.
type wsChannel struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) Send(payload []byte) error {
	if c.closed.Load() {
		return errors.New("channel closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsChannel) Ready() bool {
	return !c.closed.Load()
}

// Close is idempotent: replace and disconnect teardown can both reach it.
func (c *wsChannel) Close(code int, reason string) {
	if c.closed.Swap(true) {
		return
	}
	_ = c.conn.Close(websocket.StatusCode(code), reason)
}
