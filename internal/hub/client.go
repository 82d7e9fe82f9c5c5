package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Voice payloads arrive base64-encoded inline, so the limit is
	// generous compared to a text chat.
	maxMessageSize = 10 << 20

	sendBuffer = 64
)

// Client is one live websocket bound to one room.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomCode string

	// mu serializes enqueue against shutdown; the hub closes clients from
	// its own goroutine while the read pump may be replying to the peer.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn, roomCode string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		roomCode: roomCode,
		send:     make(chan []byte, sendBuffer),
	}
}

// shutdown closes the send channel exactly once; writePump then closes the
// underlying connection. Later enqueues become no-ops.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// enqueue queues a payload for the write pump. It reports false when the
// buffer is full or the client has been shut down; it never blocks.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendEvent queues an event for this connection only. Best effort: a full
// buffer or a closed client drops the event rather than blocking.
func (c *Client) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.hub.logger.Errorw("event marshal failed", "room", c.roomCode, "error", err)
		return
	}
	if !c.enqueue(payload) {
		c.hub.logger.Warnw("client not accepting events, dropping", "room", c.roomCode)
	}
}

func (c *Client) readPump() {
	defer c.hub.handleDisconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warnw("websocket read error", "room", c.roomCode, "error", err)
			}
			return
		}
		c.handleInbound(raw)
	}
}

// handleInbound processes one client event. Malformed payloads answer the
// sender with an error event and never reach the rest of the room.
func (c *Client) handleInbound(raw []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.sendEvent(errorEvent{Type: "error", Message: "invalid JSON format"})
		return
	}

	switch ev.Type {
	case eventVoiceMessage:
		if ev.AudioData == "" || ev.Language == "" {
			c.sendEvent(errorEvent{Type: "error", Message: "missing audio_data or language", MessageID: ev.MessageID})
			return
		}
		c.sendEvent(processingEvent{Type: "processing", MessageID: ev.MessageID, Status: "received"})
		if !c.hub.dispatcher.ProcessVoiceMessage(c.roomCode, ev.MessageID, ev.AudioData, ev.Language) {
			c.sendEvent(errorEvent{Type: "error", Message: "server busy, try again", MessageID: ev.MessageID})
		}

	case eventTextMessage:
		if ev.Text == "" || ev.Language == "" {
			c.sendEvent(errorEvent{Type: "error", Message: "missing text or language", MessageID: ev.MessageID})
			return
		}
		if !c.hub.dispatcher.ProcessTextMessage(c.roomCode, ev.MessageID, ev.Text, ev.Language) {
			c.sendEvent(errorEvent{Type: "error", Message: "server busy, try again", MessageID: ev.MessageID})
		}

	case eventTyping:
		c.hub.broadcastExcept(c.roomCode, typingEvent{Type: "typing", IsTyping: ev.IsTyping}, c)

	case eventPing:
		c.sendEvent(pongEvent{Type: "pong"})

	default:
		c.sendEvent(errorEvent{Type: "error", Message: "unknown message type: " + ev.Type})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
