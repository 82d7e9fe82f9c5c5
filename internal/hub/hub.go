package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/room"
)

// CloseRoomNotFound is sent when a client connects with an unknown room
// code. Distinct from the standard close codes so clients can tell "room
// expired" from transport trouble.
const CloseRoomNotFound = 4004

// Dispatcher accepts message work handed off the connection path. Both
// methods must return quickly; false means the work could not be queued.
type Dispatcher interface {
	ProcessVoiceMessage(roomCode, messageID, audioData, language string) bool
	ProcessTextMessage(roomCode, messageID, text, language string) bool
}

type broadcastReq struct {
	code    string
	payload []byte
	exclude *Client
}

// Hub owns the per-room connection registry. All membership mutation and
// fan-out happens on the single Run loop, which gives per-room delivery
// ordering for free and keeps the registry free of locks.
type Hub struct {
	store      *room.Store
	logger     *zap.SugaredLogger
	dispatcher Dispatcher

	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcastReq
	closed     chan struct{}

	rooms map[string]map[*Client]bool
}

func New(store *room.Store, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		store:      store,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcasts: make(chan broadcastReq, 256),
		closed:     make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// SetDispatcher wires the pipeline in after construction; the hub and the
// orchestrator reference each other, so one side attaches late.
func (h *Hub) SetDispatcher(d Dispatcher) { h.dispatcher = d }

// Run serves the registry until ctx is cancelled, then closes every
// connection. Channel sends from other goroutines select against closed
// so nothing blocks once the loop has exited.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.closed)
	for {
		select {
		case <-ctx.Done():
			for _, group := range h.rooms {
				for c := range group {
					c.shutdown()
				}
			}
			return

		case c := <-h.register:
			group, ok := h.rooms[c.roomCode]
			if !ok {
				group = make(map[*Client]bool)
				h.rooms[c.roomCode] = group
			}
			group[c] = true

		case c := <-h.unregister:
			if group, ok := h.rooms[c.roomCode]; ok {
				if group[c] {
					delete(group, c)
					c.shutdown()
				}
				if len(group) == 0 {
					delete(h.rooms, c.roomCode)
				}
			}

		case req := <-h.broadcasts:
			for c := range h.rooms[req.code] {
				if c == req.exclude {
					continue
				}
				// Best effort: a client that cannot keep up is dropped
				// rather than stalling the room.
				if !c.enqueue(req.payload) {
					h.logger.Warnw("client send buffer full, dropping connection", "room", req.code)
					delete(h.rooms[req.code], c)
					c.shutdown()
				}
			}
		}
	}
}

// Broadcast delivers event to every connection in the room's group.
// Best-effort: it never blocks the caller and never returns an error.
func (h *Hub) Broadcast(code string, event any) {
	h.broadcastExcept(code, event, nil)
}

func (h *Hub) broadcastExcept(code string, event any, exclude *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorw("broadcast marshal failed", "room", code, "error", err)
		return
	}
	select {
	case h.broadcasts <- broadcastReq{code: code, payload: payload, exclude: exclude}:
	case <-h.closed:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and walks the connection through
// Connecting -> Joined. An unknown room code closes the socket with
// CloseRoomNotFound before the connection ever joins a group.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, code string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "room", code, "error", err)
		return
	}

	ctx := r.Context()
	exists, err := h.store.Exists(ctx, code)
	if err != nil {
		h.logger.Errorw("room lookup failed", "room", code, "error", err)
		h.refuse(conn, websocket.CloseInternalServerErr, "room lookup failed")
		return
	}
	if !exists {
		h.logger.Warnw("connection rejected, room not found", "room", code)
		h.refuse(conn, CloseRoomNotFound, "room not found")
		return
	}

	c := newClient(h, conn, code)
	select {
	case h.register <- c:
	case <-h.closed:
		h.refuse(conn, websocket.CloseGoingAway, "shutting down")
		return
	}
	go c.writePump()

	rm, err := h.store.Join(context.Background(), code)
	if err != nil {
		h.deregister(c)
		h.refuse(conn, CloseRoomNotFound, "room not found")
		return
	}

	c.sendEvent(connectionEstablishedEvent{
		Type:             "connection_established",
		RoomCode:         code,
		SourceLang:       rm.SourceLang,
		TargetLang:       rm.TargetLang,
		ParticipantCount: rm.Participants,
	})

	history, err := h.store.Messages(context.Background(), code, 0)
	if err != nil {
		h.logger.Errorw("history load failed", "room", code, "error", err)
		history = []room.Message{}
	}
	c.sendEvent(messageHistoryEvent{Type: "message_history", Messages: history})

	h.broadcastExcept(code, participantEvent{Type: "participant_joined", ParticipantCount: rm.Participants}, c)

	h.logger.Infow("websocket joined", "room", code, "participants", rm.Participants)
	go c.readPump()
}

func (h *Hub) refuse(conn *websocket.Conn, closeCode int, reason string) {
	msg := websocket.FormatCloseMessage(closeCode, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

func (h *Hub) deregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.closed:
	}
}

// handleDisconnect runs once per joined client, on its read loop exit.
func (h *Hub) handleDisconnect(c *Client) {
	h.deregister(c)

	rm, deleted, err := h.store.Leave(context.Background(), c.roomCode)
	if err != nil {
		h.logger.Warnw("leave failed", "room", c.roomCode, "error", err)
		return
	}
	if !deleted {
		h.Broadcast(c.roomCode, participantEvent{Type: "participant_left", ParticipantCount: rm.Participants})
	}
	h.logger.Infow("websocket left", "room", c.roomCode, "deleted", deleted)
}
