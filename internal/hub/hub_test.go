package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lughabridge/lughabridge/internal/room"
)

type dispatchCall struct {
	kind     string
	roomCode string
	payload  string
	language string
}

type fakeDispatcher struct {
	mu     sync.Mutex
	accept bool
	calls  []dispatchCall
}

func (d *fakeDispatcher) ProcessVoiceMessage(roomCode, messageID, audioData, language string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{kind: "voice", roomCode: roomCode, payload: audioData, language: language})
	return d.accept
}

func (d *fakeDispatcher) ProcessTextMessage(roomCode, messageID, text, language string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{kind: "text", roomCode: roomCode, payload: text, language: language})
	return d.accept
}

func (d *fakeDispatcher) snapshot() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dispatchCall, len(d.calls))
	copy(out, d.calls)
	return out
}

type hubEnv struct {
	store      *room.Store
	hub        *Hub
	dispatcher *fakeDispatcher
	server     *httptest.Server
}

func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()

	m := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zap.NewNop().Sugar()
	store := room.NewStore(rdb, time.Hour, 6, 100, logger)

	h := New(store, logger)
	d := &fakeDispatcher{accept: true}
	h.SetDispatcher(d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/ws/room/")
		h.ServeWS(w, r, code)
	}))
	t.Cleanup(srv.Close)

	return &hubEnv{store: store, hub: h, dispatcher: d, server: srv}
}

func (e *hubEnv) dial(t *testing.T, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/room/" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ev))
}

func TestSendAfterShutdownIsDropped(t *testing.T) {
	h := New(nil, zap.NewNop().Sugar())
	c := newClient(h, nil, "ABC123")

	c.shutdown()
	c.sendEvent(pongEvent{Type: "pong"})
	c.shutdown()

	_, open := <-c.send
	require.False(t, open)
}

func TestConcurrentShutdownAndSend(t *testing.T) {
	h := New(nil, zap.NewNop().Sugar())
	c := newClient(h, nil, "ABC123")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.sendEvent(pongEvent{Type: "pong"})
		}
	}()
	go func() {
		defer wg.Done()
		c.shutdown()
	}()
	wg.Wait()
}

func TestUnknownRoomRefusedWithPolicyClose(t *testing.T) {
	env := newHubEnv(t)

	conn := env.dial(t, "ZZZZZZ")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, CloseRoomNotFound, closeErr.Code)

	rm, err := env.store.Get(context.Background(), "ZZZZZZ")
	require.ErrorIs(t, err, room.ErrNotFound)
	require.Nil(t, rm)
}

func TestConnectDeliversWelcomeAndHistory(t *testing.T) {
	env := newHubEnv(t)
	ctx := context.Background()

	code, err := env.store.Create(ctx, "swahili", "english")
	require.NoError(t, err)
	_, err = env.store.AddMessage(ctx, code, room.Message{ID: "m1", OriginalText: "Habari"})
	require.NoError(t, err)

	conn := env.dial(t, code)

	welcome := readEvent(t, conn)
	require.Equal(t, "connection_established", welcome["type"])
	require.Equal(t, code, welcome["room_code"])

	history := readEvent(t, conn)
	require.Equal(t, "message_history", history["type"])
	msgs, ok := history["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)

	require.Eventually(t, func() bool {
		rm, err := env.store.Get(ctx, code)
		return err == nil && rm.Participants == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestJoinAnnouncedToExistingParticipants(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	a := env.dial(t, code)
	readEvent(t, a) // connection_established
	readEvent(t, a) // message_history

	b := env.dial(t, code)
	readEvent(t, b)
	readEvent(t, b)

	joined := readEvent(t, a)
	require.Equal(t, "participant_joined", joined["type"])
	require.InDelta(t, 2, joined["participant_count"], 0.1)
}

func TestTypingRelayedToOthersOnly(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	a := env.dial(t, code)
	readEvent(t, a)
	readEvent(t, a)
	b := env.dial(t, code)
	readEvent(t, b)
	readEvent(t, b)
	readEvent(t, a) // participant_joined for b

	sendEvent(t, a, map[string]any{"type": "typing", "is_typing": true})

	typing := readEvent(t, b)
	require.Equal(t, "typing", typing["type"])
	require.Equal(t, true, typing["is_typing"])
}

func TestTextMessageDispatchedToPipeline(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	conn := env.dial(t, code)
	readEvent(t, conn)
	readEvent(t, conn)

	sendEvent(t, conn, map[string]any{
		"type":     "text_message",
		"text":     "Habari yako?",
		"language": "swahili",
	})

	require.Eventually(t, func() bool {
		return len(env.dispatcher.snapshot()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	call := env.dispatcher.snapshot()[0]
	require.Equal(t, "text", call.kind)
	require.Equal(t, code, call.roomCode)
	require.Equal(t, "Habari yako?", call.payload)
	require.Equal(t, "swahili", call.language)
}

func TestVoiceMessageRequiresAudio(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	conn := env.dial(t, code)
	readEvent(t, conn)
	readEvent(t, conn)

	sendEvent(t, conn, map[string]any{"type": "voice_message", "language": "swahili"})

	errEv := readEvent(t, conn)
	require.Equal(t, "error", errEv["type"])
	require.Empty(t, env.dispatcher.snapshot())
}

func TestBusyDispatcherReportsError(t *testing.T) {
	env := newHubEnv(t)
	env.dispatcher.accept = false

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	conn := env.dial(t, code)
	readEvent(t, conn)
	readEvent(t, conn)

	sendEvent(t, conn, map[string]any{
		"type":     "text_message",
		"text":     "hi",
		"language": "swahili",
	})

	errEv := readEvent(t, conn)
	require.Equal(t, "error", errEv["type"])
	require.Equal(t, "server busy, try again", errEv["message"])
}

func TestPingPong(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	conn := env.dial(t, code)
	readEvent(t, conn)
	readEvent(t, conn)

	sendEvent(t, conn, map[string]any{"type": "ping"})
	pong := readEvent(t, conn)
	require.Equal(t, "pong", pong["type"])
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	env := newHubEnv(t)
	ctx := context.Background()

	code, err := env.store.Create(ctx, "swahili", "english")
	require.NoError(t, err)

	conn := env.dial(t, code)
	readEvent(t, conn)
	readEvent(t, conn)
	require.Eventually(t, func() bool {
		rm, err := env.store.Get(ctx, code)
		return err == nil && rm.Participants == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		exists, err := env.store.Exists(ctx, code)
		return err == nil && !exists
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDisconnectAnnouncedToRemaining(t *testing.T) {
	env := newHubEnv(t)

	code, err := env.store.Create(context.Background(), "swahili", "english")
	require.NoError(t, err)

	a := env.dial(t, code)
	readEvent(t, a)
	readEvent(t, a)
	b := env.dial(t, code)
	readEvent(t, b)
	readEvent(t, b)
	readEvent(t, a) // participant_joined for b

	require.NoError(t, b.Close())

	left := readEvent(t, a)
	require.Equal(t, "participant_left", left["type"])
	require.InDelta(t, 1, left["participant_count"], 0.1)
}
