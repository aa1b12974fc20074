package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/store"
)

type fakeResolver struct {
	tokens map[string]store.User
}

func (f *fakeResolver) UserFromToken(ctx context.Context, token string) (store.User, error) {
	if u, ok := f.tokens[token]; ok {
		return u, nil
	}
	return store.User{}, errors.New("invalid token")
}

type fakeTopics struct {
	rooms   map[string][]string // userID -> roomIDs
	threads map[string][]string // roomID -> threadIDs
}

func (f *fakeTopics) ListUserRoomIDs(ctx context.Context, userID string) ([]string, error) {
	return f.rooms[userID], nil
}

func (f *fakeTopics) ListRoomThreadIDs(ctx context.Context, roomID string) ([]string, error) {
	return f.threads[roomID], nil
}

type testFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialTestGateway(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) testFrame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var f testFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return f
}

// readNonPing skips heartbeat frames.
func readNonPing(t *testing.T, ws *websocket.Conn) testFrame {
	t.Helper()
	for {
		f := readFrame(t, ws)
		if f.Type != "ping" {
			return f
		}
	}
}

func sendHello(t *testing.T, ws *websocket.Conn, token string) {
	t.Helper()
	frame := map[string]any{"type": "hello", "data": map[string]string{"token": token}}
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("write hello: %v", err)
	}
}

func newTestGateway(b *bus.Bus) *Gateway {
	resolver := &fakeResolver{tokens: map[string]store.User{
		"good-token": {ID: "user-1", DisplayName: "Alice"},
	}}
	topics := &fakeTopics{
		rooms:   map[string][]string{"user-1": {"room-1"}},
		threads: map[string][]string{"room-1": {"thread-1"}},
	}
	return New(resolver, topics, b, time.Minute, time.Minute)
}

func TestHelloReady(t *testing.T) {
	g := newTestGateway(bus.New())
	ws := dialTestGateway(t, g)

	sendHello(t, ws, "good-token")

	f := readNonPing(t, ws)
	if f.Type != "ready" {
		t.Fatalf("expected ready, got %s", f.Type)
	}
	var user store.User
	if err := json.Unmarshal(f.Data, &user); err != nil {
		t.Fatalf("unmarshal ready data: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("expected user-1, got %s", user.ID)
	}
}

func TestBadHelloKeepsConnectionOpen(t *testing.T) {
	g := newTestGateway(bus.New())
	ws := dialTestGateway(t, g)

	sendHello(t, ws, "wrong-token")
	f := readNonPing(t, ws)
	if f.Type != "error" {
		t.Fatalf("expected error, got %s", f.Type)
	}

	// The connection stays open and a later valid hello works.
	sendHello(t, ws, "good-token")
	f = readNonPing(t, ws)
	if f.Type != "ready" {
		t.Fatalf("expected ready after retry, got %s", f.Type)
	}
}

func TestDoubleHello(t *testing.T) {
	b := bus.New()
	g := newTestGateway(b)
	ws := dialTestGateway(t, g)

	sendHello(t, ws, "good-token")
	if f := readNonPing(t, ws); f.Type != "ready" {
		t.Fatalf("expected ready, got %s", f.Type)
	}

	// A second hello is rejected without changing state.
	sendHello(t, ws, "good-token")
	if f := readNonPing(t, ws); f.Type != "error" {
		t.Fatalf("expected error, got %s", f.Type)
	}

	// Events still flow afterwards.
	b.Publish(bus.Room("room-1"), bus.Event{Op: "upsert", Kind: "room", Data: store.Room{ID: "room-1"}})
	if f := readNonPing(t, ws); f.Type != "upsert.room" {
		t.Fatalf("expected upsert.room, got %s", f.Type)
	}
}

func TestEventDelivery(t *testing.T) {
	b := bus.New()
	g := newTestGateway(b)
	ws := dialTestGateway(t, g)

	sendHello(t, ws, "good-token")
	if f := readNonPing(t, ws); f.Type != "ready" {
		t.Fatalf("expected ready, got %s", f.Type)
	}

	b.Publish(bus.Thread("thread-1"), bus.Event{
		Op: "upsert", Kind: "message",
		Data: store.Message{ID: "m-1", ThreadID: "thread-1", Content: "hi"},
	})

	f := readNonPing(t, ws)
	if f.Type != "upsert.message" {
		t.Fatalf("expected upsert.message, got %s", f.Type)
	}
	var msg store.Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.ID != "m-1" {
		t.Errorf("expected m-1, got %s", msg.ID)
	}
}

func TestUnauthenticatedReceivesNoEvents(t *testing.T) {
	b := bus.New()
	g := newTestGateway(b)
	ws := dialTestGateway(t, g)

	b.Publish(bus.Room("room-1"), bus.Event{Op: "upsert", Kind: "room", Data: store.Room{ID: "room-1"}})

	_ = ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := ws.ReadMessage(); err == nil {
		t.Fatalf("expected no frame before hello, got %s", data)
	}
}

func TestHeartbeatPing(t *testing.T) {
	resolver := &fakeResolver{tokens: map[string]store.User{}}
	topics := &fakeTopics{}
	g := New(resolver, topics, bus.New(), 50*time.Millisecond, time.Minute)
	ws := dialTestGateway(t, g)

	f := readFrame(t, ws)
	if f.Type != "ping" {
		t.Fatalf("expected ping, got %s", f.Type)
	}
}

func TestLivenessTimeout(t *testing.T) {
	resolver := &fakeResolver{tokens: map[string]store.User{}}
	topics := &fakeTopics{}
	g := New(resolver, topics, bus.New(), time.Minute, 100*time.Millisecond)
	ws := dialTestGateway(t, g)

	// Send nothing; the server reaps the connection after the liveness
	// window and the read eventually fails.
	deadline := time.Now().Add(2 * time.Second)
	_ = ws.SetReadDeadline(deadline)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("connection was not closed after liveness timeout")
		}
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	g := newTestGateway(bus.New())
	ws := dialTestGateway(t, g)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Connection keeps working.
	sendHello(t, ws, "good-token")
	if f := readNonPing(t, ws); f.Type != "ready" {
		t.Fatalf("expected ready, got %s", f.Type)
	}
}
