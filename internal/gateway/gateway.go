// Package gateway serves the websocket sync endpoint. A connection
// starts unauthenticated, authenticates with a hello frame carrying a
// bearer token, and from then on receives every bus event for the
// topics its user can see. Heartbeat pings and a liveness deadline
// reap dead peers.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/store"
	"lamprey/api/internal/telemetry"
)

// SessionResolver authenticates a bearer token into a user.
type SessionResolver interface {
	UserFromToken(ctx context.Context, token string) (store.User, error)
}

// TopicSource derives the rooms and threads a user can see.
type TopicSource interface {
	ListUserRoomIDs(ctx context.Context, userID string) ([]string, error)
	ListRoomThreadIDs(ctx context.Context, roomID string) ([]string, error)
}

// Gateway upgrades websocket connections and bridges them to the bus.
type Gateway struct {
	resolver  SessionResolver
	topics    TopicSource
	bus       *bus.Bus
	heartbeat time.Duration
	liveness  time.Duration
}

func New(resolver SessionResolver, topics TopicSource, b *bus.Bus, heartbeat, liveness time.Duration) *Gateway {
	return &Gateway{
		resolver:  resolver,
		topics:    topics,
		bus:       b,
		heartbeat: heartbeat,
		liveness:  liveness,
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// ServeWS upgrades the connection and runs it until the peer goes away.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: upgrade error: %v", err)
		return
	}

	c := &conn{
		g:    g,
		ws:   ws,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	telemetry.ConnOpened()

	go c.writePump()
	c.readPump(r.Context())
}

// clientFrame is what peers send: hello carries the token, pong answers
// a ping.
type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type helloData struct {
	Token string `json:"token"`
}

type serverFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// conn is one websocket connection. writePump is the only goroutine
// writing to the socket; everything else enqueues on send.
type conn struct {
	g    *Gateway
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	user   store.User
	authed bool
	sub    *bus.Subscription

	closeOnce sync.Once
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.sub != nil {
			c.sub.Close()
		}
		c.mu.Unlock()
		_ = c.ws.Close()
		telemetry.ConnClosed()
	})
}

// enqueue hands a frame to the write pump without ever blocking past
// connection teardown.
func (c *conn) enqueue(b []byte) {
	select {
	case c.send <- b:
	case <-c.done:
	}
}

func (c *conn) sendFrame(f serverFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		log.Printf("gateway: marshal frame: %v", err)
		return
	}
	c.enqueue(b)
}

func (c *conn) sendError(code, message string) {
	c.sendFrame(serverFrame{Type: "error", Data: errorData{Code: code, Message: message}})
}

func (c *conn) readPump(ctx context.Context) {
	defer c.close()
	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.g.liveness))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		// Any frame from the peer proves liveness.
		_ = c.ws.SetReadDeadline(time.Now().Add(c.g.liveness))

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			// Ignore malformed input; keep the connection alive.
			continue
		}

		switch f.Type {
		case "hello":
			c.handleHello(ctx, f.Data)
		case "pong":
			// Deadline already reset above.
		default:
			// Ignore other incoming frame types.
		}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.g.heartbeat)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	ping, _ := json.Marshal(serverFrame{Type: "ping"})
	for {
		select {
		case b := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleHello authenticates the connection. A failed hello leaves the
// connection open and unauthenticated; a second hello on an
// authenticated connection is an error frame with no state change.
func (c *conn) handleHello(ctx context.Context, raw json.RawMessage) {
	c.mu.Lock()
	alreadyAuthed := c.authed
	c.mu.Unlock()
	if alreadyAuthed {
		c.sendError("already_authenticated", "connection is already authenticated")
		return
	}

	var hello helloData
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Token == "" {
		c.sendError("bad_hello", "hello requires a token")
		return
	}

	user, err := c.g.resolver.UserFromToken(ctx, hello.Token)
	if err != nil {
		c.sendError("invalid_token", "token is invalid or expired")
		return
	}

	topics, err := c.g.deriveTopics(ctx, user.ID)
	if err != nil {
		log.Printf("gateway: derive topics for %s: %v", user.ID, err)
		c.sendError("internal", "could not derive subscriptions")
		return
	}

	sub := c.g.bus.Subscribe(topics...)

	c.mu.Lock()
	c.user = user
	c.authed = true
	c.sub = sub
	c.mu.Unlock()

	go c.eventPump(ctx, sub)
	c.sendFrame(serverFrame{Type: "ready", Data: user})
}

// eventPump forwards bus events to the peer and re-derives the topic
// set when the user's own membership changes. A closed subscription
// means the bus dropped us as a slow consumer; the peer reconnects and
// refetches.
func (c *conn) eventPump(ctx context.Context, sub *bus.Subscription) {
	defer c.close()
	for ev := range sub.C() {
		b, err := ev.Marshal()
		if err != nil {
			log.Printf("gateway: marshal event: %v", err)
			continue
		}
		c.enqueue(b)

		if ev.Kind == "member" {
			if m, ok := ev.Data.(store.Member); ok && m.UserID == c.userID() {
				c.resubscribe(ctx, sub)
			}
		}
	}
}

func (c *conn) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user.ID
}

func (c *conn) resubscribe(ctx context.Context, sub *bus.Subscription) {
	topics, err := c.g.deriveTopics(ctx, c.userID())
	if err != nil {
		log.Printf("gateway: rederive topics: %v", err)
		return
	}
	sub.SetTopics(topics)
}

// deriveTopics is the visibility rule: global, the user's own topic,
// every joined room, and every thread in those rooms.
func (g *Gateway) deriveTopics(ctx context.Context, userID string) ([]bus.Topic, error) {
	topics := []bus.Topic{bus.Global(), bus.User(userID)}

	roomIDs, err := g.topics.ListUserRoomIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, roomID := range roomIDs {
		topics = append(topics, bus.Room(roomID))
		threadIDs, err := g.topics.ListRoomThreadIDs(ctx, roomID)
		if err != nil {
			return nil, err
		}
		for _, threadID := range threadIDs {
			topics = append(topics, bus.Thread(threadID))
		}
	}
	return topics, nil
}
