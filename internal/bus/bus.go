// Package bus is the in-process publish/subscribe fabric between the
// mutation coordinator and live gateway connections. Topics are scoped
// (global, room, thread, user); delivery is at-most-once, best-effort,
// FIFO per topic per subscription. A slow subscription is closed rather
// than allowed to backpressure publishers.
package bus

import (
	"encoding/json"
	"sync"
)

// TopicKind scopes a topic name.
type TopicKind string

const (
	TopicGlobal TopicKind = "global"
	TopicRoom   TopicKind = "room"
	TopicThread TopicKind = "thread"
	TopicUser   TopicKind = "user"
)

// Topic is a named channel events are published on. The zero ID is only
// valid for the global kind.
type Topic struct {
	Kind TopicKind
	ID   string
}

func Global() Topic          { return Topic{Kind: TopicGlobal} }
func Room(id string) Topic   { return Topic{Kind: TopicRoom, ID: id} }
func Thread(id string) Topic { return Topic{Kind: TopicThread, ID: id} }
func User(id string) Topic   { return Topic{Kind: TopicUser, ID: id} }

// Event is one authoritative state change. Op is "upsert" or "delete";
// Kind names the entity (room, thread, message, user, member, session).
type Event struct {
	Op   string `json:"-"`
	Kind string `json:"-"`
	Data any    `json:"data"`
}

// Type is the wire frame type, e.g. "upsert.message".
func (e Event) Type() string {
	return e.Op + "." + e.Kind
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Marshal renders the event as a gateway frame.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(frame{Type: e.Type(), Data: e.Data})
}

// subscriptionBuffer bounds per-subscription queueing; overflow drops the
// subscription (the gateway closes the socket and the client refetches).
const subscriptionBuffer = 64

// Subscription is one consumer's handle. Events arrive on C in publish
// order per topic; a closed C means the subscription was dropped or
// explicitly closed.
type Subscription struct {
	bus    *Bus
	ch     chan Event
	mu     sync.Mutex
	topics map[Topic]struct{}
	closed bool
}

// C is the delivery channel. It is closed exactly once.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Topics returns a snapshot of the current topic set.
func (s *Subscription) Topics() []Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// SetTopics replaces the subscription's topic set.
func (s *Subscription) SetTopics(topics []Topic) {
	s.bus.retopic(s, topics)
}

// Close deregisters from every topic and closes the delivery channel.
// It is idempotent and safe to race with an in-flight publish.
func (s *Subscription) Close() {
	s.bus.drop(s, true)
}

// Bus fans events out to subscriptions. The topic map is the only
// structure mutated concurrently; the lock is never held across a
// subscriber send beyond a non-blocking channel write.
type Bus struct {
	mu     sync.RWMutex
	topics map[Topic]map[*Subscription]struct{}
}

func New() *Bus {
	return &Bus{topics: make(map[Topic]map[*Subscription]struct{})}
}

// Subscribe registers a new subscription for the given topics.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	sub := &Subscription{
		bus:    b,
		ch:     make(chan Event, subscriptionBuffer),
		topics: make(map[Topic]struct{}, len(topics)),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		sub.topics[t] = struct{}{}
		b.attach(sub, t)
	}
	return sub
}

// Publish delivers the event to every live subscription of the topic.
// Publishing to a topic with zero subscribers is a no-op. A subscription
// whose buffer is full is dropped instead of blocking the publisher.
func (b *Bus) Publish(topic Topic, ev Event) {
	b.mu.RLock()
	subs := b.topics[topic]
	var slow []*Subscription
	for sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.drop(sub, true)
	}
}

// PublishAll publishes the event on every listed topic.
func (b *Bus) PublishAll(topics []Topic, ev Event) {
	for _, t := range topics {
		b.Publish(t, ev)
	}
}

// SubscriberCount reports the number of live subscriptions on a topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// attach requires b.mu held.
func (b *Bus) attach(sub *Subscription, t Topic) {
	set := b.topics[t]
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.topics[t] = set
	}
	set[sub] = struct{}{}
}

// detach requires b.mu held.
func (b *Bus) detach(sub *Subscription, t Topic) {
	set := b.topics[t]
	if set == nil {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, t)
	}
}

func (b *Bus) retopic(sub *Subscription, topics []Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	for t := range sub.topics {
		b.detach(sub, t)
	}
	sub.topics = make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		sub.topics[t] = struct{}{}
		b.attach(sub, t)
	}
}

func (b *Bus) drop(sub *Subscription, closeCh bool) {
	b.mu.Lock()
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		b.mu.Unlock()
		return
	}
	sub.closed = true
	for t := range sub.topics {
		b.detach(sub, t)
	}
	sub.topics = nil
	sub.mu.Unlock()
	b.mu.Unlock()

	if closeCh {
		close(sub.ch)
	}
}
