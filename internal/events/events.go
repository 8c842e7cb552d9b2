// Package events implements the typed event bus of spec §4.9. Per the
// DESIGN NOTES (§9) "event emitter mutating payloads" is replaced here by
// an explicit immutable Envelope{Payload, Context} — handlers never mutate
// what they receive.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Topic names the event channels of spec §4.9 / §6.5.
type Topic string

const (
	TopicMemoryAdded   Topic = "memory_added"
	TopicMemoryUpdated Topic = "memory_updated"
	TopicMemoryDeleted Topic = "memory_deleted"
	TopicMemoryQueried Topic = "memory_queried"

	TopicIDESuggestion    Topic = "ide_suggestion"
	TopicIDESessionUpdate Topic = "ide_session_update"

	TopicFactCreated Topic = "temporal:fact:created"
	TopicFactUpdated Topic = "temporal:fact:updated"
	TopicFactDeleted Topic = "temporal:fact:deleted"

	TopicEdgeCreated Topic = "temporal:edge:created"
	TopicEdgeUpdated Topic = "temporal:edge:updated"
	TopicEdgeDeleted Topic = "temporal:edge:deleted"
)

// Context carries request-scoped metadata alongside a payload instead of
// mutating the payload in place to inject request ids.
type Context struct {
	RequestID string
	UserID    *string
}

// Envelope is the immutable unit dispatched to handlers.
type Envelope struct {
	Topic   Topic
	Payload any
	Context Context
}

// Handler processes one envelope. A Handler must not retain or mutate the
// envelope's Payload.
type Handler func(Envelope)

// Bus is a single-threaded, cooperative-dispatch event bus: handlers for a
// topic run synchronously, in registration order, on the emitting
// goroutine. A per-process listener cap prevents registration leaks.
type Bus struct {
	mu       sync.Mutex
	handlers map[Topic][]Handler
	maxListeners int
	log      zerolog.Logger
}

func New(maxListeners int, log zerolog.Logger) *Bus {
	if maxListeners <= 0 {
		maxListeners = 100
	}
	return &Bus{
		handlers:     make(map[Topic][]Handler),
		maxListeners: maxListeners,
		log:          log,
	}
}

// On registers a handler for topic. Returns false (and does not register)
// if the per-topic listener cap would be exceeded.
func (b *Bus) On(topic Topic, h Handler) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handlers[topic]) >= b.maxListeners {
		b.log.Warn().Str("topic", string(topic)).Int("max", b.maxListeners).Msg("event listener cap reached; handler not registered")
		return false
	}
	b.handlers[topic] = append(b.handlers[topic], h)
	return true
}

// Emit dispatches payload to every handler registered for topic, in
// registration order. A panic or error inside one handler is isolated
// (logged) and does not prevent subsequent handlers from running.
func (b *Bus) Emit(topic Topic, payload any, ctx Context) {
	b.mu.Lock()
	hs := make([]Handler, len(b.handlers[topic]))
	copy(hs, b.handlers[topic])
	b.mu.Unlock()

	env := Envelope{Topic: topic, Payload: payload, Context: ctx}
	for _, h := range hs {
		b.dispatchOne(h, env)
	}
}

func (b *Bus) dispatchOne(h Handler, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("topic", string(env.Topic)).Interface("panic", r).Msg("event handler panicked")
		}
	}()
	h(env)
}

// ListenerCount returns the number of handlers registered for topic, for
// diagnostics and tests.
func (b *Bus) ListenerCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}
