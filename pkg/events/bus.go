// Package events implements the in-process event bus that connects terminal
// sessions to their display surfaces and to the remote process event stream.
//
// Events are published synchronously on the caller's goroutine. Each
// subscription returns a *Registration whose Remove method is idempotent, so
// owners can keep a Registrations set and release it in one call on teardown.
package events

import (
	"sync"
)

// Topic identifies a class of events.
type Topic string

// Inbound topics, consumed by terminal sessions.
const (
	// TopicOutput carries remote process output (keyed by process handle).
	TopicOutput Topic = "output"
	// TopicProcessExit signals that the remote process exited (keyed by process handle).
	TopicProcessExit Topic = "process_exit"
	// TopicResize is a resize request from the display surface (keyed by session ID).
	TopicResize Topic = "resize"
	// TopicTitle is a title change reported by the display surface (keyed by session ID).
	TopicTitle Topic = "title"
	// TopicInput carries user keystrokes (keyed by session ID).
	TopicInput Topic = "input"
	// TopicSessionSerialization carries client-wide suspend/resume signals (broadcast).
	TopicSessionSerialization Topic = "session_serialization"
	// TopicSubprocs reports whether the remote shell has child processes (keyed by process handle).
	TopicSubprocs Topic = "subprocs"
)

// Outbound topics, published by terminal sessions (keyed by session ID).
const (
	TopicSessionStarted Topic = "session_started"
	TopicSessionStopped Topic = "session_stopped"
	TopicTitleChanged   Topic = "title_changed"
	// TopicResizeRequest asks the display surface to report its current size.
	TopicResizeRequest Topic = "resize_request"
)

// SerializationAction describes a client-wide session serialization step.
type SerializationAction int

const (
	SerializationSuspend SerializationAction = iota + 1
	SerializationResume
)

func (a SerializationAction) String() string {
	switch a {
	case SerializationSuspend:
		return "suspend"
	case SerializationResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Event is a single published event. Key scopes the event to a process handle
// or a session ID; an empty key is a broadcast.
type Event struct {
	Topic   Topic
	Key     string
	Payload any
}

// Payload types.
type (
	Output struct {
		Data string
	}
	ProcessExit struct {
		ExitCode int
	}
	Resize struct {
		Cols int
		Rows int
	}
	Title struct {
		Title string
	}
	Input struct {
		Data string
	}
	Serialization struct {
		Action SerializationAction
	}
	Subprocs struct {
		HasSubprocs bool
	}
	// SessionInfo accompanies outbound session events.
	SessionInfo struct {
		SessionID string
		Handle    string
		Caption   string
		Title     string
	}
)

// Handler receives events.
type Handler func(Event)

type subscriber struct {
	id      uint64
	key     string
	handler Handler
}

// Bus is a synchronous, topic-based publish/subscribe bus.
// It is safe for concurrent use from multiple goroutines.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscriber
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// Subscribe registers handler for topic. A non-empty key restricts delivery to
// events with the same key plus broadcasts.
func (b *Bus) Subscribe(topic Topic, key string, handler Handler) *Registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, key: key, handler: handler})

	return &Registration{bus: b, topic: topic, id: id}
}

// Publish delivers an event to every matching subscriber, in subscription
// order. Handlers run on the caller's goroutine over a snapshot of the
// subscriber list, so they may subscribe or unsubscribe re-entrantly.
func (b *Bus) Publish(topic Topic, key string, payload any) {
	b.mu.RLock()
	snapshot := make([]subscriber, len(b.subs[topic]))
	copy(snapshot, b.subs[topic])
	b.mu.RUnlock()

	ev := Event{Topic: topic, Key: key, Payload: payload}
	for _, s := range snapshot {
		if s.key != "" && key != "" && s.key != key {
			continue
		}
		if !b.active(topic, s.id) {
			continue
		}
		s.handler(ev)
	}
}

// Count returns the number of live subscriptions for topic.
func (b *Bus) Count(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// active reports whether a subscription is still registered. A handler
// removed by an earlier handler in the same Publish must not fire.
func (b *Bus) active(topic Topic, id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs[topic] {
		if s.id == id {
			return true
		}
	}
	return false
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}
