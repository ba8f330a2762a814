// Package events carries session and store notifications to whatever UI
// layer observes this client.
//
// The sync engine publishes events (connection state changes, auth results,
// entity updates); observers subscribe through the Bus or connect to the
// WebSocket bridge in observer.go. Publishing never blocks the engine: a
// slow observer loses events rather than stalling the network worker.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind identifies the event payload.
type Kind string

const (
	// KindConnState reports a session state machine transition.
	KindConnState Kind = "conn_state"

	// KindLoginResult reports the outcome of a login attempt.
	KindLoginResult Kind = "login_result"

	// KindRegisterResult reports the outcome of a registration attempt.
	KindRegisterResult Kind = "register_result"

	// KindTableUpdate reports a created, changed, or confirmed table.
	KindTableUpdate Kind = "table_update"

	// KindTaskUpdate reports a created, changed, or confirmed task.
	KindTaskUpdate Kind = "task_update"

	// KindCommentAdded reports a new comment.
	KindCommentAdded Kind = "comment_added"

	// KindPermissionChanged reports a permission grant or revocation.
	KindPermissionChanged Kind = "permission_changed"

	// KindProtocolError reports a protocol violation that closed the
	// session.
	KindProtocolError Kind = "protocol_error"
)

// Event is one notification. Data is a JSON document specific to the kind.
type Event struct {
	Kind      Kind            `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ConnStateData describes a session transition.
type ConnStateData struct {
	State string `json:"state"`
}

// AuthResultData describes a login or register outcome.
type AuthResultData struct {
	Success bool  `json:"success"`
	UserID  int32 `json:"user_id,omitempty"`
}

// TableUpdateData describes a table event.
type TableUpdateData struct {
	LocalID  int32  `json:"local_id"`
	GlobalID int32  `json:"global_id,omitempty"`
	Action   string `json:"action"` // created, changed, confirmed
	Name     string `json:"name,omitempty"`
}

// TaskUpdateData describes a task event.
type TaskUpdateData struct {
	TableLocalID int32  `json:"table_local_id"`
	LocalID      int32  `json:"local_id"`
	GlobalID     int32  `json:"global_id,omitempty"`
	Action       string `json:"action"`
	Name         string `json:"name,omitempty"`
}

// CommentData describes a comment event.
type CommentData struct {
	TableLocalID int32  `json:"table_local_id"`
	TaskLocalID  int32  `json:"task_local_id"`
	UserID       int32  `json:"user_id"`
	Text         string `json:"text"`
}

// PermissionData describes a permission event.
type PermissionData struct {
	TableLocalID int32  `json:"table_local_id"`
	UserID       int32  `json:"user_id"`
	Permission   string `json:"permission"`
}

// ProtocolErrorData describes a protocol violation.
type ProtocolErrorData struct {
	Reason string `json:"reason"`
}

// New builds an event with the current time and a marshaled payload.
// Marshal errors cannot occur for the payload types above, so they are
// swallowed into an empty data field.
func New(kind Kind, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{Kind: kind, Timestamp: time.Now(), Data: data}
}

// Bus fans events out to subscribers.
//
// Subscriber channels are buffered; when a buffer is full the event is
// dropped for that subscriber only. The zero value is not usable, call
// NewBus.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new observer channel with the given buffer size.
func (b *Bus) Subscribe(buffer int) chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes an observer channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
