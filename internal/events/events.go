// Package events distributes engine events to in-process subscribers.
// The WebSocket and SSE transports fan these out to clients; system hooks
// publish effects payloads (sounds etc.) through the same channel.
package events

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Event types
const (
	HookQueued    = "hook.queued"
	HookStarted   = "hook.started"
	HookCompleted = "hook.completed"
	HookFailed    = "hook.failed"
	HookCancelled = "hook.cancelled"
	HookSkipped   = "hook.skipped"
	TaskStatus    = "task.status"
)

// Event is one engine notification.
type Event struct {
	Type        string                 `json:"type"`
	TaskID      int64                  `json:"task_id,omitempty"`
	BoardID     int64                  `json:"board_id,omitempty"`
	ColumnID    int64                  `json:"column_id,omitempty"`
	ExecutionID int64                  `json:"execution_id,omitempty"`
	BindingID   string                 `json:"binding_id,omitempty"`
	HookID      string                 `json:"hook_id,omitempty"`
	HookName    string                 `json:"hook_name,omitempty"`
	Status      string                 `json:"status,omitempty"` // execution or task status
	Detail      string                 `json:"detail,omitempty"` // failure detail, skip reason, agent question
	Effects     map[string]interface{} `json:"effects,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	closed      bool
	logger      *log.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int64]chan Event),
		logger:      log.NewWithOptions(os.Stderr, log.Options{Prefix: "events"}),
	}
}

// Subscribe registers a subscriber and returns its ID and channel. The
// buffer absorbs bursts; events beyond it are dropped for that subscriber.
func (b *Bus) Subscribe(buffer int) (int64, <-chan Event) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Debug("Dropping event for slow subscriber", "subscriber", id, "type", e.Type)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
