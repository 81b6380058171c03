package orchestrator

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ShayCichocki/chunkd/pkg/models"
)

// EventType identifies a work unit status transition.
type EventType string

const (
	// EventInjected indicates a new unit entered the system as READY.
	EventInjected EventType = "unit_injected"
	// EventDispatched indicates a READY unit transitioned to RUNNING.
	EventDispatched EventType = "unit_dispatched"
	// EventReady indicates a unit returned to READY.
	EventReady EventType = "unit_ready"
	// EventBlocked indicates a unit was serialized behind a peer.
	EventBlocked EventType = "unit_blocked"
	// EventNeedsAttention indicates a unit is waiting on the operator.
	EventNeedsAttention EventType = "unit_needs_attention"
	// EventDone indicates a unit merged to base.
	EventDone EventType = "unit_done"
)

// Event is a single status transition broadcast to subscribers. Exactly one
// event is published per transition.
type Event struct {
	// ID is a ulid, monotonic within the emitting process.
	ID string `json:"id"`
	// Type is the transition kind.
	Type EventType `json:"type"`
	// Chunk is the unit that transitioned.
	Chunk string `json:"chunk"`
	// Phase is the unit's phase after the transition.
	Phase models.Phase `json:"phase"`
	// Status is the unit's status after the transition.
	Status models.Status `json:"status"`
	// Peer is the other chunk for conflict-driven transitions.
	Peer string `json:"peer,omitempty"`
	// Message carries the attention reason or rationale, when relevant.
	Message string `json:"message,omitempty"`
	// Timestamp is when the transition was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than stall the dispatch loop.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns its id and receive channel.
func (b *Bus) Subscribe(bufSize int) (string, <-chan Event) {
	id := ulid.Make().String()
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// buffer full, drop for this subscriber
		}
	}
}
