// internal/events/hub.go
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue depth.
const DefaultBuffer = 64

// Hub is the in-process fan-out. Subscribers are keyed by uuid.
// A subscriber whose queue is full misses the event; the publisher never waits.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan Event

	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]chan Event)}
}

// Subscribe registers a new subscriber. buf <= 0 selects DefaultBuffer.
func (h *Hub) Subscribe(buf int) (uuid.UUID, <-chan Event) {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	id := uuid.New()
	ch := make(chan Event, buf)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
// Unknown ids are ignored.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
}

func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
