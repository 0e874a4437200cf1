// Package events fans status messages out to in-process subscribers.
package events

import (
	"sync"
	"time"
)

// Type names the kind of status event.
type Type string

const (
	TypeModelStatus   Type = "model.status"
	TypeModelProgress Type = "model.progress"
	TypeProcessing    Type = "notes.processing"
	TypeNotice        Type = "notes.notice"
	TypeMeetingSaved  Type = "notes.meeting_saved"
)

// Event is one status update. Progress is in [0,1] for progress events and
// zero otherwise.
type Event struct {
	Type     Type      `json:"type"`
	Message  string    `json:"message"`
	Progress float64   `json:"progress,omitempty"`
	Time     time.Time `json:"time"`
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 32

// Hub broadcasts events. Subscribers that fall behind lose events; Publish
// never blocks. The zero value is not usable; call NewHub.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan Event
	next        uint64
	buffer      int
	last        *Event
	dropped     uint64
	clock       func() time.Time
}

// NewHub returns a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: map[uint64]chan Event{},
		buffer:      buffer,
		clock:       time.Now,
	}
}

// Subscribe registers a listener. The returned channel first receives the
// most recent event, if any. Call the cleanup function to unsubscribe; it
// closes the channel and is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subscribers[id] = ch
	if h.last != nil {
		ch <- *h.last
	}
	h.mu.Unlock()

	cleanup := func() {
		h.mu.Lock()
		if sub, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cleanup
}

// Publish stamps evt (when its Time is zero) and delivers it to every
// subscriber with buffer space.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if evt.Time.IsZero() {
		evt.Time = h.clock()
	}
	h.last = &evt
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.dropped++
		}
	}
}

// Status publishes a plain status message.
func (h *Hub) Status(t Type, message string) {
	h.Publish(Event{Type: t, Message: message})
}

// Progress publishes a progress update.
func (h *Hub) Progress(message string, fraction float64) {
	h.Publish(Event{Type: TypeModelProgress, Message: message, Progress: fraction})
}

// Last returns the most recent event.
func (h *Hub) Last() (Event, bool) {
	if h == nil {
		return Event{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Event{}, false
	}
	return *h.last, true
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped reports how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
