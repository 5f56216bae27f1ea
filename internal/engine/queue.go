package engine

import (
	"sync"

	"github.com/roach88/lineage/internal/store"
)

// eventQueue is a thread-safe FIFO queue of store events.
//
// The queue is unbounded: store mutations never block on a query. Events
// are enqueued by the store observer and drained by the cache when the next
// iteration starts.
type eventQueue struct {
	mu     sync.Mutex
	events []store.Event
	closed bool
}

// newEventQueue creates an empty event queue.
func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]store.Event, 0, 64),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e store.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)
	return true
}

// TryDequeue removes the front event without blocking.
// Returns (store.Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (store.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return store.Event{}, false
	}

	e := q.events[0]

	// Release the table pointer held by the slot.
	q.events[0] = store.Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Clear discards every queued event.
func (q *eventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	clear(q.events)
	q.events = q.events[:0]
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close drops the queued events and rejects further ones.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	clear(q.events)
	q.events = q.events[:0]
}
