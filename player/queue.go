package player

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies an asynchronous completion.
type EventKind int

const (
	EventSocketConnected EventKind = iota
	EventSocketData
	EventSocketClosed
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventSocketConnected:
		return "socket-connected"
	case EventSocketData:
		return "socket-data"
	case EventSocketClosed:
		return "socket-closed"
	case EventCallback:
		return "callback"
	}
	return "unknown"
}

// Event is one completion waiting for the next frame.
type Event struct {
	ID     uuid.UUID
	Kind   EventKind
	Socket string
	OK     bool
	Data   []byte

	fn func() error
}

// Queue collects completions from backend goroutines. The player drains
// it at the start of every frame, so scripts only ever observe results on
// the VM goroutine.
type Queue struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) push(e Event) uuid.UUID {
	e.ID = uuid.New()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Debugf("dropping %s event %s after shutdown", e.Kind, e.ID)
		return e.ID
	}
	q.events = append(q.events, e)
	return e.ID
}

// SocketConnected implements backend.SocketSink.
func (q *Queue) SocketConnected(id string, ok bool) {
	q.push(Event{Kind: EventSocketConnected, Socket: id, OK: ok})
}

// SocketData implements backend.SocketSink.
func (q *Queue) SocketData(id string, data []byte) {
	q.push(Event{Kind: EventSocketData, Socket: id, Data: append([]byte(nil), data...)})
}

// SocketClosed implements backend.SocketSink.
func (q *Queue) SocketClosed(id string) {
	q.push(Event{Kind: EventSocketClosed, Socket: id})
}

// Post schedules fn to run on the VM goroutine at the next frame and
// returns the request ID it is logged under.
func (q *Queue) Post(fn func() error) uuid.UUID {
	return q.push(Event{Kind: EventCallback, fn: fn})
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// drain removes and returns every queued event in arrival order.
func (q *Queue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}

// Close discards queued events and drops later ones.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.events = nil
}
