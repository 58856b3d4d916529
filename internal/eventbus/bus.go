// File: internal/eventbus/bus.go
package eventbus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is a single structured record published to observers. Username is
// empty for system-level events.
type Event struct {
	Username  string         `json:"username,omitempty"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// MarshalBytes encodes the event for wire transports (websocket, SSE).
func (e Event) MarshalBytes() ([]byte, error) {
	return json.Marshal(e)
}

type observer struct {
	id int
	ch chan Event
}

// Bus fans structured events out to all connected observers. It keeps a
// bounded FIFO buffer of the most recent events, replayed in order to every
// new observer before any live event is delivered.
type Bus struct {
	mu        sync.Mutex
	buffer    []Event
	maxBuffer int
	chanSize  int
	observers map[int]*observer
	nextID    int
}

// New creates a Bus with the given replay-buffer capacity and per-observer
// channel size. Non-positive values fall back to sensible defaults.
func New(maxBuffer, chanSize int) *Bus {
	if maxBuffer <= 0 {
		maxBuffer = 1000
	}
	if chanSize <= 0 {
		chanSize = 64
	}
	return &Bus{
		maxBuffer: maxBuffer,
		chanSize:  chanSize,
		observers: make(map[int]*observer),
	}
}

// Publish appends the event to the replay buffer and delivers it to every
// connected observer. An observer whose channel is full is dropped from the
// active set; the others are unaffected.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, ev)
	if len(b.buffer) > b.maxBuffer {
		b.buffer = b.buffer[len(b.buffer)-b.maxBuffer:]
	}

	for id, obs := range b.observers {
		select {
		case obs.ch <- ev:
		default:
			// Observer is not keeping up. Dropping it here preserves
			// ordering for everyone else.
			delete(b.observers, id)
			close(obs.ch)
		}
	}
}

// Subscribe registers a new observer. The returned channel first yields the
// current replay buffer in original order, then live events as they are
// published. The cancel function detaches the observer and closes the
// channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The channel must be able to hold the full replay buffer plus headroom
	// for live events, so the replay can be enqueued without blocking while
	// the bus lock is held.
	ch := make(chan Event, b.maxBuffer+b.chanSize)
	for _, ev := range b.buffer {
		ch <- ev
	}

	id := b.nextID
	b.nextID++
	obs := &observer{id: id, ch: ch}
	b.observers[id] = obs

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.observers[id]; ok && cur == obs {
			delete(b.observers, id)
			close(obs.ch)
		}
	}
	return ch, cancel
}

// ObserverCount returns the number of currently connected observers.
func (b *Bus) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// BufferLen returns the number of events currently held for replay.
func (b *Bus) BufferLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
