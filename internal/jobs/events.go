package jobs

import (
	"sync"
	"time"
)

// EventType classifies messages emitted during batch execution.
type EventType string

const (
	// EventTypeProgress reports a percentage update for one input file.
	EventTypeProgress EventType = "progress"
	// EventTypeFinished marks one input file fully converted.
	EventTypeFinished EventType = "finished"
	// EventTypeError marks one input file failed; the batch moves on.
	EventTypeError EventType = "error"
	// EventTypeBatchFinished marks the end of a batch in which every
	// file was attempted. Cancelled batches never emit it.
	EventTypeBatchFinished EventType = "batchFinished"
)

// Event is a sequenced payload consumed by UI subscribers. One variant
// applies per event: progress carries Path and Percent, finished carries
// Path, error carries Path and Message, batchFinished carries neither.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Path      string    `json:"path,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// EventBus keeps a sliding window of the most recent events so the UI can
// poll for anything it missed between pushes.
type EventBus struct {
	mu     sync.RWMutex
	seq    int64
	ring   []Event
	oldest int
	count  int
}

// NewEventBus allocates a bus retaining up to capacity events. Capacities
// below one fall back to a window large enough for a long batch.
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = 500
	}
	return &EventBus{ring: make([]Event, capacity)}
}

// Publish stamps the event with the next sequence number and stores it,
// evicting the oldest entry once the window is full.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	event.Seq = b.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if b.count == len(b.ring) {
		b.ring[b.oldest] = event
		b.oldest = (b.oldest + 1) % len(b.ring)
		return event
	}
	b.ring[(b.oldest+b.count)%len(b.ring)] = event
	b.count++
	return event
}

// Since returns retained events whose sequence is strictly greater than seq,
// oldest first.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for i := 0; i < b.count; i++ {
		event := b.ring[(b.oldest+i)%len(b.ring)]
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
