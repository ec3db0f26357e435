package events

import (
	"sync"

	gemerr "github.com/ts020/sl-gem/internal/errors"
)

// lane is one FIFO of a single priority, kept sorted by sequence
type lane struct {
	mu       sync.Mutex
	items    []PrioritizedEvent
	capacity int // 0 means unbounded
}

// insert places pe by sequence. Producers normally arrive in sequence order
// so the scan from the tail stops immediately.
func (l *lane) insert(pe PrioritizedEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity > 0 && len(l.items) >= l.capacity {
		return gemerr.Warningf(gemerr.CodeResourceExhausted,
			"%s lane full (%d events), rejected %s", pe.Priority, l.capacity, pe.Event.Kind()).
			WithMeta("sequence", pe.Sequence)
	}

	i := len(l.items)
	for i > 0 && l.items[i-1].Sequence > pe.Sequence {
		i--
	}
	l.items = append(l.items, PrioritizedEvent{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = pe
	return nil
}

// stampAndAppend assigns the sequence number while holding the lane lock,
// so a lane never receives a sequence lower than one it already handed out.
func (l *lane) stampAndAppend(pe PrioritizedEvent, next func() uint64) (PrioritizedEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.capacity > 0 && len(l.items) >= l.capacity {
		return pe, gemerr.Warningf(gemerr.CodeResourceExhausted,
			"%s lane full (%d events), rejected %s", pe.Priority, l.capacity, pe.Event.Kind())
	}

	pe.Sequence = next()
	l.items = append(l.items, pe)
	return pe, nil
}

func (l *lane) pop() (PrioritizedEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return PrioritizedEvent{}, false
	}
	pe := l.items[0]
	l.items[0] = PrioritizedEvent{}
	l.items = l.items[1:]
	return pe, true
}

func (l *lane) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *lane) clear() []PrioritizedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := l.items
	l.items = nil
	return items
}

// EventQueue holds pending events in three lanes (High, Normal, Low).
// Enqueue is safe from any number of goroutines; dequeue is meant for the
// single loop goroutine.
type EventQueue struct {
	lanes [priorityCount]*lane
}

// QueueConfig holds configuration for the event queue
type QueueConfig struct {
	// LaneCapacity bounds the Normal and Low lanes. Zero means unbounded.
	// The High lane is never bounded so control events cannot be refused.
	LaneCapacity int
}

// NewEventQueue creates a queue; a nil config gives unbounded lanes
func NewEventQueue(cfg *QueueConfig) *EventQueue {
	capacity := 0
	if cfg != nil && cfg.LaneCapacity > 0 {
		capacity = cfg.LaneCapacity
	}

	q := &EventQueue{}
	for p := PriorityLow; p < priorityCount; p++ {
		q.lanes[p] = &lane{}
		if p != PriorityHigh {
			q.lanes[p].capacity = capacity
		}
	}
	return q
}

// Enqueue inserts the event into the lane of its priority. It only fails
// when a bounded lane is full; the returned error is a Warning.
func (q *EventQueue) Enqueue(pe PrioritizedEvent) error {
	if pe.Event == nil {
		return gemerr.InvalidArgument("cannot enqueue nil event")
	}
	if !pe.Priority.Valid() {
		return gemerr.InvalidArgumentf("invalid priority %d", pe.Priority)
	}
	return q.lanes[pe.Priority].insert(pe)
}

// Push stamps the event with next() and appends it to the lane of p in one
// step. A rejected event does not consume a sequence number.
func (q *EventQueue) Push(event Event, p Priority, next func() uint64) (PrioritizedEvent, error) {
	if event == nil {
		return PrioritizedEvent{}, gemerr.InvalidArgument("cannot enqueue nil event")
	}
	if !p.Valid() {
		return PrioritizedEvent{}, gemerr.InvalidArgumentf("invalid priority %d", p)
	}
	return q.lanes[p].stampAndAppend(PrioritizedEvent{Event: event, Priority: p}, next)
}

// DequeueNext returns the highest priority event, oldest first within a lane
func (q *EventQueue) DequeueNext() (PrioritizedEvent, bool) {
	for _, p := range Priorities() {
		if pe, ok := q.lanes[p].pop(); ok {
			return pe, true
		}
	}
	return PrioritizedEvent{}, false
}

// DequeueFrom returns the oldest event of a single lane
func (q *EventQueue) DequeueFrom(p Priority) (PrioritizedEvent, bool) {
	if !p.Valid() {
		return PrioritizedEvent{}, false
	}
	return q.lanes[p].pop()
}

// IsEmpty reports whether all lanes are empty
func (q *EventQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued events across all lanes
func (q *EventQueue) Len() int {
	total := 0
	for _, l := range q.lanes {
		total += l.len()
	}
	return total
}

// LaneLen returns the number of queued events in one lane
func (q *EventQueue) LaneLen(p Priority) int {
	if !p.Valid() {
		return 0
	}
	return q.lanes[p].len()
}

// Clear empties one lane and returns what it held, oldest first
func (q *EventQueue) Clear(p Priority) []PrioritizedEvent {
	if !p.Valid() {
		return nil
	}
	return q.lanes[p].clear()
}
