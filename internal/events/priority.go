package events

// Priority is the delivery tier of an event. Higher values are delivered first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh

	priorityCount
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the three lanes
func (p Priority) Valid() bool {
	return p >= PriorityLow && p < priorityCount
}

// Priorities returns the lanes in delivery order, highest first
func Priorities() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}

// PrioritizedEvent is an event with its assigned lane and sequence number.
// Sequence only orders events within the same lane.
type PrioritizedEvent struct {
	Event    Event
	Priority Priority
	Sequence uint64
}

// Before reports whether pe must be delivered before other
func (pe PrioritizedEvent) Before(other PrioritizedEvent) bool {
	if pe.Priority != other.Priority {
		return pe.Priority > other.Priority
	}
	return pe.Sequence < other.Sequence
}
