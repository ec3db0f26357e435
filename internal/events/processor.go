package events

import (
	"log"
	"sync"
	"sync/atomic"
)

// priorityTable is the delivery policy. Every kind has exactly one entry;
// a new kind is classified by adding its line here and nowhere else.
var priorityTable = map[Kind]Priority{
	KindStart:     PriorityHigh,
	KindStop:      PriorityHigh,
	KindPause:     PriorityHigh,
	KindResume:    PriorityHigh,
	KindError:     PriorityHigh,
	KindUpdate:    PriorityNormal,
	KindTurnStart: PriorityNormal,
	KindTurnEnd:   PriorityNormal,
	KindUnitMove:  PriorityNormal,
	KindLog:       PriorityLow,
	KindStats:     PriorityLow,
}

// Processor classifies events and stamps them with a sequence number
type Processor struct {
	sequence atomic.Uint64

	warnOnce sync.Map // Kind -> struct{}
	logger   *log.Logger
}

// NewProcessor creates a processor whose first sequence number is 0
func NewProcessor(logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{logger: logger}
}

// Classify returns the priority of an event. It has no side effects
// other than a one-time log line for a kind missing from the table.
func (p *Processor) Classify(e Event) Priority {
	if e == nil {
		return PriorityNormal
	}
	priority, ok := priorityTable[e.Kind()]
	if !ok {
		if _, seen := p.warnOnce.LoadOrStore(e.Kind(), struct{}{}); !seen {
			p.logger.Printf("WARNING: EventProcessor: no priority for kind %s, using %s", e.Kind(), PriorityNormal)
		}
		return PriorityNormal
	}
	return priority
}

// Process classifies the event and assigns the next sequence number
func (p *Processor) Process(e Event) PrioritizedEvent {
	return PrioritizedEvent{
		Event:    e,
		Priority: p.Classify(e),
		Sequence: p.NextSequence(),
	}
}

// NextSequence hands out the next sequence number
func (p *Processor) NextSequence() uint64 {
	return p.sequence.Add(1) - 1
}

// Issued returns how many sequence numbers have been handed out
func (p *Processor) Issued() uint64 {
	return p.sequence.Load()
}

// ClassifyKind returns the table priority for a kind
func ClassifyKind(k Kind) (Priority, bool) {
	priority, ok := priorityTable[k]
	return priority, ok
}
