package events

import (
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/uuid"
)

// HandlerFailure is a classified error reported by one handler during dispatch
type HandlerFailure struct {
	SubscriptionID string
	Kind           Kind
	Severity       gemerr.Severity
	Err            error
}

// Error implements error
func (f HandlerFailure) Error() string {
	return fmt.Sprintf("subscription %s failed on %s (%s): %v", f.SubscriptionID, f.Kind, f.Severity, f.Err)
}

// Unwrap returns the handler's error
func (f HandlerFailure) Unwrap() error {
	return f.Err
}

// DispatchReport describes the delivery of one event
type DispatchReport struct {
	Event     PrioritizedEvent
	Delivered int
	Failures  []HandlerFailure
}

// Failed reports whether any handler failed
func (r DispatchReport) Failed() bool {
	return len(r.Failures) > 0
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	Queue       *EventQueue    // Optional, unbounded queue if nil
	Processor   *Processor     // Optional
	IDGenerator uuid.Generator // Optional, will use google UUIDs if nil
	Logger      *log.Logger    // Optional, log.Default() if nil
}

// EventBus is the subscription registry in front of the priority queue.
// Publish may be called from any goroutine. Dispatch methods must only be
// called from the loop goroutine; handlers run there, one at a time.
type EventBus struct {
	queue     *EventQueue
	processor *Processor
	ids       uuid.Generator
	logger    *log.Logger

	mu     sync.RWMutex
	byKind map[Kind][]*subscription // includes wildcard subscriptions, registration order
	byID   map[string]*subscription
}

// NewEventBus creates a new event bus; cfg may be nil
func NewEventBus(cfg *BusConfig) *EventBus {
	if cfg == nil {
		cfg = &BusConfig{}
	}

	b := &EventBus{
		queue:     cfg.Queue,
		processor: cfg.Processor,
		ids:       cfg.IDGenerator,
		logger:    cfg.Logger,
		byKind:    make(map[Kind][]*subscription),
		byID:      make(map[string]*subscription),
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	if b.queue == nil {
		b.queue = NewEventQueue(nil)
	}
	if b.processor == nil {
		b.processor = NewProcessor(b.logger)
	}
	if b.ids == nil {
		b.ids = uuid.NewGoogleUUIDGenerator()
	}
	return b
}

// Subscribe registers a handler for one kind, or for every kind with KindAll.
// Handlers for an event run in registration order. Registering the same
// handler twice yields two subscriptions and two invocations per event.
func (b *EventBus) Subscribe(kind Kind, handler Handler) (SubscriptionHandle, error) {
	if handler == nil {
		return SubscriptionHandle{}, gemerr.InvalidArgument("handler cannot be nil")
	}
	if kind != KindAll && !kind.Valid() {
		return SubscriptionHandle{}, gemerr.InvalidArgumentf("cannot subscribe to unknown kind %d", kind)
	}

	sub := &subscription{
		id:      b.ids.New(),
		kind:    kind,
		handler: handler,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if kind == KindAll {
		for _, k := range Kinds() {
			b.byKind[k] = appendCopy(b.byKind[k], sub)
		}
	} else {
		b.byKind[kind] = appendCopy(b.byKind[kind], sub)
	}
	b.byID[sub.id] = sub

	b.logger.Printf("EventBus: Subscribed %s to %s", sub.id, kind)

	return SubscriptionHandle{ID: sub.id, Kind: kind}, nil
}

// Unsubscribe removes a subscription. A dispatch already in progress keeps
// its snapshot. Returns false if the handle is unknown.
func (b *EventBus) Unsubscribe(handle SubscriptionHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[handle.ID]
	if !ok {
		return false
	}

	if sub.kind == KindAll {
		for _, k := range Kinds() {
			b.byKind[k] = removeCopy(b.byKind[k], sub.id)
		}
	} else {
		b.byKind[sub.kind] = removeCopy(b.byKind[sub.kind], sub.id)
	}
	delete(b.byID, sub.id)

	b.logger.Printf("EventBus: Unsubscribed %s from %s", sub.id, sub.kind)
	return true
}

// Publish classifies and enqueues the event. It never waits for handlers.
// The only failure besides invalid input is a full bounded lane.
func (b *EventBus) Publish(event Event) error {
	if event == nil {
		return gemerr.InvalidArgument("cannot publish nil event")
	}
	if !event.Kind().Valid() {
		return gemerr.InvalidArgumentf("cannot publish event of unknown kind %d", event.Kind())
	}

	if _, err := b.queue.Push(event, b.processor.Classify(event), b.processor.NextSequence); err != nil {
		b.logger.Printf("WARNING: EventBus: dropped %s: %v", Describe(event), err)
		return gemerr.Wrapf(err, "publish %s", event.Kind())
	}
	return nil
}

// DrainAndDispatchOne pops the next event in priority order and delivers it.
// Returns false if nothing was queued.
func (b *EventBus) DrainAndDispatchOne() (DispatchReport, bool) {
	pe, ok := b.queue.DequeueNext()
	if !ok {
		return DispatchReport{}, false
	}
	return b.dispatch(pe), true
}

// DispatchFrom pops the next event of one lane and delivers it.
// Returns false if that lane was empty.
func (b *EventBus) DispatchFrom(p Priority) (DispatchReport, bool) {
	pe, ok := b.queue.DequeueFrom(p)
	if !ok {
		return DispatchReport{}, false
	}
	return b.dispatch(pe), true
}

// dispatch delivers pe to a snapshot of the matching subscriptions.
// A failing handler never prevents the remaining handlers from running.
func (b *EventBus) dispatch(pe PrioritizedEvent) DispatchReport {
	report := DispatchReport{Event: pe}

	for _, sub := range b.snapshot(pe.Event.Kind()) {
		report.Delivered++
		if err := b.invoke(sub, pe.Event); err != nil {
			report.Failures = append(report.Failures, HandlerFailure{
				SubscriptionID: sub.id,
				Kind:           pe.Event.Kind(),
				Severity:       gemerr.SeverityOf(err),
				Err:            err,
			})
		}
	}

	return report
}

// invoke runs one handler and turns a panic into a Fatal error
func (b *EventBus) invoke(sub *subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("EventBus: handler %s panicked on %s: %v\n%s", sub.id, event.Kind(), r, debug.Stack())
			err = gemerr.Fatalf(gemerr.CodePanic, "handler %s panicked: %v", sub.id, r).
				WithMeta("kind", event.Kind().String())
		}
	}()

	return sub.handler.HandleEvent(event)
}

// snapshot returns the fan-out list for a kind. Slices in byKind are never
// mutated after publication, so the caller may iterate without the lock.
func (b *EventBus) snapshot(kind Kind) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byKind[kind]
}

// SubscriptionCount returns how many subscriptions receive events of kind,
// wildcard subscriptions included
func (b *EventBus) SubscriptionCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if kind == KindAll {
		count := 0
		for _, sub := range b.byID {
			if sub.kind == KindAll {
				count++
			}
		}
		return count
	}
	return len(b.byKind[kind])
}

// TotalSubscriptionCount returns the number of live subscriptions
func (b *EventBus) TotalSubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Clear removes all subscriptions. Queued events stay queued.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byKind = make(map[Kind][]*subscription)
	b.byID = make(map[string]*subscription)
	b.logger.Printf("EventBus: Cleared all subscriptions")
}

// Pending returns the number of queued events across all lanes
func (b *EventBus) Pending() int {
	return b.queue.Len()
}

// PendingIn returns the number of queued events in one lane
func (b *EventBus) PendingIn(p Priority) int {
	return b.queue.LaneLen(p)
}

// Discard empties a lane without dispatching and returns the dropped events
func (b *EventBus) Discard(p Priority) []PrioritizedEvent {
	return b.queue.Clear(p)
}
