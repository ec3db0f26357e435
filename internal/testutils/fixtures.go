package testutils

import (
	"bytes"
	"log"
	"sync"
	"testing"

	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/uuid"
)

// RecordingHandler stores every event it receives. Safe for concurrent use.
type RecordingHandler struct {
	mu     sync.Mutex
	events []events.Event
	Err    error // returned from every HandleEvent call
}

// HandleEvent records the event
func (h *RecordingHandler) HandleEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return h.Err
}

// Events returns a copy of the recorded events in arrival order
func (h *RecordingHandler) Events() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.events...)
}

// Kinds returns the kinds of the recorded events in arrival order
func (h *RecordingHandler) Kinds() []events.Kind {
	recorded := h.Events()
	kinds := make([]events.Kind, 0, len(recorded))
	for _, e := range recorded {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

// TestBus is an event bus with predictable subscription IDs and captured logs
type TestBus struct {
	*events.EventBus
	Logs   *bytes.Buffer
	Logger *log.Logger
}

// NewTestBus creates a bus for tests
func NewTestBus(t *testing.T) *TestBus {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := log.New(buf, "", 0)
	return &TestBus{
		EventBus: events.NewEventBus(&events.BusConfig{
			IDGenerator: uuid.NewSequenceGenerator("sub"),
			Logger:      logger,
		}),
		Logs:   buf,
		Logger: logger,
	}
}

// DrainAll dispatches queued events in priority order until the queue is empty
func (b *TestBus) DrainAll() []events.DispatchReport {
	var reports []events.DispatchReport
	for {
		report, ok := b.DrainAndDispatchOne()
		if !ok {
			return reports
		}
		reports = append(reports, report)
	}
}

// Record subscribes a new RecordingHandler to kind
func (b *TestBus) Record(t *testing.T, kind events.Kind) *RecordingHandler {
	t.Helper()

	h := &RecordingHandler{}
	if _, err := b.Subscribe(kind, h); err != nil {
		t.Fatalf("failed to subscribe recorder to %s: %v", kind, err)
	}
	return h
}
