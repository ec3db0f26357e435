package logging

import (
	"log"
	"sync/atomic"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
)

// SinkConfig holds configuration for the log sink
type SinkConfig struct {
	Bus      *events.EventBus // Required
	Logger   *log.Logger      // Optional, log.Default() if nil
	MinLevel events.LogLevel
}

// Sink writes Log and HandlerError events to a logger
type Sink struct {
	bus      *events.EventBus
	logger   *log.Logger
	minLevel events.LogLevel
	title    cases.Caser

	handles []events.SubscriptionHandle
	written atomic.Uint64
	skipped atomic.Uint64
}

// NewSink creates a sink and subscribes it to Log and Error events
func NewSink(cfg *SinkConfig) (*Sink, error) {
	if cfg == nil || cfg.Bus == nil {
		return nil, gemerr.InvalidArgument("event bus is required")
	}

	s := &Sink{
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		minLevel: cfg.MinLevel,
		title:    cases.Title(language.English),
	}
	if s.logger == nil {
		s.logger = log.Default()
	}

	for _, kind := range []events.Kind{events.KindLog, events.KindError} {
		handle, err := s.bus.Subscribe(kind, s)
		if err != nil {
			s.Close()
			return nil, gemerr.Wrapf(err, "failed to subscribe log sink to %s", kind)
		}
		s.handles = append(s.handles, handle)
	}

	return s, nil
}

// HandleEvent writes one line per event at or above the minimum level
func (s *Sink) HandleEvent(e events.Event) error {
	switch ev := e.(type) {
	case events.Log:
		if ev.Level < s.minLevel {
			s.skipped.Add(1)
			return nil
		}
		s.logger.Printf("[%s] %s", s.title.String(ev.Level.String()), ev.Message)
	case events.HandlerError:
		s.logger.Printf("[%s] handler %s failed on %s (%s): %s",
			s.title.String(events.LogLevelError.String()), ev.SubscriptionID, ev.Origin, ev.Severity, ev.Message)
	default:
		return nil
	}

	s.written.Add(1)
	return nil
}

// Written returns how many lines the sink has written
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Skipped returns how many Log events were below the minimum level
func (s *Sink) Skipped() uint64 {
	return s.skipped.Load()
}

// Close removes the sink's subscriptions
func (s *Sink) Close() {
	for _, handle := range s.handles {
		s.bus.Unsubscribe(handle)
	}
	s.handles = nil
}
