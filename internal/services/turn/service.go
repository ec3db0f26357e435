package turn

import (
	"log"
	"sync"

	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
)

// Service rotates the turn between factions. Turn changes only happen when
// TurnStart and TurnEnd events are dispatched, so every subscriber observes
// the same order.
type Service interface {
	// Begin starts round 1 with the first faction
	Begin() error

	// EndTurn ends the current faction's turn
	EndTurn() error

	// Current returns the faction holding the turn
	Current() (uint32, bool)

	// Round returns the current round, 0 before Begin
	Round() int
}

// ServiceConfig holds configuration for the turn service
type ServiceConfig struct {
	Bus      *events.EventBus // Required
	Factions []uint32         // Required, in turn order
	Logger   *log.Logger      // Optional
}

type service struct {
	bus      *events.EventBus
	factions []uint32
	logger   *log.Logger

	mu      sync.Mutex
	begun   bool
	index   int
	round   int
	holder  uint32
	holding bool
}

// NewService creates a new turn service and subscribes it to turn events
func NewService(cfg *ServiceConfig) Service {
	if cfg.Bus == nil {
		panic("event bus is required")
	}
	if len(cfg.Factions) == 0 {
		panic("at least one faction is required")
	}

	svc := &service{
		bus:      cfg.Bus,
		factions: append([]uint32(nil), cfg.Factions...),
		logger:   cfg.Logger,
	}
	if svc.logger == nil {
		svc.logger = log.Default()
	}

	if _, err := svc.bus.Subscribe(events.KindTurnStart, events.HandlerFunc(svc.handleTurnStart)); err != nil {
		panic(err)
	}
	if _, err := svc.bus.Subscribe(events.KindTurnEnd, events.HandlerFunc(svc.handleTurnEnd)); err != nil {
		panic(err)
	}

	return svc
}

// Begin starts round 1 with the first faction
func (s *service) Begin() error {
	s.mu.Lock()
	if s.begun {
		s.mu.Unlock()
		return gemerr.New(gemerr.CodeFailedPrecondition, "turn rotation already started")
	}
	s.begun = true
	s.index = 0
	s.round = 1
	first := s.factions[0]
	s.mu.Unlock()

	return s.bus.Publish(events.TurnStart{FactionID: first})
}

// EndTurn publishes TurnEnd for the faction holding the turn
func (s *service) EndTurn() error {
	s.mu.Lock()
	if !s.holding {
		s.mu.Unlock()
		return gemerr.New(gemerr.CodeFailedPrecondition, "no faction holds the turn")
	}
	holder := s.holder
	s.mu.Unlock()

	return s.bus.Publish(events.TurnEnd{FactionID: holder})
}

// Current returns the faction holding the turn
func (s *service) Current() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder, s.holding
}

// Round returns the current round
func (s *service) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

func (s *service) handleTurnStart(e events.Event) error {
	start := e.(events.TurnStart)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(start.FactionID) < 0 {
		return gemerr.Warningf(gemerr.CodeInvalidArgument, "turn started for unknown faction %d", start.FactionID)
	}
	if s.holding {
		return gemerr.Warningf(gemerr.CodeFailedPrecondition,
			"faction %d started its turn while faction %d holds it", start.FactionID, s.holder)
	}

	s.holder = start.FactionID
	s.holding = true
	s.logger.Printf("TurnService: Round %d, faction %d to move", s.round, start.FactionID)
	return nil
}

func (s *service) handleTurnEnd(e events.Event) error {
	end := e.(events.TurnEnd)

	s.mu.Lock()
	if !s.holding || end.FactionID != s.holder {
		s.mu.Unlock()
		return gemerr.Warningf(gemerr.CodeFailedPrecondition,
			"faction %d ended a turn it does not hold", end.FactionID)
	}

	s.holding = false
	s.index = (s.indexOf(end.FactionID) + 1) % len(s.factions)
	if s.index == 0 {
		s.round++
	}
	next := s.factions[s.index]
	s.mu.Unlock()

	// Lands in a later tick
	if err := s.bus.Publish(events.TurnStart{FactionID: next}); err != nil {
		return gemerr.Wrapf(err, "failed to hand the turn to faction %d", next)
	}
	return nil
}

func (s *service) indexOf(faction uint32) int {
	for i, f := range s.factions {
		if f == faction {
			return i
		}
	}
	return -1
}
