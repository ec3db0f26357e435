package mapview

import (
	"fmt"
	"log"
	"sync"

	"github.com/ts020/sl-gem/internal/domain/shared"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
)

// Config holds configuration for the map view
type Config struct {
	Bus    *events.EventBus // Required
	Width  int32            // Required
	Height int32            // Required
	Logger *log.Logger      // Optional
}

// View tracks unit positions on a bounded grid. MoveUnit only validates and
// publishes; positions change when the UnitMove event is dispatched.
type View struct {
	bus    *events.EventBus
	width  int32
	height int32
	logger *log.Logger

	mu      sync.RWMutex
	units   map[uint32]shared.MapPosition
	frames  uint64
	elapsed float64
	moves   uint64
}

// New creates a map view and subscribes it to UnitMove and Update events
func New(cfg *Config) *View {
	if cfg.Bus == nil {
		panic("event bus is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		panic(fmt.Sprintf("map size must be positive, got %dx%d", cfg.Width, cfg.Height))
	}

	v := &View{
		bus:    cfg.Bus,
		width:  cfg.Width,
		height: cfg.Height,
		logger: cfg.Logger,
		units:  make(map[uint32]shared.MapPosition),
	}
	if v.logger == nil {
		v.logger = log.Default()
	}

	if _, err := v.bus.Subscribe(events.KindUnitMove, events.HandlerFunc(v.handleUnitMove)); err != nil {
		panic(err)
	}
	if _, err := v.bus.Subscribe(events.KindUpdate, events.HandlerFunc(v.handleUpdate)); err != nil {
		panic(err)
	}

	return v
}

// InBounds reports whether pos lies on the map
func (v *View) InBounds(pos shared.MapPosition) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < v.width && pos.Y < v.height
}

// PlaceUnit puts a unit on the map directly; used to set up a scenario
func (v *View) PlaceUnit(unitID uint32, pos shared.MapPosition) error {
	if !v.InBounds(pos) {
		return gemerr.InvalidArgumentf("position %s is outside the %dx%d map", pos, v.width, v.height)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.units[unitID]; exists {
		return gemerr.New(gemerr.CodeFailedPrecondition, fmt.Sprintf("unit %d is already placed", unitID))
	}
	if other, taken := v.occupant(pos); taken {
		return gemerr.New(gemerr.CodeFailedPrecondition, fmt.Sprintf("position %s is occupied by unit %d", pos, other))
	}
	v.units[unitID] = pos
	return nil
}

// MoveUnit validates a move and publishes UnitMove plus an informational Log
func (v *View) MoveUnit(unitID uint32, target shared.MapPosition) error {
	if !v.InBounds(target) {
		return gemerr.InvalidArgumentf("position %s is outside the %dx%d map", target, v.width, v.height)
	}

	v.mu.RLock()
	from, ok := v.units[unitID]
	other, taken := v.occupant(target)
	v.mu.RUnlock()

	if !ok {
		return gemerr.NotFoundf("unit %d not found", unitID)
	}
	if taken && other != unitID {
		return gemerr.New(gemerr.CodeFailedPrecondition, fmt.Sprintf("position %s is occupied by unit %d", target, other))
	}

	if err := v.bus.Publish(events.UnitMove{UnitID: unitID, Position: target}); err != nil {
		return err
	}
	return v.bus.Publish(events.Log{
		Level:   events.LogLevelInfo,
		Message: fmt.Sprintf("unit %d moving %s -> %s (%d tiles)", unitID, from, target, from.ManhattanDistance(target)),
	})
}

// Position returns where a unit stands
func (v *View) Position(unitID uint32) (shared.MapPosition, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pos, ok := v.units[unitID]
	return pos, ok
}

// Units returns a copy of every unit position
func (v *View) Units() map[uint32]shared.MapPosition {
	v.mu.RLock()
	defer v.mu.RUnlock()

	units := make(map[uint32]shared.MapPosition, len(v.units))
	for id, pos := range v.units {
		units[id] = pos
	}
	return units
}

// Frames returns how many Update events the view has refreshed on
func (v *View) Frames() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frames
}

// Elapsed returns the simulated seconds accumulated from Update deltas
func (v *View) Elapsed() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.elapsed
}

// Moves returns how many moves have been applied
func (v *View) Moves() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.moves
}

// handleUnitMove applies a move. The map may have changed since the move
// was validated, so the checks run again here.
func (v *View) handleUnitMove(e events.Event) error {
	move := e.(events.UnitMove)

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.units[move.UnitID]; !ok {
		return gemerr.NotFoundf("unit %d not found", move.UnitID)
	}
	if !v.InBounds(move.Position) {
		return gemerr.Warningf(gemerr.CodeInvalidArgument, "unit %d cannot move off the map to %s", move.UnitID, move.Position)
	}
	if other, taken := v.occupant(move.Position); taken && other != move.UnitID {
		return gemerr.Warningf(gemerr.CodeFailedPrecondition,
			"unit %d cannot move to %s, occupied by unit %d", move.UnitID, move.Position, other)
	}

	v.units[move.UnitID] = move.Position
	v.moves++
	return nil
}

func (v *View) handleUpdate(e events.Event) error {
	update := e.(events.Update)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.frames++
	v.elapsed += float64(update.Delta)
	return nil
}

// occupant must be called with mu held
func (v *View) occupant(pos shared.MapPosition) (uint32, bool) {
	for id, p := range v.units {
		if p == pos {
			return id, true
		}
	}
	return 0, false
}
