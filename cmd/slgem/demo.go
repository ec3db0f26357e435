package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ts020/sl-gem/internal/dice"
	"github.com/ts020/sl-gem/internal/domain/shared"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/services/mapview"
	"github.com/ts020/sl-gem/internal/services/turn"
)

const (
	mapWidth     = 16
	mapHeight    = 12
	unitsPerSide = 3
	demoInterval = 200 * time.Millisecond
	movesPerTurn = 4
)

// deployUnits places each faction's units on its own row
func deployUnits(view *mapview.View, factions []uint32) ([]uint32, error) {
	if len(factions) > mapHeight {
		return nil, fmt.Errorf("at most %d factions fit on the map, got %d", mapHeight, len(factions))
	}

	var units []uint32
	for row, faction := range factions {
		for i := 0; i < unitsPerSide; i++ {
			id := faction*100 + uint32(i)
			pos := shared.NewMapPosition(int32(i*2), int32(row))
			if err := view.PlaceUnit(id, pos); err != nil {
				return nil, fmt.Errorf("unit %d: %w", id, err)
			}
			units = append(units, id)
		}
	}
	return units, nil
}

// demo plays the producer side from its own goroutine: random unit moves
// and a turn change every few moves
type demo struct {
	turns  turn.Service
	view   *mapview.View
	units  []uint32
	roller dice.Roller
	moves  int
}

func newDemo(turns turn.Service, view *mapview.View, units []uint32, roller dice.Roller) *demo {
	return &demo{turns: turns, view: view, units: units, roller: roller}
}

func (d *demo) run(ctx context.Context) error {
	ticker := time.NewTicker(demoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.step(); err != nil {
				return err
			}
		}
	}
}

// step requests one move; rejected moves are expected and only logged
func (d *demo) step() error {
	pick, err := d.roller.Roll(1, len(d.units), -1)
	if err != nil {
		return fmt.Errorf("failed to pick a unit: %w", err)
	}
	unit := d.units[pick.Total]

	// 1d3-2 per axis gives a step of -1, 0 or 1
	dx, err := d.roller.Roll(1, 3, -2)
	if err != nil {
		return fmt.Errorf("failed to roll a step: %w", err)
	}
	dy, err := d.roller.Roll(1, 3, -2)
	if err != nil {
		return fmt.Errorf("failed to roll a step: %w", err)
	}

	if from, ok := d.view.Position(unit); ok {
		target := from.Moved(int32(dx.Total), int32(dy.Total))
		if err := d.view.MoveUnit(unit, target); err != nil && !gemerr.IsInvalidArgument(err) {
			log.Printf("Demo: move of unit %d rejected: %v", unit, err)
		}
	}

	d.moves++
	if d.moves%movesPerTurn == 0 {
		if err := d.turns.EndTurn(); err != nil {
			log.Printf("Demo: end turn skipped: %v", err)
		}
	}
	return nil
}
