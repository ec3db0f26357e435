package shared

import "fmt"

// MapPosition is a cell coordinate on the strategy map
type MapPosition struct {
	X int32
	Y int32
}

// NewMapPosition creates a position from coordinates
func NewMapPosition(x, y int32) MapPosition {
	return MapPosition{X: x, Y: y}
}

// Moved returns the position offset by dx, dy
func (p MapPosition) Moved(dx, dy int32) MapPosition {
	return MapPosition{X: p.X + dx, Y: p.Y + dy}
}

// ManhattanDistance returns the grid distance between two positions
func (p MapPosition) ManhattanDistance(other MapPosition) uint32 {
	return uint32(abs(p.X-other.X) + abs(p.Y-other.Y))
}

// String returns "(x, y)"
func (p MapPosition) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
