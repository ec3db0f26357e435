package shared_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ts020/sl-gem/internal/domain/shared"
)

func TestMapPosition_Moved(t *testing.T) {
	pos := shared.NewMapPosition(5, 5)

	assert.Equal(t, shared.MapPosition{X: 6, Y: 5}, pos.Moved(1, 0))
	assert.Equal(t, shared.MapPosition{X: 4, Y: 4}, pos.Moved(-1, -1))
	// Moving never mutates the receiver
	assert.Equal(t, shared.NewMapPosition(5, 5), pos)
}

func TestMapPosition_ManhattanDistance(t *testing.T) {
	a := shared.NewMapPosition(0, 0)
	b := shared.NewMapPosition(3, -4)

	assert.Equal(t, uint32(7), a.ManhattanDistance(b))
	assert.Equal(t, uint32(7), b.ManhattanDistance(a))
	assert.Equal(t, uint32(0), a.ManhattanDistance(a))
	assert.Equal(t, "(3, -4)", b.String())
}
