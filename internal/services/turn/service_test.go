package turn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/services/turn"
	"github.com/ts020/sl-gem/internal/testutils"
)

func setup(t *testing.T, factions ...uint32) (*testutils.TestBus, turn.Service) {
	t.Helper()
	bus := testutils.NewTestBus(t)
	svc := turn.NewService(&turn.ServiceConfig{
		Bus:      bus.EventBus,
		Factions: factions,
		Logger:   bus.Logger,
	})
	return bus, svc
}

func TestService_Rotation(t *testing.T) {
	bus, svc := setup(t, 1, 2, 3)
	starts := bus.Record(t, events.KindTurnStart)

	require.NoError(t, svc.Begin())
	bus.DrainAll()

	current, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, uint32(1), current)
	assert.Equal(t, 1, svc.Round())

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.EndTurn())
		bus.DrainAll()
	}

	current, _ = svc.Current()
	assert.Equal(t, uint32(1), current)
	assert.Equal(t, 2, svc.Round(), "wrapping to the first faction starts a new round")
	assert.Equal(t, []events.Event{
		events.TurnStart{FactionID: 1},
		events.TurnStart{FactionID: 2},
		events.TurnStart{FactionID: 3},
		events.TurnStart{FactionID: 1},
	}, starts.Events())
	assert.Contains(t, bus.Logs.String(), "TurnService: Round 2, faction 1 to move")
}

func TestService_BeginTwice(t *testing.T) {
	_, svc := setup(t, 1)

	require.NoError(t, svc.Begin())
	assert.True(t, gemerr.Is(svc.Begin(), gemerr.CodeFailedPrecondition))
}

func TestService_EndTurnBeforeStart(t *testing.T) {
	_, svc := setup(t, 1, 2)

	err := svc.EndTurn()
	assert.True(t, gemerr.Is(err, gemerr.CodeFailedPrecondition))

	// TurnStart is published but not yet dispatched
	require.NoError(t, svc.Begin())
	assert.Error(t, svc.EndTurn())
}

func TestService_OutOfTurnEndIsWarning(t *testing.T) {
	bus, svc := setup(t, 1, 2)
	require.NoError(t, svc.Begin())
	bus.DrainAll()

	require.NoError(t, bus.Publish(events.TurnEnd{FactionID: 2}))
	reports := bus.DrainAll()

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, gemerr.SeverityWarning, reports[0].Failures[0].Severity)

	current, _ := svc.Current()
	assert.Equal(t, uint32(1), current, "turn did not move")
}

func TestService_UnknownFactionStartIsWarning(t *testing.T) {
	bus, _ := setup(t, 1, 2)

	require.NoError(t, bus.Publish(events.TurnStart{FactionID: 42}))
	reports := bus.DrainAll()

	require.Len(t, reports[0].Failures, 1)
	assert.Equal(t, gemerr.SeverityWarning, reports[0].Failures[0].Severity)
}

func TestNewService_Validation(t *testing.T) {
	bus := testutils.NewTestBus(t)

	assert.Panics(t, func() { turn.NewService(&turn.ServiceConfig{Factions: []uint32{1}}) })
	assert.Panics(t, func() { turn.NewService(&turn.ServiceConfig{Bus: bus.EventBus}) })
}
