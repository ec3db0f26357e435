package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/ts020/sl-gem/internal/config"
	"github.com/ts020/sl-gem/internal/engine"
	mockengine "github.com/ts020/sl-gem/internal/engine/mock"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/uuid"
)

type GameLoopSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	bus      *events.EventBus
	loop     *engine.GameLoop
	logBuf   *bytes.Buffer
	settings config.LoopConfig
	seen     []events.Event
}

func (s *GameLoopSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.logBuf = &bytes.Buffer{}
	s.seen = nil
	s.settings = config.DefaultLoopConfig()
	s.settings.StatsEveryTicks = 0
	s.newLoop(nil)
}

func (s *GameLoopSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *GameLoopSuite) newLoop(clock engine.TimeProvider) {
	logger := log.New(s.logBuf, "", 0)
	s.bus = events.NewEventBus(&events.BusConfig{
		IDGenerator: uuid.NewSequenceGenerator("sub"),
		Logger:      logger,
	})
	s.loop = engine.NewGameLoop(&engine.LoopConfig{
		Bus:          s.bus,
		Settings:     &s.settings,
		TimeProvider: clock,
		Logger:       logger,
	})
}

// record subscribes a handler that appends every event of kind to s.seen
func (s *GameLoopSuite) record(kind events.Kind) {
	_, err := s.bus.Subscribe(kind, events.HandlerFunc(func(e events.Event) error {
		s.seen = append(s.seen, e)
		return nil
	}))
	s.Require().NoError(err)
}

func (s *GameLoopSuite) on(kind events.Kind, fn func(events.Event) error) {
	_, err := s.bus.Subscribe(kind, events.HandlerFunc(fn))
	s.Require().NoError(err)
}

func (s *GameLoopSuite) kinds() []events.Kind {
	var kinds []events.Kind
	for _, e := range s.seen {
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

func (s *GameLoopSuite) TestNewGameLoop_RequiresBus() {
	s.Panics(func() { engine.NewGameLoop(&engine.LoopConfig{}) })
	s.Panics(func() { engine.NewGameLoop(nil) })
}

func (s *GameLoopSuite) TestInitialState() {
	s.Equal(engine.StateStopped, s.loop.State())
	s.Equal(4, s.bus.TotalSubscriptionCount(), "loop subscribes to the four control kinds")

	result := s.loop.Tick()

	s.Equal(engine.StateStopped, result.State)
	s.Zero(result.Dispatched)
	s.Zero(s.bus.Pending(), "no Update while stopped")
}

func (s *GameLoopSuite) TestStart_TransitionsAndPublishesUpdate() {
	s.Require().NoError(s.loop.Start())

	result := s.loop.Tick()

	s.Equal(engine.StateRunning, result.State)
	s.Equal(1, result.Dispatched)
	s.Equal(1, s.bus.PendingIn(events.PriorityNormal))
	s.Contains(s.logBuf.String(), "GameLoop: Stopped -> Running")
}

func (s *GameLoopSuite) TestLoopHandlerRunsBeforeOtherSubscribers() {
	var observed engine.State
	s.on(events.KindStart, func(events.Event) error {
		observed = s.loop.State()
		return nil
	})

	s.Require().NoError(s.loop.Start())
	s.loop.Tick()

	s.Equal(engine.StateRunning, observed)
}

func (s *GameLoopSuite) TestIllegalTransitionsAreNoOps() {
	s.Require().NoError(s.loop.Resume())
	s.Require().NoError(s.loop.Pause())
	s.loop.Tick()
	s.Equal(engine.StateStopped, s.loop.State())
	s.Contains(s.logBuf.String(), "ignoring Resume while Stopped")
	s.Contains(s.logBuf.String(), "ignoring Pause while Stopped")

	s.Require().NoError(s.loop.Start())
	s.loop.Tick()
	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.loop.Resume())
	s.loop.Tick()
	s.Equal(engine.StateRunning, s.loop.State())
	s.Contains(s.logBuf.String(), "ignoring Start while Running")
	s.Contains(s.logBuf.String(), "ignoring Resume while Running")
}

func (s *GameLoopSuite) TestStopFromEveryState() {
	tests := []struct {
		name  string
		setup []func(*engine.GameLoop) error
	}{
		{"stopped", nil},
		{"running", []func(*engine.GameLoop) error{(*engine.GameLoop).Start}},
		{"paused", []func(*engine.GameLoop) error{(*engine.GameLoop).Start, (*engine.GameLoop).Pause}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.newLoop(nil)
			for _, publish := range tt.setup {
				s.Require().NoError(publish(s.loop))
				s.loop.Tick()
			}

			s.Require().NoError(s.loop.Stop())
			result := s.loop.Tick()

			s.True(result.Stopped)
			s.Equal(engine.StateStopped, result.State)
		})
	}
}

func (s *GameLoopSuite) TestFreshStartAfterStop() {
	s.Require().NoError(s.loop.Start())
	s.loop.Tick()
	s.Require().NoError(s.loop.Stop())
	s.loop.Tick()
	s.Require().NoError(s.loop.Start())

	result := s.loop.Tick()

	s.Equal(engine.StateRunning, result.State)
}

func (s *GameLoopSuite) TestPausedDefersNormalAndLow() {
	s.record(events.KindTurnStart)
	s.record(events.KindLog)
	s.record(events.KindStats)

	s.Require().NoError(s.loop.Start())
	s.loop.Tick()

	s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 1}))
	s.Require().NoError(s.bus.Publish(events.Log{Message: "first"}))
	s.Require().NoError(s.loop.Pause())
	s.Require().NoError(s.bus.Publish(events.Stats{Metric: "m", Value: 1}))
	s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 2}))

	for i := 0; i < 3; i++ {
		result := s.loop.Tick()
		s.Equal(engine.StatePaused, result.State)
	}
	s.Empty(s.seen, "paused loop only dispatches control events")
	s.Equal(2, s.bus.PendingIn(events.PriorityLow), "deferred, not dropped")

	s.Require().NoError(s.loop.Resume())
	s.loop.Tick()

	s.Equal([]events.Event{
		events.TurnStart{FactionID: 1},
		events.TurnStart{FactionID: 2},
		events.Log{Message: "first"},
		events.Stats{Metric: "m", Value: 1},
	}, s.seen)
}

func (s *GameLoopSuite) TestHandlerPublishedEventsLandNextTick() {
	s.record(events.KindLog)
	s.on(events.KindTurnStart, func(events.Event) error {
		return s.bus.Publish(events.Log{Message: "from handler"})
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 1}))
	s.loop.Tick()
	s.Empty(s.seen)

	s.loop.Tick()
	s.Equal([]events.Event{events.Log{Message: "from handler"}}, s.seen)
}

func (s *GameLoopSuite) TestStopScenario_DiscardsLeftovers() {
	s.record(events.KindAll)
	s.on(events.KindTurnStart, func(events.Event) error {
		return s.loop.Stop()
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 1}))
	s.Require().NoError(s.bus.Publish(events.Log{Message: "late"}))

	err := s.loop.Run(context.Background())

	s.Require().NoError(err)
	s.Equal([]events.Kind{events.KindStart, events.KindTurnStart, events.KindStop}, s.kinds())
	s.Equal(engine.StateStopped, s.loop.State())
	s.Zero(s.bus.Pending())
	s.Equal(uint64(1), s.loop.Stats().Discarded)
	s.Contains(s.logBuf.String(), "WARNING: GameLoop: discarded 1 pending events at shutdown")
}

func (s *GameLoopSuite) TestRun_StartBehindStopKeepsRunning() {
	tests := []struct {
		name           string
		maxHighPerTick int
		restartLog     bool
	}{
		{name: "restart in the same tick", maxHighPerTick: 64},
		{name: "restart during shutdown", maxHighPerTick: 1, restartLog: true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			s.settings.MaxHighPerTick = tt.maxHighPerTick
			s.newLoop(nil)

			s.Require().NoError(s.loop.Start())
			s.loop.Tick()

			s.record(events.KindAll)
			stopped := false
			s.on(events.KindTurnStart, func(events.Event) error {
				if stopped {
					return nil
				}
				stopped = true
				return s.loop.Stop()
			})

			s.Require().NoError(s.loop.Stop())
			s.Require().NoError(s.loop.Start())
			s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 1}))

			err := s.loop.Run(context.Background())

			s.Require().NoError(err)
			s.Equal([]events.Kind{
				events.KindStop, events.KindStart, events.KindUpdate, events.KindTurnStart, events.KindStop,
			}, s.kinds())
			s.Equal(engine.StateStopped, s.loop.State())
			s.Zero(s.loop.Stats().Discarded)
			if tt.restartLog {
				s.Contains(s.logBuf.String(), "GameLoop: Running again during shutdown, continuing")
			}
		})
	}
}

func (s *GameLoopSuite) TestRun_ShutdownDiscardsHighBeyondBudget() {
	s.settings.MaxHighPerTick = 2
	s.newLoop(nil)

	reported := false
	s.on(events.KindStop, func(events.Event) error {
		if reported {
			return nil
		}
		reported = true
		for i := 0; i < 5; i++ {
			if err := s.bus.Publish(events.HandlerError{Message: "late"}); err != nil {
				return err
			}
		}
		return nil
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.loop.Stop())

	err := s.loop.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(engine.StateStopped, s.loop.State())
	s.Zero(s.bus.PendingIn(events.PriorityHigh))
	s.Zero(s.bus.Pending())
	s.Equal(uint64(3), s.loop.Stats().Discarded)
	s.Contains(s.logBuf.String(), "WARNING: GameLoop: discarded 3 pending events at shutdown")
}

func (s *GameLoopSuite) TestFatalFailureStopsLoop() {
	s.record(events.KindStop)
	s.on(events.KindTurnStart, func(events.Event) error {
		return gemerr.Fatal(gemerr.CodeInternal, "turn order corrupted")
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.TurnStart{FactionID: 1}))

	err := s.loop.Run(context.Background())

	s.Require().Error(err)
	s.True(gemerr.IsFatal(err))
	s.Contains(err.Error(), "turn order corrupted")
	s.Equal(engine.StateStopped, s.loop.State())
	s.Equal([]events.Event{events.Stop{}}, s.seen)
	s.Equal(uint64(1), s.loop.Stats().Fatal)
}

func (s *GameLoopSuite) TestPanicIsFatal() {
	s.on(events.KindUnitMove, func(events.Event) error {
		panic("nil map")
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.UnitMove{UnitID: 1}))

	err := s.loop.Run(context.Background())

	s.Require().Error(err)
	s.True(gemerr.Is(err, gemerr.CodePanic))
}

func (s *GameLoopSuite) TestRecoverableFailurePublishesHandlerError() {
	s.record(events.KindError)
	s.on(events.KindTurnEnd, func(events.Event) error {
		return errors.New("bad faction")
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.TurnEnd{FactionID: 4}))
	first := s.loop.Tick()
	s.loop.Tick()

	s.Equal(1, first.Failures)
	s.Equal(engine.StateRunning, s.loop.State())
	s.Require().Len(s.seen, 1)
	notice := s.seen[0].(events.HandlerError)
	s.Equal(events.KindTurnEnd, notice.Origin)
	s.Equal(gemerr.SeverityRecoverable, notice.Severity)
	s.Equal("bad faction", notice.Message)
	s.NotEmpty(notice.SubscriptionID)
	s.Equal(uint64(1), s.loop.Stats().Recoverable)
}

func (s *GameLoopSuite) TestWarningFailurePublishesLog() {
	s.record(events.KindLog)
	s.on(events.KindUnitMove, func(events.Event) error {
		return gemerr.Warning(gemerr.CodeFailedPrecondition, "unit already there")
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.UnitMove{UnitID: 2}))
	for i := 0; i < 2; i++ {
		s.loop.Tick()
	}

	s.Require().Len(s.seen, 1)
	entry := s.seen[0].(events.Log)
	s.Equal(events.LogLevelWarn, entry.Level)
	s.Contains(entry.Message, "unit already there")
	s.Equal(engine.StateRunning, s.loop.State())
	s.Equal(uint64(1), s.loop.Stats().Warnings)
}

func (s *GameLoopSuite) TestFailureWhileReportingIsOnlyLogged() {
	s.record(events.KindError)
	s.on(events.KindLog, func(events.Event) error {
		return errors.New("sink offline")
	})

	s.Require().NoError(s.loop.Start())
	s.Require().NoError(s.bus.Publish(events.Log{Message: "hello"}))
	for i := 0; i < 3; i++ {
		s.loop.Tick()
	}

	s.Empty(s.seen)
	s.Contains(s.logBuf.String(), "recoverable failure while dispatching Log: sink offline")
}

func (s *GameLoopSuite) TestUpdateDeltaIsClampedAndReset() {
	clock := mockengine.NewMockTimeProvider(s.ctrl)
	s.newLoop(clock)

	var deltas []float32
	s.on(events.KindUpdate, func(e events.Event) error {
		deltas = append(deltas, e.(events.Update).Delta)
		return nil
	})

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gomock.InOrder(
		clock.EXPECT().Now().Return(t0),
		clock.EXPECT().Now().Return(t0.Add(10*time.Millisecond)),
		clock.EXPECT().Now().Return(t0.Add(2*time.Second)),
		clock.EXPECT().Now().Return(t0.Add(2*time.Second+5*time.Millisecond)),
		clock.EXPECT().Now().Return(t0.Add(9*time.Second)),
		clock.EXPECT().Now().Return(t0.Add(9*time.Second+4*time.Millisecond)),
	)

	s.Require().NoError(s.loop.Start())
	s.loop.Tick() // publishes 0
	s.loop.Tick() // publishes 0.01
	s.loop.Tick() // publishes clamp
	s.Require().NoError(s.loop.Pause())
	s.loop.Tick() // paused, nothing published
	s.Require().NoError(s.loop.Resume())
	s.loop.Tick() // publishes 0 after resume
	s.loop.Tick() // dispatches the post-resume Update

	s.Require().Len(deltas, 4)
	s.Zero(deltas[0])
	s.InDelta(0.01, deltas[1], 1e-6)
	s.InDelta(1.0/60, deltas[2], 1e-6)
	s.Zero(deltas[3])
}

func (s *GameLoopSuite) TestStatsEveryNTicks() {
	s.settings.StatsEveryTicks = 2
	s.newLoop(nil)

	metrics := map[string]float64{}
	s.on(events.KindStats, func(e events.Event) error {
		st := e.(events.Stats)
		metrics[st.Metric] = st.Value
		return nil
	})

	s.Require().NoError(s.loop.Start())
	s.loop.Tick()
	s.loop.Tick()
	s.Empty(metrics)
	s.loop.Tick()

	s.Contains(metrics, engine.MetricQueueDepth)
	s.Contains(metrics, engine.MetricDispatched)
	s.Equal(float64(2), metrics[engine.MetricDispatched], "Start and the first Update")
}

func (s *GameLoopSuite) TestHighLaneBudget() {
	s.settings.MaxHighPerTick = 2
	s.newLoop(nil)

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.bus.Publish(events.HandlerError{Message: "x"}))
	}

	result := s.loop.Tick()

	s.Equal(2, result.Dispatched)
	s.Equal(3, s.bus.PendingIn(events.PriorityHigh))
	s.Contains(s.logBuf.String(), "high lane budget of 2 exhausted")
}

func (s *GameLoopSuite) TestRun_ContextCancelStops() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := 0
	s.on(events.KindUpdate, func(events.Event) error {
		updates++
		if updates == 3 {
			cancel()
		}
		return nil
	})

	s.Require().NoError(s.loop.Start())

	done := make(chan error, 1)
	go func() { done <- s.loop.Run(ctx) }()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("Run did not return after cancellation")
	}

	s.Equal(engine.StateStopped, s.loop.State())
	s.GreaterOrEqual(updates, 3)
	s.Zero(s.bus.Pending())
	s.Contains(s.logBuf.String(), "context done, requesting stop")
}

func (s *GameLoopSuite) TestRun_StopWhileStopped() {
	s.Require().NoError(s.loop.Stop())

	s.NoError(s.loop.Run(context.Background()))
	s.Equal(uint64(1), s.loop.Stats().Ticks)
}

func TestGameLoopSuite(t *testing.T) {
	suite.Run(t, new(GameLoopSuite))
}
