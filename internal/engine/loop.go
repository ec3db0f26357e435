package engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ts020/sl-gem/internal/config"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
)

const (
	MetricQueueDepth = "loop.queue_depth"
	MetricDispatched = "loop.dispatched"
)

// LoopConfig holds configuration for the game loop
type LoopConfig struct {
	Bus          *events.EventBus   // Required
	Settings     *config.LoopConfig // Optional, config.DefaultLoopConfig() if nil
	TimeProvider TimeProvider       // Optional, wall clock if nil
	Logger       *log.Logger        // Optional, log.Default() if nil
}

// TickResult summarizes one tick
type TickResult struct {
	State      State
	Dispatched int
	Failures   int
	Stopped    bool // a Stop event was dispatched during the tick
}

// LoopStats are cumulative counters, safe to read from any goroutine
type LoopStats struct {
	State       State
	Ticks       uint64
	Dispatched  uint64
	Discarded   uint64
	Warnings    uint64
	Recoverable uint64
	Fatal       uint64
}

// GameLoop owns the lifecycle state machine and is the single consumer of
// the event bus. Tick and Run must be called from one goroutine; everything
// else may be called from anywhere.
type GameLoop struct {
	bus      *events.EventBus
	settings config.LoopConfig
	clock    TimeProvider
	logger   *log.Logger

	state atomic.Int32

	// loop goroutine only
	lastUpdate   time.Time
	hasBaseline  bool
	runningTicks uint64
	fatalErr     error

	ticks       atomic.Uint64
	dispatched  atomic.Uint64
	discarded   atomic.Uint64
	warnings    atomic.Uint64
	recoverable atomic.Uint64
	fatal       atomic.Uint64
}

// NewGameLoop creates a stopped game loop and subscribes it to the control
// events before any other subscriber can register on the bus it is given.
func NewGameLoop(cfg *LoopConfig) *GameLoop {
	if cfg == nil || cfg.Bus == nil {
		panic("event bus is required")
	}

	g := &GameLoop{
		bus:    cfg.Bus,
		clock:  cfg.TimeProvider,
		logger: cfg.Logger,
	}
	if cfg.Settings != nil {
		g.settings = *cfg.Settings
	} else {
		g.settings = config.DefaultLoopConfig()
	}
	if g.clock == nil {
		g.clock = RealTimeProvider{}
	}
	if g.logger == nil {
		g.logger = log.Default()
	}
	g.state.Store(int32(StateStopped))

	for _, kind := range []events.Kind{events.KindStart, events.KindStop, events.KindPause, events.KindResume} {
		if _, err := g.bus.Subscribe(kind, events.HandlerFunc(g.handleControl)); err != nil {
			panic(fmt.Sprintf("failed to subscribe game loop to %s: %v", kind, err))
		}
	}

	return g
}

// State returns the current lifecycle state
func (g *GameLoop) State() State {
	return State(g.state.Load())
}

// Stats returns a snapshot of the loop counters
func (g *GameLoop) Stats() LoopStats {
	return LoopStats{
		State:       g.State(),
		Ticks:       g.ticks.Load(),
		Dispatched:  g.dispatched.Load(),
		Discarded:   g.discarded.Load(),
		Warnings:    g.warnings.Load(),
		Recoverable: g.recoverable.Load(),
		Fatal:       g.fatal.Load(),
	}
}

// Start publishes a Start event
func (g *GameLoop) Start() error { return g.bus.Publish(events.Start{}) }

// Stop publishes a Stop event
func (g *GameLoop) Stop() error { return g.bus.Publish(events.Stop{}) }

// Pause publishes a Pause event
func (g *GameLoop) Pause() error { return g.bus.Publish(events.Pause{}) }

// Resume publishes a Resume event
func (g *GameLoop) Resume() error { return g.bus.Publish(events.Resume{}) }

func (g *GameLoop) setState(from, to State) {
	g.state.Store(int32(to))
	g.logger.Printf("GameLoop: %s -> %s", from, to)
}

// handleControl drives the state machine. Illegal transitions are ignored.
func (g *GameLoop) handleControl(e events.Event) error {
	current := g.State()

	switch e.Kind() {
	case events.KindStart:
		if current != StateStopped {
			g.logger.Printf("GameLoop: ignoring Start while %s", current)
			return nil
		}
		g.hasBaseline = false
		g.runningTicks = 0
		g.fatalErr = nil
		g.setState(current, StateRunning)
	case events.KindPause:
		if current != StateRunning {
			g.logger.Printf("GameLoop: ignoring Pause while %s", current)
			return nil
		}
		g.setState(current, StatePaused)
	case events.KindResume:
		if current != StatePaused {
			g.logger.Printf("GameLoop: ignoring Resume while %s", current)
			return nil
		}
		g.hasBaseline = false
		g.setState(current, StateRunning)
	case events.KindStop:
		if current == StateStopped {
			return nil
		}
		g.setState(current, StateStopped)
	}
	return nil
}

// tick carries the per-tick bookkeeping
type tick struct {
	result     TickResult
	highBudget int
}

// Tick runs one iteration: the High lane is drained, then (while Running)
// the Normal and Low events that were queued when the tick began are
// dispatched, High is drained once more and Update is published. Events published by handlers during
// the tick are delivered in a later tick unless they are High priority.
func (g *GameLoop) Tick() TickResult {
	now := g.clock.Now()
	g.ticks.Add(1)

	t := &tick{highBudget: g.settings.MaxHighPerTick}
	if t.highBudget <= 0 {
		t.highBudget = config.DefaultLoopConfig().MaxHighPerTick
	}

	normal := g.bus.PendingIn(events.PriorityNormal)
	low := g.bus.PendingIn(events.PriorityLow)

	g.drainHigh(t)

	if g.State() == StateRunning {
		g.dispatchLane(t, events.PriorityNormal, normal)
	}
	if g.State() == StateRunning {
		g.dispatchLane(t, events.PriorityLow, low)
	}
	g.drainHigh(t)

	if g.State() == StateRunning {
		g.publishUpdate(now)
		g.runningTicks++
		if every := uint64(g.settings.StatsEveryTicks); every > 0 && g.runningTicks%every == 0 {
			g.publishStats()
		}
	}

	t.result.State = g.State()
	return t.result
}

func (g *GameLoop) drainHigh(t *tick) {
	for g.bus.PendingIn(events.PriorityHigh) > 0 {
		if t.highBudget == 0 {
			g.logger.Printf("WARNING: GameLoop: high lane budget of %d exhausted, %d events left for next tick",
				g.settings.MaxHighPerTick, g.bus.PendingIn(events.PriorityHigh))
			return
		}
		report, ok := g.bus.DispatchFrom(events.PriorityHigh)
		if !ok {
			return
		}
		t.highBudget--
		g.afterDispatch(t, report)
	}
}

// dispatchLane delivers at most n events from lane p. Control events
// published meanwhile are handled first, and leaving Running ends the phase.
func (g *GameLoop) dispatchLane(t *tick, p events.Priority, n int) {
	for i := 0; i < n; i++ {
		g.drainHigh(t)
		if g.State() != StateRunning {
			return
		}
		report, ok := g.bus.DispatchFrom(p)
		if !ok {
			return
		}
		g.afterDispatch(t, report)
	}
}

func (g *GameLoop) afterDispatch(t *tick, report events.DispatchReport) {
	g.dispatched.Add(1)
	t.result.Dispatched++
	if report.Event.Event.Kind() == events.KindStop {
		t.result.Stopped = true
	}

	for _, failure := range report.Failures {
		t.result.Failures++
		g.applyPolicy(report.Event.Event, failure)
	}
}

// applyPolicy decides what a handler failure means for the simulation
func (g *GameLoop) applyPolicy(origin events.Event, failure events.HandlerFailure) {
	switch failure.Severity {
	case gemerr.SeverityFatal:
		g.fatal.Add(1)
	case gemerr.SeverityWarning:
		g.warnings.Add(1)
	default:
		g.recoverable.Add(1)
	}

	if failure.Severity == gemerr.SeverityFatal {
		g.logger.Printf("ERROR: GameLoop: fatal failure in %s, stopping: %v", events.Describe(origin), failure.Err)
		if g.fatalErr == nil {
			g.fatalErr = failure
		}
		if err := g.bus.Publish(events.Stop{}); err != nil {
			g.logger.Printf("ERROR: GameLoop: failed to publish Stop: %v", err)
		}
		return
	}

	// Reporting a failure of a reporting event would feed back into itself
	if kind := origin.Kind(); kind == events.KindError || kind == events.KindLog {
		g.logger.Printf("GameLoop: %s failure while dispatching %s: %v", failure.Severity, kind, failure.Err)
		return
	}

	var notice events.Event
	if failure.Severity == gemerr.SeverityWarning {
		notice = events.Log{
			Level:   events.LogLevelWarn,
			Message: fmt.Sprintf("handler %s on %s: %v", failure.SubscriptionID, origin.Kind(), failure.Err),
		}
	} else {
		notice = events.HandlerError{
			SubscriptionID: failure.SubscriptionID,
			Origin:         origin.Kind(),
			Severity:       failure.Severity,
			Message:        failure.Err.Error(),
		}
	}
	if err := g.bus.Publish(notice); err != nil {
		g.logger.Printf("WARNING: GameLoop: could not report %s failure: %v", failure.Severity, err)
	}
}

func (g *GameLoop) publishUpdate(now time.Time) {
	var delta float32
	if g.hasBaseline {
		delta = float32(now.Sub(g.lastUpdate).Seconds())
		if delta < 0 {
			delta = 0
		}
		if maxDelta := g.settings.MaxDelta(); delta > maxDelta {
			delta = maxDelta
		}
	}
	g.lastUpdate = now
	g.hasBaseline = true

	if err := g.bus.Publish(events.Update{Delta: delta}); err != nil {
		g.logger.Printf("WARNING: GameLoop: update skipped: %v", err)
	}
}

func (g *GameLoop) publishStats() {
	samples := []events.Stats{
		{Metric: MetricQueueDepth, Value: float64(g.bus.Pending())},
		{Metric: MetricDispatched, Value: float64(g.dispatched.Load())},
	}
	for _, sample := range samples {
		if err := g.bus.Publish(sample); err != nil {
			g.logger.Printf("WARNING: GameLoop: stats sample %s dropped: %v", sample.Metric, err)
		}
	}
}

// Run ticks at the configured rate until a Stop event has been dispatched
// and the loop is left Stopped. Cancelling ctx publishes Stop. Events still
// queued at that point are discarded and logged. The error is non-nil only
// when a Fatal handler failure caused the stop.
func (g *GameLoop) Run(ctx context.Context) error {
	budget := g.settings.FrameBudget()
	g.logger.Printf("GameLoop: Run started (target %d fps)", g.settings.TargetFPS)

	timer := time.NewTimer(budget)
	defer timer.Stop()

	cancelled := false
	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			g.logger.Printf("GameLoop: context done, requesting stop")
			if err := g.Stop(); err != nil {
				g.logger.Printf("ERROR: GameLoop: failed to publish Stop: %v", err)
			}
		}

		started := g.clock.Now()
		result := g.Tick()
		if result.Stopped {
			if g.State() == StateStopped {
				if done, err := g.shutdown(); done {
					return err
				}
			}
			// a Start queued behind the Stop brought the loop back
			cancelled = false
		}
		if cancelled {
			continue
		}

		wait := budget - g.clock.Now().Sub(started)
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// shutdown drains control events left behind the Stop and discards what
// is still queued in every lane. It reports false, discarding nothing, when
// one of the drained events started the loop again.
func (g *GameLoop) shutdown() (bool, error) {
	t := &tick{highBudget: g.settings.MaxHighPerTick}
	if t.highBudget <= 0 {
		t.highBudget = config.DefaultLoopConfig().MaxHighPerTick
	}
	g.drainHigh(t)

	if state := g.State(); state != StateStopped {
		g.logger.Printf("GameLoop: %s again during shutdown, continuing", state)
		return false, nil
	}

	dropped := 0
	for _, p := range events.Priorities() {
		dropped += len(g.bus.Discard(p))
	}
	if dropped > 0 {
		g.discarded.Add(uint64(dropped))
		g.logger.Printf("WARNING: GameLoop: discarded %d pending events at shutdown", dropped)
	}

	g.logger.Printf("GameLoop: Run finished after %d ticks", g.ticks.Load())

	if g.fatalErr != nil {
		return true, fmt.Errorf("game loop stopped on fatal error: %w", g.fatalErr)
	}
	return true, nil
}
