package telemetry

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/ts020/sl-gem/internal/engine"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/repositories/stats"
)

const defaultBufferSize = 256

// RecorderConfig holds configuration for the telemetry recorder
type RecorderConfig struct {
	Repository   stats.Repository    // Required
	TimeProvider engine.TimeProvider // Optional
	Logger       *log.Logger         // Optional
	BufferSize   int                 // Optional, 256 if zero
}

// record is one unit of work for the persistence worker
type record struct {
	sample *stats.Sample
	entry  *stats.LogEntry
}

// Recorder persists Stats and Log events. HandleEvent only hands the event
// to a buffered channel; Run does the storage calls on its own goroutine.
type Recorder struct {
	repo   stats.Repository
	clock  engine.TimeProvider
	logger *log.Logger
	queue  chan record

	persisted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewRecorder creates a new telemetry recorder
func NewRecorder(cfg *RecorderConfig) *Recorder {
	if cfg == nil || cfg.Repository == nil {
		panic("stats repository is required")
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	r := &Recorder{
		repo:   cfg.Repository,
		clock:  cfg.TimeProvider,
		logger: cfg.Logger,
		queue:  make(chan record, size),
	}
	if r.clock == nil {
		r.clock = engine.RealTimeProvider{}
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r
}

// Subscribe registers the recorder for Stats and Log events
func (r *Recorder) Subscribe(bus *events.EventBus) ([]events.SubscriptionHandle, error) {
	var handles []events.SubscriptionHandle
	for _, kind := range []events.Kind{events.KindStats, events.KindLog} {
		handle, err := bus.Subscribe(kind, r)
		if err != nil {
			for _, h := range handles {
				bus.Unsubscribe(h)
			}
			return nil, gemerr.Wrapf(err, "failed to subscribe telemetry to %s", kind)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// HandleEvent queues the event for persistence without blocking the loop.
// A full buffer is reported as a Warning.
func (r *Recorder) HandleEvent(e events.Event) error {
	var rec record
	switch ev := e.(type) {
	case events.Stats:
		rec.sample = &stats.Sample{Metric: ev.Metric, Value: ev.Value, RecordedAt: r.clock.Now()}
	case events.Log:
		rec.entry = &stats.LogEntry{Level: ev.Level.String(), Message: ev.Message, CreatedAt: r.clock.Now()}
	default:
		return nil
	}

	select {
	case r.queue <- rec:
		return nil
	default:
		r.dropped.Add(1)
		return gemerr.Warningf(gemerr.CodeResourceExhausted,
			"telemetry buffer full (%d), dropped %s", cap(r.queue), events.Describe(e))
	}
}

// Run persists queued records until ctx is done, then flushes what is left
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Printf("Telemetry: Recorder started")

	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			r.logger.Printf("Telemetry: Recorder stopped (%d persisted, %d dropped, %d failed)",
				r.persisted.Load(), r.dropped.Load(), r.failed.Load())
			return nil
		case rec := <-r.queue:
			r.persist(ctx, rec)
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.persist(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) persist(ctx context.Context, rec record) {
	var err error
	switch {
	case rec.sample != nil:
		err = r.repo.Record(ctx, rec.sample)
	case rec.entry != nil:
		err = r.repo.AppendLog(ctx, rec.entry)
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Printf("WARNING: Telemetry: failed to persist: %v", err)
		return
	}
	r.persisted.Add(1)
}

// Persisted returns how many records reached the repository
func (r *Recorder) Persisted() uint64 { return r.persisted.Load() }

// Dropped returns how many events were refused because the buffer was full
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Failed returns how many repository calls failed
func (r *Recorder) Failed() uint64 { return r.failed.Load() }
