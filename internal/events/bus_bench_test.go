package events_test

import (
	"io"
	"log"
	"testing"

	"github.com/ts020/sl-gem/internal/events"
)

func BenchmarkPublishAndDispatch(b *testing.B) {
	bus := events.NewEventBus(&events.BusConfig{Logger: log.New(io.Discard, "", 0)})
	for i := 0; i < 4; i++ {
		if _, err := bus.Subscribe(events.KindUpdate, events.HandlerFunc(func(events.Event) error { return nil })); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bus.Publish(events.Update{Delta: 0.016}); err != nil {
			b.Fatal(err)
		}
		bus.DrainAndDispatchOne()
	}
}

func BenchmarkParallelPublish(b *testing.B) {
	bus := events.NewEventBus(&events.BusConfig{Logger: log.New(io.Discard, "", 0)})

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = bus.Publish(events.Stats{Metric: "bench", Value: 1})
		}
	})
}
