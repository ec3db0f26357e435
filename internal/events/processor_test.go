package events_test

import (
	"bytes"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ts020/sl-gem/internal/events"
)

func TestClassify_PolicyTable(t *testing.T) {
	p := events.NewProcessor(nil)

	tests := []struct {
		event events.Event
		want  events.Priority
	}{
		{events.Start{}, events.PriorityHigh},
		{events.Stop{}, events.PriorityHigh},
		{events.Pause{}, events.PriorityHigh},
		{events.Resume{}, events.PriorityHigh},
		{events.HandlerError{}, events.PriorityHigh},
		{events.Update{}, events.PriorityNormal},
		{events.TurnStart{}, events.PriorityNormal},
		{events.TurnEnd{}, events.PriorityNormal},
		{events.UnitMove{}, events.PriorityNormal},
		{events.Log{}, events.PriorityLow},
		{events.Stats{}, events.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.event.Kind().String(), func(t *testing.T) {
			assert.Equal(t, tt.want, p.Classify(tt.event))
		})
	}
}

func TestClassify_EveryKindHasAnEntry(t *testing.T) {
	for _, k := range events.Kinds() {
		_, ok := events.ClassifyKind(k)
		assert.True(t, ok, "kind %s missing from priority table", k)
	}
}

func TestClassify_IsPure(t *testing.T) {
	p := events.NewProcessor(nil)

	p.Classify(events.Stop{})
	p.Classify(events.Log{})

	assert.Equal(t, uint64(0), p.Issued(), "classification must not consume sequence numbers")
}

func TestClassify_NilEvent(t *testing.T) {
	p := events.NewProcessor(nil)

	assert.NotPanics(t, func() {
		assert.Equal(t, events.PriorityNormal, p.Classify(nil))
	})
}

func TestProcess_AssignsSharedSequence(t *testing.T) {
	p := events.NewProcessor(nil)

	first := p.Process(events.Log{Message: "a"})
	second := p.Process(events.Stop{})
	third := p.Process(events.Update{Delta: 0.1})

	assert.Equal(t, uint64(0), first.Sequence)
	assert.Equal(t, uint64(1), second.Sequence)
	assert.Equal(t, uint64(2), third.Sequence)
	assert.Equal(t, events.PriorityLow, first.Priority)
	assert.Equal(t, events.PriorityHigh, second.Priority)
	assert.Equal(t, events.Update{Delta: 0.1}, third.Event)
}

func TestProcess_ConcurrentSequencesAreUnique(t *testing.T) {
	var buf bytes.Buffer
	p := events.NewProcessor(log.New(&buf, "", 0))

	const producers, perProducer = 8, 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, producers*perProducer)
	)
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				pe := p.Process(events.Stats{Metric: "n", Value: float64(j)})
				mu.Lock()
				seen[pe.Sequence] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, producers*perProducer)
	assert.Equal(t, uint64(producers*perProducer), p.Issued())
	assert.Empty(t, buf.String())
}

func TestPrioritizedEvent_Before(t *testing.T) {
	high := events.PrioritizedEvent{Priority: events.PriorityHigh, Sequence: 10}
	normalOld := events.PrioritizedEvent{Priority: events.PriorityNormal, Sequence: 1}
	normalNew := events.PrioritizedEvent{Priority: events.PriorityNormal, Sequence: 2}

	assert.True(t, high.Before(normalOld), "priority beats sequence")
	assert.True(t, normalOld.Before(normalNew))
	assert.False(t, normalNew.Before(normalOld))
}
