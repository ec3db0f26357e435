package telemetry_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	mockengine "github.com/ts020/sl-gem/internal/engine/mock"
	gemerr "github.com/ts020/sl-gem/internal/errors"
	"github.com/ts020/sl-gem/internal/events"
	"github.com/ts020/sl-gem/internal/handlers/telemetry"
	"github.com/ts020/sl-gem/internal/repositories/stats"
	mockstats "github.com/ts020/sl-gem/internal/repositories/stats/mock"
	"github.com/ts020/sl-gem/internal/testutils"
)

type RecorderSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	repo     *mockstats.MockRepository
	clock    *mockengine.MockTimeProvider
	recorder *telemetry.Recorder
	now      time.Time
}

func (s *RecorderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.repo = mockstats.NewMockRepository(s.ctrl)
	s.clock = mockengine.NewMockTimeProvider(s.ctrl)
	s.now = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s.clock.EXPECT().Now().Return(s.now).AnyTimes()
	s.recorder = telemetry.NewRecorder(&telemetry.RecorderConfig{
		Repository:   s.repo,
		TimeProvider: s.clock,
		Logger:       log.New(io.Discard, "", 0),
		BufferSize:   2,
	})
}

func (s *RecorderSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RecorderSuite) TestHandleEvent_QueuesWithoutPersisting() {
	// No repository calls expected until Run
	s.NoError(s.recorder.HandleEvent(events.Stats{Metric: "fps", Value: 60}))
	s.NoError(s.recorder.HandleEvent(events.Update{Delta: 0.1}), "other kinds are ignored")
	s.Zero(s.recorder.Persisted())
}

func (s *RecorderSuite) TestHandleEvent_FullBufferIsWarning() {
	s.NoError(s.recorder.HandleEvent(events.Stats{Metric: "a", Value: 1}))
	s.NoError(s.recorder.HandleEvent(events.Log{Message: "b"}))

	err := s.recorder.HandleEvent(events.Stats{Metric: "c", Value: 3})

	s.Require().Error(err)
	s.Equal(gemerr.SeverityWarning, gemerr.SeverityOf(err))
	s.True(gemerr.IsResourceExhausted(err))
	s.Equal(uint64(1), s.recorder.Dropped())
}

func (s *RecorderSuite) TestRun_PersistsAndFlushes() {
	s.repo.EXPECT().Record(gomock.Any(), &stats.Sample{Metric: "loop.dispatched", Value: 12, RecordedAt: s.now}).Return(nil)
	s.repo.EXPECT().AppendLog(gomock.Any(), &stats.LogEntry{Level: "warn", Message: "careful", CreatedAt: s.now}).Return(nil)

	s.Require().NoError(s.recorder.HandleEvent(events.Stats{Metric: "loop.dispatched", Value: 12}))
	s.Require().NoError(s.recorder.HandleEvent(events.Log{Message: "careful", Level: events.LogLevelWarn}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.NoError(s.recorder.Run(ctx))
	s.Equal(uint64(2), s.recorder.Persisted())
}

func (s *RecorderSuite) TestRun_RepositoryFailureIsCounted() {
	done := make(chan struct{})
	s.repo.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *stats.Sample) error {
			close(done)
			return errors.New("redis down")
		})

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- s.recorder.Run(ctx) }()

	s.Require().NoError(s.recorder.HandleEvent(events.Stats{Metric: "fps", Value: 1}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("record was never persisted")
	}
	cancel()
	s.NoError(<-result)
	s.Equal(uint64(1), s.recorder.Failed())
	s.Zero(s.recorder.Persisted())
}

func (s *RecorderSuite) TestSubscribe() {
	bus := testutils.NewTestBus(s.T())

	handles, err := s.recorder.Subscribe(bus.EventBus)

	s.Require().NoError(err)
	s.Len(handles, 2)
	s.Equal(1, bus.SubscriptionCount(events.KindStats))
	s.Equal(1, bus.SubscriptionCount(events.KindLog))
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}
