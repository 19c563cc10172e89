package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmercier/folio/internal/events"
	"github.com/jmercier/folio/internal/modules/historical"
)

type fakeJob struct {
	name string
	runs int
	err  error
}

func (j *fakeJob) Name() string { return j.name }
func (j *fakeJob) Run() error {
	j.runs++
	return j.err
}

func TestSchedulerAddJob(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("*/15 * * * *", &fakeJob{name: "test_job"})
	require.NoError(t, err)

	err = s.AddJob("not a schedule", &fakeJob{name: "bad_job"})
	assert.Error(t, err)
}

func TestSchedulerRunNow(t *testing.T) {
	s := New(zerolog.Nop())

	job := &fakeJob{name: "immediate"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	failing := &fakeJob{name: "failing", err: errors.New("boom")}
	assert.Error(t, s.RunNow(failing))
}

type stubRefresher struct {
	calls int
	err   error
}

func (s *stubRefresher) RefreshToday(context.Context) error {
	s.calls++
	return s.err
}

func TestRefreshJob(t *testing.T) {
	refresher := &stubRefresher{}
	job := NewRefreshJob(refresher)

	assert.Equal(t, "snapshot_refresh", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, 1, refresher.calls)
}

type stubBackfiller struct {
	result *historical.Result
	err    error
}

func (s *stubBackfiller) Backfill(context.Context) (*historical.Result, error) {
	return s.result, s.err
}

func TestBackfillJobEmitsCompletionEvent(t *testing.T) {
	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())

	var received *events.Event
	bus.Subscribe(events.BackfillCompleted, func(event *events.Event) {
		received = event
	})

	job := NewBackfillJob(&stubBackfiller{result: &historical.Result{
		From:           time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:             time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		TradingDays:    3,
		SnapshotsAdded: 6,
	}}, manager)

	assert.Equal(t, "historical_backfill", job.Name())
	require.NoError(t, job.Run())

	require.NotNil(t, received)
	assert.Equal(t, "2024-01-02", received.Data["from"])
	assert.Equal(t, "2024-01-05", received.Data["to"])
	assert.Equal(t, float64(6), received.Data["snapshots_added"])
}

func TestBackfillJobEmitsErrorEvent(t *testing.T) {
	bus := events.NewBus()
	manager := events.NewManager(bus, zerolog.Nop())

	errored := 0
	bus.Subscribe(events.ErrorOccurred, func(*events.Event) { errored++ })

	job := NewBackfillJob(&stubBackfiller{err: errors.New("provider down")}, manager)
	assert.Error(t, job.Run())
	assert.Equal(t, 1, errored)
}
