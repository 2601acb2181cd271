package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyAtNext(t *testing.T) {
	trig := DailyAt(2, 0)
	day := func(d, h, m int) time.Time { return time.Date(2024, 1, d, h, m, 0, 0, time.UTC) }

	assert.Equal(t, day(10, 2, 0), trig.Next(day(10, 1, 59)))
	assert.Equal(t, day(11, 2, 0), trig.Next(day(10, 2, 0)))
	assert.Equal(t, day(11, 2, 0), trig.Next(day(10, 13, 30)))
	assert.Equal(t, time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC), trig.Next(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestEveryNext(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(5*time.Minute), Every(5*time.Minute).Next(at))
	assert.Panics(t, func() { Every(0) })
	assert.Panics(t, func() { DailyAt(24, 0) })
}

func TestAddValidation(t *testing.T) {
	s := New(nil, nil)
	noop := func(context.Context) error { return nil }
	require.Error(t, s.Add(Job{Name: "", Trigger: Every(time.Second), Run: noop}))
	require.NoError(t, s.Add(Job{Name: "a", Trigger: Every(time.Second), Run: noop}))
	require.Error(t, s.Add(Job{Name: "a", Trigger: Every(time.Second), Run: noop}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	require.ErrorIs(t, s.Add(Job{Name: "b", Trigger: Every(time.Second), Run: noop}), ErrStarted)
	require.ErrorIs(t, s.Start(context.Background()), ErrStarted)
}

func TestJobsRunRepeatedly(t *testing.T) {
	s := New(nil, nil)
	var n atomic.Int32
	require.NoError(t, s.Add(Job{Name: "tick", Trigger: Every(5 * time.Millisecond), Run: func(context.Context) error {
		n.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "boom", Trigger: Every(5 * time.Millisecond), Run: func(context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		st, _ := s.Stats("boom")
		return st.Failed >= 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, n.Load(), "no runs after Stop")
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	s := New(nil, nil)
	release := make(chan struct{})
	var started atomic.Int32
	require.NoError(t, s.Add(Job{Name: "slow", Trigger: Every(2 * time.Millisecond), Run: func(ctx context.Context) error {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		st, _ := s.Stats("slow")
		return st.Skipped >= 3
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, int32(1), started.Load())
	close(release)

	require.Eventually(t, func() bool { return started.Load() >= 2 }, 2*time.Second, 2*time.Millisecond)
}

func TestStopWaitsForRunningJob(t *testing.T) {
	s := New(nil, nil)
	var finished atomic.Bool
	entered := make(chan struct{}, 1)
	require.NoError(t, s.Add(Job{Name: "cleanup", Trigger: Every(time.Millisecond), Run: func(ctx context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))
	<-entered
	s.Stop()
	assert.True(t, finished.Load())

	_, ok := s.Stats("missing")
	assert.False(t, ok)
}
