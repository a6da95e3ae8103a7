package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = 3 * time.Second

func startPoller(t *testing.T, fetch FetchFunc) (*Poller, *clock.Fake, context.CancelFunc) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := NewPoller(interval, fetch, WithClock(clk))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitForTimer(t, clk)
	return p, clk, cancel
}

func waitForTimer(t *testing.T, clk *clock.Fake) {
	t.Helper()
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
}

func polls(p *Poller) int {
	n, _, _ := p.Stats()
	return n
}

func TestPoller_PollsOnInterval(t *testing.T) {
	var calls atomic.Int32
	p, clk, _ := startPoller(t, func(context.Context) error { calls.Add(1); return nil })

	clk.Advance(interval - time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return polls(p) == 1 }, time.Second, time.Millisecond)

	waitForTimer(t, clk)
	clk.Advance(interval)
	require.Eventually(t, func() bool { return polls(p) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoller_SuspendSkipsAndResumes(t *testing.T) {
	var calls atomic.Int32
	p, clk, _ := startPoller(t, func(context.Context) error { calls.Add(1); return nil })

	err := p.Suspend(func() error {
		assert.True(t, p.Suspended())
		clk.Advance(interval)
		require.Eventually(t, func() bool { _, skipped, _ := p.Stats(); return skipped == 1 }, time.Second, time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, p.Suspended())

	// Resuming refreshes right away without waiting for the next tick
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestPoller_ResumesAfterError(t *testing.T) {
	var calls atomic.Int32
	p, _, _ := startPoller(t, func(context.Context) error { calls.Add(1); return nil })

	want := errors.New("append failed")
	err := p.Suspend(func() error { return want })
	assert.ErrorIs(t, err, want)
	assert.False(t, p.Suspended())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestPoller_ResumesAfterPanic(t *testing.T) {
	var calls atomic.Int32
	p, _, _ := startPoller(t, func(context.Context) error { calls.Add(1); return nil })

	assert.Panics(t, func() {
		_ = p.Suspend(func() error { panic("regenerate exploded") })
	})
	assert.False(t, p.Suspended())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestPoller_NestedSuspend(t *testing.T) {
	p := NewPoller(interval, func(context.Context) error { return nil })

	_ = p.Suspend(func() error {
		_ = p.Suspend(func() error { return nil })
		assert.True(t, p.Suspended(), "outer suspension still active")
		assert.False(t, p.Poll(context.Background()))
		return nil
	})
	assert.False(t, p.Suspended())
	assert.True(t, p.Poll(context.Background()))
}

func TestPoller_SuspendWaitsForInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	p := NewPoller(interval, func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	})

	go p.Poll(context.Background())
	<-started

	ran := make(chan bool)
	go func() {
		_ = p.Suspend(func() error {
			ran <- finished.Load()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	assert.True(t, <-ran, "suspended work must not overlap a refresh")
}

func TestPoller_FetchFailuresAndPanicsAreContained(t *testing.T) {
	n := 0
	p := NewPoller(interval, func(context.Context) error {
		n++
		if n == 1 {
			return errors.New("store locked")
		}
		panic("bad row")
	})

	assert.True(t, p.Poll(context.Background()))
	assert.NotPanics(t, func() { p.Poll(context.Background()) })

	polls, skipped, failures := p.Stats()
	assert.Equal(t, 2, polls)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 2, failures)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	p := NewPoller(interval, func(context.Context) error { return nil }, WithClock(clock.NewFake(time.Now())))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
}
