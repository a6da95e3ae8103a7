package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTiming = RevealTiming{Nodes: 100 * time.Millisecond, Edges: 200 * time.Millisecond}

func TestReveal_StageTransitions(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewReveal(clk, testTiming)
	assert.Equal(t, StageIdle, r.Stage())

	assert.Error(t, r.Ready(), "ready before loading")

	r.Start()
	assert.Equal(t, StageLoading, r.Stage())
	assert.False(t, r.Tick(), "loading is not timed")

	require.NoError(t, r.Ready())
	assert.Equal(t, StageNodes, r.Stage())

	clk.Advance(50 * time.Millisecond)
	assert.False(t, r.Tick())
	clk.Advance(50 * time.Millisecond)
	assert.True(t, r.Tick())
	assert.Equal(t, StageEdges, r.Stage())

	clk.Advance(199 * time.Millisecond)
	assert.False(t, r.Tick())
	clk.Advance(time.Millisecond)
	assert.True(t, r.Tick())
	assert.Equal(t, StageSettled, r.Stage())
	assert.False(t, r.Tick())
}

func TestReveal_FailAndRestart(t *testing.T) {
	r := NewReveal(clock.NewFake(time.Now()), testTiming)
	r.Start()
	r.Fail(errors.New("boom"))
	assert.Equal(t, StageFailed, r.Stage())
	assert.EqualError(t, r.Err(), "boom")

	r.Start()
	assert.Equal(t, StageLoading, r.Stage())
	assert.NoError(t, r.Err())
}

type stageLog struct {
	mu     sync.Mutex
	stages []Stage
	graphs []*model.ClaimGraph
}

func (l *stageLog) emit(s Stage, g *model.ClaimGraph) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stages = append(l.stages, s)
	l.graphs = append(l.graphs, g)
}

func (l *stageLog) snapshot() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Stage(nil), l.stages...)
}

func TestReveal_Run(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := NewReveal(clk, testTiming)
	g := &model.ClaimGraph{ClaimSummary: "claim"}
	log := &stageLog{}

	done := make(chan error, 1)
	go func() {
		done <- r.Run(context.Background(), func(context.Context) (*model.ClaimGraph, error) { return g, nil }, log.emit)
	}()

	assert.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []Stage{StageLoading, StageNodes}, log.snapshot())

	clk.Advance(testTiming.Nodes)
	assert.Eventually(t, func() bool { return clk.Waiters() == 1 && len(log.snapshot()) == 3 }, time.Second, time.Millisecond)

	clk.Advance(testTiming.Edges)
	require.NoError(t, <-done)

	assert.Equal(t, []Stage{StageLoading, StageNodes, StageEdges, StageSettled}, log.snapshot())
	assert.Same(t, g, log.graphs[3])
	assert.Equal(t, StageSettled, r.Stage())
}

func TestReveal_RunFailureEmitsPreviousGraph(t *testing.T) {
	r := NewReveal(clock.NewFake(time.Now()), testTiming)
	prev := &model.ClaimGraph{ClaimSummary: "previous"}
	log := &stageLog{}

	err := r.Run(context.Background(), func(context.Context) (*model.ClaimGraph, error) {
		return prev, ErrNoGraph
	}, log.emit)

	assert.ErrorIs(t, err, ErrNoGraph)
	assert.Equal(t, []Stage{StageLoading, StageFailed}, log.snapshot())
	assert.Same(t, prev, log.graphs[1])
	assert.ErrorIs(t, r.Err(), ErrNoGraph)
}

func TestReveal_RunCanceled(t *testing.T) {
	clk := clock.NewFake(time.Now())
	r := NewReveal(clk, testTiming)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context) (*model.ClaimGraph, error) { return &model.ClaimGraph{}, nil }, func(Stage, *model.ClaimGraph) {})
	}()
	assert.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, StageNodes, r.Stage())
}
