package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/model"
)

// Stage is a step of the staged graph reveal
type Stage int

const (
	StageIdle Stage = iota
	StageLoading
	StageNodes   // Nodes visible, edges hidden
	StageEdges   // Edges fading in
	StageSettled // Fully revealed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageLoading:
		return "loading"
	case StageNodes:
		return "nodes"
	case StageEdges:
		return "edges"
	case StageSettled:
		return "settled"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// RevealTiming holds the dwell time of the timed stages
type RevealTiming struct {
	Nodes time.Duration // Time in StageNodes before edges appear
	Edges time.Duration // Time in StageEdges before settling
}

// DefaultRevealTiming returns the standard pacing
func DefaultRevealTiming() RevealTiming {
	return RevealTiming{Nodes: 400 * time.Millisecond, Edges: 1200 * time.Millisecond}
}

// Reveal walks a graph view through Loading, Nodes, Edges and Settled
type Reveal struct {
	mu        sync.Mutex
	clock     clock.Clock
	timing    RevealTiming
	stage     Stage
	enteredAt time.Time
	err       error
}

// NewReveal creates a reveal in StageIdle
func NewReveal(clk clock.Clock, timing RevealTiming) *Reveal {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Reveal{clock: clk, timing: timing}
}

// Stage returns the current stage
func (r *Reveal) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

// Err returns the failure that moved the reveal to StageFailed
func (r *Reveal) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Start enters StageLoading; restarting from any stage is allowed
func (r *Reveal) Start() {
	r.enter(StageLoading, nil)
}

// Ready marks the graph as loaded
func (r *Reveal) Ready() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stage != StageLoading {
		return fmt.Errorf("ready in stage %s", r.stage)
	}
	r.setLocked(StageNodes, nil)
	return nil
}

// Fail moves to StageFailed
func (r *Reveal) Fail(err error) {
	r.enter(StageFailed, err)
}

// Tick advances a timed stage whose dwell time has elapsed and reports
// whether the stage changed
func (r *Reveal) Tick() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := r.clock.Now().Sub(r.enteredAt)
	switch {
	case r.stage == StageNodes && elapsed >= r.timing.Nodes:
		r.setLocked(StageEdges, nil)
	case r.stage == StageEdges && elapsed >= r.timing.Edges:
		r.setLocked(StageSettled, nil)
	default:
		return false
	}
	return true
}

func (r *Reveal) enter(s Stage, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setLocked(s, err)
}

func (r *Reveal) setLocked(s Stage, err error) {
	r.stage = s
	r.err = err
	r.enteredAt = r.clock.Now()
}

// Run drives a full reveal: it loads the graph with build and emits every
// stage change. A failed build emits StageFailed with whatever graph build
// returned (the previous graph on a failed expansion).
func (r *Reveal) Run(ctx context.Context, build func(context.Context) (*model.ClaimGraph, error), emit func(Stage, *model.ClaimGraph)) error {
	r.Start()
	emit(StageLoading, nil)

	g, err := build(ctx)
	if err != nil {
		r.Fail(err)
		emit(StageFailed, g)
		return err
	}
	if err := r.Ready(); err != nil {
		return err
	}
	emit(StageNodes, g)

	for _, wait := range []time.Duration{r.timing.Nodes, r.timing.Edges} {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(wait):
		}
		if r.Tick() {
			emit(r.Stage(), g)
		}
	}
	return nil
}
