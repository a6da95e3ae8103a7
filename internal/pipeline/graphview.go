package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/events"
	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/model"
)

// ErrNoGraphShown is returned for interaction before any graph is displayed
var ErrNoGraphShown = errors.New("no graph displayed")

// GraphBuilder produces claim graphs
type GraphBuilder interface {
	BuildOrFetch(ctx context.Context, claim string, target int, expand bool) (*model.ClaimGraph, error)
}

// GraphView is the displayed claim graph: its staged reveal, its layout and
// the view transform. One graph is shown at a time.
type GraphView struct {
	graphs GraphBuilder
	layout layout.Config
	timing graph.RevealTiming
	clock  clock.Clock
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.Mutex
	claim    string
	current  *model.ClaimGraph
	sim      *layout.Simulation
	view     layout.Transform
	settling bool
}

// GraphViewOption configures a GraphView
type GraphViewOption func(*GraphView)

// WithRevealClock drives the staged reveal from c
func WithRevealClock(c clock.Clock, timing graph.RevealTiming) GraphViewOption {
	return func(v *GraphView) {
		v.clock = c
		v.timing = timing
	}
}

// WithGraphLogger sets the logger
func WithGraphLogger(l *slog.Logger) GraphViewOption {
	return func(v *GraphView) { v.logger = l }
}

// NewGraphView creates an empty view publishing on bus
func NewGraphView(graphs GraphBuilder, cfg layout.Config, bus *events.Bus, opts ...GraphViewOption) *GraphView {
	v := &GraphView{
		graphs: graphs,
		layout: cfg,
		timing: graph.DefaultRevealTiming(),
		clock:  clock.Real{},
		bus:    bus,
		view:   layout.Identity,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Show builds (or expands) the graph for claim, walks it through the staged
// reveal and lays it out. On a failed expansion the previous graph stays
// displayed and is returned with the error.
func (v *GraphView) Show(ctx context.Context, claim string, nodes int, expand bool) (*model.ClaimGraph, error) {
	var shown *model.ClaimGraph
	displayed := expand && v.showing(claim)
	reveal := graph.NewReveal(v.clock, v.timing)

	build := func(ctx context.Context) (*model.ClaimGraph, error) {
		return v.graphs.BuildOrFetch(ctx, claim, nodes, expand)
	}
	emit := func(stage graph.Stage, g *model.ClaimGraph) {
		v.bus.Publish(events.GraphStage, events.GraphUpdate{Claim: claim, Stage: stage.String()})
		if stage == graph.StageNodes {
			shown = v.install(claim, g, expand)
		}
	}

	if err := reveal.Run(ctx, build, emit); err != nil {
		// An expansion never empties a graph that is already on screen
		empty := errors.Is(err, graph.ErrNoGraph) && !displayed && !errors.Is(err, graph.ErrExpandFailed)
		if empty {
			v.bus.Publish(events.GraphEmpty, events.GraphUpdate{Claim: claim, Error: err.Error()})
		} else {
			command := events.CmdGraph
			if expand {
				command = events.CmdExpand
			}
			v.logger.Warn("graph request failed", "claim", claim, "expand", expand, "error", err)
			v.bus.Publish(events.CommandFailed, events.CommandError{Command: command, Error: err.Error()})
		}
		if shown == nil {
			shown = v.Current()
		}
		return shown, err
	}

	if _, err := v.Settle(ctx); err != nil {
		return shown, err
	}
	return v.Current(), nil
}

// install replaces the displayed graph. Nodes already on screen keep their
// positions when the same claim is expanded.
func (v *GraphView) install(claim string, g *model.ClaimGraph, expand bool) *model.ClaimGraph {
	g = g.Clone()

	v.mu.Lock()
	merged := expand && v.sim != nil && v.claim == claim
	if merged {
		v.sim.WriteBack(g)
	}
	v.claim = claim
	v.current = g
	v.sim = layout.New(g, v.layout, layout.WithLogger(v.logger), layout.WithClock(v.clock))
	v.mu.Unlock()

	t := events.GraphReady
	if merged {
		t = events.GraphMerged
	}
	v.bus.Publish(t, events.GraphUpdate{Claim: claim, Graph: g})
	return g
}

// Settle runs the layout until it cools, publishing every tick. A call while
// another is running returns immediately.
func (v *GraphView) Settle(ctx context.Context) (int, error) {
	v.mu.Lock()
	sim := v.sim
	if sim == nil || v.settling {
		v.mu.Unlock()
		return 0, nil
	}
	v.settling = true
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.settling = false
		v.mu.Unlock()
	}()

	return sim.Run(ctx, func(tick int, positions []layout.NodePosition) {
		v.bus.Publish(events.LayoutTick, events.TickUpdate{Tick: tick, Positions: positions})
	})
}

// Current returns the displayed graph with its latest positions
func (v *GraphView) Current() *model.ClaimGraph {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return nil
	}
	g := v.current.Clone()
	v.sim.WriteBack(g)
	return g
}

func (v *GraphView) showing(claim string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current != nil && v.claim == claim
}

// Claim returns the claim of the displayed graph
func (v *GraphView) Claim() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claim
}

// DragStart pins a node
func (v *GraphView) DragStart(id string) error {
	sim, _, err := v.simulation()
	if err != nil {
		return err
	}
	return sim.DragStart(id)
}

// Drag moves a pinned node to the screen point (sx, sy)
func (v *GraphView) Drag(id string, sx, sy float64) error {
	sim, view, err := v.simulation()
	if err != nil {
		return err
	}
	x, y := view.Invert(sx, sy)
	if err := sim.Drag(id, x, y); err != nil {
		return err
	}

	// A running settle loop publishes the move; otherwise step once here so
	// neighbours follow the pointer
	v.mu.Lock()
	settling := v.settling
	v.mu.Unlock()
	if !settling {
		positions := sim.Step()
		v.bus.Publish(events.LayoutTick, events.TickUpdate{Tick: sim.Ticks(), Positions: positions})
	}
	return nil
}

// DragEnd releases a node
func (v *GraphView) DragEnd(id string) error {
	sim, _, err := v.simulation()
	if err != nil {
		return err
	}
	return sim.DragEnd(id)
}

// Zoom scales the view around the screen point (sx, sy)
func (v *GraphView) Zoom(factor, sx, sy float64) layout.Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = v.view.ZoomAt(factor, sx, sy)
	return v.view
}

// Pan moves the view by a screen offset
func (v *GraphView) Pan(dx, dy float64) layout.Transform {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.view = v.view.Translate(dx, dy)
	return v.view
}

// Click selects the node under the screen point and publishes it
func (v *GraphView) Click(sx, sy float64) (*model.PropagationNode, bool) {
	v.mu.Lock()
	if v.sim == nil {
		v.mu.Unlock()
		return nil, false
	}
	id, hit := v.sim.Click(v.view, sx, sy)
	idx, known := v.current.NodeIndex()[id]
	var node model.PropagationNode
	if hit && known {
		node = v.current.Nodes[idx]
	}
	v.mu.Unlock()

	if !hit || !known {
		return nil, false
	}
	v.bus.Publish(events.NodeSelected, node)
	return &node, true
}

func (v *GraphView) simulation() (*layout.Simulation, layout.Transform, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sim == nil {
		return nil, v.view, ErrNoGraphShown
	}
	return v.sim, v.view, nil
}
