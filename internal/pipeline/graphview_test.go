package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/events"
	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraphs struct {
	mu      sync.Mutex
	size    int
	calls   int
	failing error
}

func (f *fakeGraphs) BuildOrFetch(ctx context.Context, claim string, target int, expand bool) (*model.ClaimGraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing != nil {
		if expand && f.size > 0 {
			return testGraph(claim, f.size), f.failing
		}
		return nil, f.failing
	}
	if expand {
		f.size += 2
	} else if f.size == 0 {
		f.size = 4
	}
	return testGraph(claim, f.size), nil
}

func testGraph(claim string, n int) *model.ClaimGraph {
	stances := []model.Stance{model.StanceSupports, model.StanceContradicts, model.StanceNeutral}
	g := &model.ClaimGraph{ClaimSummary: claim}
	for i := 0; i < n; i++ {
		s := stances[i%3]
		g.Nodes = append(g.Nodes, model.PropagationNode{
			ID:           fmt.Sprintf("p%d", i),
			Handle:       fmt.Sprintf("@user%d", i),
			Impressions:  1000 * (i + 1),
			Stance:       s,
			ClusterIndex: s.ClusterIndex(),
		})
		if i > 0 {
			g.Edges = append(g.Edges, model.PropagationEdge{Source: fmt.Sprintf("p%d", i), Target: "p0", Type: model.EdgeRelated})
		}
	}
	return g
}

func newTestView(graphs GraphBuilder) (*GraphView, *recorder) {
	bus := events.NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	cfg := layout.ConfigFromModel(model.DefaultConfig().Layout)
	cfg.MaxTicks = 50
	cfg.Frame = 0
	v := NewGraphView(graphs, cfg, bus, WithRevealClock(clock.Real{}, graph.RevealTiming{}))
	return v, rec
}

func stages(rec *recorder) []string {
	var out []string
	for _, ev := range rec.ofType(events.GraphStage) {
		out = append(out, ev.Data.(events.GraphUpdate).Stage)
	}
	return out
}

func TestGraphView_ShowRevealsAndLaysOut(t *testing.T) {
	v, rec := newTestView(&fakeGraphs{})

	g, err := v.Show(context.Background(), "taxes went up 40%", 30, false)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 4)
	for _, n := range g.Nodes {
		require.NotNil(t, n.Position, "node %s has a position", n.ID)
	}

	assert.Equal(t, []string{"loading", "nodes", "edges", "settled"}, stages(rec))
	assert.Len(t, rec.ofType(events.GraphReady), 1)
	assert.NotEmpty(t, rec.ofType(events.LayoutTick))
	assert.Equal(t, "taxes went up 40%", v.Claim())
}

func TestGraphView_ExpandMerges(t *testing.T) {
	graphs := &fakeGraphs{}
	v, rec := newTestView(graphs)
	ctx := context.Background()

	_, err := v.Show(ctx, "claim", 30, false)
	require.NoError(t, err)
	g, err := v.Show(ctx, "claim", 30, true)
	require.NoError(t, err)

	assert.Len(t, g.Nodes, 6)
	assert.Len(t, rec.ofType(events.GraphMerged), 1)
	assert.Len(t, rec.ofType(events.GraphReady), 1)
}

func TestGraphView_FailedExpandKeepsGraph(t *testing.T) {
	graphs := &fakeGraphs{}
	v, rec := newTestView(graphs)
	ctx := context.Background()

	_, err := v.Show(ctx, "claim", 30, false)
	require.NoError(t, err)

	graphs.failing = errors.New("search quota exhausted")
	g, err := v.Show(ctx, "claim", 30, true)
	require.Error(t, err)
	require.NotNil(t, g)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, rec.ofType(events.CommandFailed), 1)
	assert.Equal(t, "failed", stages(rec)[len(stages(rec))-1])
}

type taxPosts struct {
	mu  sync.Mutex
	err error
}

func (s *taxPosts) Name() string { return "tax-posts" }

func (s *taxPosts) Search(ctx context.Context, req graph.SearchRequest) ([]model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	posts := make([]model.Post, req.Count)
	for i := range posts {
		posts[i] = model.Post{
			ID:           fmt.Sprintf("r%d-%d", req.Round, i),
			AuthorHandle: fmt.Sprintf("@author%d", i),
			Text:         "taxes went up forty percent according to the budget report",
			Followers:    1000 + i,
			Impressions:  500 * (i + 1),
			Kind:         model.PostOriginal,
		}
	}
	return posts, nil
}

type taxKeywords struct{}

func (taxKeywords) Extract(context.Context, string) extract.Result {
	return extract.Result{Keywords: []string{"taxes", "budget"}, Summary: "Taxes went up", Source: extract.SourceLocal}
}

func TestGraphView_FailedExpandThroughServiceIsNotEmpty(t *testing.T) {
	src := &taxPosts{}
	svc := graph.NewService(src, graph.ConfigFromModel(model.DefaultConfig().Graph),
		graph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		graph.WithExtractor(taxKeywords{}),
		graph.WithRand(func(string, int) *rand.Rand { return rand.New(rand.NewSource(1)) }))
	v, rec := newTestView(svc)
	ctx := context.Background()

	g, err := v.Show(ctx, "taxes went up 40%", 10, false)
	require.NoError(t, err)
	require.NotEmpty(t, g.Nodes)

	src.mu.Lock()
	src.err = errors.New("search quota exhausted")
	src.mu.Unlock()

	kept, err := v.Show(ctx, "taxes went up 40%", 10, true)
	require.ErrorIs(t, err, graph.ErrExpandFailed)
	require.NotNil(t, kept)
	assert.Len(t, kept.Nodes, len(g.Nodes))
	assert.Empty(t, rec.ofType(events.GraphEmpty))

	failed := rec.ofType(events.CommandFailed)
	require.Len(t, failed, 1)
	cmdErr := failed[0].Data.(events.CommandError)
	assert.Equal(t, events.CmdExpand, cmdErr.Command)
	assert.Contains(t, cmdErr.Error, "search quota exhausted")
	assert.Len(t, v.Current().Nodes, len(g.Nodes))
}

func TestGraphView_NoGraph(t *testing.T) {
	v, rec := newTestView(&fakeGraphs{failing: graph.ErrNoGraph})

	g, err := v.Show(context.Background(), "nothing matches", 30, false)
	assert.ErrorIs(t, err, graph.ErrNoGraph)
	assert.Nil(t, g)
	assert.Len(t, rec.ofType(events.GraphEmpty), 1)
	assert.Empty(t, rec.ofType(events.CommandFailed))
}

func TestGraphView_Interaction(t *testing.T) {
	v, rec := newTestView(&fakeGraphs{})
	ctx := context.Background()

	assert.ErrorIs(t, v.DragStart("p0"), ErrNoGraphShown)
	_, ok := v.Click(0, 0)
	assert.False(t, ok)

	g, err := v.Show(ctx, "claim", 30, false)
	require.NoError(t, err)

	// Click hits a node at its screen position under a zoomed, panned view
	v.Zoom(2, 0, 0)
	view := v.Pan(15, -5)
	assert.Equal(t, 2.0, view.K)
	target := g.Nodes[3]
	sx, sy := view.Apply(target.Position.X, target.Position.Y)
	node, ok := v.Click(sx, sy)
	require.True(t, ok)
	assert.Equal(t, "p3", node.ID)
	assert.Len(t, rec.ofType(events.NodeSelected), 1)

	// Dragging pins the node under the pointer
	require.NoError(t, v.DragStart("p1"))
	require.NoError(t, v.Drag("p1", 215, 195))
	_, err = v.Settle(ctx)
	require.NoError(t, err)
	var p1 *model.Position
	for _, n := range v.Current().Nodes {
		if n.ID == "p1" {
			p1 = n.Position
		}
	}
	require.NotNil(t, p1)
	wx, wy := view.Invert(215, 195)
	assert.InDelta(t, wx, p1.X, 1e-9)
	assert.InDelta(t, wy, p1.Y, 1e-9)
	require.NoError(t, v.DragEnd("p1"))

	assert.Error(t, v.DragStart("missing"))
}

func TestGraphView_HeldDragPublishesTicks(t *testing.T) {
	v, rec := newTestView(&fakeGraphs{})
	ctx := context.Background()

	_, err := v.Show(ctx, "claim", 30, false)
	require.NoError(t, err)

	// The settle loop started on drag start ends at the tick cap while the
	// node is still held
	require.NoError(t, v.DragStart("p1"))
	_, err = v.Settle(ctx)
	require.NoError(t, err)
	before := len(rec.ofType(events.LayoutTick))

	require.NoError(t, v.Drag("p1", 300, 200))
	require.NoError(t, v.Drag("p1", 320, 210))

	ticks := rec.ofType(events.LayoutTick)
	require.Len(t, ticks, before+2)
	last := ticks[len(ticks)-1].Data.(events.TickUpdate)
	for _, p := range last.Positions {
		if p.ID == "p1" {
			assert.InDelta(t, 320.0, p.X, 1e-9)
			assert.InDelta(t, 210.0, p.Y, 1e-9)
		}
	}
	assert.Greater(t, last.Tick, ticks[before].Data.(events.TickUpdate).Tick)
	require.NoError(t, v.DragEnd("p1"))
}
