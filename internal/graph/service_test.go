package graph

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const borderClaim = "Border immigration surged to record levels last year"

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string) extract.Result {
	return extract.Result{
		Keywords: borderKeywords,
		Topic:    "Immigration",
		Summary:  "Border immigration surged",
		Source:   extract.SourceLocal,
	}
}

func newTestService(src PostSource) *Service {
	return NewService(src, Config{
		TargetNodes:      10,
		ExpandIncrement:  5,
		MinRelevance:     15,
		RelaxedRelevance: 5,
	},
		WithLogger(quietLogger()),
		WithExtractor(stubExtractor{}),
		WithRand(func(key string, round int) *rand.Rand { return seeded(int64(round) + 7) }),
	)
}

func TestService_ColdBuildThenHit(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(src)
	ctx := context.Background()

	g, err := svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 10)
	assert.Equal(t, "Immigration", g.Topic)
	assert.Equal(t, "Border immigration surged", g.ClaimSummary)
	assert.Equal(t, borderKeywords, g.Keywords)
	assert.Equal(t, "fake", g.Source)
	assert.Equal(t, 0, g.Expansions)
	assertWellFormed(t, g)

	again, err := svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)
	assert.Equal(t, g, again)
	assert.Equal(t, 1, src.callCount(), "second call is served from cache")
}

func TestService_CallerPositionsAreNotCached(t *testing.T) {
	svc := newTestService(&fakeSource{})

	g, err := svc.BuildOrFetch(context.Background(), borderClaim, 0, false)
	require.NoError(t, err)
	g.Nodes[0].Position = &model.Position{X: 10, Y: 20}

	cached, ok := svc.Peek(borderClaim)
	require.True(t, ok)
	assert.Nil(t, cached.Nodes[0].Position)
}

func TestService_ClaimsSharingPrefixShareGraph(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(src)
	prefix := strings.Repeat("border immigration ", 6)[:100]

	_, err := svc.BuildOrFetch(context.Background(), prefix+" in Texas", 0, false)
	require.NoError(t, err)
	_, err = svc.BuildOrFetch(context.Background(), prefix+" in Arizona", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount())
}

func TestService_Expand(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(src)
	ctx := context.Background()

	g, err := svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)

	expanded, err := svc.BuildOrFetch(ctx, borderClaim, 0, true)
	require.NoError(t, err)
	assert.Len(t, expanded.Nodes, 15)
	assert.Equal(t, 1, expanded.Expansions)
	assert.Equal(t, g.Topic, expanded.Topic)
	assertWellFormed(t, expanded)

	idx := expanded.NodeIndex()
	for _, n := range g.Nodes {
		require.Contains(t, idx, n.ID)
		got := expanded.Nodes[idx[n.ID]]
		assert.Equal(t, n.Stance, got.Stance, "stance of %s changed on expand", n.ID)
		assert.Equal(t, n.Cluster, got.Cluster)
	}

	src.mu.Lock()
	last := src.calls[len(src.calls)-1]
	src.mu.Unlock()
	assert.Equal(t, 1, last.Round)
	assert.Equal(t, 15, last.Count)
	assert.Equal(t, borderKeywords, last.Keywords)

	again, err := svc.BuildOrFetch(ctx, borderClaim, 0, true)
	require.NoError(t, err)
	assert.Len(t, again.Nodes, 20)
	assert.Equal(t, 2, again.Expansions)
}

func TestService_ExpandFailureKeepsCachedGraph(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(src)
	ctx := context.Background()

	g, err := svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)

	src.setErr(errors.New("rate limited"))
	got, err := svc.BuildOrFetch(ctx, borderClaim, 0, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpandFailed)
	assert.ErrorIs(t, err, ErrNoGraph)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, g, got, "previous graph is still returned")

	cached, ok := svc.Peek(borderClaim)
	require.True(t, ok)
	assert.Equal(t, 0, cached.Expansions)
	assert.Len(t, cached.Nodes, 10)
}

func TestService_NoRelevantPosts(t *testing.T) {
	src := &fakeSource{posts: func(req SearchRequest) []model.Post {
		return []model.Post{{ID: "x", Text: "cooking pasta tonight", Followers: 5_000_000, Likes: 90_000}}
	}}
	svc := newTestService(src)

	g, err := svc.BuildOrFetch(context.Background(), borderClaim, 0, false)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrNoGraph)

	_, ok := svc.Peek(borderClaim)
	assert.False(t, ok, "failed builds are not cached")
}

func TestService_RelaxedThresholdFallback(t *testing.T) {
	src := &fakeSource{posts: func(req SearchRequest) []model.Post {
		return []model.Post{
			{ID: "a", Text: "slow traffic at the border"},
			{ID: "b", Text: "immigration office closed early"},
			{ID: "c", Text: "cooking pasta tonight"},
		}
	}}
	svc := newTestService(src)

	g, err := svc.BuildOrFetch(context.Background(), borderClaim, 0, false)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assertWellFormed(t, g)
}

func TestService_EmptyClaim(t *testing.T) {
	svc := newTestService(&fakeSource{})
	_, err := svc.BuildOrFetch(context.Background(), "   ", 0, false)
	assert.ErrorIs(t, err, ErrNoGraph)
}

func TestService_ConcurrentRequestsShareOneBuild(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	svc := newTestService(src)

	var wg sync.WaitGroup
	results := make([]*model.ClaimGraph, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g, err := svc.BuildOrFetch(context.Background(), borderClaim, 0, false)
			assert.NoError(t, err)
			results[i] = g
		}(i)
	}

	assert.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, 1, src.callCount())
	for _, g := range results {
		require.NotNil(t, g)
		assert.Len(t, g.Nodes, 10)
	}
	// Each caller owns its copy
	results[0].Nodes[0].Text = "mutated"
	assert.NotEqual(t, "mutated", results[1].Nodes[0].Text)
}

func TestService_Invalidate(t *testing.T) {
	src := &fakeSource{}
	svc := newTestService(src)
	ctx := context.Background()

	_, err := svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(borderClaim))

	_, err = svc.BuildOrFetch(ctx, borderClaim, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(model.DefaultConfig().Graph)
	assert.Equal(t, 30, cfg.TargetNodes)
	assert.Equal(t, 20, cfg.ExpandIncrement)
	assert.Equal(t, 100, cfg.CacheKeyLength)
	assert.Equal(t, 5, cfg.Synth.MaxClusters)
	assert.Equal(t, 3, cfg.Synth.BridgeEdges)
}
