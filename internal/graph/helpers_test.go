package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/ppiankov/veracast/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makePosts returns n posts about border immigration with varied reach
func makePosts(n int, prefix string) []model.Post {
	texts := []string{
		"border immigration numbers are fake news",
		"border immigration surged, confirmed by the data",
		"thoughts on border immigration policy today",
		"border immigration debate continues in the senate",
	}
	posts := make([]model.Post, n)
	for i := range posts {
		posts[i] = model.Post{
			ID:           fmt.Sprintf("%s%d", prefix, i),
			AuthorName:   fmt.Sprintf("Author %d", i),
			AuthorHandle: fmt.Sprintf("@author%d", i),
			Followers:    (i*7919)%50000 + 100,
			Text:         texts[i%len(texts)],
			Impressions:  (i*104729)%90000 + 500,
			Likes:        (i * 31) % 2000,
			Reposts:      i % 50,
			Kind:         model.PostOriginal,
		}
	}
	return posts
}

type fakeSource struct {
	mu    sync.Mutex
	calls []SearchRequest
	err   error
	gate  chan struct{}
	posts func(req SearchRequest) []model.Post
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Search(ctx context.Context, req SearchRequest) ([]model.Post, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	err, gate := f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if f.posts != nil {
		return f.posts(req), nil
	}
	return makePosts(req.Count, "p"), nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func seeded(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func synthGraph(n int, seed int64) *model.ClaimGraph {
	nodes, eng := NodesFromPosts(makePosts(n, "p"))
	nodes, edges := Synthesize(nodes, eng, seeded(seed), DefaultSynthOptions())
	return &model.ClaimGraph{Nodes: nodes, Edges: edges, Statistics: ComputeStatistics(nodes)}
}
