// Package graph synthesizes, caches and expands claim propagation graphs.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/cache"
	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/model"
	"golang.org/x/sync/singleflight"
)

// ErrNoGraph means no graph could be produced for a claim. It is an empty,
// retryable state rather than a failure of the caller.
var ErrNoGraph = errors.New("no graph available for claim")

// ErrExpandFailed wraps a failed expansion. The cached graph is kept and
// returned alongside it.
var ErrExpandFailed = errors.New("graph expansion failed")

// SearchRequest asks a post source for candidates
type SearchRequest struct {
	Claim    string
	Keywords []string
	Count    int
	Round    int // 0 for the cold build, n for the nth expansion
}

// PostSource supplies candidate posts for a claim
type PostSource interface {
	Name() string
	Search(ctx context.Context, req SearchRequest) ([]model.Post, error)
}

// KeywordExtractor frames a claim for searching
type KeywordExtractor interface {
	Extract(ctx context.Context, claim string) extract.Result
}

// Config tunes the graph service
type Config struct {
	TargetNodes      int
	ExpandIncrement  int
	MinRelevance     float64
	RelaxedRelevance float64
	CacheKeyLength   int
	Seed             int64 // 0 seeds from the clock
	Synth            SynthOptions
}

// ConfigFromModel converts model.GraphConfig
func ConfigFromModel(c model.GraphConfig) Config {
	synth := DefaultSynthOptions()
	if c.MaxClusters > 0 {
		synth.MaxClusters = c.MaxClusters
	}
	synth.BridgeEdges = c.BridgeEdges
	synth.ExtraRelatedEdges = c.ExtraRelatedEdges
	return Config{
		TargetNodes:      c.TargetNodes,
		ExpandIncrement:  c.ExpandIncrement,
		MinRelevance:     c.MinRelevance,
		RelaxedRelevance: c.RelaxedRelevance,
		CacheKeyLength:   c.CacheKeyLength,
		Seed:             c.Seed,
		Synth:            synth,
	}
}

// Service builds claim graphs on demand. Builds and expansions for one
// claim key never overlap; concurrent identical requests share one result.
type Service struct {
	source    PostSource
	extractor KeywordExtractor
	cache     cache.Cache
	cfg       Config
	logger    *slog.Logger
	newRand   func(key string, round int) *rand.Rand

	flight singleflight.Group
	locks  keyLocks
}

// Option configures a Service
type Option func(*Service)

// WithCache sets the graph cache; the default is an in-process memory cache
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithExtractor sets the keyword extractor
func WithExtractor(e KeywordExtractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithRand overrides the random source used for stance and edge synthesis
func WithRand(fn func(key string, round int) *rand.Rand) Option {
	return func(s *Service) { s.newRand = fn }
}

// NewService creates a graph service backed by source
func NewService(source PostSource, cfg Config, opts ...Option) *Service {
	if cfg.TargetNodes <= 0 {
		cfg.TargetNodes = 30
	}
	if cfg.ExpandIncrement <= 0 {
		cfg.ExpandIncrement = 20
	}
	if cfg.CacheKeyLength <= 0 {
		cfg.CacheKeyLength = cache.DefaultClaimKeyLength
	}
	if cfg.Synth.MaxClusters == 0 {
		cfg.Synth = DefaultSynthOptions()
	}

	s := &Service{source: source, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache(time.Hour, 10*time.Minute, 256)
	}
	if s.extractor == nil {
		s.extractor = extract.NewExtractor(nil, 0, s.logger)
	}
	if s.newRand == nil {
		s.newRand = s.defaultRand
	}
	return s
}

func (s *Service) defaultRand(key string, round int) *rand.Rand {
	if s.cfg.Seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(s.cfg.Seed + int64(h.Sum64()) + int64(round)))
}

// Key returns the cache key for a claim
func (s *Service) Key(claim string) string {
	return cache.ClaimKey(claim, s.cfg.CacheKeyLength)
}

// BuildOrFetch returns the graph for claim. Without expand a cached graph is
// returned as is and a cold build runs only on a miss. With expand more
// candidates are fetched and merged into the cached graph. When an
// expansion fails the unchanged cached graph is returned with the error.
// Callers get their own copy and may write layout positions into it.
func (s *Service) BuildOrFetch(ctx context.Context, claim string, target int, expand bool) (*model.ClaimGraph, error) {
	if strings.TrimSpace(claim) == "" {
		return nil, fmt.Errorf("empty claim: %w", ErrNoGraph)
	}
	if target <= 0 {
		target = s.cfg.TargetNodes
	}

	key := s.Key(claim)
	flightKey := key + "#fetch"
	if expand {
		flightKey = key + "#expand"
	}

	v, err, shared := s.flight.Do(flightKey, func() (any, error) {
		return s.mutate(ctx, key, claim, target, expand)
	})
	if shared {
		metrics.GraphCache.WithLabelValues("shared").Inc()
	}
	g, _ := v.(*model.ClaimGraph)
	return g.Clone(), err
}

// Peek returns the cached graph for claim without building one
func (s *Service) Peek(claim string) (*model.ClaimGraph, bool) {
	g := s.load(s.Key(claim))
	return g, g != nil
}

// Invalidate drops the cached graph for claim
func (s *Service) Invalidate(claim string) error {
	return s.cache.Delete(s.Key(claim))
}

func (s *Service) mutate(ctx context.Context, key, claim string, target int, expand bool) (*model.ClaimGraph, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	cached := s.load(key)
	if cached != nil && !expand {
		metrics.GraphCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	if cached == nil {
		metrics.GraphCache.WithLabelValues("miss").Inc()
		g, err := s.coldBuild(ctx, key, claim, target)
		if err != nil {
			s.logger.Warn("graph build failed", "key", key, "error", err)
			return nil, err
		}
		s.store(key, g)
		s.logger.Info("graph built", "key", key, "nodes", len(g.Nodes), "edges", len(g.Edges), "source", g.Source)
		return g, nil
	}

	metrics.GraphCache.WithLabelValues("expand").Inc()
	round := cached.Expansions + 1
	count := target + round*s.cfg.ExpandIncrement
	incoming, err := s.synthesize(ctx, key, claim, cached.Keywords, count, round)
	if err != nil {
		s.logger.Warn("graph expansion failed; keeping cached graph", "key", key, "round", round, "error", err)
		return cached, fmt.Errorf("%w: %w", ErrExpandFailed, err)
	}

	merged := Merge(cached, incoming, s.logger)
	merged.Expansions = round
	s.store(key, merged)
	s.logger.Info("graph expanded", "key", key, "round", round,
		"added_nodes", len(merged.Nodes)-len(cached.Nodes), "added_edges", len(merged.Edges)-len(cached.Edges))
	return merged, nil
}

func (s *Service) coldBuild(ctx context.Context, key, claim string, target int) (*model.ClaimGraph, error) {
	framing := s.extractor.Extract(ctx, claim)
	g, err := s.synthesize(ctx, key, claim, framing.Keywords, target, 0)
	if err != nil {
		return nil, err
	}
	g.ClaimSummary = framing.Summary
	g.Topic = framing.Topic
	g.Keywords = framing.Keywords
	return g, nil
}

func (s *Service) synthesize(ctx context.Context, key, claim string, keywords []string, count, round int) (*model.ClaimGraph, error) {
	posts, err := s.source.Search(ctx, SearchRequest{
		Claim:    claim,
		Keywords: keywords,
		Count:    count,
		Round:    round,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch posts from %s: %w", ErrNoGraph, s.source.Name(), err)
	}

	relevant, relaxed := FilterRelevant(posts, keywords, s.cfg.MinRelevance, s.cfg.RelaxedRelevance)
	if len(relevant) == 0 {
		return nil, fmt.Errorf("%w: none of %d candidates are relevant", ErrNoGraph, len(posts))
	}
	if relaxed {
		s.logger.Debug("relevance filter relaxed", "key", key, "kept", len(relevant), "candidates", len(posts))
	}

	nodes, engagement := NodesFromPosts(relevant)
	nodes, edges := Synthesize(nodes, engagement, s.newRand(key, round), s.cfg.Synth)
	return Normalize(&model.ClaimGraph{
		Nodes:  nodes,
		Edges:  edges,
		Source: s.source.Name(),
	}, s.logger), nil
}

func (s *Service) load(key string) *model.ClaimGraph {
	data, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	var g model.ClaimGraph
	if err := json.Unmarshal(data, &g); err != nil {
		s.logger.Warn("discarding unreadable cached graph", "key", key, "error", err)
		_ = s.cache.Delete(key)
		return nil
	}
	return &g
}

func (s *Service) store(key string, g *model.ClaimGraph) {
	data, err := json.Marshal(Normalize(g, s.logger))
	if err != nil {
		s.logger.Warn("encode graph", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(key, data, 0); err != nil {
		s.logger.Warn("persist graph", "key", key, "error", err)
	}
}

// keyLocks serializes work per key and forgets idle keys
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*keyLock)
	}
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
