package social

import (
	"context"
	"log/slog"

	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/model"
)

// Fallback queries the searcher when it is configured and the generator when
// it is not or when the search fails
type Fallback struct {
	searcher  *Searcher
	generator graph.PostSource
	logger    *slog.Logger
}

// NewFallback combines the two sources; either may be nil
func NewFallback(searcher *Searcher, generator graph.PostSource, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{searcher: searcher, generator: generator, logger: logger}
}

// Name names the preferred source
func (f *Fallback) Name() string {
	if f.searcher != nil && f.searcher.Available() {
		return f.searcher.Name()
	}
	if f.generator != nil {
		return f.generator.Name()
	}
	return "none"
}

// Search tries the searcher first
func (f *Fallback) Search(ctx context.Context, req graph.SearchRequest) ([]model.Post, error) {
	if f.searcher != nil && f.searcher.Available() {
		posts, err := f.searcher.Search(ctx, req)
		if err == nil || f.generator == nil {
			return posts, err
		}
		f.logger.Warn("search failed; generating posts instead", "error", err)
	}
	if f.generator == nil {
		return nil, ErrUnavailable
	}
	return f.generator.Search(ctx, req)
}
