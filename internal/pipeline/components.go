package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/veracast/internal/cache"
	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/social"
	"github.com/ppiankov/veracast/internal/validate"
	"github.com/ppiankov/veracast/internal/verify"
	"github.com/ppiankov/veracast/internal/worker"
)

// Components are the collaborators shared by sessions, graph builds and the
// server, built once from the configuration
type Components struct {
	Config    *model.Config
	Provider  llm.Provider // nil when no LLM is configured
	Limiter   *worker.Limiter
	Validator *validate.Validator
	Cache     cache.Cache // nil when caching is disabled
	Graphs    *graph.Service
	Checker   *verify.LLMChecker
	Logger    *slog.Logger
}

// NewComponents wires the collaborators described by cfg
func NewComponents(cfg *model.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if provider == nil {
		logger.Warn("no LLM provider configured; verification and generated posts are disabled")
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)

	vopts := validate.OptionsFromModel(cfg)
	vopts.Logger = logger
	validator := validate.NewValidator(vopts)

	graphCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("graph cache: %w", err)
	}

	sopts := social.SearcherOptionsFromModel(cfg, limiter)
	sopts.Logger = logger
	var generator graph.PostSource
	if provider != nil {
		generator = social.NewGenerator(provider, logger)
	}
	source := social.NewFallback(social.NewSearcher(sopts), generator, logger)

	opts := []graph.Option{
		graph.WithLogger(logger),
		graph.WithExtractor(extract.NewExtractor(provider, 0, logger)),
	}
	if graphCache != nil {
		opts = append(opts, graph.WithCache(graphCache))
	}

	c := &Components{
		Config:    cfg,
		Provider:  provider,
		Limiter:   limiter,
		Validator: validator,
		Cache:     graphCache,
		Graphs:    graph.NewService(source, graph.ConfigFromModel(cfg.Graph), opts...),
		Logger:    logger,
	}
	c.Checker = verify.NewLLMChecker(provider, cfg.Verification.MinWords,
		verify.WithVetter(validator),
		verify.WithLimiter(limiter),
		verify.WithCheckerLogger(logger))
	return c, nil
}

// Close releases cache connections
func (c *Components) Close() error {
	if closer, ok := c.Cache.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
