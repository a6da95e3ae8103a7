package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/pipeline"
	"github.com/ppiankov/veracast/internal/store"
)

// session bundles what a capture command needs and releases it in order
type session struct {
	comps    *pipeline.Components
	store    *store.Store
	pipeline *pipeline.Pipeline
}

// openSession wires the collaborators, opens the store and starts a pipeline.
// An empty sessionID starts a new session.
func openSession(ctx context.Context, cfg *model.Config, sessionID string) (*session, error) {
	logger := slog.Default()

	comps, err := pipeline.NewComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := ensureDir(cfg.Store.Path); err != nil {
		_ = comps.Close()
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		_ = comps.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	opts := pipeline.Options{Provider: comps.Provider, Logger: logger}
	if comps.Provider != nil {
		opts.Vetter = comps.Validator
	}
	p := pipeline.New(cfg, sessionID, st, comps.Checker, opts)
	if err := p.Start(ctx); err != nil {
		_ = st.Close()
		_ = comps.Close()
		return nil, err
	}
	return &session{comps: comps, store: st, pipeline: p}, nil
}

// close drains the pipeline before the store goes away
func (s *session) close() {
	s.pipeline.Close()
	if err := s.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
	if err := s.comps.Close(); err != nil {
		slog.Warn("failed to close cache", "error", err)
	}
}
