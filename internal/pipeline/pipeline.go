// Package pipeline runs a capture session end to end: caption fragments are
// reconciled into utterances, persisted, verified and scored, and every
// visible change is published on the event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/caption"
	"github.com/ppiankov/veracast/internal/events"
	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/score"
	"github.com/ppiankov/veracast/internal/session"
	"github.com/ppiankov/veracast/internal/store"
	"github.com/ppiankov/veracast/internal/verify"
)

// Pipeline orchestrates one capture session
type Pipeline struct {
	config     *model.Config
	sessionID  string
	store      *store.Store
	board      *score.Board
	bus        *events.Bus
	reconciler *caption.Reconciler
	dispatcher *verify.Dispatcher
	summarizer *verify.Summarizer
	sources    *verify.SourceRegenerator
	poller     *session.Poller
	renderer   *score.Renderer
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	polled chan struct{}
	bg     sync.WaitGroup
	closed sync.Once

	mu      sync.Mutex
	started bool
	count   int
	summary string
	recent  []model.Utterance
}

// Options holds the optional collaborators of a Pipeline
type Options struct {
	Bus      *events.Bus
	Provider llm.Provider  // Running summaries and source regeneration
	Vetter   verify.Vetter // Vets regenerated sources
	Registry *caption.Registry
	Logger   *slog.Logger
	Now      func() time.Time
}

// New creates a pipeline for sessionID on top of st, verifying with checker
func New(cfg *model.Config, sessionID string, st *store.Store, checker verify.Checker, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus(events.WithLogger(opts.Logger), events.WithClock(opts.Now))
	}
	logger := opts.Logger.With("session", sessionID)

	p := &Pipeline{
		config:    cfg,
		sessionID: sessionID,
		store:     st,
		board:     score.NewBoard(cfg.Verification.DisplaySlots),
		bus:       opts.Bus,
		renderer:  score.NewRenderer(cfg.Output.IncludeFooter),
		logger:    logger,
		now:       opts.Now,
	}

	ropts := []caption.Option{
		caption.WithLogger(logger),
		caption.WithDedup(cfg.Caption.DedupCap, cfg.Caption.EvictFraction),
		caption.WithClock(opts.Now),
		caption.WithSink(p.handleEvent),
	}
	if opts.Registry != nil {
		ropts = append(ropts, caption.WithRegistry(opts.Registry))
	}
	p.reconciler = caption.NewReconciler(sessionID, ropts...)

	p.dispatcher = verify.NewDispatcher(checker, cfg.Concurrency.VerifyWorkers, cfg.Verification.MinWords,
		p.handleOutcome, verify.WithDispatcherLogger(logger))
	p.summarizer = verify.NewSummarizer(opts.Provider, cfg.Verification.SummaryEvery)
	p.poller = session.NewPoller(cfg.Verification.PollInterval, p.refresh, session.WithLogger(logger))
	if opts.Vetter != nil {
		p.sources = verify.NewSourceRegenerator(opts.Provider, opts.Vetter, st, p.board, p.poller, logger)
	}
	return p
}

// Start creates or resumes the session, starts the verification workers and
// the refresh poller
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pipeline already started")
	}

	sess, err := p.store.CreateOrGetSession(ctx, p.sessionID, p.now())
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	p.count = sess.UtteranceCount
	p.summary = sess.ContextSummary

	last, err := p.store.MaxSequence(ctx, p.sessionID)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	p.reconciler.ResumeSequence(last)

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.dispatcher.Start(p.ctx)
	p.polled = make(chan struct{})
	go func() {
		defer close(p.polled)
		_ = p.poller.Run(p.ctx)
	}()
	p.started = true

	p.logger.Info("session started", "resumed", sess.UtteranceCount > 0, "utterances", sess.UtteranceCount, "last_seq", last)
	return nil
}

// SessionID returns the session this pipeline captures
func (p *Pipeline) SessionID() string { return p.sessionID }

// Bus returns the event bus
func (p *Pipeline) Bus() *events.Bus { return p.bus }

// Board returns the live display board
func (p *Pipeline) Board() *score.Board { return p.board }

// Ingest feeds one observed caption fragment through the reconciler
func (p *Pipeline) Ingest(fragment string, domCtx any) []model.UtteranceEvent {
	return p.reconciler.Ingest(fragment, domCtx)
}

// Flush finalizes the trailing utterance
func (p *Pipeline) Flush() (model.UtteranceEvent, bool) {
	return p.reconciler.Flush()
}

// RegenerateSources finds fresh sources for one claim of a verdict
func (p *Pipeline) RegenerateSources(ctx context.Context, utteranceID string, claimIndex int) ([]string, error) {
	if p.sources == nil {
		return nil, errors.New("source regeneration is not configured")
	}
	added, err := p.sources.Regenerate(ctx, utteranceID, claimIndex)
	if err != nil {
		return nil, err
	}
	p.bus.Publish(events.SourcesAppended, events.SourcesUpdate{UtteranceID: utteranceID, ClaimIndex: claimIndex, Added: added})
	return added, nil
}

// Summary returns the running context summary
func (p *Pipeline) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary
}

// Close flushes the trailing utterance, waits for outstanding verifications
// and summaries, and stops polling. Later calls are no-ops.
func (p *Pipeline) Close() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}

	p.closed.Do(func() {
		p.Flush()
		p.dispatcher.Close()
		p.bg.Wait()
		p.cancel()
		<-p.polled
		p.logger.Info("session closed", "utterances", p.board.Len())
	})
}

func (p *Pipeline) handleEvent(ev model.UtteranceEvent) {
	if !ev.Final {
		p.bus.Publish(events.UtteranceInterim, ev.Utterance)
		return
	}
	p.bus.Publish(events.UtteranceFinal, ev.Utterance)

	u := ev.Utterance
	ctx := p.context()
	if err := p.store.AppendUtterance(ctx, u); err != nil {
		p.logger.Error("failed to store utterance", "utterance", u.ID, "seq", u.SequenceNumber, "error", err)
		return
	}
	for _, id := range p.board.Add(u) {
		p.logger.Debug("utterance left the display", "utterance", id)
	}

	summary := p.track(u)
	p.setStatus(ctx, u.ID, model.StatusAnalyzing, "")
	if _, err := p.dispatcher.Submit(u, summary); err != nil {
		p.setStatus(ctx, u.ID, model.StatusFailed, err.Error())
	}
}

func (p *Pipeline) handleOutcome(o verify.Outcome) {
	ctx := p.context()
	if o.Err != nil {
		p.setStatus(ctx, o.UtteranceID, model.StatusFailed, "analysis failed")
		return
	}

	err := p.store.UpdateVerdict(ctx, *o.Verdict)
	switch {
	case errors.Is(err, store.ErrVerdictAttached):
		p.logger.Warn("ignoring second verdict", "utterance", o.UtteranceID)
		return
	case err != nil:
		p.logger.Error("failed to store verdict", "utterance", o.UtteranceID, "error", err)
		return
	}

	if !p.board.Attach(*o.Verdict) {
		p.logger.Debug("verdict not attached to the display", "utterance", o.UtteranceID)
		return
	}
	p.bus.Publish(events.VerdictAttached, *o.Verdict)
}

func (p *Pipeline) setStatus(ctx context.Context, id string, status model.UtteranceStatus, reason string) {
	if err := p.store.UpdateStatus(ctx, id, status); err != nil {
		p.logger.Warn("failed to update status", "utterance", id, "status", status, "error", err)
	}
	if p.board.SetStatus(id, status) {
		p.bus.Publish(events.UtteranceStatus, events.StatusChange{UtteranceID: id, Status: status, Reason: reason})
	}
}

// track counts a finalized utterance, starts a summary when one is due and
// returns the summary to verify u against
func (p *Pipeline) track(u model.Utterance) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.count++
	p.recent = append(p.recent, u)
	summary := p.summary
	if !p.summarizer.Due(p.count) {
		return summary
	}

	recent := p.recent
	p.recent = nil
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		p.summarize(summary, recent)
	}()
	return summary
}

func (p *Pipeline) summarize(previous string, recent []model.Utterance) {
	ctx := p.context()
	next, err := p.summarizer.Summarize(ctx, previous, recent)
	if err != nil {
		p.logger.Warn("context summary failed", "error", err)
		return
	}
	if err := p.store.UpdateSessionSummary(ctx, p.sessionID, next); err != nil {
		p.logger.Warn("failed to store context summary", "error", err)
	}

	p.mu.Lock()
	p.summary = next
	p.mu.Unlock()
	p.bus.Publish(events.SessionSummary, events.SummaryUpdate{SessionID: p.sessionID, Summary: next})
}

// refresh reconciles the board with the store: verdicts and sources written
// elsewhere are picked up, and nothing already displayed is replaced
func (p *Pipeline) refresh(ctx context.Context) error {
	rows, err := p.store.ListUtterances(ctx, p.sessionID)
	if err != nil {
		return err
	}
	for _, ru := range rows {
		if ru.Verdict == nil {
			continue
		}
		if p.board.Attach(*ru.Verdict) {
			p.bus.Publish(events.VerdictAttached, *ru.Verdict)
			continue
		}
		shown, ok := p.board.Verdict(ru.Utterance.ID)
		if !ok {
			continue
		}
		for i, cl := range ru.Verdict.Claims {
			if i >= len(shown.Claims) {
				break
			}
			missing := missingSources(shown.Claims[i].Sources, cl.Sources)
			if len(missing) > 0 && p.board.AppendSources(ru.Utterance.ID, i, missing) > 0 {
				p.bus.Publish(events.SourcesAppended, events.SourcesUpdate{UtteranceID: ru.Utterance.ID, ClaimIndex: i, Added: missing})
			}
		}
	}
	return nil
}

func missingSources(have, want []string) []string {
	seen := make(map[string]bool, len(have))
	for _, s := range have {
		seen[s] = true
	}
	var out []string
	for _, s := range want {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) context() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}
