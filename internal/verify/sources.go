package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/score"
)

var (
	// ErrNoSources means no proposed link survived vetting
	ErrNoSources = errors.New("no valid sources found")

	// ErrUnknownClaim means the utterance has no verdict or no such claim
	ErrUnknownClaim = errors.New("unknown claim")
)

// SourceStore persists appended sources
type SourceStore interface {
	AppendSources(ctx context.Context, utteranceID string, claimIndex int, urls []string) (int, error)
}

// Suspender runs fn with background refreshes paused
type Suspender interface {
	Suspend(fn func() error) error
}

const sourcesSystemPrompt = `You find authoritative sources for fact-checking.
Return a JSON object {"sources": ["https://.."]} with up to 5 URLs of primary data, official statistics or reputable reporting
that directly address the claim. Prefer stable pages over search results.`

// SourceRegenerator asks the LLM for fresh sources for one claim, vets them
// and appends the survivors while session polling is suspended
type SourceRegenerator struct {
	provider llm.Provider
	vetter   Vetter
	store    SourceStore
	board    *score.Board
	poller   Suspender
	logger   *slog.Logger
}

// NewSourceRegenerator wires the collaborators; store and poller may be nil
func NewSourceRegenerator(provider llm.Provider, vetter Vetter, store SourceStore, board *score.Board, poller Suspender, logger *slog.Logger) *SourceRegenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceRegenerator{provider: provider, vetter: vetter, store: store, board: board, poller: poller, logger: logger}
}

// Regenerate proposes, vets and appends sources for claim claimIndex of an
// utterance's verdict. It returns the URLs that were newly added.
func (r *SourceRegenerator) Regenerate(ctx context.Context, utteranceID string, claimIndex int) ([]string, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}
	v, ok := r.board.Verdict(utteranceID)
	if !ok || claimIndex < 0 || claimIndex >= len(v.Claims) {
		return nil, fmt.Errorf("%s claim %d: %w", utteranceID, claimIndex, ErrUnknownClaim)
	}
	claim := v.Claims[claimIndex]

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		System:    sourcesSystemPrompt,
		Prompt:    "Claim: " + claim.Text,
		MaxTokens: 400,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("propose sources: %w", err)
	}

	var parsed struct {
		Sources []string `json:"sources"`
	}
	proposed := llm.ExtractURLs(resp.Text)
	if err := llm.DecodeJSON(resp.Text, &parsed); err == nil && len(parsed.Sources) > 0 {
		proposed = parsed.Sources
	}

	existing := make(map[string]bool, len(claim.Sources))
	for _, s := range claim.Sources {
		existing[s] = true
	}
	var fresh []string
	for _, u := range proposed {
		if !existing[u] {
			fresh = append(fresh, u)
		}
	}

	vetted := r.vetter.Vet(ctx, fresh)
	r.logger.Debug("sources vetted", "utterance", utteranceID, "claim", claimIndex, "proposed", len(proposed), "valid", len(vetted))
	if len(vetted) == 0 {
		return nil, ErrNoSources
	}

	apply := func() error {
		if r.store != nil {
			if _, err := r.store.AppendSources(ctx, utteranceID, claimIndex, vetted); err != nil {
				return fmt.Errorf("persist sources: %w", err)
			}
		}
		r.board.AppendSources(utteranceID, claimIndex, vetted)
		return nil
	}
	if r.poller != nil {
		err = r.poller.Suspend(apply)
	} else {
		err = apply()
	}
	if err != nil {
		return nil, err
	}
	return vetted, nil
}
