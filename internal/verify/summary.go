package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/model"
)

const summarySystemPrompt = `Summarize a live audio conversation for a fact-checker joining late.
Two or three neutral sentences: topic, positions taken and by whom. Plain text, no lists.`

// Summarizer keeps a running context summary of a session
type Summarizer struct {
	provider llm.Provider
	every    int
}

// NewSummarizer creates a summarizer that refreshes every n utterances
// (n <= 0 disables it)
func NewSummarizer(provider llm.Provider, every int) *Summarizer {
	return &Summarizer{provider: provider, every: every}
}

// Due reports whether a summary should be produced after count utterances
func (s *Summarizer) Due(count int) bool {
	return s != nil && s.provider != nil && s.every > 0 && count > 0 && count%s.every == 0
}

// Summarize folds recent utterances into the previous summary
func (s *Summarizer) Summarize(ctx context.Context, previous string, recent []model.Utterance) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	var b strings.Builder
	if previous != "" {
		fmt.Fprintf(&b, "Summary so far: %s\n\n", previous)
	}
	b.WriteString("Recent utterances:\n")
	for _, u := range recent {
		fmt.Fprintf(&b, "%s: %s\n", u.SpeakerKey, u.Text)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		System:    summarySystemPrompt,
		Prompt:    b.String(),
		MaxTokens: 250,
	})
	if err != nil {
		return "", fmt.Errorf("summarize session: %w", err)
	}
	return extract.Summarize(resp.Text, 600), nil
}
