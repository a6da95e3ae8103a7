// Package verify fact-checks finalized utterances through an LLM and keeps
// their source lists fresh.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ppiankov/veracast/internal/extract"
	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/worker"
)

var (
	// ErrTooShort is returned for utterances at or under the word minimum
	ErrTooShort = errors.New("utterance too short to verify")

	// ErrNoProvider means no LLM is configured
	ErrNoProvider = errors.New("no LLM provider configured")
)

// DefaultMinWords is the word count at or below which utterances are skipped
const DefaultMinWords = 10

// Checker produces a verdict for one utterance
type Checker interface {
	Check(ctx context.Context, u model.Utterance, contextSummary string) (model.VerificationVerdict, error)
}

// Vetter filters source links down to the reachable ones
type Vetter interface {
	Vet(ctx context.Context, urls []string) []string
}

// WordCount counts whitespace separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// TooShort reports whether text is at or under minWords words
func TooShort(text string, minWords int) bool {
	return WordCount(text) <= minWords
}

// SkippedVerdict is the local verdict for utterances too short to check
func SkippedVerdict(utteranceID string) model.VerificationVerdict {
	return model.VerificationVerdict{
		UtteranceID: utteranceID,
		Verdict:     model.VerdictUnverified,
		Skipped:     true,
		Reason:      "too short",
	}
}

const verifySystemPrompt = `You are a careful live fact-checker for spoken political and public-interest discussion.
Identify each checkable factual claim in the utterance and rate it.
Return a JSON object:
{"score": 0-10 overall accuracy or null, "verdict": "true|false|misleading|mixed|unverified",
 "claims": [{"text": "..", "score": 0-10 or null, "verdict": "..", "explanation": "one or two sentences", "sources": ["https://.."]}]}
Opinions and questions are not claims. Use unverified when you cannot tell. Only cite sources you are confident exist.`

type llmClaim struct {
	Text        string   `json:"text"`
	Score       *float64 `json:"score"`
	Verdict     string   `json:"verdict"`
	Explanation string   `json:"explanation"`
	Sources     []string `json:"sources"`
}

type llmVerdict struct {
	Score   *float64   `json:"score"`
	Verdict string     `json:"verdict"`
	Claims  []llmClaim `json:"claims"`
}

// LLMChecker asks an LLM for a structured verdict
type LLMChecker struct {
	provider llm.Provider
	claims   *extract.ClaimExtractor
	minWords int
	vetter   Vetter
	limiter  *worker.Limiter
	logger   *slog.Logger
}

// CheckerOption configures an LLMChecker
type CheckerOption func(*LLMChecker)

// WithVetter drops unreachable sources from verdicts
func WithVetter(v Vetter) CheckerOption {
	return func(c *LLMChecker) { c.vetter = v }
}

// WithLimiter rate limits provider calls
func WithLimiter(l *worker.Limiter) CheckerOption {
	return func(c *LLMChecker) { c.limiter = l }
}

// WithCheckerLogger sets the logger
func WithCheckerLogger(l *slog.Logger) CheckerOption {
	return func(c *LLMChecker) { c.logger = l }
}

// NewLLMChecker creates a checker
func NewLLMChecker(provider llm.Provider, minWords int, opts ...CheckerOption) *LLMChecker {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	c := &LLMChecker{
		provider: provider,
		claims:   extract.NewClaimExtractor(),
		minWords: minWords,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Check verifies one utterance
func (c *LLMChecker) Check(ctx context.Context, u model.Utterance, contextSummary string) (model.VerificationVerdict, error) {
	if TooShort(u.Text, c.minWords) {
		return SkippedVerdict(u.ID), ErrTooShort
	}
	if c.provider == nil {
		return model.VerificationVerdict{}, ErrNoProvider
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.provider.Name()); err != nil {
			return model.VerificationVerdict{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	var prompt strings.Builder
	if contextSummary != "" {
		fmt.Fprintf(&prompt, "Conversation so far: %s\n\n", contextSummary)
	}
	fmt.Fprintf(&prompt, "Speaker %s said:\n%q", u.SpeakerKey, u.Text)

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		System:    verifySystemPrompt,
		Prompt:    prompt.String(),
		MaxTokens: 1200,
		JSON:      true,
	})
	if err != nil {
		return model.VerificationVerdict{}, fmt.Errorf("verify %s: %w", u.ID, err)
	}

	var parsed llmVerdict
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil {
		return model.VerificationVerdict{}, fmt.Errorf("decode verdict for %s: %w", u.ID, err)
	}

	v := model.VerificationVerdict{
		UtteranceID: u.ID,
		Score:       clampScore(parsed.Score),
		Verdict:     model.ParseVerdict(parsed.Verdict),
	}
	for _, lc := range parsed.Claims {
		text := strings.TrimSpace(lc.Text)
		if text == "" {
			continue
		}
		cv := model.ClaimVerdict{
			Text:        text,
			Score:       clampScore(lc.Score),
			Verdict:     model.ParseVerdict(lc.Verdict),
			Explanation: strings.TrimSpace(lc.Explanation),
		}
		cv.AppendSources(c.sources(ctx, lc.Sources))
		v.Claims = append(v.Claims, cv)
	}

	// Keep the utterance's checkable sentences visible even when the model
	// returned no per-claim breakdown
	if len(v.Claims) == 0 {
		for _, cl := range c.claims.Extract(u.Text) {
			v.Claims = append(v.Claims, model.ClaimVerdict{Text: cl.Text, Verdict: model.VerdictUnverified})
		}
	}
	if v.Score == nil {
		v.Score = meanClaimScore(v.Claims)
	}
	return v, nil
}

func (c *LLMChecker) sources(ctx context.Context, raw []string) []string {
	var urls []string
	for _, s := range raw {
		urls = append(urls, llm.ExtractURLs(s)...)
	}
	if c.vetter == nil || len(urls) == 0 {
		return urls
	}
	return c.vetter.Vet(ctx, urls)
}

func clampScore(s *float64) *float64 {
	if s == nil || math.IsNaN(*s) {
		return nil
	}
	return model.FloatPtr(math.Max(0, math.Min(10, *s)))
}

func meanClaimScore(claims []model.ClaimVerdict) *float64 {
	sum, n := 0.0, 0
	for _, cl := range claims {
		if cl.Score != nil {
			sum += *cl.Score
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return model.FloatPtr(math.Round(sum/float64(n)*10) / 10)
}
