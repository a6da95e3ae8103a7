package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ppiankov/veracast/internal/llm"
)

// Sources of an extraction result
const (
	SourceLLM   = "llm"
	SourceLocal = "local"
)

// Result is the search framing of one claim
type Result struct {
	Keywords []string `json:"keywords"`
	Topic    string   `json:"topic"`
	Summary  string   `json:"summary"`
	Source   string   `json:"source"` // llm or local
}

// Extractor asks the LLM for keywords and always falls back to the local
// heuristic when the LLM is missing, fails or returns nothing usable
type Extractor struct {
	provider llm.Provider
	max      int
	logger   *slog.Logger
}

// NewExtractor creates an extractor; provider may be nil
func NewExtractor(provider llm.Provider, max int, logger *slog.Logger) *Extractor {
	if max <= 0 {
		max = DefaultMaxKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, max: max, logger: logger}
}

const keywordSystemPrompt = `You extract search keywords from a spoken claim so related social media posts can be found.
Return a JSON object: {"keywords": [..], "topic": "..", "summary": ".."}.
keywords: 3-8 lowercase entities or terms, most specific first. topic: 1-3 words. summary: one neutral sentence.`

type llmKeywords struct {
	Keywords []string `json:"keywords"`
	Topic    string   `json:"topic"`
	Summary  string   `json:"summary"`
}

// Extract returns keywords, topic and summary for claim
func (e *Extractor) Extract(ctx context.Context, claim string) Result {
	if e.provider != nil {
		res, err := e.fromLLM(ctx, claim)
		if err == nil {
			return res
		}
		e.logger.Warn("keyword extraction fell back to local heuristic", "provider", e.provider.Name(), "error", err)
	}
	return Local(claim, e.max)
}

func (e *Extractor) fromLLM(ctx context.Context, claim string) (Result, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		System:    keywordSystemPrompt,
		Prompt:    "Claim: " + claim,
		MaxTokens: 300,
		JSON:      true,
	})
	if err != nil {
		return Result{}, err
	}

	var parsed llmKeywords
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil {
		return Result{}, err
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, k := range parsed.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keywords = append(keywords, k)
		if len(keywords) == e.max {
			break
		}
	}
	if len(keywords) == 0 {
		return Result{}, fmt.Errorf("LLM returned no keywords")
	}

	local := Local(claim, e.max)
	res := Result{
		Keywords: keywords,
		Topic:    strings.TrimSpace(parsed.Topic),
		Summary:  strings.TrimSpace(parsed.Summary),
		Source:   SourceLLM,
	}
	if res.Topic == "" {
		res.Topic = local.Topic
	}
	if res.Summary == "" {
		res.Summary = local.Summary
	}
	return res, nil
}

// Local derives a result without any collaborator
func Local(claim string, max int) Result {
	keywords := Keywords(claim, max)
	topic := ""
	if len(keywords) > 0 {
		topic = titleCase(keywords[0])
	}
	return Result{
		Keywords: keywords,
		Topic:    topic,
		Summary:  Summarize(claim, 140),
		Source:   SourceLocal,
	}
}

// Summarize trims a claim to at most limit runes on a word boundary
func Summarize(claim string, limit int) string {
	claim = strings.Join(strings.Fields(claim), " ")
	runes := []rune(claim)
	if len(runes) <= limit {
		return claim
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ",;:") + "…"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
