package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/veracast/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Text: s.text}, nil
}

func (s *stubProvider) IsAvailable(ctx context.Context) bool { return s.err == nil }

func TestKeywords_DomainTermsRankFirst(t *testing.T) {
	got := Keywords("The border crisis is driving immigration to record levels at the border", 5)

	require.Len(t, got, 5)
	assert.Equal(t, []string{"border", "immigration"}, got[:2])
	assert.Contains(t, got, "border crisis")
	assert.NotContains(t, got, "the")
}

func TestKeywords_RepeatedBigramBoosted(t *testing.T) {
	got := Keywords("student loans are crushing graduates, student loans keep growing", 3)
	assert.Equal(t, "student loans", got[0])
}

func TestKeywords_DropsStopwordsAndNumbers(t *testing.T) {
	got := Keywords("it is what it is 2024 42", 0)
	assert.Empty(t, got)
}

func TestKeywords_Deterministic(t *testing.T) {
	text := "Wages rose faster than prices in every state according to the labor department"
	assert.Equal(t, Keywords(text, 6), Keywords(text, 6))
}

func TestExtractor_UsesLLM(t *testing.T) {
	p := &stubProvider{text: `{"keywords": ["Border", "immigration", "border"], "topic": "Immigration", "summary": "Border crossings rose."}`}
	e := NewExtractor(p, 5, nil)

	res := e.Extract(context.Background(), "border crossings went up")
	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, []string{"border", "immigration"}, res.Keywords)
	assert.Equal(t, "Immigration", res.Topic)
	assert.Equal(t, "Border crossings rose.", res.Summary)
}

func TestExtractor_FallsBackOnFailure(t *testing.T) {
	claim := "Inflation doubled under this government"

	for name, p := range map[string]llm.Provider{
		"nil provider":  nil,
		"error":         &stubProvider{err: errors.New("503")},
		"malformed":     &stubProvider{text: "sorry, I cannot help"},
		"empty keyword": &stubProvider{text: `{"keywords": []}`},
	} {
		t.Run(name, func(t *testing.T) {
			res := NewExtractor(p, 5, nil).Extract(context.Background(), claim)
			assert.Equal(t, SourceLocal, res.Source)
			assert.Equal(t, Keywords(claim, 5), res.Keywords)
			assert.NotEmpty(t, res.Topic)
			assert.Equal(t, claim, res.Summary)
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short claim", Summarize("  short   claim ", 140))

	long := "the unemployment rate fell to the lowest level recorded in fifty years according to figures"
	got := Summarize(long, 40)
	assert.LessOrEqual(t, len([]rune(got)), 41)
	assert.True(t, len(got) > 0 && got[len(got)-len("…"):] == "…")
}
