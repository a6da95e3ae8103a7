package llm

import (
	"testing"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type verdict struct {
		Verdict string `json:"verdict"`
		Score   int    `json:"score"`
	}

	tests := []struct {
		name string
		text string
		want verdict
	}{
		{"bare", `{"verdict":"false","score":2}`, verdict{"false", 2}},
		{"fenced", "```json\n{\"verdict\":\"true\",\"score\":9}\n```", verdict{"true", 9}},
		{"prose", `Here you go: {"verdict":"mixed","score":5} hope it helps`, verdict{"mixed", 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got verdict
			require.NoError(t, DecodeJSON(tt.text, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_Array(t *testing.T) {
	var got []string
	require.NoError(t, DecodeJSON(`keywords: ["border", "immigration"]`, &got))
	assert.Equal(t, []string{"border", "immigration"}, got)
}

func TestDecodeJSON_Errors(t *testing.T) {
	var v map[string]any
	assert.Error(t, DecodeJSON("no json here", &v))
	assert.Error(t, DecodeJSON("{broken", &v))
	assert.Error(t, DecodeJSON(`{"a": }`, &v))
}

func TestExtractURLs(t *testing.T) {
	text := "See https://bls.gov/cpi. Also (https://example.com/a) and https://bls.gov/cpi again."
	assert.Equal(t, []string{"https://bls.gov/cpi", "https://example.com/a"}, ExtractURLs(text))
	assert.Empty(t, ExtractURLs("nothing to cite"))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Nil(t, p, "empty provider disables the LLM")

	_, err = NewProvider(Config{Provider: "mystery"})
	assert.Error(t, err)

	_, err = NewProvider(Config{Provider: "openai"})
	assert.Error(t, err, "openai needs an API key")

	p, err = NewProvider(Config{Provider: "Ollama", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(model.LLMConfig{
		Provider:  "anthropic",
		Model:     "claude-3-5-haiku-20241022",
		APIKey:    "k",
		Timeout:   12,
		MaxTokens: 800,
		HTTPProxy: "http://proxy:3128",
		NoProxy:   "localhost,.internal",
	})
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, 12, cfg.Timeout)
	assert.Equal(t, 800, cfg.MaxTokens)
	assert.Equal(t, "http://proxy:3128", cfg.HTTPProxy)
	assert.Equal(t, "localhost,.internal", cfg.NoProxy)
}
