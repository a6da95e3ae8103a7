package social

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/llm"
	"github.com/ppiankov/veracast/internal/model"
)

const generatorSystemPrompt = `You simulate how a claim spreads on a social network for a visualization.
Return a JSON object {"posts": [...]} with exactly the requested number of posts. Each post has:
id (short unique string), author_name, author_handle (no @), followers, verified, text (under 280 chars),
impressions, likes, reposts, replies, kind (original|reply|quote|retweet), referenced_id (id of an earlier post in this list, for reply/quote/retweet).
Mix supporting, contradicting and neutral voices. Keep every post on topic and mention the claim's key terms.`

type generatedPost struct {
	ID           string `json:"id"`
	AuthorName   string `json:"author_name"`
	AuthorHandle string `json:"author_handle"`
	Followers    int    `json:"followers"`
	Verified     bool   `json:"verified"`
	Text         string `json:"text"`
	Impressions  int    `json:"impressions"`
	Likes        int    `json:"likes"`
	Reposts      int    `json:"reposts"`
	Replies      int    `json:"replies"`
	Kind         string `json:"kind"`
	ReferencedID string `json:"referenced_id"`
}

// Generator asks an LLM to fabricate structured posts. It stands in for the
// search API when no credentials exist.
type Generator struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewGenerator creates a generator; provider must not be nil
func NewGenerator(provider llm.Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: provider, logger: logger}
}

// Name returns the source name
func (g *Generator) Name() string { return "generated" }

// Search fabricates req.Count posts about the claim
func (g *Generator) Search(ctx context.Context, req graph.SearchRequest) ([]model.Post, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("generator: %w", ErrUnavailable)
	}
	count := req.Count
	if count <= 0 {
		count = minResults
	}

	prompt := fmt.Sprintf("Claim: %s\nKey terms: %s\nNumber of posts: %d",
		req.Claim, strings.Join(req.Keywords, ", "), count)
	if req.Round > 0 {
		prompt += fmt.Sprintf("\nThis is follow-up batch %d; use different authors than before.", req.Round)
	}

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		System:      generatorSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   4000,
		Temperature: 0.8,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate posts: %w", err)
	}

	var parsed struct {
		Posts []generatedPost `json:"posts"`
	}
	if err := llm.DecodeJSON(resp.Text, &parsed); err != nil {
		return nil, fmt.Errorf("decode generated posts: %w", err)
	}

	posts := toPosts(parsed.Posts, req.Round)
	g.logger.Debug("generated posts", "requested", count, "received", len(posts), "round", req.Round)
	return posts, nil
}

// toPosts assigns round-scoped ids so later batches never collide with
// earlier ones, remapping references within the batch
func toPosts(in []generatedPost, round int) []model.Post {
	ids := make(map[string]string, len(in))
	for i, p := range in {
		id := fmt.Sprintf("gen-%d-%d", round, i)
		if p.ID != "" {
			if _, dup := ids[p.ID]; !dup {
				ids[p.ID] = id
			}
		}
	}

	posts := make([]model.Post, 0, len(in))
	for i, p := range in {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		post := model.Post{
			ID:           fmt.Sprintf("gen-%d-%d", round, i),
			AuthorName:   p.AuthorName,
			AuthorHandle: strings.TrimPrefix(p.AuthorHandle, "@"),
			Followers:    max(p.Followers, 0),
			Verified:     p.Verified,
			Text:         text,
			Impressions:  max(p.Impressions, 0),
			Likes:        max(p.Likes, 0),
			Reposts:      max(p.Reposts, 0),
			Replies:      max(p.Replies, 0),
			Kind:         model.PostOriginal,
		}
		if ref, ok := ids[p.ReferencedID]; ok && ref != post.ID {
			switch strings.ToLower(p.Kind) {
			case "reply":
				post.Kind = model.PostReply
			case "quote":
				post.Kind = model.PostQuote
			case "retweet", "repost":
				post.Kind = model.PostRetweet
			}
			if post.Kind != model.PostOriginal {
				post.ReferencedID = ref
			}
		}
		posts = append(posts, post)
	}
	return posts
}
