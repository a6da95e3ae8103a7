package graph

import (
	"testing"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
)

var borderKeywords = []string{"border", "immigration"}

var (
	bothKeywords = model.Post{ID: "both", Text: "The border and immigration numbers are out", Verified: true, Followers: 200_000, Likes: 5000}
	noKeywords   = model.Post{ID: "none", Text: "Lovely weather today", Verified: true, Followers: 2_000_000, Likes: 50_000}
	oneKeyword   = model.Post{ID: "one", Text: "Border traffic was slow this morning", Followers: 50, Likes: 2}
)

func ids(posts []model.Post) []string {
	var out []string
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestRelevance_Scoring(t *testing.T) {
	assert.Equal(t, 33.0, Relevance(bothKeywords, borderKeywords))
	assert.Equal(t, 0.0, Relevance(noKeywords, borderKeywords), "reach alone is not relevance")
	assert.Equal(t, 5.0, Relevance(oneKeyword, borderKeywords), "single keyword is halved")
}

func TestRelevance_WholeWords(t *testing.T) {
	assert.Equal(t, 0, MatchedKeywords("borderline immigrationist", borderKeywords))
	assert.Equal(t, 2, MatchedKeywords("BORDER, immigration!", borderKeywords))
}

func TestRelevance_SpamPenalty(t *testing.T) {
	spam := bothKeywords
	spam.Text = "border immigration #a #b #c #d giveaway"
	assert.Equal(t, 13.0, Relevance(spam, borderKeywords))
}

func TestFilterRelevant_StrictOnly(t *testing.T) {
	got, relaxed := FilterRelevant([]model.Post{bothKeywords, noKeywords, oneKeyword}, borderKeywords, 15, 5)
	assert.Equal(t, []string{"both"}, ids(got))
	assert.False(t, relaxed, "relaxed threshold must not apply when strict has survivors")
}

func TestFilterRelevant_RelaxedFallback(t *testing.T) {
	got, relaxed := FilterRelevant([]model.Post{noKeywords, oneKeyword}, borderKeywords, 15, 5)
	assert.Equal(t, []string{"one"}, ids(got))
	assert.True(t, relaxed)

	got, relaxed = FilterRelevant([]model.Post{noKeywords}, borderKeywords, 15, 5)
	assert.Empty(t, got)
	assert.False(t, relaxed)
}
