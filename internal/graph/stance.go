package graph

import (
	"math/rand"
	"regexp"

	"github.com/ppiankov/veracast/internal/model"
)

// Checked in order; the first match wins
var contradictionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(not true|isn'?t true|is false|that'?s false|totally false)\b`),
	regexp.MustCompile(`(?i)\b(debunk(ed|ing)?|fact[- ]?check(ed)?|misleading|misinformation|disinformation)\b`),
	regexp.MustCompile(`(?i)\b(fake|hoax|lie|lies|lying|liar|myth|propaganda|bogus|nonsense)\b`),
	regexp.MustCompile(`(?i)\b(no evidence|zero evidence|wrong|incorrect|false)\b`),
	regexp.MustCompile(`(?i)\b(actually|in reality|the data shows otherwise)\b`),
}

var supportPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(this is true|so true|100% true|absolutely true|it'?s true)\b`),
	regexp.MustCompile(`(?i)\b(confirmed|proven|proof|exactly|spot on|facts)\b`),
	regexp.MustCompile(`(?i)\b(agree|agreed|finally someone|well said|thank you for saying)\b`),
	regexp.MustCompile(`(?i)\b(this is why|wake up|everyone needs to know|share this)\b`),
}

type stanceBand struct {
	minEngagement int
	nonNeutral    float64
}

// Salient posts are assumed more likely to carry an opinion
var stanceBands = []stanceBand{
	{10_000, 0.85},
	{1_000, 0.7},
	{100, 0.5},
	{10, 0.35},
	{0, 0.2},
}

// StanceOf classifies one post's text. Texts matching no pattern get a
// stance drawn from rng, weighted by engagement.
func StanceOf(text string, engagement int, rng *rand.Rand) model.Stance {
	for _, re := range contradictionPatterns {
		if re.MatchString(text) {
			return model.StanceContradicts
		}
	}
	for _, re := range supportPatterns {
		if re.MatchString(text) {
			return model.StanceSupports
		}
	}

	p := 0.0
	for _, b := range stanceBands {
		if engagement >= b.minEngagement {
			p = b.nonNeutral
			break
		}
	}
	if rng.Float64() >= p {
		return model.StanceNeutral
	}
	if rng.Float64() < 0.5 {
		return model.StanceSupports
	}
	return model.StanceContradicts
}

// AssignStances sets Stance and ClusterIndex on every node in order.
// Retweets whose original is in the set inherit the original's stance.
func AssignStances(nodes []model.PropagationNode, engagement map[string]int, rng *rand.Rand) {
	idx := make(map[string]int, len(nodes))
	for i, n := range nodes {
		idx[n.ID] = i
	}

	inherits := func(n model.PropagationNode) bool {
		if n.Kind != model.PostRetweet || n.ReferencedID == "" {
			return false
		}
		_, ok := idx[n.ReferencedID]
		return ok
	}

	for i := range nodes {
		if inherits(nodes[i]) {
			continue
		}
		nodes[i].Stance = StanceOf(nodes[i].Text, engagement[nodes[i].ID], rng)
	}

	// Chains of retweets resolve to the first non-retweet ancestor
	for i := range nodes {
		if !inherits(nodes[i]) {
			continue
		}
		cur := nodes[i]
		for hops := 0; inherits(cur) && hops < len(nodes); hops++ {
			cur = nodes[idx[cur.ReferencedID]]
		}
		if inherits(cur) || cur.Stance == "" {
			// Retweet cycle; classify independently
			nodes[i].Stance = StanceOf(nodes[i].Text, engagement[nodes[i].ID], rng)
			continue
		}
		nodes[i].Stance = cur.Stance
	}

	for i := range nodes {
		nodes[i].ClusterIndex = nodes[i].Stance.ClusterIndex()
	}
}
