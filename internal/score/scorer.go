// Package score projects utterances and their verdicts into credibility
// scores and renders session reports.
package score

import (
	"sort"

	"github.com/ppiankov/veracast/internal/model"
)

// Scorer derives overall and per-speaker credibility
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Calculate aggregates verdicts over utterances. Only utterances with a
// numeric score contribute to the means; the rest are counted by status.
func (s *Scorer) Calculate(utterances []model.Utterance, verdicts map[string]*model.VerificationVerdict) model.Credibility {
	c := model.Credibility{
		Verdicts:  make(map[model.Verdict]int),
		BySpeaker: make(map[string]model.Speaker),
	}

	var total float64
	sums := make(map[string]float64)

	for _, u := range utterances {
		sp := c.BySpeaker[u.SpeakerKey]
		if sp.Key == "" {
			sp = model.Speaker{Key: u.SpeakerKey, Verdicts: make(map[model.Verdict]int)}
		}
		sp.Utterances++

		v := verdicts[u.ID]
		switch {
		case u.Status == model.StatusSkipped || (v != nil && v.Skipped):
			c.Skipped++
		case u.Status == model.StatusFailed:
			c.Failed++
		case v == nil:
			c.Pending++
		default:
			c.Verdicts[v.Verdict]++
			sp.Verdicts[v.Verdict]++
			if score, ok := v.ScoreValue(); ok {
				score = clampScore(score)
				total += score
				c.Scored++
				sums[u.SpeakerKey] += score
				sp.Scored++
			}
		}
		c.BySpeaker[u.SpeakerKey] = sp
	}

	if c.Scored > 0 {
		c.Overall = model.FloatPtr(round1(total / float64(c.Scored)))
	}
	for key, sp := range c.BySpeaker {
		if sp.Scored > 0 {
			sp.Score = model.FloatPtr(round1(sums[key] / float64(sp.Scored)))
			c.BySpeaker[key] = sp
		}
	}
	return c
}

// RankSpeakers orders speakers by score (unscored last), then by key
func RankSpeakers(c model.Credibility) []model.Speaker {
	out := make([]model.Speaker, 0, len(c.BySpeaker))
	for _, sp := range c.BySpeaker {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Score != nil && b.Score == nil:
			return true
		case a.Score == nil && b.Score != nil:
			return false
		case a.Score != nil && *a.Score != *b.Score:
			return *a.Score > *b.Score
		}
		return a.Key < b.Key
	})
	return out
}

// Label maps a 0-10 score to a short credibility label
func Label(score float64) string {
	switch {
	case score >= 8:
		return "high"
	case score >= 6:
		return "medium"
	case score >= 4:
		return "low-medium"
	default:
		return "low"
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
