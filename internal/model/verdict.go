package model

import "strings"

// Verdict is the fact-check outcome for an utterance or a single claim
type Verdict string

const (
	VerdictTrue       Verdict = "true"
	VerdictFalse      Verdict = "false"
	VerdictMisleading Verdict = "misleading"
	VerdictMixed      Verdict = "mixed"
	VerdictUnverified Verdict = "unverified"
)

// ParseVerdict normalizes a collaborator-provided verdict string.
// Anything unrecognized maps to unverified.
func ParseVerdict(s string) Verdict {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "accurate", "correct":
		return VerdictTrue
	case "false", "inaccurate", "incorrect":
		return VerdictFalse
	case "misleading":
		return VerdictMisleading
	case "mixed", "partially true", "partly true":
		return VerdictMixed
	default:
		return VerdictUnverified
	}
}

// VerificationVerdict is the externally produced result for one utterance
type VerificationVerdict struct {
	UtteranceID string         `json:"utterance_id"`
	Score       *float64       `json:"score"` // 0-10, nil when not scorable
	Verdict     Verdict        `json:"verdict"`
	Claims      []ClaimVerdict `json:"claims"`
	Skipped     bool           `json:"skipped,omitempty"` // Short-circuited locally
	Reason      string         `json:"reason,omitempty"`  // Why it was skipped or failed
}

// ClaimVerdict is the per-claim breakdown of a verification verdict
type ClaimVerdict struct {
	Text        string   `json:"text"`
	Score       *float64 `json:"score"`
	Verdict     Verdict  `json:"verdict"`
	Explanation string   `json:"explanation,omitempty"`
	Sources     []string `json:"sources"` // Append-only
}

// AppendSources appends URLs not already present; returns how many were added
func (c *ClaimVerdict) AppendSources(urls []string) int {
	seen := make(map[string]bool, len(c.Sources))
	for _, u := range c.Sources {
		seen[u] = true
	}
	added := 0
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		c.Sources = append(c.Sources, u)
		added++
	}
	return added
}

// ScoreValue returns the verdict score and whether it is set
func (v *VerificationVerdict) ScoreValue() (float64, bool) {
	if v == nil || v.Score == nil {
		return 0, false
	}
	return *v.Score, true
}

// FloatPtr is a small helper for optional scores
func FloatPtr(f float64) *float64 {
	return &f
}
