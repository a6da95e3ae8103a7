package model

import "time"

// SessionReport is the rendered read-side projection of a session
type SessionReport struct {
	Session     Session             `json:"session"`
	GeneratedAt time.Time           `json:"generated_at"`
	Utterances  []ReportedUtterance `json:"utterances"`
	Credibility Credibility         `json:"credibility"`
}

// ReportedUtterance pairs an utterance with its verdict (if any)
type ReportedUtterance struct {
	Utterance Utterance            `json:"utterance"`
	Verdict   *VerificationVerdict `json:"verdict,omitempty"`
}

// Credibility holds overall and per-speaker scores
type Credibility struct {
	Overall   *float64           `json:"overall"` // Mean of scored utterances, 0-10
	Scored    int                `json:"scored"`  // Utterances contributing to Overall
	Pending   int                `json:"pending"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Verdicts  map[Verdict]int    `json:"verdicts"`
	BySpeaker map[string]Speaker `json:"by_speaker"`
}

// Speaker is the per-speaker credibility breakdown
type Speaker struct {
	Key        string          `json:"key"`
	Utterances int             `json:"utterances"`
	Scored     int             `json:"scored"`
	Score      *float64        `json:"score"`
	Verdicts   map[Verdict]int `json:"verdicts"`
}
