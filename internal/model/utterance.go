package model

import "time"

// UnknownSpeaker is the sentinel speaker key used when no handle can be resolved
const UnknownSpeaker = "Unknown"

// Utterance is one finalized, attributed chunk of spoken text bounded by speaker changes
type Utterance struct {
	ID             string          `json:"id"`                     // Assigned at finalization, used to match verdicts
	SessionID      string          `json:"session_id"`             // Owning session
	SpeakerKey     string          `json:"speaker_key"`            // Resolved handle (e.g. "@alice") or "Unknown"
	DisplayName    string          `json:"display_name,omitempty"` // Human display name when known
	Text           string          `json:"text"`                   // Joined fragments, never empty
	SequenceNumber int             `json:"sequence_number"`        // Strictly increasing per session
	CreatedAt      time.Time       `json:"created_at"`
	Status         UtteranceStatus `json:"status"`
}

// UtteranceStatus tracks the verification lifecycle of an utterance
type UtteranceStatus string

const (
	StatusPending   UtteranceStatus = "pending"   // Stored, not yet submitted
	StatusAnalyzing UtteranceStatus = "analyzing" // Submitted to the verification collaborator
	StatusComplete  UtteranceStatus = "complete"  // Verdict attached
	StatusFailed    UtteranceStatus = "failed"    // Collaborator error ("analysis failed")
	StatusSkipped   UtteranceStatus = "skipped"   // Too short to verify
)

// UtteranceEvent is emitted by the reconciler whenever the visible utterance state changes
type UtteranceEvent struct {
	Final     bool      `json:"final"`     // true once the utterance is finalized
	Utterance Utterance `json:"utterance"` // Interim events carry SequenceNumber 0 and no ID
	At        time.Time `json:"at"`
}

// Session is one capture of a live room
type Session struct {
	ID             string          `json:"id"`
	StartedAt      time.Time       `json:"started_at"`
	LastUpdateAt   time.Time       `json:"last_update_at"`
	UtteranceCount int             `json:"utterance_count"`
	Speakers       map[string]bool `json:"speakers"`
	ContextSummary string          `json:"context_summary,omitempty"` // Optional running summary
}

// NewSession creates an empty session
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		StartedAt:    now,
		LastUpdateAt: now,
		Speakers:     make(map[string]bool),
	}
}

// Record applies a finalized utterance to the session counters
func (s *Session) Record(u Utterance) {
	s.UtteranceCount++
	if u.CreatedAt.After(s.LastUpdateAt) {
		s.LastUpdateAt = u.CreatedAt
	}
	if s.Speakers == nil {
		s.Speakers = make(map[string]bool)
	}
	s.Speakers[u.SpeakerKey] = true
}
