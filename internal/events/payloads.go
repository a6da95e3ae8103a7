package events

import (
	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/model"
)

// StatusChange is the payload of UtteranceStatus
type StatusChange struct {
	UtteranceID string                `json:"utterance_id"`
	Status      model.UtteranceStatus `json:"status"`
	Reason      string                `json:"reason,omitempty"`
}

// SourcesUpdate is the payload of SourcesAppended
type SourcesUpdate struct {
	UtteranceID string   `json:"utterance_id"`
	ClaimIndex  int      `json:"claim_index"`
	Added       []string `json:"added"`
}

// SummaryUpdate is the payload of SessionSummary
type SummaryUpdate struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

// GraphUpdate is the payload of the graph.* events
type GraphUpdate struct {
	Claim string            `json:"claim"`
	Stage string            `json:"stage,omitempty"`
	Graph *model.ClaimGraph `json:"graph,omitempty"`
	Error string            `json:"error,omitempty"`
}

// TickUpdate is the payload of LayoutTick
type TickUpdate struct {
	Tick      int                   `json:"tick"`
	Positions []layout.NodePosition `json:"positions"`
}

// CommandError is the payload of CommandFailed
type CommandError struct {
	Command CommandType `json:"command"`
	Error   string      `json:"error"`
}
