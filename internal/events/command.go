package events

import (
	"encoding/json"
	"fmt"

	"github.com/ppiankov/veracast/internal/caption"
)

// CommandType names an inbound command from the rendering surface
type CommandType string

const (
	CmdDragStart CommandType = "drag_start"
	CmdDrag      CommandType = "drag"
	CmdDragEnd   CommandType = "drag_end"
	CmdZoom      CommandType = "zoom"
	CmdPan       CommandType = "pan"
	CmdClick     CommandType = "click"
	CmdGraph     CommandType = "graph"
	CmdExpand    CommandType = "expand"
	CmdFlush     CommandType = "flush"
	CmdSources   CommandType = "sources"
	CmdFragment  CommandType = "fragment"
)

// Command is one message from the rendering surface. Which fields are read
// depends on Type.
type Command struct {
	Type CommandType `json:"type"`

	// drag_*, sources
	NodeID string `json:"node_id,omitempty"`

	// drag, click, zoom (focus point), pan (delta)
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`

	// zoom factor
	K float64 `json:"k,omitempty"`

	// graph, expand
	Claim string `json:"claim,omitempty"`
	Nodes int    `json:"nodes,omitempty"`

	// sources
	UtteranceID string `json:"utterance_id,omitempty"`
	ClaimIndex  int    `json:"claim_index,omitempty"`

	// fragment: a caption observed by the capture side
	Text    string                 `json:"text,omitempty"`
	Context *caption.StaticContext `json:"context,omitempty"`
}

// ParseCommand decodes and validates a command
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return c, c.Validate()
}

// Validate checks the fields required by the command type
func (c Command) Validate() error {
	switch c.Type {
	case CmdDragStart, CmdDrag, CmdDragEnd:
		if c.NodeID == "" {
			return fmt.Errorf("%s: node_id required", c.Type)
		}
	case CmdZoom:
		if c.K <= 0 {
			return fmt.Errorf("zoom: k must be positive")
		}
	case CmdGraph, CmdExpand:
		if c.Claim == "" {
			return fmt.Errorf("%s: claim required", c.Type)
		}
	case CmdSources:
		if c.UtteranceID == "" {
			return fmt.Errorf("sources: utterance_id required")
		}
	case CmdFragment:
		if c.Text == "" {
			return fmt.Errorf("fragment: text required")
		}
	case CmdPan, CmdClick, CmdFlush:
	default:
		return fmt.Errorf("unknown command %q", c.Type)
	}
	return nil
}
