package caption

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/veracast/internal/model"
)

// State is the aggregator state
type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// Aggregator groups consecutive fragments from the same speaker into one
// utterance. It finalizes on speaker change or on an explicit Flush.
type Aggregator struct {
	sessionID   string
	state       State
	speaker     string
	displayName string
	buffer      []string
	seq         int
	now         func() time.Time
	newID       func() string
}

// NewAggregator creates an idle aggregator for a session
func NewAggregator(sessionID string) *Aggregator {
	return &Aggregator{
		sessionID: sessionID,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// State returns the current state
func (a *Aggregator) State() State {
	return a.state
}

// Speaker returns the speaker being accumulated, or ""
func (a *Aggregator) Speaker() string {
	return a.speaker
}

// Sequence returns the last assigned sequence number
func (a *Aggregator) Sequence() int {
	return a.seq
}

// Resume continues numbering after seq, so a resumed session keeps its
// sequence numbers strictly increasing. It never moves numbering backwards.
func (a *Aggregator) Resume(seq int) {
	if seq > a.seq {
		a.seq = seq
	}
}

// Add feeds one fragment. It returns the final event for the previous
// speaker (if a non-empty utterance was open) followed by an interim event.
func (a *Aggregator) Add(speaker, displayName, text string) []model.UtteranceEvent {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if a.state == StateAccumulating && speaker == a.speaker {
		a.buffer = append(a.buffer, text)
		if displayName != "" {
			a.displayName = displayName
		}
		return []model.UtteranceEvent{a.interim()}
	}

	var events []model.UtteranceEvent
	if final, ok := a.finalize(); ok {
		events = append(events, final)
	}

	a.state = StateAccumulating
	a.speaker = speaker
	a.displayName = displayName
	a.buffer = []string{text}
	return append(events, a.interim())
}

// Flush finalizes the open utterance, if any, and returns to Idle
func (a *Aggregator) Flush() (model.UtteranceEvent, bool) {
	final, ok := a.finalize()
	a.state = StateIdle
	a.speaker = ""
	a.displayName = ""
	a.buffer = nil
	return final, ok
}

func (a *Aggregator) finalize() (model.UtteranceEvent, bool) {
	if a.state != StateAccumulating {
		return model.UtteranceEvent{}, false
	}
	text := a.joined()
	if text == "" {
		return model.UtteranceEvent{}, false
	}
	a.seq++
	now := a.now()
	return model.UtteranceEvent{
		Final: true,
		Utterance: model.Utterance{
			ID:             a.newID(),
			SessionID:      a.sessionID,
			SpeakerKey:     a.speaker,
			DisplayName:    a.displayName,
			Text:           text,
			SequenceNumber: a.seq,
			CreatedAt:      now,
			Status:         model.StatusPending,
		},
		At: now,
	}, true
}

func (a *Aggregator) interim() model.UtteranceEvent {
	now := a.now()
	return model.UtteranceEvent{
		Utterance: model.Utterance{
			SessionID:   a.sessionID,
			SpeakerKey:  a.speaker,
			DisplayName: a.displayName,
			Text:        a.joined(),
			CreatedAt:   now,
		},
		At: now,
	}
}

func (a *Aggregator) joined() string {
	return strings.TrimSpace(strings.Join(a.buffer, " "))
}
