package score

import (
	"sync"

	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/model"
)

// Board holds the utterances currently on display and their verdicts.
// Verification results may arrive in any order; each is matched by
// utterance id, and results for utterances no longer on display are dropped.
type Board struct {
	mu       sync.Mutex
	slots    int
	order    []string
	byID     map[string]*model.Utterance
	verdicts map[string]*model.VerificationVerdict
	scorer   *Scorer
}

// NewBoard creates a board that keeps at most slots utterances (0 = unbounded)
func NewBoard(slots int) *Board {
	return &Board{
		slots:    slots,
		byID:     make(map[string]*model.Utterance),
		verdicts: make(map[string]*model.VerificationVerdict),
		scorer:   NewScorer(),
	}
}

// Add puts a finalized utterance on display, evicting the oldest when full.
// It returns the ids evicted.
func (b *Board) Add(u model.Utterance) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[u.ID]; ok {
		return nil
	}
	cp := u
	b.byID[u.ID] = &cp
	b.order = append(b.order, u.ID)

	var evicted []string
	for b.slots > 0 && len(b.order) > b.slots {
		id := b.order[0]
		b.order = b.order[1:]
		delete(b.byID, id)
		delete(b.verdicts, id)
		evicted = append(evicted, id)
	}
	return evicted
}

// SetStatus updates the status of a displayed utterance
func (b *Board) SetStatus(id string, status model.UtteranceStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.byID[id]
	if ok {
		u.Status = status
	}
	return ok
}

// Attach applies a verdict to its utterance. It reports false when the
// utterance is unknown or already evicted, in which case the verdict is dropped.
// A verdict, once attached, is never replaced.
func (b *Board) Attach(v model.VerificationVerdict) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.byID[v.UtteranceID]
	if !ok {
		metrics.Verifications.WithLabelValues("dropped").Inc()
		return false
	}
	if _, done := b.verdicts[v.UtteranceID]; done {
		return false
	}
	cp := v
	cp.Claims = append([]model.ClaimVerdict(nil), v.Claims...)
	b.verdicts[v.UtteranceID] = &cp
	if v.Skipped {
		u.Status = model.StatusSkipped
	} else {
		u.Status = model.StatusComplete
	}
	return true
}

// AppendSources appends URLs to one claim of an attached verdict
func (b *Board) AppendSources(utteranceID string, claimIndex int, urls []string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.verdicts[utteranceID]
	if !ok || claimIndex < 0 || claimIndex >= len(v.Claims) {
		return 0
	}
	return v.Claims[claimIndex].AppendSources(urls)
}

// Verdict returns a copy of the verdict attached to an utterance
func (b *Board) Verdict(id string) (*model.VerificationVerdict, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.verdicts[id]
	if !ok {
		return nil, false
	}
	return copyVerdict(v), true
}

// Len returns how many utterances are on display
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// Snapshot returns displayed utterances in order with their verdicts
func (b *Board) Snapshot() []model.ReportedUtterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.ReportedUtterance, 0, len(b.order))
	for _, id := range b.order {
		ru := model.ReportedUtterance{Utterance: *b.byID[id]}
		if v, ok := b.verdicts[id]; ok {
			ru.Verdict = copyVerdict(v)
		}
		out = append(out, ru)
	}
	return out
}

// Credibility scores the utterances currently on display
func (b *Board) Credibility() model.Credibility {
	b.mu.Lock()
	defer b.mu.Unlock()
	us := make([]model.Utterance, 0, len(b.order))
	for _, id := range b.order {
		us = append(us, *b.byID[id])
	}
	return b.scorer.Calculate(us, b.verdicts)
}

func copyVerdict(v *model.VerificationVerdict) *model.VerificationVerdict {
	cp := *v
	cp.Claims = make([]model.ClaimVerdict, len(v.Claims))
	for i, c := range v.Claims {
		c.Sources = append([]string(nil), c.Sources...)
		cp.Claims[i] = c
	}
	return &cp
}
