package caption

import (
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(handle string) StaticContext {
	return StaticContext{Immediate: handle}
}

func newTestReconciler(opts ...Option) *Reconciler {
	n := 0
	base := []Option{
		WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDs(func() string { n++; return fmt.Sprintf("u%d", n) }),
	}
	return NewReconciler("s1", append(base, opts...)...)
}

func finals(events []model.UtteranceEvent) []model.Utterance {
	var out []model.Utterance
	for _, ev := range events {
		if ev.Final {
			out = append(out, ev.Utterance)
		}
	}
	return out
}

func TestReconciler_EndToEnd(t *testing.T) {
	r := newTestReconciler()

	var all []model.UtteranceEvent
	all = append(all, r.Ingest("Taxes went up", at("@alice"))...)
	all = append(all, r.Ingest("by 40 percent", at("@alice"))...)
	all = append(all, r.Ingest("That's false", at("@bob"))...)

	got := finals(all)
	require.Len(t, got, 1)
	assert.Equal(t, "@alice", got[0].SpeakerKey)
	assert.Equal(t, "Taxes went up by 40 percent", got[0].Text)
	assert.Equal(t, 1, got[0].SequenceNumber)
	assert.Equal(t, "u1", got[0].ID)

	last := all[len(all)-1]
	assert.False(t, last.Final)
	assert.Equal(t, "@bob", last.Utterance.SpeakerKey)
	assert.Equal(t, "That's false", last.Utterance.Text)
}

func TestReconciler_SpeakerChangeFinalizesBeforeNewSpeaker(t *testing.T) {
	r := newTestReconciler()

	r.Ingest("hello", at("@a"))
	r.Ingest("world", at("@a"))
	events := r.Ingest("hi", at("@b"))

	require.Len(t, events, 2)
	assert.True(t, events[0].Final)
	assert.Equal(t, "hello world", events[0].Utterance.Text)
	assert.Equal(t, "@a", events[0].Utterance.SpeakerKey)
	assert.False(t, events[1].Final)
	assert.Equal(t, "@b", events[1].Utterance.SpeakerKey)
	assert.Equal(t, "hi", events[1].Utterance.Text)
}

func TestReconciler_DuplicateFragmentIsIdempotent(t *testing.T) {
	var sunk []model.UtteranceEvent
	r := newTestReconciler(WithSink(func(ev model.UtteranceEvent) { sunk = append(sunk, ev) }))

	first := r.Ingest("the budget doubled", at("@a"))
	second := r.Ingest("the budget doubled", at("@a"))

	assert.Len(t, first, 1)
	assert.Nil(t, second)
	assert.Len(t, sunk, 1)
}

func TestReconciler_SequenceMonotonicAcrossFlush(t *testing.T) {
	r := newTestReconciler()

	var seqs []int
	collect := func(events []model.UtteranceEvent) {
		for _, u := range finals(events) {
			seqs = append(seqs, u.SequenceNumber)
		}
	}

	collect(r.Ingest("one", at("@a")))
	collect(r.Ingest("two", at("@b")))
	ev, ok := r.Flush()
	require.True(t, ok)
	seqs = append(seqs, ev.Utterance.SequenceNumber)

	_, ok = r.Flush()
	assert.False(t, ok, "second flush has nothing to finalize")

	collect(r.Ingest("three", at("@a")))
	collect(r.Ingest("four", at("@c")))

	assert.Equal(t, []int{1, 2, 3}, seqs)
}

func TestReconciler_ResumeSequence(t *testing.T) {
	r := newTestReconciler()
	r.ResumeSequence(7)

	r.Ingest("back again", at("@alice"))
	got := finals(r.Ingest("welcome back", at("@bob")))
	require.Len(t, got, 1)
	assert.Equal(t, 8, got[0].SequenceNumber)

	r.ResumeSequence(3)
	ev, ok := r.Flush()
	require.True(t, ok)
	assert.Equal(t, 9, ev.Utterance.SequenceNumber, "numbering never moves backwards")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"", KindEmpty},
		{"@alice", KindHandle},
		{"Request to speak", KindNoise},
		{"Alice Smith", KindDisplayName},
		{"Taxes went up by 40 percent", KindCaption},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(Normalize(tt.text)))
		})
	}
}

func TestReconciler_RejectsNoiseAndHandles(t *testing.T) {
	r := newTestReconciler()

	for _, frag := range []string{"", "   ", "Request to speak", "1.2K listening", "@alice", "12", "04:31"} {
		assert.Nil(t, r.Ingest(frag, at("@alice")), "fragment %q", frag)
	}
	assert.Equal(t, 0, r.SeenCount())
}

func TestReconciler_DisplayNameWithHandleIsSkipped(t *testing.T) {
	r := newTestReconciler()

	assert.Nil(t, r.Ingest("Alice Smith", at("@alice")))

	// Without a handle nearby the same shape is spoken content
	events := r.Ingest("Good Morning Everyone", StaticContext{})
	require.Len(t, events, 1)
	assert.Equal(t, model.UnknownSpeaker, events[0].Utterance.SpeakerKey)
}

func TestReconciler_ContinuationUsesLastKnownSpeaker(t *testing.T) {
	r := newTestReconciler()

	r.Ingest("inflation is at record highs", at("@alice"))
	events := r.Ingest("and it keeps climbing", StaticContext{})

	require.Len(t, events, 1)
	assert.Equal(t, "@alice", events[0].Utterance.SpeakerKey)
	assert.Equal(t, "inflation is at record highs and it keeps climbing", events[0].Utterance.Text)
	assert.Equal(t, "@alice", r.LastSpeaker())
}

func TestReconciler_SpeakerPriority(t *testing.T) {
	r := newTestReconciler()

	events := r.Ingest("first point", StaticContext{Ancestor: "@anc", Siblings: []string{"@sib"}})
	assert.Equal(t, "@anc", events[len(events)-1].Utterance.SpeakerKey)

	events = r.Ingest("second point", StaticContext{Siblings: []string{"not a handle!", "@sib"}})
	assert.Equal(t, "@sib", events[len(events)-1].Utterance.SpeakerKey)

	events = r.Ingest("third point", StaticContext{Immediate: "@imm", Ancestor: "@anc"})
	assert.Equal(t, "@imm", events[len(events)-1].Utterance.SpeakerKey)
}

func TestReconciler_MalformedContextDoesNotStall(t *testing.T) {
	r := newTestReconciler()

	assert.Nil(t, r.Ingest("lost fragment", (*StaticContext)(nil)))
	assert.Nil(t, r.Ingest("lost in dom", DOMContext{}))

	events := r.Ingest("next fragment", at("@a"))
	require.Len(t, events, 1)
	assert.Equal(t, "next fragment", events[0].Utterance.Text)

	// A malformed fragment is not remembered, so a later good copy is accepted
	events = r.Ingest("lost fragment", at("@a"))
	require.Len(t, events, 1)
}

func TestReconciler_BoundedDedupMemory(t *testing.T) {
	r := newTestReconciler(WithDedup(1000, 0.2))

	for i := 0; i < 2500; i++ {
		r.Ingest(fmt.Sprintf("fragment number %d", i), at("@a"))
		require.LessOrEqual(t, r.SeenCount(), 1000)
	}
	assert.Greater(t, r.seen.Evictions(), 0)
}

func TestReconciler_UnknownWithoutAnyAttribution(t *testing.T) {
	r := newTestReconciler()

	events := r.Ingest("who said this", nil)
	require.Len(t, events, 1)
	assert.Equal(t, model.UnknownSpeaker, events[0].Utterance.SpeakerKey)
	assert.Equal(t, "", r.LastSpeaker())
}
