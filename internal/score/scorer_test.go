package score

import (
	"testing"

	"github.com/ppiankov/veracast/internal/model"
)

func utt(id, speaker string, status model.UtteranceStatus) model.Utterance {
	return model.Utterance{ID: id, SpeakerKey: speaker, Text: "text of " + id, Status: status}
}

func verdict(id string, score float64, v model.Verdict) *model.VerificationVerdict {
	return &model.VerificationVerdict{UtteranceID: id, Score: model.FloatPtr(score), Verdict: v}
}

func TestScorer_Calculate_OverallAndPerSpeaker(t *testing.T) {
	scorer := NewScorer()

	utterances := []model.Utterance{
		utt("u1", "@alice", model.StatusComplete),
		utt("u2", "@alice", model.StatusComplete),
		utt("u3", "@bob", model.StatusComplete),
		utt("u4", "@bob", model.StatusAnalyzing),
		utt("u5", "@bob", model.StatusFailed),
		utt("u6", "@carol", model.StatusSkipped),
	}
	verdicts := map[string]*model.VerificationVerdict{
		"u1": verdict("u1", 8, model.VerdictTrue),
		"u2": verdict("u2", 6, model.VerdictMixed),
		"u3": verdict("u3", 1, model.VerdictFalse),
	}

	c := scorer.Calculate(utterances, verdicts)

	if c.Overall == nil || *c.Overall != 5.0 {
		t.Fatalf("Expected overall 5.0, got %v", c.Overall)
	}
	if c.Scored != 3 || c.Pending != 1 || c.Failed != 1 || c.Skipped != 1 {
		t.Errorf("Unexpected counts: scored=%d pending=%d failed=%d skipped=%d", c.Scored, c.Pending, c.Failed, c.Skipped)
	}

	alice := c.BySpeaker["@alice"]
	if alice.Score == nil || *alice.Score != 7.0 {
		t.Errorf("Expected alice 7.0, got %v", alice.Score)
	}
	bob := c.BySpeaker["@bob"]
	if bob.Utterances != 3 || bob.Scored != 1 {
		t.Errorf("Expected bob 3 utterances / 1 scored, got %d / %d", bob.Utterances, bob.Scored)
	}
	if carol := c.BySpeaker["@carol"]; carol.Score != nil {
		t.Errorf("Expected carol unscored, got %v", *carol.Score)
	}
	if c.Verdicts[model.VerdictFalse] != 1 {
		t.Errorf("Expected 1 false verdict, got %d", c.Verdicts[model.VerdictFalse])
	}
}

func TestScorer_Calculate_UnscoredVerdict(t *testing.T) {
	scorer := NewScorer()

	v := &model.VerificationVerdict{UtteranceID: "u1", Verdict: model.VerdictUnverified}
	c := scorer.Calculate([]model.Utterance{utt("u1", "@a", model.StatusComplete)}, map[string]*model.VerificationVerdict{"u1": v})

	if c.Overall != nil {
		t.Errorf("Expected no overall score, got %v", *c.Overall)
	}
	if c.Verdicts[model.VerdictUnverified] != 1 {
		t.Errorf("Expected verdict to be counted")
	}
}

func TestScorer_Calculate_ClampsOutOfRange(t *testing.T) {
	scorer := NewScorer()
	c := scorer.Calculate(
		[]model.Utterance{utt("u1", "@a", model.StatusComplete)},
		map[string]*model.VerificationVerdict{"u1": verdict("u1", 14, model.VerdictTrue)},
	)
	if *c.Overall != 10 {
		t.Errorf("Expected clamp to 10, got %v", *c.Overall)
	}
}

func TestRankSpeakers(t *testing.T) {
	c := model.Credibility{BySpeaker: map[string]model.Speaker{
		"@b": {Key: "@b", Score: model.FloatPtr(4)},
		"@a": {Key: "@a"},
		"@c": {Key: "@c", Score: model.FloatPtr(9)},
		"@d": {Key: "@d", Score: model.FloatPtr(4)},
	}}

	got := RankSpeakers(c)
	want := []string{"@c", "@b", "@d", "@a"}
	for i, sp := range got {
		if sp.Key != want[i] {
			t.Fatalf("Position %d: expected %s, got %s", i, want[i], sp.Key)
		}
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.5, "high"},
		{8, "high"},
		{6.5, "medium"},
		{4, "low-medium"},
		{1, "low"},
	}
	for _, tt := range tests {
		if got := Label(tt.score); got != tt.want {
			t.Errorf("Label(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
