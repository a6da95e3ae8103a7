package graph

import (
	"testing"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStanceOf_PatternOrder(t *testing.T) {
	rng := seeded(1)

	assert.Equal(t, model.StanceContradicts, StanceOf("Totally false, this is a lie", 0, rng))
	assert.Equal(t, model.StanceContradicts, StanceOf("That is not true at all", 0, rng), "contradiction checked before support")
	assert.Equal(t, model.StanceSupports, StanceOf("This is true, confirmed by the census", 0, rng))
	assert.Equal(t, model.StanceSupports, StanceOf("well said", 0, rng))
}

func TestStanceOf_SeededFallbackIsReproducible(t *testing.T) {
	texts := []string{"hmm", "interesting thread", "anyone seen this", "posting for later", "ok"}

	run := func() []model.Stance {
		rng := seeded(42)
		var out []model.Stance
		for i, txt := range texts {
			out = append(out, StanceOf(txt, i*1000, rng))
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestStanceOf_EngagementWeighted(t *testing.T) {
	rng := seeded(7)
	opinionated := func(engagement int) int {
		n := 0
		for i := 0; i < 2000; i++ {
			if StanceOf("no signal here", engagement, rng) != model.StanceNeutral {
				n++
			}
		}
		return n
	}

	high := opinionated(50_000)
	low := opinionated(0)
	assert.Greater(t, high, low+500, "salient posts carry a stance more often (high=%d low=%d)", high, low)
}

func TestAssignStances_RetweetsInherit(t *testing.T) {
	nodes := []model.PropagationNode{
		{ID: "o1", Text: "This is a lie", Kind: model.PostOriginal},
		{ID: "r1", Text: "This is true", Kind: model.PostRetweet, ReferencedID: "o1"},
		{ID: "r2", Text: "confirmed", Kind: model.PostRetweet, ReferencedID: "missing"},
		{ID: "r3", Text: "so true", Kind: model.PostRetweet, ReferencedID: "r1"},
	}

	AssignStances(nodes, nil, seeded(1))

	require.Equal(t, model.StanceContradicts, nodes[0].Stance)
	assert.Equal(t, model.StanceContradicts, nodes[1].Stance, "retweet inherits original")
	assert.Equal(t, model.StanceSupports, nodes[2].Stance, "original absent: classified on its own")
	assert.Equal(t, model.StanceContradicts, nodes[3].Stance, "retweet chain resolves to the original")
	for _, n := range nodes {
		assert.Equal(t, n.Stance.ClusterIndex(), n.ClusterIndex)
	}
}
