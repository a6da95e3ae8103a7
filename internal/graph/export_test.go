package graph

import (
	"bytes"
	"testing"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHTML(t *testing.T) {
	g := &model.ClaimGraph{
		ClaimSummary: `Taxes <up> 40%`,
		Topic:        "Economy",
		Nodes: []model.PropagationNode{
			{ID: "a", Handle: "@alice", Text: "so true", Impressions: 100, Stance: model.StanceSupports, IsHub: true, Position: &model.Position{X: 10, Y: 20}},
			{ID: "b", Handle: "@bob", Text: "<script>x</script>", Impressions: 25, Stance: model.StanceContradicts},
		},
		Edges: []model.PropagationEdge{
			{Source: "b", Target: "a", Type: model.EdgeReply},
			{Source: "a", Target: "b", Type: model.EdgeRelated},
			{Source: "a", Target: "missing", Type: model.EdgeRelated},
		},
	}
	g.Statistics = ComputeStatistics(g.Nodes)

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, g, HTMLOptions{}))
	out := buf.String()

	assert.Contains(t, out, `<svg xmlns="http://www.w3.org/2000/svg" width="960" height="640"`)
	assert.Contains(t, out, "Taxes &lt;up&gt; 40%")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `cx="10.0" cy="20.0" r="28.0"`, "strongest node gets the max radius")
	assert.Contains(t, out, `cx="480.0" cy="320.0" r="17.0"`, "unpositioned node is centered")
	assert.Contains(t, out, `stroke="#fbbf24"`)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("<line ")))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("stroke-dasharray")))
	assert.Contains(t, out, "<span>Supporters: 1</span><span>Contradictors: 1</span>")
}
