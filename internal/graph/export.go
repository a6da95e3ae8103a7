package graph

import (
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"github.com/ppiankov/veracast/internal/model"
)

var stanceColors = map[model.Stance]string{
	model.StanceSupports:    "#22c55e",
	model.StanceContradicts: "#ef4444",
	model.StanceNeutral:     "#94a3b8",
}

// HTMLOptions sizes the exported picture
type HTMLOptions struct {
	Width, Height        float64
	MinRadius, MaxRadius float64
}

// WriteHTML renders a laid-out graph as a standalone HTML page with an
// inline SVG. Nodes without a position are drawn at the center.
func WriteHTML(w io.Writer, g *model.ClaimGraph, opts HTMLOptions) error {
	if opts.Width <= 0 {
		opts.Width = 960
	}
	if opts.Height <= 0 {
		opts.Height = 640
	}
	if opts.MaxRadius <= 0 {
		opts.MinRadius, opts.MaxRadius = 6, 28
	}

	maxImpr := 0
	for _, n := range g.Nodes {
		if n.Impressions > maxImpr {
			maxImpr = n.Impressions
		}
	}
	pos := func(n model.PropagationNode) (float64, float64) {
		if n.Position == nil {
			return opts.Width / 2, opts.Height / 2
		}
		return n.Position.X, n.Position.Y
	}
	radius := func(n model.PropagationNode) float64 {
		if maxImpr == 0 {
			return opts.MinRadius
		}
		return opts.MinRadius + (opts.MaxRadius-opts.MinRadius)*math.Sqrt(float64(n.Impressions)/float64(maxImpr))
	}

	idx := g.NodeIndex()
	var b strings.Builder

	for _, e := range g.Edges {
		si, ok1 := idx[e.Source]
		ti, ok2 := idx[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		x1, y1 := pos(g.Nodes[si])
		x2, y2 := pos(g.Nodes[ti])
		dash := ""
		if !e.Type.IsConcrete() {
			dash = ` stroke-dasharray="4 3"`
		}
		fmt.Fprintf(&b, `    <line class="edge %s" x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"%s/>`+"\n",
			e.Type, x1, y1, x2, y2, dash)
	}

	for _, n := range g.Nodes {
		x, y := pos(n)
		stroke := "#1e293b"
		if n.IsHub {
			stroke = "#fbbf24"
		}
		label := n.Handle
		if label == "" {
			label = n.DisplayName
		}
		fmt.Fprintf(&b, `    <g class="node %s"><title>%s: %s (%d impressions)</title>`+
			`<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s" stroke="%s"/>`+
			`<text x="%.1f" y="%.1f">%s</text></g>`+"\n",
			n.Stance, html.EscapeString(label), html.EscapeString(n.Text), n.Impressions,
			x, y, radius(n), stanceColors[n.Stance], stroke,
			x+radius(n)+3, y+4, html.EscapeString(label))
	}

	s := g.Statistics
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>%s | veracast</title>
  <style>
    body { margin: 0; font-family: Inter, Arial, sans-serif; background: #0f0f1a; color: #e8e8f0; }
    header { padding: 12px 16px; }
    .stats span { margin-right: 16px; }
    .edge { stroke: #555577; stroke-opacity: 0.7; }
    .edge.reply, .edge.quote, .edge.retweet { stroke: #a855f7; }
    .node text { font-size: 11px; fill: #e8e8f0; }
  </style>
</head>
<body>
  <header>
    <h1>%s</h1>
    <div class="stats"><span>Topic: %s</span><span>Impressions: %d</span><span>Supporters: %d</span><span>Contradictors: %d</span><span>Neutral: %d</span></div>
  </header>
  <svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
%s  </svg>
</body>
</html>
`,
		html.EscapeString(g.Topic), html.EscapeString(g.ClaimSummary), html.EscapeString(g.Topic),
		s.TotalImpressions, s.Supporters, s.Contradictors, s.Neutral,
		opts.Width, opts.Height, opts.Width, opts.Height, b.String())
	return err
}
