package layout

import (
	"math"

	"github.com/ppiankov/veracast/internal/model"
)

// linkShape is the rest length and stiffness of one edge type. Concrete
// interactions are short and stiff, inferred ones long and loose.
type linkShape struct {
	distance float64
	strength float64
}

var linkShapes = map[model.EdgeType]linkShape{
	model.EdgeRetweet: {30, 0.8},
	model.EdgeReply:   {40, 0.7},
	model.EdgeQuote:   {50, 0.6},
	model.EdgeRelated: {90, 0.15},
}

func shapeOf(t model.EdgeType) linkShape {
	if s, ok := linkShapes[t]; ok {
		return s
	}
	return linkShapes[model.EdgeRelated]
}

// Radius sizes a node by impressions on a square-root scale
func Radius(impressions, maxImpressions int, minR, maxR float64) float64 {
	if maxImpressions <= 0 || impressions <= 0 {
		return minR
	}
	ratio := math.Min(1, float64(impressions)/float64(maxImpressions))
	return minR + (maxR-minR)*math.Sqrt(ratio)
}

// jiggle returns a tiny deterministic offset for coincident points
func jiggle(i, j int) float64 {
	return (float64((i*31+j*17)%11) - 5) * 1e-6
}

func (s *Simulation) applyLinks(alpha float64) {
	for _, l := range s.links {
		src, dst := &s.nodes[l.source], &s.nodes[l.target]
		x := dst.x + dst.vx - src.x - src.vx
		y := dst.y + dst.vy - src.y - src.vy
		if x == 0 && y == 0 {
			x, y = jiggle(l.source, l.target), jiggle(l.target, l.source)
		}
		d := math.Sqrt(x*x + y*y)
		f := (d - l.distance) / d * alpha * l.strength
		x *= f
		y *= f
		dst.vx -= x * l.bias
		dst.vy -= y * l.bias
		src.vx += x * (1 - l.bias)
		src.vy += y * (1 - l.bias)
	}
}

func (s *Simulation) applyCharge(alpha float64) {
	for i := range s.nodes {
		for j := i + 1; j < len(s.nodes); j++ {
			a, b := &s.nodes[i], &s.nodes[j]
			x, y := b.x-a.x, b.y-a.y
			if x == 0 && y == 0 {
				x, y = jiggle(i, j), jiggle(j, i)
			}
			d2 := math.Max(x*x+y*y, 1)
			w := s.cfg.Charge * alpha / d2
			a.vx += x * w
			a.vy += y * w
			b.vx -= x * w
			b.vy -= y * w
		}
	}
}

func (s *Simulation) applyCollision() {
	const strength = 0.7
	for i := range s.nodes {
		for j := i + 1; j < len(s.nodes); j++ {
			a, b := &s.nodes[i], &s.nodes[j]
			ra, rb := a.radius+s.cfg.CollideGap, b.radius+s.cfg.CollideGap
			r := ra + rb
			x := a.x + a.vx - b.x - b.vx
			y := a.y + a.vy - b.y - b.vy
			d2 := x*x + y*y
			if d2 >= r*r {
				continue
			}
			if d2 == 0 {
				x, y = jiggle(i, j), jiggle(j, i)
				d2 = x*x + y*y
			}
			d := math.Sqrt(d2)
			f := (r - d) / d * strength
			x *= f
			y *= f
			share := rb * rb / (ra*ra + rb*rb)
			a.vx += x * share
			a.vy += y * share
			b.vx -= x * (1 - share)
			b.vy -= y * (1 - share)
		}
	}
}

func (s *Simulation) applyAnchors(alpha float64) {
	cx, cy := s.cfg.Width/2, s.cfg.Height/2
	for i := range s.nodes {
		n := &s.nodes[i]
		n.vx += (n.anchorX - n.x) * s.cfg.ClusterStrength * alpha
		n.vy += (n.anchorY - n.y) * s.cfg.ClusterStrength * alpha
		n.vx += (cx - n.x) * s.cfg.CenterStrength * alpha
		n.vy += (cy - n.y) * s.cfg.CenterStrength * alpha
	}
}
