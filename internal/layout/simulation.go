// Package layout positions claim graph nodes with a force-directed
// simulation and handles drag, zoom and click interaction.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/model"
)

// ErrUnknownNode is returned for interaction on an id not in the simulation
var ErrUnknownNode = errors.New("unknown node")

// Config tunes the simulation
type Config struct {
	Width, Height        float64
	MinRadius, MaxRadius float64
	MaxTicks             int     // Cap per Run call
	AlphaMin             float64 // Run stops once alpha drops below this
	AlphaDecay           float64
	VelocityDecay        float64 // Share of velocity lost per tick
	Charge               float64 // Negative repels
	CollideGap           float64 // Margin added to each radius
	ClusterStrength      float64
	CenterStrength       float64
	SubClusterSpread     float64       // Offset of visual sub-clusters around their stance anchor
	ReheatAlpha          float64       // Alpha target while a node is dragged
	Frame                time.Duration // Pause between ticks in Run; 0 runs unpaced
}

// DefaultConfig returns the standard simulation settings, unpaced for
// offline layout
func DefaultConfig() Config {
	cfg := ConfigFromModel(model.DefaultConfig().Layout)
	cfg.Frame = 0
	return cfg
}

// ConfigFromModel converts model.LayoutConfig and fills the fixed constants
func ConfigFromModel(c model.LayoutConfig) Config {
	cfg := Config{
		Width:            c.Width,
		Height:           c.Height,
		MinRadius:        c.MinRadius,
		MaxRadius:        c.MaxRadius,
		MaxTicks:         c.MaxTicks,
		AlphaMin:         c.AlphaMin,
		Charge:           c.Charge,
		CollideGap:       c.CollideGap,
		VelocityDecay:    0.4,
		ClusterStrength:  0.12,
		CenterStrength:   0.01,
		SubClusterSpread: 60,
		ReheatAlpha:      0.3,
		Frame:            c.Frame,
	}
	if cfg.Width <= 0 {
		cfg.Width = 960
	}
	if cfg.Height <= 0 {
		cfg.Height = 640
	}
	if cfg.MaxRadius <= 0 {
		cfg.MinRadius, cfg.MaxRadius = 6, 28
	}
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 400
	}
	if cfg.AlphaMin <= 0 {
		cfg.AlphaMin = 0.001
	}
	// Reach AlphaMin from 1 in about 300 ticks
	cfg.AlphaDecay = 1 - math.Pow(cfg.AlphaMin, 1.0/300)
	return cfg
}

// NodePosition is one node's position after a tick
type NodePosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// TickFunc observes positions after every tick
type TickFunc func(tick int, positions []NodePosition)

type simNode struct {
	id               string
	x, y, vx, vy     float64
	radius           float64
	anchorX, anchorY float64
	pinned           bool
	fx, fy           float64
}

type simLink struct {
	source, target int
	distance       float64
	strength       float64
	bias           float64
}

// Simulation is a force-directed layout of one claim graph. All methods are
// safe for concurrent use, so interaction can arrive while Run is ticking.
type Simulation struct {
	mu          sync.Mutex
	cfg         Config
	nodes       []simNode
	index       map[string]int
	links       []simLink
	alpha       float64
	alphaTarget float64
	ticks       int
	clock       clock.Clock
	logger      *slog.Logger
}

// Option configures a Simulation
type Option func(*Simulation)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithClock paces Run with c instead of the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Simulation) { s.clock = c }
}

// New builds a simulation for g. Nodes that already carry a position start
// there; others are seeded in a spiral around their cluster anchor. Links
// with an endpoint outside the node set are dropped.
func New(g *model.ClaimGraph, cfg Config, opts ...Option) *Simulation {
	s := &Simulation{cfg: cfg, alpha: 1, index: make(map[string]int, len(g.Nodes))}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}

	maxImpr := 0
	for _, n := range g.Nodes {
		if n.Impressions > maxImpr {
			maxImpr = n.Impressions
		}
	}

	anchors := s.anchors(g.Nodes)
	s.nodes = make([]simNode, 0, len(g.Nodes))
	for i, n := range g.Nodes {
		if _, dup := s.index[n.ID]; dup {
			continue
		}
		ax, ay := anchors(n)
		sn := simNode{
			id:      n.ID,
			radius:  Radius(n.Impressions, maxImpr, cfg.MinRadius, cfg.MaxRadius),
			anchorX: ax,
			anchorY: ay,
		}
		if n.Position != nil {
			sn.x, sn.y, sn.vx, sn.vy = n.Position.X, n.Position.Y, n.Position.VX, n.Position.VY
		} else {
			// Phyllotaxis spiral keeps initial placement deterministic
			r := 10 * math.Sqrt(0.5+float64(i))
			a := float64(i) * math.Pi * (3 - math.Sqrt(5))
			sn.x, sn.y = ax+r*math.Cos(a), ay+r*math.Sin(a)
		}
		s.index[n.ID] = len(s.nodes)
		s.nodes = append(s.nodes, sn)
	}

	count := make([]int, len(s.nodes))
	for _, e := range g.Edges {
		si, ok1 := s.index[e.Source]
		ti, ok2 := s.index[e.Target]
		if !ok1 || !ok2 {
			s.logger.Warn("dropping dangling link", "source", e.Source, "target", e.Target)
			continue
		}
		if si == ti {
			continue
		}
		shape := shapeOf(e.Type)
		s.links = append(s.links, simLink{source: si, target: ti, distance: shape.distance, strength: shape.strength})
		count[si]++
		count[ti]++
	}
	for i := range s.links {
		l := &s.links[i]
		l.bias = float64(count[l.source]) / float64(count[l.source]+count[l.target])
	}
	return s
}

// anchors places the stance regions (supports left, contradicts right,
// neutral below) and spreads visual sub-clusters around them. Nodes without
// a stance go to the canvas center.
func (s *Simulation) anchors(nodes []model.PropagationNode) func(model.PropagationNode) (float64, float64) {
	w, h := s.cfg.Width, s.cfg.Height
	base := [3][2]float64{
		{w * 0.25, h * 0.4},
		{w * 0.75, h * 0.4},
		{w * 0.5, h * 0.75},
	}

	subs := map[int][]int{}
	seen := map[[2]int]bool{}
	for _, n := range nodes {
		k := [2]int{n.ClusterIndex, n.Cluster}
		if !seen[k] {
			seen[k] = true
			subs[n.ClusterIndex] = append(subs[n.ClusterIndex], n.Cluster)
		}
	}
	for _, cs := range subs {
		sort.Ints(cs)
	}

	return func(n model.PropagationNode) (float64, float64) {
		if n.Stance == "" || n.ClusterIndex < 0 || n.ClusterIndex > 2 {
			return w / 2, h / 2
		}
		ax, ay := base[n.ClusterIndex][0], base[n.ClusterIndex][1]
		cs := subs[n.ClusterIndex]
		if len(cs) < 2 {
			return ax, ay
		}
		pos := sort.SearchInts(cs, n.Cluster)
		angle := 2 * math.Pi * float64(pos) / float64(len(cs))
		return ax + s.cfg.SubClusterSpread*math.Cos(angle), ay + s.cfg.SubClusterSpread*math.Sin(angle)
	}
}

// Len returns the number of simulated nodes
func (s *Simulation) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// Links returns the number of links kept after dropping dangling edges
func (s *Simulation) Links() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Alpha returns the current simulation heat
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// Ticks returns the number of ticks run so far
func (s *Simulation) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Settled reports whether the simulation has cooled below AlphaMin
func (s *Simulation) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settledLocked()
}

func (s *Simulation) settledLocked() bool {
	return s.alpha < s.cfg.AlphaMin && s.alphaTarget < s.cfg.AlphaMin
}

// Step advances the simulation by one tick and returns the new positions
func (s *Simulation) Step() []NodePosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLocked()
	return s.positionsLocked()
}

func (s *Simulation) stepLocked() {
	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay
	alpha := s.alpha

	s.applyLinks(alpha)
	s.applyCharge(alpha)
	s.applyAnchors(alpha)
	s.applyCollision()

	keep := 1 - s.cfg.VelocityDecay
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.pinned {
			n.x, n.y, n.vx, n.vy = n.fx, n.fy, 0, 0
			continue
		}
		n.vx *= keep
		n.vy *= keep
		n.x += n.vx
		n.y += n.vy
	}
	s.ticks++
}

// Run ticks until the simulation settles, MaxTicks is reached or ctx is
// done, calling onTick after every tick. It returns the number of ticks run.
//
// With a Frame set, Run waits one frame between ticks and keeps ticking
// while a node is held; MaxTicks then only counts ticks without a held node,
// so a released node still gets a full cool-down.
func (s *Simulation) Run(ctx context.Context, onTick TickFunc) (int, error) {
	paced := s.cfg.Frame > 0
	ticks, free := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return ticks, err
		}
		s.mu.Lock()
		if s.settledLocked() {
			s.mu.Unlock()
			return ticks, nil
		}
		held := paced && s.heldLocked()
		if free >= s.cfg.MaxTicks && !held {
			s.mu.Unlock()
			s.logger.Debug("layout stopped at tick cap", "ticks", ticks, "alpha", s.Alpha())
			return ticks, nil
		}
		s.stepLocked()
		tick := s.ticks
		var positions []NodePosition
		if onTick != nil {
			positions = s.positionsLocked()
		}
		s.mu.Unlock()

		ticks++
		if !held {
			free++
		}
		if onTick != nil {
			onTick(tick, positions)
		}

		if paced {
			select {
			case <-ctx.Done():
				return ticks, ctx.Err()
			case <-s.clock.After(s.cfg.Frame):
			}
		}
	}
}

func (s *Simulation) heldLocked() bool {
	for i := range s.nodes {
		if s.nodes[i].pinned {
			return true
		}
	}
	return false
}

// Reheat raises alpha so a settled simulation moves again
func (s *Simulation) Reheat(alpha float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alpha > s.alpha {
		s.alpha = alpha
	}
}

// DragStart pins a node at its current position and keeps the simulation warm
func (s *Simulation) DragStart(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.nodeLocked(id)
	if err != nil {
		return err
	}
	n.pinned = true
	n.fx, n.fy = n.x, n.y
	s.alphaTarget = s.cfg.ReheatAlpha
	if s.alpha < s.alphaTarget {
		s.alpha = s.alphaTarget
	}
	return nil
}

// Drag moves a pinned node to simulation coordinates (x, y)
func (s *Simulation) Drag(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.nodeLocked(id)
	if err != nil {
		return err
	}
	if !n.pinned {
		return fmt.Errorf("drag %s: not started", id)
	}
	n.fx, n.fy = x, y
	n.x, n.y = x, y
	return nil
}

// DragEnd releases the node and lets the simulation cool down
func (s *Simulation) DragEnd(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.nodeLocked(id)
	if err != nil {
		return err
	}
	n.pinned = false
	s.alphaTarget = 0
	if s.heldLocked() {
		s.alphaTarget = s.cfg.ReheatAlpha
	}
	return nil
}

func (s *Simulation) nodeLocked(id string) (*simNode, error) {
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return &s.nodes[i], nil
}

// Click returns the topmost node under the screen point (sx, sy) in view t
func (s *Simulation) Click(t Transform, sx, sy float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Later nodes are drawn on top
	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := s.nodes[i]
		nx, ny := t.Apply(n.x, n.y)
		r := n.radius * t.scale()
		if (sx-nx)*(sx-nx)+(sy-ny)*(sy-ny) <= r*r {
			return n.id, true
		}
	}
	return "", false
}

// Positions returns the current node positions in input order
func (s *Simulation) Positions() []NodePosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionsLocked()
}

func (s *Simulation) positionsLocked() []NodePosition {
	out := make([]NodePosition, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = NodePosition{ID: n.id, X: n.x, Y: n.y}
	}
	return out
}

// WriteBack stores the ephemeral positions on the matching nodes of g
func (s *Simulation) WriteBack(g *model.ClaimGraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range g.Nodes {
		j, ok := s.index[g.Nodes[i].ID]
		if !ok {
			continue
		}
		n := s.nodes[j]
		g.Nodes[i].Position = &model.Position{X: n.x, Y: n.y, VX: n.vx, VY: n.vy}
	}
}
