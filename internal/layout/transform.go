package layout

// Zoom bounds
const (
	MinZoom = 0.1
	MaxZoom = 8.0
)

// Transform is a view transform from simulation to screen coordinates:
// screen = sim*K + (X, Y). It never changes the simulation.
type Transform struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Identity is the untransformed view
var Identity = Transform{K: 1}

// Apply maps a simulation point to the screen
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.scale() + t.X, y*t.scale() + t.Y
}

// Invert maps a screen point back to simulation coordinates
func (t Transform) Invert(sx, sy float64) (float64, float64) {
	return (sx - t.X) / t.scale(), (sy - t.Y) / t.scale()
}

// Translate pans the view by a screen-space offset
func (t Transform) Translate(dx, dy float64) Transform {
	t.X += dx
	t.Y += dy
	return t
}

// ZoomAt scales the view by factor keeping the screen point (sx, sy) fixed
func (t Transform) ZoomAt(factor, sx, sy float64) Transform {
	k := clamp(t.scale()*factor, MinZoom, MaxZoom)
	x, y := t.Invert(sx, sy)
	return Transform{K: k, X: sx - x*k, Y: sy - y*k}
}

func (t Transform) scale() float64 {
	if t.K == 0 {
		return 1
	}
	return t.K
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
