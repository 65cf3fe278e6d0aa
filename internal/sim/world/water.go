package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"sketchcraft.ai/internal/sim/levels"
	"sketchcraft.ai/internal/sim/physics"
	"sketchcraft.ai/internal/sim/tuning"
)

// column is one spring of the water surface. y is relative to the top of
// the water rectangle.
type column struct {
	x, y    float64
	targetY float64
	speed   float64
}

func (c *column) update(dampening, tension float64) {
	c.speed += tension*(c.targetY-c.y) - c.speed*dampening
	c.y += c.speed
}

// Water is a deformable surface with a sensor body. Floating objects are
// pinned to the surface sample under them each tick.
type Water struct {
	spec    levels.Water
	cfg     tuning.Water
	columns []column
	sensor  *physics.Body

	floating []*Object
	w        *World
}

func newWater(w *World, spec levels.Water, cfg tuning.Water) *Water {
	spec.Depth = math.Min(spec.Depth, spec.H)
	surface := spec.H - spec.Depth
	spacing := cfg.ColumnSpacing
	if spacing <= 0 {
		spacing = 20
	}
	wt := &Water{spec: spec, cfg: cfg, w: w}
	for x := 0.0; x < spec.W; x += spacing {
		wt.columns = append(wt.columns, column{x: x, y: surface, targetY: surface, speed: 0.5})
	}
	wt.columns = append(wt.columns, column{x: spec.W, y: surface, targetY: surface, speed: 0.5})

	wt.sensor = &physics.Body{
		Label:  "water",
		Pos:    mgl64.Vec2{spec.X + spec.W/2, spec.Y + spec.H - spec.Depth/2},
		Size:   mgl64.Vec2{spec.W, spec.Depth},
		Static: true,
		Sensor: true,
		Owner:  wt,
	}
	return wt
}

// columnAt returns the index of the column nearest to world x.
func (wt *Water) columnAt(x float64) int {
	spacing := wt.cfg.ColumnSpacing
	if spacing <= 0 {
		spacing = 20
	}
	i := int(math.Round((x - wt.spec.X) / spacing))
	if i < 0 {
		i = 0
	}
	if i > len(wt.columns)-1 {
		i = len(wt.columns) - 1
	}
	return i
}

// SurfaceY samples the absolute surface height at world x.
func (wt *Water) SurfaceY(x float64) float64 {
	return wt.spec.Y + wt.columns[wt.columnAt(x)].y
}

// Surface returns the absolute column heights, left to right.
func (wt *Water) Surface() []float64 {
	out := make([]float64, len(wt.columns))
	for i, c := range wt.columns {
		out[i] = wt.spec.Y + c.y
	}
	return out
}

func (wt *Water) Spec() levels.Water { return wt.spec }

func (wt *Water) Floating(o *Object) bool {
	for _, f := range wt.floating {
		if f == o {
			return true
		}
	}
	return false
}

func (wt *Water) addFloating(o *Object) {
	if o == nil || !o.Attrs.Floats || wt.Floating(o) {
		return
	}
	wt.floating = append(wt.floating, o)
}

func (wt *Water) removeFloating(o *Object) {
	for i, f := range wt.floating {
		if f == o {
			wt.floating = append(wt.floating[:i], wt.floating[i+1:]...)
			return
		}
	}
}

// splash kicks the column under b and switches its air friction.
func (wt *Water) splash(b *physics.Body, friction float64) {
	c := &wt.columns[wt.columnAt(b.Pos.X())]
	c.speed = b.Speed() * wt.cfg.SplashSpeed
	b.FrictionAir = friction
}

func (wt *Water) update() {
	for i := range wt.columns {
		wt.columns[i].update(wt.cfg.Dampening, wt.cfg.Tension)
	}

	n := len(wt.columns)
	lDeltas := make([]float64, n)
	rDeltas := make([]float64, n)
	for j := 0; j < n-1; j++ {
		cur := &wt.columns[j]
		if j > 0 {
			prev := &wt.columns[j-1]
			lDeltas[j] = wt.cfg.Spread * (cur.y - prev.y)
			prev.speed += lDeltas[j]
		}
		next := &wt.columns[j+1]
		rDeltas[j] = wt.cfg.Spread * (cur.y - next.y)
		next.speed += rDeltas[j]
	}
	for j := 0; j < n-1; j++ {
		if j > 0 {
			wt.columns[j-1].y += lDeltas[j]
		}
		wt.columns[j+1].y += rDeltas[j]
	}

	for _, o := range wt.floating {
		b := o.body
		if b == nil {
			wt.w.logf("water: %v", fmt.Errorf("object %d: %w", o.ID, ErrMissingBody))
			continue
		}
		x := b.Pos.X()
		b.Pos = mgl64.Vec2{x, wt.SurfaceY(x) + o.Attrs.FloatOffset}
		b.Vel[1] = 0
		b.Angle = 0
	}
}
