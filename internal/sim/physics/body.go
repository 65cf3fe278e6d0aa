package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type BodyID uint64

// Body is an axis-aligned rectangle. Pos is the center.
type Body struct {
	ID    BodyID
	Label string

	Pos   mgl64.Vec2
	Vel   mgl64.Vec2
	Size  mgl64.Vec2
	Angle float64

	Mass        float64
	FrictionAir float64

	Static        bool
	Sensor        bool
	IgnoreGravity bool

	// Owner is the game-level back-reference (world object, water zone, ...).
	Owner any

	force   mgl64.Vec2
	removed bool
}

// ApplyForce accumulates a force for the next step.
func (b *Body) ApplyForce(f mgl64.Vec2) {
	b.force = b.force.Add(f)
}

// Force returns the force accumulated since the last step.
func (b *Body) Force() mgl64.Vec2 { return b.force }

func (b *Body) Speed() float64 { return b.Vel.Len() }

func (b *Body) Removed() bool { return b.removed }

func (b *Body) Min() mgl64.Vec2 { return b.Pos.Sub(b.Size.Mul(0.5)) }
func (b *Body) Max() mgl64.Vec2 { return b.Pos.Add(b.Size.Mul(0.5)) }

// SetPosition teleports the body and clears its velocity.
func (b *Body) SetPosition(p mgl64.Vec2) {
	b.Pos = p
	b.Vel = mgl64.Vec2{}
}

// overlap returns the penetration depth on each axis; negative values mean
// a gap of that size.
func overlap(a, b *Body) (dx, dy float64) {
	half := a.Size.Add(b.Size).Mul(0.5)
	d := b.Pos.Sub(a.Pos)
	return half.X() - math.Abs(d.X()), half.Y() - math.Abs(d.Y())
}
