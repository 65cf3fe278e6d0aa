package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"sketchcraft.ai/internal/sim/physics"
)

// magnetForce is the inverse-square pull of a on b. The returned force acts
// on a; b receives its negation.
func magnetForce(a, b *physics.Body, k float64) mgl64.Vec2 {
	d := b.Pos.Sub(a.Pos)
	dist := d.Len()
	if dist <= 0.001 {
		return mgl64.Vec2{}
	}
	return d.Normalize().Mul(k * a.Mass * b.Mass / (dist * dist))
}

// blowForce pushes b horizontally away from fan a. Bodies more than two fan
// heights above or below are out of the stream.
func blowForce(a, b *physics.Body, k, fanHeight float64) mgl64.Vec2 {
	d := b.Pos.Sub(a.Pos)
	distSq := d.Dot(d)
	if distSq == 0 {
		distSq = 0.0001
	}
	if math.Abs(d.Y()) > fanHeight*2 || d.Len() == 0 {
		return mgl64.Vec2{}
	}
	f := d.Normalize().Mul(k * a.Mass * b.Mass / distSq)
	return mgl64.Vec2{f.X(), 0}
}

func (w *World) applyForces() {
	t := w.tuning.Forces
	magnet := t.MagnetConstant
	if w.level.Void {
		magnet = t.MagnetVoidConstant
	}
	objs := w.Objects()
	for _, src := range objs {
		a := src.body
		if a == nil || src.Removed() {
			continue
		}
		magnetic := src.Attrs.Magnetic && src.HasEffect(EffectMagnetic)
		blows := src.Attrs.Blows && src.HasEffect(EffectWind)
		if !magnetic && !blows {
			continue
		}
		for _, dst := range objs {
			b := dst.body
			if dst == src || b == nil || dst.Removed() {
				continue
			}
			if magnetic && dst.Attrs.Metal && !dst.Attrs.Rusted {
				f := magnetForce(a, b, magnet)
				a.ApplyForce(f)
				b.ApplyForce(f.Mul(-1))
			}
			if blows && !dst.Attrs.Heavy {
				b.ApplyForce(blowForce(a, b, t.BlowConstant, src.Height))
			}
		}
	}
}
