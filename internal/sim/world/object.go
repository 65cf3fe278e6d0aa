package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"sketchcraft.ai/internal/sim/attrs"
	"sketchcraft.ai/internal/sim/kinds"
	"sketchcraft.ai/internal/sim/physics"
)

type ObjectID uint64

// ReasonKeyDestroyed is the game-over reason when a key object is lost.
const ReasonKeyDestroyed = "key_destroyed"

// Object is a single world entity. Its behavior comes from the kind
// descriptor plus the attribute set it owns.
type Object struct {
	ID      ObjectID
	Name    string
	Kind    kinds.Descriptor
	Texture string
	Frames  []string
	Hash    string

	Attrs     attrs.Set
	Life      int
	CatchFire bool
	Exploded  bool
	Voided    bool
	Destroyed bool

	Width  float64
	Height float64
	Alpha  float64

	w        *World
	body     *physics.Body
	rainZone *physics.Body
	fx       effects
	pos      mgl64.Vec2
	frame    int
}

func (o *Object) Pos() mgl64.Vec2 {
	if o.body != nil {
		return o.body.Pos
	}
	return o.pos
}

func (o *Object) setPosition(p mgl64.Vec2) {
	o.pos = p
	if o.body != nil {
		o.body.SetPosition(p)
	}
}

func (o *Object) Body() *physics.Body { return o.body }

// Removed reports whether the object has left play, either destroyed or
// voided off-stage.
func (o *Object) Removed() bool { return o.Destroyed || o.Voided }

func (o *Object) HasEffect(k EffectKind) bool { return o.fx.has(k) }

func (o *Object) Effects() []EffectKind {
	var out []EffectKind
	for _, k := range o.fx.kinds() {
		if o.fx.has(k) {
			out = append(out, k)
		}
	}
	return out
}

// CanSetFire reports whether o ignites flammable neighbors.
func (o *Object) CanSetFire() bool {
	return o.Attrs.Burns || o.Attrs.Lightning || o.CatchFire
}

// AddFire lights a wooden object, or any object when force is set. Ice
// that is not lit melts away instead.
func (o *Object) AddFire(force bool) {
	if (o.Attrs.Wooden || force) && !o.CatchFire {
		o.CatchFire = true
		o.fx.acquire(EffectFire)
		o.w.emit(EventIgnite, o, "")
		return
	}
	if o.Attrs.Ice {
		o.melt()
	}
}

func (o *Object) melt() {
	o.Attrs.Ice = false
	o.CatchFire = true
	o.Life = -1
	o.w.emit(EventMelt, o, "")
	o.void()
	o.fx.burst(EffectSteam, steamTicks)
	if o.Kind.IsKey {
		o.w.gameOver(ReasonKeyDestroyed)
	}
}

// AddWet puts out fire on burning objects and rusts metal.
func (o *Object) AddWet() {
	if o.CanSetFire() && !o.Attrs.Lightning {
		o.CatchFire = false
		o.Attrs.Burns = false
		o.fx.release(EffectFire)
		o.fx.burst(EffectSteam, steamTicks)
		o.w.emit(EventSteam, o, "")
	}
	if o.Attrs.Metal && !o.Attrs.Rusted {
		o.setRusted(true)
		o.w.emit(EventRust, o, "")
	}
}

// Repair clears rust. It reports whether anything changed.
func (o *Object) Repair() bool {
	if !o.Attrs.Rusted {
		return false
	}
	o.setRusted(false)
	o.w.emit(EventRepair, o, "")
	return true
}

func (o *Object) setRusted(v bool) {
	o.Attrs.Rusted = v
	switch {
	case v && o.Kind.RustedTexture != "":
		o.Texture = o.Kind.RustedTexture
	case !v && o.Kind.RepairedTexture != "":
		o.Texture = o.Kind.RepairedTexture
	}
}

// AddExplosion fires the terminal explosion. Callers guard with Exploded.
func (o *Object) AddExplosion() {
	t := o.w.tuning.Object
	o.fx.burst(EffectExplosion, explosionTicks)
	if o.body != nil {
		o.body.Mass = t.ExplodedMass
	}
	o.Life = t.DestroyBelow
	o.Exploded = true
	o.w.emit(EventExplosion, o, "")
	if o.Kind.IsKey {
		o.w.gameOver(ReasonKeyDestroyed)
	}
}

// Magnetize turns o into a magnet made of metal.
func (o *Object) Magnetize() {
	o.Attrs.Metal = true
	o.Attrs.Magnetic = true
	o.fx.acquire(EffectMagnetic)
}

// clearEffects is the single teardown path for every effect handle.
func (o *Object) clearEffects() {
	o.fx.releaseAll()
	o.Alpha = 1
}

// void parks the object off-stage as a terminal removed state. It keeps
// counting down and is destroyed like any exploded object.
func (o *Object) void() {
	o.clearEffects()
	o.w.detach(o)
	o.Voided = true
	o.Exploded = true
	o.pos = mgl64.Vec2{o.w.tuning.Object.OffstageX, 0}
}

// configure applies a fresh attribute set, rebuilding body and effects.
func (o *Object) configure(set attrs.Set) {
	w := o.w
	o.clearEffects()
	w.detach(o)

	o.Attrs = set
	o.Life = w.tuning.Object.StartLife
	o.frame = 0
	o.CatchFire = false
	o.Exploded = false

	if set.Burns {
		o.fx.acquire(EffectFire)
	}
	if set.Drips && !w.level.Void {
		h := o.fx.acquire(EffectDrips)
		w.attachRain(o)
		h.OnRelease(func() { w.detachRain(o) })
	}
	if set.Generating {
		o.fx.fade()
	}

	switch {
	case set.Solid:
		w.attachBody(o)
		if set.Magnetic {
			o.fx.acquire(EffectMagnetic)
		}
		if set.Blows && !w.level.Void {
			o.fx.acquire(EffectWind)
		}
	case w.level.Void && !set.Generating:
		o.Attrs.Explodes = true
		o.Life = 0
		o.void()
	}
}

// update runs once per tick after the physics step.
func (o *Object) update() {
	if o.Destroyed {
		return
	}
	w := o.w
	t := w.tuning.Object
	o.frame = (o.frame + 1) % 240
	o.Alpha = o.fx.tick(w.dt)

	if !o.Voided {
		switch o.Kind.Hook {
		case kinds.HookDrift:
			o.translate(mgl64.Vec2{0.1, 0})
		case kinds.HookBridge:
			if o.CatchFire {
				o.Attrs.Explodes = true
				// Burning alone does not consume a bridge.
				o.Life++
			}
		}
	}

	if o.Attrs.Generating {
		return
	}
	if !o.Voided {
		o.move()
		o.followRain()
	}

	if o.CatchFire || o.Attrs.Explodes {
		o.Life--
		if o.Life < 0 {
			if !o.Exploded {
				o.AddExplosion()
			}
			if o.Life < t.DestroyBelow {
				w.destroy(o)
				return
			}
		}
	}

	if o.Attrs.Lightning {
		o.Life -= t.LightningDecay
		if o.Life < 0 {
			w.destroy(o)
		}
	}
}

func (o *Object) translate(d mgl64.Vec2) {
	if o.body != nil {
		o.body.Pos = o.body.Pos.Add(d)
		return
	}
	o.pos = o.pos.Add(d)
}

// move applies the locomotion attributes to the body velocity.
func (o *Object) move() {
	b := o.body
	if b == nil || b.Static {
		return
	}
	a := o.Attrs
	g := o.w.level.Gravity
	lift := o.w.tuning.Object.FlyLift
	if a.Walks {
		b.Vel[0] = 0.5
	}
	if a.Drives {
		b.Vel[0] = 1
	}
	if a.Flies {
		disp := 2 - float64(o.frame%30)/15
		b.Vel = mgl64.Vec2{1.5, -g * lift * disp}
	}
	if a.Hovers {
		r := o.w.randCentered(100)
		disp := math.Sin(float64(o.frame%30) / 15 * math.Pi * r)
		b.Vel = mgl64.Vec2{disp, -g * lift}
	}
	if a.Propelled {
		r := o.w.randCentered(200)
		b.Vel[0] = math.Sin(float64(o.frame) * math.Pi / 120 * r)
	}
}

func (o *Object) followRain() {
	if o.rainZone == nil {
		return
	}
	p := o.Pos()
	o.rainZone.Pos = mgl64.Vec2{p.X(), o.rainZone.Pos.Y()}
}
