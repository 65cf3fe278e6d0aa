package world

import (
	"sketchcraft.ai/internal/sim/kinds"
	"sketchcraft.ai/internal/sim/physics"
)

// rainZone is the sensor column under a dripping object.
type rainZone struct {
	owner *Object
}

// goalZone is the level exit sensor.
type goalZone struct{}

// rule is one directional interaction: a acts on b. The resolver applies
// every rule to both orderings of each pair.
type rule struct {
	name string
	fn   func(w *World, a, b *physics.Body)
}

// Resolver dispatches the physics collision feed through the rule table.
type Resolver struct {
	w     *World
	rules [3][]rule
}

func newResolver(w *World) *Resolver {
	r := &Resolver{w: w}
	r.rules[physics.CollisionStart] = []rule{
		{"water-enter", waterEnter},
		{"heavy-sinks", heavySinks},
		{"lightning-strike", lightningStrike},
		{"goal", goalReached},
	}
	r.rules[physics.CollisionActive] = []rule{
		{"ignite", ignite},
		{"lightning-repair", lightningRepair},
		{"rain", rain},
		{"ice-wall-melt", iceWallMelt},
	}
	r.rules[physics.CollisionEnd] = []rule{
		{"water-exit", waterExit},
		{"explode-together", explodeTogether},
	}
	return r
}

func (r *Resolver) attach(s *physics.Space) {
	s.On(physics.CollisionStart, r.handle)
	s.On(physics.CollisionActive, r.handle)
	s.On(physics.CollisionEnd, r.handle)
}

func (r *Resolver) handle(ev physics.Event) {
	rules := r.rules[ev.Phase]
	for _, p := range ev.Pairs {
		for _, ru := range rules {
			ru.fn(r.w, p.A, p.B)
			ru.fn(r.w, p.B, p.A)
		}
	}
}

// live returns the object behind b if it is still in play.
func live(b *physics.Body) *Object {
	if b.Removed() {
		return nil
	}
	o, ok := b.Owner.(*Object)
	if !ok || o.Removed() {
		return nil
	}
	return o
}

// owner returns the object behind b even if it already left play. End
// events for removed bodies rely on this.
func owner(b *physics.Body) *Object {
	o, _ := b.Owner.(*Object)
	return o
}

func waterEnter(w *World, a, b *physics.Body) {
	wt, ok := a.Owner.(*Water)
	if !ok || b.Removed() || b.Static {
		return
	}
	wt.splash(b, w.level.FrictionWater)
	w.emitAt(EventSplash, b.Pos, "")
	if o := live(b); o != nil {
		wt.addFloating(o)
		o.AddWet()
	}
}

func heavySinks(w *World, a, b *physics.Body) {
	oa, ob := live(a), live(b)
	if oa == nil || ob == nil || !oa.Attrs.Heavy {
		return
	}
	for _, wt := range w.waters {
		wt.removeFloating(ob)
	}
	ob.Attrs.Floats = false
}

func lightningStrike(w *World, a, b *physics.Body) {
	oa := live(a)
	if oa == nil || !oa.Attrs.Lightning {
		return
	}
	oa.fx.burst(EffectExplosion, explosionTicks)
	if ob := live(b); ob != nil {
		ob.Repair()
	}
}

func goalReached(w *World, a, b *physics.Body) {
	if _, ok := a.Owner.(*goalZone); !ok {
		return
	}
	if o := live(b); o != nil && w.isTarget(o) {
		w.reachGoal()
	}
}

func ignite(w *World, a, b *physics.Body) {
	oa, ob := live(a), live(b)
	if oa == nil || ob == nil || !oa.CanSetFire() {
		return
	}
	if ob.Attrs.Wooden || ob.Attrs.Ice {
		ob.AddFire(false)
	}
}

func lightningRepair(w *World, a, b *physics.Body) {
	oa, ob := live(a), live(b)
	if oa == nil || ob == nil || !oa.Attrs.Lightning {
		return
	}
	ob.Repair()
}

func rain(w *World, a, b *physics.Body) {
	z, ok := a.Owner.(*rainZone)
	if !ok {
		return
	}
	if ob := live(b); ob != nil && ob != z.owner {
		ob.AddWet()
	}
}

func iceWallMelt(w *World, a, b *physics.Body) {
	oa, ob := live(a), live(b)
	if oa == nil || ob == nil || !oa.Kind.Melts || !ob.CanSetFire() {
		return
	}
	w.meltWall(oa)
}

func waterExit(w *World, a, b *physics.Body) {
	wt, ok := a.Owner.(*Water)
	if !ok {
		return
	}
	if !b.Removed() {
		wt.splash(b, w.level.FrictionAir)
	}
	if o := owner(b); o != nil {
		wt.removeFloating(o)
	}
}

// explodeTogether primes a bridge when a spent explosive leaves it.
func explodeTogether(w *World, a, b *physics.Body) {
	oa, ob := live(a), owner(b)
	if oa == nil || ob == nil || oa.Kind.Hook != kinds.HookBridge {
		return
	}
	if ob.Attrs.Explodes && ob.Life <= 0 {
		oa.Life = 1
		oa.Attrs.Explodes = true
	}
}
