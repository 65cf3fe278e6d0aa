package world

import (
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"sketchcraft.ai/internal/sim/attrs"
	"sketchcraft.ai/internal/sim/kinds"
	"sketchcraft.ai/internal/sim/levels"
	"sketchcraft.ai/internal/sim/physics"
	"sketchcraft.ai/internal/sim/tuning"
)

var (
	// ErrMissingBody marks an object whose physics body is gone when a rule
	// expected one. It is logged and the step skipped.
	ErrMissingBody = errors.New("missing physics body")

	// ErrStale rejects async results that belong to an earlier scene.
	ErrStale = errors.New("stale scene epoch")

	ErrUnknownObject = errors.New("unknown object")
	ErrUnknownKind   = errors.New("unknown kind")
	ErrUnknownVerb   = errors.New("unknown verb")
)

// Signals receives scene transitions. Each fires at most once per epoch.
type Signals interface {
	GoalReached(epoch uint64, next string)
	GameOver(epoch uint64, reason string)
}

type Config struct {
	Tuning  tuning.Tuning
	Kinds   *kinds.Registry
	Signals Signals
	Logger  *log.Logger
	Seed    int64
}

type EventKind string

const (
	EventSpawn     EventKind = "spawn"
	EventIgnite    EventKind = "ignite"
	EventMelt      EventKind = "melt"
	EventSteam     EventKind = "steam"
	EventRust      EventKind = "rust"
	EventRepair    EventKind = "repair"
	EventExplosion EventKind = "explosion"
	EventSplash    EventKind = "splash"
	EventDestroyed EventKind = "destroyed"
	EventCommand   EventKind = "command"
	EventGoal      EventKind = "goal"
	EventGameOver  EventKind = "game_over"
)

// Event is one observable change, drained by the presentation layer.
type Event struct {
	Tick   uint64     `json:"tick"`
	Kind   EventKind  `json:"kind"`
	Object ObjectID   `json:"object,omitempty"`
	Name   string     `json:"name,omitempty"`
	Pos    mgl64.Vec2 `json:"pos"`
	Detail string     `json:"detail,omitempty"`
}

// Appearance is the generated look and attribute set for a placeholder.
type Appearance struct {
	Type    string
	Texture string
	Hash    string
	Attrs   attrs.Set

	// Animating keeps the object blinking until SetAnimation delivers frames.
	Animating bool
}

// World is the headless scene: objects, their bodies and the rules that
// connect them. It is not safe for concurrent use; Runner serializes access.
type World struct {
	cfg    Config
	tuning tuning.Tuning
	kinds  *kinds.Registry
	log    *log.Logger
	rng    *rand.Rand

	level levels.Level
	epoch uint64
	tick  uint64
	dt    float32

	space    *physics.Space
	resolver *Resolver
	objects  map[ObjectID]*Object
	order    []ObjectID
	nextID   ObjectID
	waters   []*Water
	goal     *physics.Body

	goalDone bool
	overDone bool
	events   []Event
}

func New(cfg Config) *World {
	if cfg.Kinds == nil {
		cfg.Kinds = kinds.Builtin()
	}
	if cfg.Tuning.TickRateHz <= 0 {
		cfg.Tuning = tuning.Defaults()
	}
	w := &World{
		cfg:     cfg,
		tuning:  cfg.Tuning,
		kinds:   cfg.Kinds,
		log:     cfg.Logger,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		dt:      1 / float32(cfg.Tuning.TickRateHz),
		objects: map[ObjectID]*Object{},
	}
	w.resolver = newResolver(w)
	w.Load(levels.Sandbox())
	return w
}

func (w *World) Epoch() uint64 { return w.epoch }
func (w *World) Tick() uint64  { return w.tick }

func (w *World) Level() levels.Level { return w.level }

func (w *World) Waters() []*Water { return w.waters }

func (w *World) Space() *physics.Space { return w.space }

// Load tears down the current scene and builds lvl. In-flight generation
// results for the old scene are rejected afterwards via the epoch.
func (w *World) Load(lvl levels.Level) error {
	w.Clear()
	w.epoch++
	w.level = lvl
	w.goalDone = false
	w.overDone = false
	w.waters = nil
	w.goal = nil

	pcfg := physics.DefaultConfig()
	pcfg.Gravity = mgl64.Vec2{0, lvl.Gravity}
	pcfg.StepMs = 1000 / float64(w.tuning.TickRateHz)
	pcfg.Width = lvl.Width
	pcfg.Height = lvl.Height
	pcfg.Open = lvl.Void
	w.space = physics.NewSpace(pcfg)
	w.resolver.attach(w.space)

	for _, p := range lvl.Platforms {
		w.space.Add(&physics.Body{
			Label:  "platform",
			Pos:    mgl64.Vec2{p.X, p.Y},
			Size:   mgl64.Vec2{p.W, p.H},
			Static: true,
		})
	}
	for _, spec := range lvl.Water {
		wt := newWater(w, spec, w.tuning.Water)
		w.space.Add(wt.sensor)
		w.waters = append(w.waters, wt)
	}
	if g := lvl.Goal; g != nil {
		w.goal = w.space.Add(&physics.Body{
			Label:  "goal",
			Pos:    mgl64.Vec2{g.X, g.Y},
			Size:   mgl64.Vec2{g.W, g.H},
			Static: true,
			Sensor: true,
			Owner:  &goalZone{},
		})
	}
	for _, p := range lvl.Objects {
		if _, err := w.Spawn(p.Kind, p.X, p.Y, p.W, p.H, p.Attrs); err != nil {
			return fmt.Errorf("level %s: %w", lvl.ID, err)
		}
	}
	return nil
}

// Clear removes every object, unwinding effects before the bodies go.
func (w *World) Clear() {
	for _, id := range w.order {
		o := w.objects[id]
		o.clearEffects()
		w.detach(o)
		o.Destroyed = true
	}
	w.objects = map[ObjectID]*Object{}
	w.order = nil
}

// RemoveUserObjects destroys every user-generated object in the scene.
func (w *World) RemoveUserObjects() int {
	n := 0
	for _, o := range w.Objects() {
		if o.Attrs.UserGenerated {
			w.destroy(o)
			n++
		}
	}
	w.compact()
	return n
}

// Step advances one tick: forces, physics (which runs the collision
// rules), water, then per-object updates.
func (w *World) Step() {
	w.tick++
	w.applyForces()
	w.space.Step()
	for _, wt := range w.waters {
		wt.update()
	}
	for _, id := range w.order {
		w.objects[id].update()
	}
	w.compact()
}

func (w *World) compact() {
	kept := w.order[:0]
	for _, id := range w.order {
		if o := w.objects[id]; o.Destroyed {
			delete(w.objects, id)
			continue
		}
		kept = append(kept, id)
	}
	w.order = kept
}

func (w *World) newObject(d kinds.Descriptor, x, y, width, height float64) *Object {
	if width <= 0 {
		width = d.Width
	}
	if height <= 0 {
		height = d.Height
	}
	w.nextID++
	o := &Object{
		ID:      w.nextID,
		Name:    d.ID,
		Kind:    d,
		Texture: d.Texture,
		Width:   width,
		Height:  height,
		Alpha:   1,
		w:       w,
		pos:     mgl64.Vec2{x, y},
	}
	w.objects[o.ID] = o
	w.order = append(w.order, o.ID)
	return o
}

// Spawn places an object of a registered kind. extra turns on additional
// attribute flags.
func (w *World) Spawn(kind string, x, y, width, height float64, extra []string) (*Object, error) {
	d, ok := w.kinds.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	set, unknown := attrs.FromNames(d.Attrs, extra)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("kind %s: unknown attributes %v", kind, unknown)
	}
	o := w.newObject(d, x, y, width, height)
	set.FloatOffset = d.FloatOffsetRatio * o.Height
	o.configure(set)
	if d.LifeMax > 0 {
		o.Life = w.randLife(d.LifeMin, d.LifeMax)
	}
	w.emit(EventSpawn, o, "")
	return o, nil
}

// SpawnPlaceholder drops a fading generic object that waits for Finalize.
func (w *World) SpawnPlaceholder(x, y float64) *Object {
	o := w.newObject(kinds.Generic(), x, y, 0, 0)
	set := attrs.Defaults()
	set.Generating = true
	set.UserGenerated = true
	o.configure(set)
	w.emit(EventSpawn, o, "placeholder")
	return o
}

// Finalize turns a placeholder into the generated object. Results from an
// earlier scene are rejected with ErrStale.
func (w *World) Finalize(id ObjectID, epoch uint64, a Appearance) (*Object, error) {
	o, err := w.pending(id, epoch)
	if err != nil {
		return nil, err
	}
	d, ok := w.kinds.Lookup(a.Type)
	if !ok {
		d = kinds.Generic()
	}
	o.Kind = d
	o.Name = a.Type
	o.Hash = a.Hash
	o.Texture = a.Texture
	if o.Texture == "" {
		o.Texture = d.Texture
	}
	set := a.Attrs
	set.Generating = false
	set.UserGenerated = true
	if set.FloatOffset == 0 {
		set.FloatOffset = d.FloatOffsetRatio * o.Height
	}
	o.configure(set)
	if a.Animating {
		o.fx.blink()
	}
	w.emit(EventSpawn, o, a.Type)
	return o, nil
}

// SetAnimation attaches generated frames and stops the waiting blink.
func (w *World) SetAnimation(id ObjectID, epoch uint64, frames []string) error {
	if epoch != w.epoch {
		return ErrStale
	}
	o, ok := w.objects[id]
	if !ok || o.Removed() {
		return fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	o.Frames = append([]string(nil), frames...)
	o.fx.release(EffectBlink)
	return nil
}

// Abort drops a failed placeholder back to a plain static object with the
// fallback texture.
func (w *World) Abort(id ObjectID, epoch uint64, fallback string) error {
	o, err := w.pending(id, epoch)
	if err != nil {
		return err
	}
	o.Texture = fallback
	set := attrs.Defaults()
	set.UserGenerated = true
	o.configure(set)
	return nil
}

func (w *World) pending(id ObjectID, epoch uint64) (*Object, error) {
	if epoch != w.epoch {
		return nil, ErrStale
	}
	o, ok := w.objects[id]
	if !ok || o.Removed() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	return o, nil
}

func (w *World) Object(id ObjectID) (*Object, bool) {
	o, ok := w.objects[id]
	if !ok || o.Destroyed {
		return nil, false
	}
	return o, true
}

// Objects returns the objects in play, including voided ones, by id.
func (w *World) Objects() []*Object {
	out := make([]*Object, 0, len(w.order))
	for _, id := range w.order {
		if o := w.objects[id]; !o.Destroyed {
			out = append(out, o)
		}
	}
	return out
}

// LastUserObject is the most recent user-generated object still in play.
func (w *World) LastUserObject() *Object {
	for i := len(w.order) - 1; i >= 0; i-- {
		o := w.objects[w.order[i]]
		if o.Attrs.UserGenerated && !o.Removed() {
			return o
		}
	}
	return nil
}

// DrainEvents returns and clears the events recorded since the last call.
func (w *World) DrainEvents() []Event {
	out := w.events
	w.events = nil
	return out
}

func (w *World) emit(kind EventKind, o *Object, detail string) {
	ev := Event{Tick: w.tick, Kind: kind, Detail: detail}
	if o != nil {
		ev.Object = o.ID
		ev.Name = o.Name
		ev.Pos = o.Pos()
	}
	w.events = append(w.events, ev)
}

func (w *World) emitAt(kind EventKind, pos mgl64.Vec2, detail string) {
	w.events = append(w.events, Event{Tick: w.tick, Kind: kind, Pos: pos, Detail: detail})
}

func (w *World) isTarget(o *Object) bool {
	return w.level.Target != "" && o.Kind.ID == w.level.Target
}

func (w *World) reachGoal() {
	if w.goalDone || w.overDone {
		return
	}
	w.goalDone = true
	w.emit(EventGoal, nil, w.level.Next)
	if w.cfg.Signals != nil {
		w.cfg.Signals.GoalReached(w.epoch, w.level.Next)
	}
}

func (w *World) gameOver(reason string) {
	if w.overDone || w.goalDone {
		return
	}
	w.overDone = true
	w.emit(EventGameOver, nil, reason)
	if w.cfg.Signals != nil {
		w.cfg.Signals.GameOver(w.epoch, reason)
	}
}

func (w *World) attachBody(o *Object) {
	if o.body != nil {
		return
	}
	t := w.tuning.Object
	mass := t.LightMass
	if o.Attrs.Heavy {
		mass = t.HeavyMass
	}
	drag := w.level.FrictionAir
	if o.Attrs.Propelled {
		drag *= t.PropelledDragMul
	}
	o.body = w.space.Add(&physics.Body{
		Label:         o.Kind.ID,
		Pos:           o.pos,
		Size:          mgl64.Vec2{o.Width, o.Height},
		Angle:         o.Attrs.Angle,
		Mass:          mass,
		FrictionAir:   drag,
		Static:        o.Kind.Static || o.Attrs.Generating,
		IgnoreGravity: !o.Attrs.Falls,
		Owner:         o,
	})
}

// detach removes the object's bodies from the space and from every water.
func (w *World) detach(o *Object) {
	w.detachRain(o)
	if o.body != nil {
		o.pos = o.body.Pos
		w.space.Remove(o.body)
		o.body = nil
	}
	for _, wt := range w.waters {
		wt.removeFloating(o)
	}
}

func (w *World) attachRain(o *Object) {
	if o.rainZone != nil {
		return
	}
	h := w.level.Height
	o.rainZone = w.space.Add(&physics.Body{
		Label:  "rain",
		Pos:    mgl64.Vec2{o.Pos().X(), h / 2},
		Size:   mgl64.Vec2{64, h},
		Static: true,
		Sensor: true,
		Owner:  &rainZone{owner: o},
	})
}

func (w *World) detachRain(o *Object) {
	if o.rainZone == nil {
		return
	}
	w.space.Remove(o.rainZone)
	o.rainZone = nil
}

func (w *World) destroy(o *Object) {
	if o.Destroyed {
		return
	}
	o.clearEffects()
	w.detach(o)
	o.Destroyed = true
	w.emit(EventDestroyed, o, "")
}

// meltWall shrinks an ice wall from the top, keeping its base in place.
func (w *World) meltWall(o *Object) {
	b := o.body
	if b == nil {
		w.logf("melt: %v", fmt.Errorf("object %d: %w", o.ID, ErrMissingBody))
		return
	}
	step := w.tuning.Object.IceMeltStep
	b.Pos[1] += step
	b.Size[1] -= 2 * step
	o.Height = b.Size[1]
	if o.Height <= 0 {
		w.emit(EventMelt, o, "")
		w.destroy(o)
	}
}

// randCentered returns a uniform integer in [-n, n] scaled by 1/100.
func (w *World) randCentered(n int) float64 {
	return float64(w.rng.Intn(2*n+1)-n) / 100
}

func (w *World) randLife(min, max int) int {
	if max <= min {
		return min
	}
	return min + w.rng.Intn(max-min+1)
}

func (w *World) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}
