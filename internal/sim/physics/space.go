package physics

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

type Phase int

const (
	CollisionStart Phase = iota
	CollisionActive
	CollisionEnd
)

func (p Phase) String() string {
	switch p {
	case CollisionStart:
		return "start"
	case CollisionActive:
		return "active"
	case CollisionEnd:
		return "end"
	}
	return "unknown"
}

type Pair struct {
	A, B *Body
}

type Event struct {
	Phase Phase
	Pairs []Pair
}

type Handler func(Event)

// Config mirrors the usual 2D engine conventions: Gravity is scaled by
// GravityScale and forces are integrated over a fixed step of StepMs.
type Config struct {
	Gravity      mgl64.Vec2
	GravityScale float64
	StepMs       float64

	// Width/Height bound the play area when both are > 0. Bodies are kept
	// inside horizontally and prevented from falling through the floor
	// unless Open is set.
	Width  float64
	Height float64
	Open   bool

	// ContactSlop lets resting bodies stay in contact after push-out.
	ContactSlop float64
}

func DefaultConfig() Config {
	return Config{
		Gravity:      mgl64.Vec2{0, 1},
		GravityScale: 0.001,
		StepMs:       1000.0 / 60.0,
		ContactSlop:  0.5,
	}
}

type pairKey struct {
	a, b BodyID
}

func keyOf(a, b *Body) pairKey {
	if a.ID > b.ID {
		a, b = b, a
	}
	return pairKey{a.ID, b.ID}
}

// Space owns bodies and produces the collision feed. It is not safe for
// concurrent use; the world tick loop owns it.
type Space struct {
	cfg Config

	nextID BodyID
	bodies map[BodyID]*Body

	contacts map[pairKey]Pair
	orphaned []Pair
	handlers [3][]Handler
}

func NewSpace(cfg Config) *Space {
	if cfg.StepMs <= 0 {
		cfg.StepMs = 1000.0 / 60.0
	}
	return &Space{
		cfg:      cfg,
		bodies:   map[BodyID]*Body{},
		contacts: map[pairKey]Pair{},
	}
}

func (s *Space) Config() Config { return s.cfg }

// On subscribes h to a collision phase. Handlers run synchronously inside
// Step, in subscription order.
func (s *Space) On(p Phase, h Handler) {
	s.handlers[p] = append(s.handlers[p], h)
}

func (s *Space) Add(b *Body) *Body {
	s.nextID++
	b.ID = s.nextID
	b.removed = false
	if b.Mass <= 0 {
		b.Mass = 1
	}
	s.bodies[b.ID] = b
	return b
}

// Remove detaches b. Its open contacts end on the next Step; handlers see
// those pairs with Removed() set on b.
func (s *Space) Remove(b *Body) {
	if b == nil || b.removed {
		return
	}
	b.removed = true
	delete(s.bodies, b.ID)
	for k, p := range s.contacts {
		if k.a == b.ID || k.b == b.ID {
			delete(s.contacts, k)
			s.orphaned = append(s.orphaned, p)
		}
	}
}

// Bodies returns the live bodies ordered by id.
func (s *Space) Bodies() []*Body {
	out := make([]*Body, 0, len(s.bodies))
	for _, b := range s.bodies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Space) Len() int { return len(s.bodies) }

// InContact reports whether a and b currently touch.
func (s *Space) InContact(a, b *Body) bool {
	_, ok := s.contacts[keyOf(a, b)]
	return ok
}

// Step integrates one tick, resolves penetration against solid bodies and
// dispatches start, active and end events in that order.
func (s *Space) Step() {
	bodies := s.Bodies()
	dtSq := s.cfg.StepMs * s.cfg.StepMs
	g := s.cfg.Gravity.Mul(s.cfg.GravityScale * dtSq)

	for _, b := range bodies {
		if b.Static {
			b.force = mgl64.Vec2{}
			continue
		}
		acc := b.force.Mul(dtSq / b.Mass)
		if !b.IgnoreGravity {
			acc = acc.Add(g)
		}
		drag := math.Min(math.Max(b.FrictionAir, 0), 1)
		b.Vel = b.Vel.Mul(1 - drag).Add(acc)
		b.Pos = b.Pos.Add(b.Vel)
		b.force = mgl64.Vec2{}
	}

	s.resolve(bodies)
	s.clamp(bodies)
	s.dispatch(bodies)
}

func (s *Space) resolve(bodies []*Body) {
	for i, a := range bodies {
		for _, b := range bodies[i+1:] {
			if a.Sensor || b.Sensor || (a.Static && b.Static) {
				continue
			}
			dx, dy := overlap(a, b)
			if dx <= 0 || dy <= 0 {
				continue
			}
			// Separate along the axis of least penetration.
			var n mgl64.Vec2
			depth := dx
			if dy < dx {
				depth = dy
				n = mgl64.Vec2{0, sign(b.Pos.Y() - a.Pos.Y())}
			} else {
				n = mgl64.Vec2{sign(b.Pos.X() - a.Pos.X()), 0}
			}
			switch {
			case a.Static:
				push(b, n, depth)
			case b.Static:
				push(a, n.Mul(-1), depth)
			default:
				push(a, n.Mul(-1), depth/2)
				push(b, n, depth/2)
			}
		}
	}
}

func push(b *Body, n mgl64.Vec2, depth float64) {
	b.Pos = b.Pos.Add(n.Mul(depth))
	// Kill the velocity component pointing into the contact.
	if v := b.Vel.Dot(n); v < 0 {
		b.Vel = b.Vel.Sub(n.Mul(v))
	}
}

func (s *Space) clamp(bodies []*Body) {
	if s.cfg.Width <= 0 || s.cfg.Height <= 0 {
		return
	}
	for _, b := range bodies {
		if b.Static || b.Sensor {
			continue
		}
		half := b.Size.Mul(0.5)
		x, y := b.Pos.X(), b.Pos.Y()
		if x < half.X() {
			x = half.X()
			b.Vel[0] = math.Max(b.Vel[0], 0)
		}
		if x > s.cfg.Width-half.X() {
			x = s.cfg.Width - half.X()
			b.Vel[0] = math.Min(b.Vel[0], 0)
		}
		if !s.cfg.Open && y > s.cfg.Height-half.Y() {
			y = s.cfg.Height - half.Y()
			b.Vel[1] = math.Min(b.Vel[1], 0)
		}
		b.Pos = mgl64.Vec2{x, y}
	}
}

func (s *Space) dispatch(bodies []*Body) {
	now := map[pairKey]Pair{}
	var started, active []Pair
	for i, a := range bodies {
		for _, b := range bodies[i+1:] {
			if a.Static && b.Static {
				continue
			}
			dx, dy := overlap(a, b)
			if dx < -s.cfg.ContactSlop || dy < -s.cfg.ContactSlop {
				continue
			}
			// Corner-only proximity is not a contact.
			if dx <= 0 && dy <= 0 {
				continue
			}
			k := keyOf(a, b)
			p := Pair{A: a, B: b}
			now[k] = p
			if _, ok := s.contacts[k]; ok {
				active = append(active, p)
			} else {
				started = append(started, p)
			}
		}
	}
	ended := s.orphaned
	s.orphaned = nil
	for k, p := range s.contacts {
		if _, ok := now[k]; !ok {
			ended = append(ended, p)
		}
	}
	sort.Slice(ended, func(i, j int) bool {
		ki, kj := keyOf(ended[i].A, ended[i].B), keyOf(ended[j].A, ended[j].B)
		if ki.a != kj.a {
			return ki.a < kj.a
		}
		return ki.b < kj.b
	})
	s.contacts = now

	s.emit(CollisionStart, started)
	s.emit(CollisionActive, active)
	s.emit(CollisionEnd, ended)
}

func (s *Space) emit(p Phase, pairs []Pair) {
	if len(pairs) == 0 {
		return
	}
	ev := Event{Phase: p, Pairs: pairs}
	for _, h := range s.handlers[p] {
		h(ev)
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
