package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

type recorder struct {
	start, active, end int
}

func (r *recorder) attach(s *Space) {
	s.On(CollisionStart, func(ev Event) { r.start += len(ev.Pairs) })
	s.On(CollisionActive, func(ev Event) { r.active += len(ev.Pairs) })
	s.On(CollisionEnd, func(ev Event) { r.end += len(ev.Pairs) })
}

func TestStep_FallsOntoStaticAndStaysInContact(t *testing.T) {
	s := NewSpace(DefaultConfig())
	var rec recorder
	rec.attach(s)

	floor := s.Add(&Body{Pos: mgl64.Vec2{100, 200}, Size: mgl64.Vec2{400, 20}, Static: true})
	box := s.Add(&Body{Pos: mgl64.Vec2{100, 150}, Size: mgl64.Vec2{20, 20}, Mass: 1})

	for i := 0; i < 200; i++ {
		s.Step()
	}
	if rec.start != 1 {
		t.Fatalf("start events = %d, want 1", rec.start)
	}
	if rec.active == 0 {
		t.Fatalf("expected sustained active contact")
	}
	if rec.end != 0 {
		t.Fatalf("unexpected end events: %d", rec.end)
	}
	top := floor.Min().Y()
	if got := box.Max().Y(); got > top+0.01 {
		t.Fatalf("box sank into floor: bottom=%v top=%v", got, top)
	}
	if !s.InContact(box, floor) {
		t.Fatalf("InContact = false")
	}
}

func TestStep_EndEventWhenSeparated(t *testing.T) {
	s := NewSpace(DefaultConfig())
	var rec recorder
	rec.attach(s)

	zone := s.Add(&Body{Pos: mgl64.Vec2{0, 0}, Size: mgl64.Vec2{50, 50}, Static: true, Sensor: true})
	b := s.Add(&Body{Pos: mgl64.Vec2{0, 0}, Size: mgl64.Vec2{10, 10}, IgnoreGravity: true})
	s.Step()
	if rec.start != 1 {
		t.Fatalf("start = %d", rec.start)
	}
	b.SetPosition(mgl64.Vec2{500, 500})
	s.Step()
	if rec.end != 1 {
		t.Fatalf("end = %d", rec.end)
	}
	if s.InContact(zone, b) {
		t.Fatalf("still in contact")
	}
}

func TestRemove_EndsContactsOnNextStep(t *testing.T) {
	s := NewSpace(DefaultConfig())
	var rec recorder
	rec.attach(s)

	s.Add(&Body{Size: mgl64.Vec2{50, 50}, Static: true, Sensor: true})
	b := s.Add(&Body{Size: mgl64.Vec2{10, 10}, IgnoreGravity: true})
	s.Step()
	s.Remove(b)
	if rec.end != 0 {
		t.Fatalf("end dispatched outside Step")
	}
	var sawRemoved bool
	s.On(CollisionEnd, func(ev Event) {
		for _, p := range ev.Pairs {
			sawRemoved = sawRemoved || p.A.Removed() || p.B.Removed()
		}
	})
	s.Step()
	if rec.end != 1 || !sawRemoved {
		t.Fatalf("end = %d sawRemoved = %v", rec.end, sawRemoved)
	}
	if !b.Removed() || s.Len() != 1 {
		t.Fatalf("body not removed")
	}
}

func TestForceIntegration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gravity = mgl64.Vec2{}
	s := NewSpace(cfg)
	light := s.Add(&Body{Size: mgl64.Vec2{1, 1}, Mass: 0.1})
	heavy := s.Add(&Body{Pos: mgl64.Vec2{100, 0}, Size: mgl64.Vec2{1, 1}, Mass: 1})
	f := mgl64.Vec2{0.001, 0}
	light.ApplyForce(f)
	heavy.ApplyForce(f)
	s.Step()
	if light.Vel.X() <= heavy.Vel.X()*9 {
		t.Fatalf("lighter body should accelerate 10x: %v vs %v", light.Vel, heavy.Vel)
	}
	if light.Force() != (mgl64.Vec2{}) {
		t.Fatalf("force not cleared after step")
	}
}
