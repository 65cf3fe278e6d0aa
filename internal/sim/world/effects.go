package world

import (
	"sort"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

type EffectKind string

const (
	EffectFire      EffectKind = "fire"
	EffectDrips     EffectKind = "drips"
	EffectSteam     EffectKind = "steam"
	EffectExplosion EffectKind = "explosion"
	EffectMagnetic  EffectKind = "magnetic"
	EffectWind      EffectKind = "wind"
	EffectFade      EffectKind = "fade"
	EffectBlink     EffectKind = "blink"
)

// Lifetimes of one-shot effects, in ticks.
const (
	steamTicks     = 60
	explosionTicks = 48
)

// EffectHandle is a scoped reference to one running effect. Release is
// idempotent and safe to call on a nil handle.
type EffectHandle struct {
	kind     EffectKind
	ttl      int
	released bool
	pulse    *pulse
	cleanup  []func()
}

func (h *EffectHandle) Kind() EffectKind { return h.kind }

func (h *EffectHandle) Active() bool { return h != nil && !h.released }

// OnRelease registers fn to run exactly once when the handle is released.
func (h *EffectHandle) OnRelease(fn func()) {
	if h == nil {
		return
	}
	if h.released {
		fn()
		return
	}
	h.cleanup = append(h.cleanup, fn)
}

func (h *EffectHandle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	h.pulse = nil
	for _, fn := range h.cleanup {
		fn()
	}
	h.cleanup = nil
}

// pulse is a yoyo tween repeating forever.
type pulse struct {
	tw       *gween.Tween
	from, to float32
	dur      float32
	fn       ease.TweenFunc
	value    float32
}

func newPulse(from, to, dur float32, fn ease.TweenFunc) *pulse {
	return &pulse{tw: gween.New(from, to, dur, fn), from: from, to: to, dur: dur, fn: fn, value: from}
}

func (p *pulse) update(dt float32) float32 {
	v, done := p.tw.Update(dt)
	p.value = v
	if done {
		p.from, p.to = p.to, p.from
		p.tw = gween.New(p.from, p.to, p.dur, p.fn)
	}
	return v
}

// effects holds at most one active handle per kind.
type effects struct {
	active map[EffectKind]*EffectHandle
}

// acquire returns the running handle for kind, starting one if needed.
func (e *effects) acquire(kind EffectKind) *EffectHandle {
	if h := e.get(kind); h != nil {
		return h
	}
	if e.active == nil {
		e.active = map[EffectKind]*EffectHandle{}
	}
	h := &EffectHandle{kind: kind}
	e.active[kind] = h
	return h
}

// burst starts a one-shot effect that releases itself after ttl ticks.
// Re-triggering an active burst restarts its countdown.
func (e *effects) burst(kind EffectKind, ttl int) *EffectHandle {
	h := e.acquire(kind)
	h.ttl = ttl
	return h
}

func (e *effects) get(kind EffectKind) *EffectHandle {
	h := e.active[kind]
	if !h.Active() {
		return nil
	}
	return h
}

func (e *effects) has(kind EffectKind) bool { return e.get(kind) != nil }

func (e *effects) release(kind EffectKind) {
	if h, ok := e.active[kind]; ok {
		delete(e.active, kind)
		h.Release()
	}
}

func (e *effects) releaseAll() {
	for _, k := range e.kinds() {
		e.release(k)
	}
}

// tick ages bursts and advances tweens. It returns the alpha the tweens
// dictate, or 1 when none is running.
func (e *effects) tick(dt float32) float64 {
	alpha := 1.0
	for _, k := range e.kinds() {
		h := e.active[k]
		if h.ttl > 0 {
			h.ttl--
			if h.ttl == 0 {
				e.release(k)
				continue
			}
		}
		if h.pulse != nil {
			alpha = float64(h.pulse.update(dt))
		}
	}
	return alpha
}

func (e *effects) kinds() []EffectKind {
	out := make([]EffectKind, 0, len(e.active))
	for k := range e.active {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fade is the generating placeholder pulse: alpha 0..1 every half second.
func (e *effects) fade() *EffectHandle {
	h := e.acquire(EffectFade)
	if h.pulse == nil {
		h.pulse = newPulse(0, 1, 0.5, ease.InOutSine)
	}
	return h
}

// blink marks an object whose animation is still being produced.
func (e *effects) blink() *EffectHandle {
	h := e.acquire(EffectBlink)
	if h.pulse == nil {
		h.pulse = newPulse(1, 0.4, 0.4, ease.InOutSine)
	}
	return h
}
