package kinds

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"sketchcraft.ai/internal/sim/attrs"
)

// Hook selects a per-tick behavior that a plain attribute set cannot express.
type Hook string

const (
	HookNone   Hook = ""
	HookDrift  Hook = "drift"  // cloud: slow constant drift to the right
	HookBridge Hook = "bridge" // burning turns into explodes without double life loss
)

// Descriptor is the immutable description of an object kind. A world object
// is a single type parameterized by one of these.
type Descriptor struct {
	ID      string
	Texture string

	// Attrs is the full starting set (Defaults plus overrides).
	Attrs attrs.Set

	// FloatOffsetRatio is multiplied by the object height to get
	// Attrs.FloatOffset at spawn time.
	FloatOffsetRatio float64

	// LifeMin/LifeMax randomize the starting life when LifeMax > 0.
	LifeMin int
	LifeMax int

	Width  float64
	Height float64
	Static bool

	// IsKey marks objects whose destruction ends the level.
	IsKey bool

	// Melts marks walls that shrink geometrically under fire contact.
	Melts bool

	// RustedTexture / RepairedTexture are swapped in when rusted toggles.
	RustedTexture   string
	RepairedTexture string

	// FixedTexture keeps the texture regardless of updates (fire).
	FixedTexture bool

	Hook Hook
}

// WithOverrides returns Defaults() with the named flags set to true.
func WithOverrides(names ...string) attrs.Set {
	s, unknown := attrs.FromNames(attrs.Defaults(), names)
	if len(unknown) > 0 {
		panic(fmt.Sprintf("kinds: unknown attribute(s) %v", unknown))
	}
	return s
}

// Registry maps kind ids to descriptors.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Descriptor{}}
}

// Register adds or replaces a descriptor. Width/Height default to 64.
func (r *Registry) Register(d Descriptor) error {
	id := strings.ToLower(strings.TrimSpace(d.ID))
	if id == "" {
		return fmt.Errorf("kinds: empty id")
	}
	d.ID = id
	if d.Texture == "" {
		d.Texture = id
	}
	if d.Width <= 0 {
		d.Width = 64
	}
	if d.Height <= 0 {
		d.Height = 64
	}
	if d.LifeMax > 0 && d.LifeMin > d.LifeMax {
		return fmt.Errorf("kinds: %s: life_min > life_max", id)
	}
	r.mu.Lock()
	r.byID[id] = d
	r.mu.Unlock()
	return nil
}

func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[strings.ToLower(strings.TrimSpace(id))]
	return d, ok
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Generic is the descriptor used for user-generated objects whose type is
// not a known kind.
func Generic() Descriptor {
	return Descriptor{ID: "user", Texture: "user", Attrs: attrs.Defaults(), Width: 64, Height: 64}
}

// Builtin returns a registry preloaded with the standard kinds.
func Builtin() *Registry {
	r := NewRegistry()
	for _, d := range builtins() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func builtins() []Descriptor {
	cloud := WithOverrides("hovers")
	cloud.Falls, cloud.Solid = false, false
	rainy := WithOverrides("hovers", "drips")
	rainy.Falls, rainy.Solid = false, false

	return []Descriptor{
		{ID: "boat", Attrs: WithOverrides("floats", "wooden"), FloatOffsetRatio: -0.4},
		{ID: "bomb", Attrs: WithOverrides("explodes", "timer"), LifeMin: 100, LifeMax: 200},
		{ID: "bricks", Attrs: WithOverrides("heavy")},
		{ID: "cloud", Attrs: cloud, Width: 128, Height: 128, Hook: HookDrift},
		{ID: "cloud_rainy", Attrs: rainy, Width: 128, Height: 128},
		{ID: "fire", Attrs: WithOverrides("burns"), FixedTexture: true},
		{ID: "ice", Attrs: WithOverrides("floats", "ice"), FloatOffsetRatio: 0.25},
		{ID: "tofu", Attrs: attrs.Defaults()},
		{ID: "tree", Attrs: WithOverrides("floats", "wooden")},
		{ID: "magnet", Attrs: WithOverrides("heavy", "magnetic")},
		{ID: "metal", Attrs: WithOverrides("heavy", "metal")},
		{ID: "key", Attrs: WithOverrides("metal"), IsKey: true, RustedTexture: "rustedkey", RepairedTexture: "key"},
		{ID: "icekey", Attrs: WithOverrides("floats", "ice"), FloatOffsetRatio: 0.25, IsKey: true},
		{ID: "rustedkey", Attrs: WithOverrides("metal", "rusted"), IsKey: true, RustedTexture: "rustedkey", RepairedTexture: "key"},
		{ID: "fan", Attrs: WithOverrides("heavy", "blows")},
		{ID: "lightning", Attrs: WithOverrides("lightning")},
		{ID: "icewall", Attrs: attrs.Defaults(), Static: true, Melts: true},
		{ID: "metalwall", Attrs: attrs.Defaults(), Static: true},
		{ID: "bridge", Attrs: WithOverrides("wooden"), Static: true, Hook: HookBridge},
	}
}
