package world

import "sketchcraft.ai/internal/sim/attrs"

// ObjectState is the render-facing view of one object.
type ObjectState struct {
	ID        ObjectID     `json:"id"`
	Name      string       `json:"name"`
	Kind      string       `json:"kind"`
	Texture   string       `json:"texture"`
	Frames    []string     `json:"frames,omitempty"`
	Hash      string       `json:"hash,omitempty"`
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Width     float64      `json:"w"`
	Height    float64      `json:"h"`
	Angle     float64      `json:"angle"`
	Alpha     float64      `json:"alpha"`
	Life      int          `json:"life"`
	CatchFire bool         `json:"catch_fire"`
	Exploded  bool         `json:"exploded"`
	Voided    bool         `json:"voided,omitempty"`
	Attrs     attrs.Set    `json:"attrs"`
	Effects   []EffectKind `json:"effects,omitempty"`
}

type WaterState struct {
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
	W       float64   `json:"w"`
	H       float64   `json:"h"`
	Surface []float64 `json:"surface"`
}

// Observation is a full scene snapshot taken between ticks.
type Observation struct {
	Tick    uint64        `json:"tick"`
	Epoch   uint64        `json:"epoch"`
	Level   string        `json:"level"`
	Objects []ObjectState `json:"objects"`
	Water   []WaterState  `json:"water,omitempty"`
	Events  []Event       `json:"events,omitempty"`
}

func (o *Object) State() ObjectState {
	p := o.Pos()
	angle := o.Attrs.Angle
	if o.body != nil {
		angle = o.body.Angle
	}
	return ObjectState{
		ID:        o.ID,
		Name:      o.Name,
		Kind:      o.Kind.ID,
		Texture:   o.Texture,
		Frames:    o.Frames,
		Hash:      o.Hash,
		X:         p.X(),
		Y:         p.Y(),
		Width:     o.Width,
		Height:    o.Height,
		Angle:     angle,
		Alpha:     o.Alpha,
		Life:      o.Life,
		CatchFire: o.CatchFire,
		Exploded:  o.Exploded,
		Voided:    o.Voided,
		Attrs:     o.Attrs,
		Effects:   o.Effects(),
	}
}

// Observe snapshots the scene and drains pending events into it.
func (w *World) Observe() Observation {
	obs := Observation{
		Tick:   w.tick,
		Epoch:  w.epoch,
		Level:  w.level.ID,
		Events: w.DrainEvents(),
	}
	for _, o := range w.Objects() {
		if o.Voided {
			continue
		}
		obs.Objects = append(obs.Objects, o.State())
	}
	for _, wt := range w.waters {
		s := wt.Spec()
		obs.Water = append(obs.Water, WaterState{X: s.X, Y: s.Y, W: s.W, H: s.H, Surface: wt.Surface()})
	}
	return obs
}
