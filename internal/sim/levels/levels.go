package levels

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rect is a center-anchored rectangle in world pixels.
type Rect struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	W float64 `yaml:"w"`
	H float64 `yaml:"h"`
}

// Water describes a deformable water body. Depth is measured from the
// bottom of the rectangle; the surface sits at Y+H-Depth.
type Water struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	W     float64 `yaml:"w"`
	H     float64 `yaml:"h"`
	Depth float64 `yaml:"depth"`
}

type Placement struct {
	Kind string  `yaml:"kind"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	W    float64 `yaml:"w,omitempty"`
	H    float64 `yaml:"h,omitempty"`

	// Attrs turns extra attribute flags on for this placement.
	Attrs []string `yaml:"attrs,omitempty"`
}

type Level struct {
	ID   string `yaml:"id"`
	Next string `yaml:"next,omitempty"`

	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`

	Gravity       float64 `yaml:"gravity"`
	Void          bool    `yaml:"void"`
	FrictionAir   float64 `yaml:"friction_air"`
	FrictionWater float64 `yaml:"friction_water"`

	Goal   *Rect  `yaml:"goal,omitempty"`
	Target string `yaml:"target,omitempty"`

	Water     []Water     `yaml:"water,omitempty"`
	Platforms []Rect      `yaml:"platforms,omitempty"`
	Objects   []Placement `yaml:"objects,omitempty"`
}

type File struct {
	Levels []Level `yaml:"levels"`
}

// Set is an ordered, id-indexed collection of levels.
type Set struct {
	order []string
	byID  map[string]Level
}

func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Parse(raw []byte) (*Set, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	s := &Set{byID: map[string]Level{}}
	for _, l := range f.Levels {
		l.ID = strings.TrimSpace(l.ID)
		if l.ID == "" {
			return nil, fmt.Errorf("level with empty id")
		}
		if _, dup := s.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate level %q", l.ID)
		}
		l.applyDefaults()
		s.byID[l.ID] = l
		s.order = append(s.order, l.ID)
	}
	for _, id := range s.order {
		l := s.byID[id]
		if l.Next != "" {
			if _, ok := s.byID[l.Next]; !ok {
				return nil, fmt.Errorf("level %q: unknown next %q", id, l.Next)
			}
		}
		if l.Goal != nil && l.Target == "" {
			return nil, fmt.Errorf("level %q: goal without target", id)
		}
	}
	return s, nil
}

func (l *Level) applyDefaults() {
	if l.Width <= 0 {
		l.Width = 1280
	}
	if l.Height <= 0 {
		l.Height = 720
	}
	if l.Gravity == 0 && !l.Void {
		l.Gravity = 1
	}
	if l.FrictionAir == 0 {
		l.FrictionAir = 0.01
	}
	if l.FrictionWater == 0 {
		l.FrictionWater = 0.1
	}
}

func (s *Set) Get(id string) (Level, bool) {
	l, ok := s.byID[id]
	return l, ok
}

func (s *Set) First() (Level, bool) {
	if len(s.order) == 0 {
		return Level{}, false
	}
	return s.byID[s.order[0]], true
}

func (s *Set) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Sandbox returns a bare level with ground and gravity, used when no level
// file is configured and by tests.
func Sandbox() Level {
	l := Level{ID: "sandbox"}
	l.applyDefaults()
	return l
}
