package attrs

import (
	"sort"
	"strings"
)

// Set is the property bag carried by every world object. Field json names
// are the names used by the classifier vocabulary and by text commands.
type Set struct {
	Angle float64 `json:"angle"`

	Floats    bool `json:"floats"`
	Hovers    bool `json:"hovers"`
	Falls     bool `json:"falls"`
	Drips     bool `json:"drips"`
	Douses    bool `json:"douses"`
	Solid     bool `json:"solid"`
	Heavy     bool `json:"heavy"`
	Burns     bool `json:"burns"`
	Explodes  bool `json:"explodes"`
	Timer     bool `json:"timer"`
	Flies     bool `json:"flies"`
	Walks     bool `json:"walks"`
	Drives    bool `json:"drives"`
	Space     bool `json:"space"`
	Propelled bool `json:"propelled"`
	Wooden    bool `json:"wooden"`
	Metal     bool `json:"metal"`
	Rusted    bool `json:"rusted"`
	Magnetic  bool `json:"magnetic"`
	Blows     bool `json:"blows"`
	Ice       bool `json:"ice"`
	Lightning bool `json:"lightning"`
	Heal      bool `json:"heal"`

	FloatOffset float64 `json:"floatOffset"`

	Generating    bool `json:"generating"`
	UserGenerated bool `json:"user_generated_obj"`
}

// Defaults is the physically plausible baseline: solid and falling.
func Defaults() Set {
	return Set{Solid: true, Falls: true}
}

// Zeros is the all-false accumulator used when deriving a set from
// classifier output.
func Zeros() Set {
	return Set{}
}

func flagPtrs(s *Set) map[string]*bool {
	return map[string]*bool{
		"floats":             &s.Floats,
		"hovers":             &s.Hovers,
		"falls":              &s.Falls,
		"drips":              &s.Drips,
		"douses":             &s.Douses,
		"solid":              &s.Solid,
		"heavy":              &s.Heavy,
		"burns":              &s.Burns,
		"explodes":           &s.Explodes,
		"timer":              &s.Timer,
		"flies":              &s.Flies,
		"walks":              &s.Walks,
		"drives":             &s.Drives,
		"space":              &s.Space,
		"propelled":          &s.Propelled,
		"wooden":             &s.Wooden,
		"metal":              &s.Metal,
		"rusted":             &s.Rusted,
		"magnetic":           &s.Magnetic,
		"blows":              &s.Blows,
		"ice":                &s.Ice,
		"lightning":          &s.Lightning,
		"heal":               &s.Heal,
		"generating":         &s.Generating,
		"user_generated_obj": &s.UserGenerated,
	}
}

var flagNames = func() []string {
	var s Set
	m := flagPtrs(&s)
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}()

// FlagNames returns every boolean field name in sorted order.
func FlagNames() []string {
	out := make([]string, len(flagNames))
	copy(out, flagNames)
	return out
}

// IsFlag reports whether name (case-insensitive) is a boolean field.
func IsFlag(name string) bool {
	var s Set
	_, ok := flagPtrs(&s)[normalize(name)]
	return ok
}

// Flag returns the value of a boolean field by name.
func (s Set) Flag(name string) (value bool, ok bool) {
	p, ok := flagPtrs(&s)[normalize(name)]
	if !ok {
		return false, false
	}
	return *p, true
}

// SetFlag assigns a boolean field by name. Unknown names are ignored and
// reported with false.
func (s *Set) SetFlag(name string, v bool) bool {
	p, ok := flagPtrs(s)[normalize(name)]
	if !ok {
		return false
	}
	*p = v
	return true
}

// TrueFlags lists the names of all set flags in sorted order.
func (s Set) TrueFlags() []string {
	m := flagPtrs(&s)
	var out []string
	for _, name := range flagNames {
		if *m[name] {
			out = append(out, name)
		}
	}
	return out
}

// Matches reports whether every flag named in filter has the given value.
// Unknown names never match.
func (s Set) Matches(filter map[string]bool) bool {
	m := flagPtrs(&s)
	for k, want := range filter {
		p, ok := m[normalize(k)]
		if !ok || *p != want {
			return false
		}
	}
	return true
}

// FromNames starts from base and turns on every named flag. Unknown names
// are returned so callers can log them.
func FromNames(base Set, names []string) (Set, []string) {
	out := base
	var unknown []string
	for _, n := range names {
		if !out.SetFlag(n, true) {
			unknown = append(unknown, n)
		}
	}
	return out, unknown
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
