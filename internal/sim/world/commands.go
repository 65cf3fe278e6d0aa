package world

import (
	"fmt"
	"sort"
	"strings"
)

// Command verbs understood by Apply.
const (
	VerbDestroy   = "destroy"
	VerbSetFire   = "setfire"
	VerbDouse     = "douse"
	VerbMagnetize = "magnetize"
	VerbElectrify = "electrify"
)

// Command is a parsed text command: an action verb and who it applies to.
type Command struct {
	Verb   string `json:"verb"`
	Target string `json:"target"`
}

// Targets lists the names and true attribute flags present in the scene,
// the vocabulary a command target may use.
func (w *World) Targets() []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, o := range w.live() {
		add(strings.ToLower(o.Name))
		for _, f := range o.Attrs.TrueFlags() {
			add(f)
		}
	}
	sort.Strings(out)
	return out
}

// resolveTargets maps a target word onto objects in play.
func (w *World) resolveTargets(target string) []*Object {
	target = strings.ToLower(strings.TrimSpace(target))
	var out []*Object
	switch target {
	case "":
		return nil
	case "all":
		return w.live()
	case "last_created", "last_object":
		if o := w.LastUserObject(); o != nil {
			out = append(out, o)
		}
		return out
	}
	filter := map[string]bool{target: true}
	for _, o := range w.live() {
		if strings.ToLower(o.Name) == target || o.Attrs.Matches(filter) {
			out = append(out, o)
		}
	}
	return out
}

// Apply runs a command and returns the ids it touched. Unknown verbs are an
// error; a target that matches nothing is not.
func (w *World) Apply(cmd Command) ([]ObjectID, error) {
	verb := strings.ToLower(strings.TrimSpace(cmd.Verb))
	var act func(*Object)
	switch verb {
	case VerbDestroy:
		act = func(o *Object) {
			o.clearEffects()
			o.AddFire(true)
			o.Attrs.Explodes = true
			o.Life = 0
		}
	case VerbSetFire:
		t := w.tuning.Object
		act = func(o *Object) {
			o.clearEffects()
			o.AddFire(true)
			o.Attrs.Explodes = true
			o.Life = w.randLife(t.SetFireLifeMin, t.SetFireLifeMax)
		}
	case VerbDouse:
		act = (*Object).AddWet
	case VerbMagnetize:
		act = (*Object).Magnetize
	case VerbElectrify:
		act = func(o *Object) { o.Repair() }
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownVerb, cmd.Verb)
	}

	targets := w.resolveTargets(cmd.Target)
	ids := make([]ObjectID, 0, len(targets))
	for _, o := range targets {
		act(o)
		ids = append(ids, o.ID)
	}
	w.emit(EventCommand, nil, verb+" "+strings.ToLower(cmd.Target))
	return ids, nil
}

// SetFireToEverything lights every object that does not already burn.
func (w *World) SetFireToEverything() int {
	t := w.tuning.Object
	n := 0
	for _, o := range w.live() {
		if o.Attrs.Burns {
			continue
		}
		o.AddFire(true)
		o.Attrs.Explodes = true
		o.Life = w.randLife(t.SetFireLifeMin, t.SetFireLifeMax)
		n++
	}
	return n
}

// DestroyAllBurnable blows up every wooden object.
func (w *World) DestroyAllBurnable() int {
	return w.detonate(func(o *Object) bool { return o.Attrs.Wooden })
}

// DestroyAllIce blows up ice cubes and ice walls.
func (w *World) DestroyAllIce() int {
	return w.detonate(func(o *Object) bool { return o.Kind.ID == "ice" || o.Kind.Melts })
}

func (w *World) detonate(match func(*Object) bool) int {
	n := 0
	for _, o := range w.live() {
		if !match(o) {
			continue
		}
		o.AddFire(true)
		o.Attrs.Explodes = true
		o.Life = 0
		n++
	}
	return n
}

func (w *World) live() []*Object {
	var out []*Object
	for _, o := range w.Objects() {
		if !o.Removed() {
			out = append(out, o)
		}
	}
	return out
}
