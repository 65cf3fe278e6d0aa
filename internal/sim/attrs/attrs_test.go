package attrs

import (
	"reflect"
	"testing"
)

func TestPresets(t *testing.T) {
	d := Defaults()
	if !d.Solid || !d.Falls {
		t.Fatalf("defaults must be solid and falling: %+v", d)
	}
	if got := d.TrueFlags(); !reflect.DeepEqual(got, []string{"falls", "solid"}) {
		t.Fatalf("defaults true flags = %v", got)
	}
	if got := Zeros().TrueFlags(); len(got) != 0 {
		t.Fatalf("zeros true flags = %v", got)
	}
}

func TestSetFlagByName(t *testing.T) {
	var s Set
	if !s.SetFlag("Wooden", true) {
		t.Fatalf("SetFlag wooden should succeed")
	}
	if !s.Wooden {
		t.Fatalf("wooden not set")
	}
	if s.SetFlag("blorp", true) {
		t.Fatalf("unknown flag should be rejected")
	}
	if v, ok := s.Flag("user_generated_obj"); !ok || v {
		t.Fatalf("user_generated_obj lookup = %v %v", v, ok)
	}
}

func TestFromNames(t *testing.T) {
	s, unknown := FromNames(Zeros(), []string{"wooden", "floats", "sparkly"})
	if !s.Wooden || !s.Floats || s.Solid {
		t.Fatalf("unexpected set: %+v", s)
	}
	if !reflect.DeepEqual(unknown, []string{"sparkly"}) {
		t.Fatalf("unknown = %v", unknown)
	}
}

func TestMatches(t *testing.T) {
	s := Set{Metal: true, Rusted: true}
	cases := []struct {
		filter map[string]bool
		want   bool
	}{
		{map[string]bool{"metal": true}, true},
		{map[string]bool{"metal": true, "rusted": true}, true},
		{map[string]bool{"metal": true, "rusted": false}, false},
		{map[string]bool{"nope": true}, false},
	}
	for _, tc := range cases {
		if got := s.Matches(tc.filter); got != tc.want {
			t.Fatalf("Matches(%v) = %v want %v", tc.filter, got, tc.want)
		}
	}
}

func TestCopiesDoNotAlias(t *testing.T) {
	a := Defaults()
	b := a
	b.SetFlag("burns", true)
	if a.Burns {
		t.Fatalf("value copy aliased")
	}
}
