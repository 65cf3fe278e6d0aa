package main

import (
	"testing"

	"sketchcraft.ai/internal/gen"
)

func TestParseBackends(t *testing.T) {
	got, err := parseBackends(" imagen, gemini ,imagen")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != gen.BackendImagen || got[1] != gen.BackendGemini {
		t.Fatalf("got %v", got)
	}
	for _, bad := range []string{"", "veo", "dalle"} {
		if _, err := parseBackends(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestPlan(t *testing.T) {
	jobs := plan([]string{"boat", "rock"}, []string{"realistic"}, []gen.Backend{gen.BackendImagen, gen.BackendGemini})
	if len(jobs) != 4 {
		t.Fatalf("jobs = %v", jobs)
	}
	if jobs[0].String() != "boat/realistic/imagen" || jobs[3].String() != "rock/realistic/gemini" {
		t.Fatalf("order = %v", jobs)
	}
}

func TestPick(t *testing.T) {
	all := []string{"boat", "rock", "tree"}
	if got := pick(all, ""); len(got) != 3 {
		t.Fatalf("default = %v", got)
	}
	if got := pick(all, "rock, ghost ,boat"); len(got) != 2 || got[0] != "rock" || got[1] != "boat" {
		t.Fatalf("subset = %v", got)
	}
}
