package gen

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func newTestAnalyzer(t *testing.T, answers map[ResponseSchema][]string) (*Analyzer, *fakeText) {
	t.Helper()
	model := &fakeText{answers: answers}
	a, err := NewAnalyzer(repoCatalog(t), model, quiet)
	if err != nil {
		t.Fatalf("analyzer: %v", err)
	}
	return a, model
}

func TestClassify_KnownType(t *testing.T) {
	a, model := newTestAnalyzer(t, map[ResponseSchema][]string{
		SchemaTypeGuess: {`{"type":"a small boat"}`},
	})
	res, err := a.Classify(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Type != "boat" || !res.Known {
		t.Fatalf("res = %+v", res)
	}
	s := res.Set()
	if !s.Floats || !s.Wooden || s.Drives {
		t.Fatalf("boat attrs = %+v", s)
	}
	if len(model.reqs) != 1 || !strings.Contains(model.reqs[0].Prompt, "'boat'") {
		t.Fatalf("reqs = %+v", model.reqs)
	}
}

func TestClassify_UnknownFallsBackToInference(t *testing.T) {
	a, model := newTestAnalyzer(t, map[ResponseSchema][]string{
		SchemaTypeGuess:  {`{"type":"none"}`, `{"type":"blorp"}`},
		SchemaAttributes: {`{"wooden":1,"metal":0}`},
	})
	res, err := a.Classify(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Type != "blorp" || res.Known {
		t.Fatalf("res = %+v", res)
	}
	if !reflect.DeepEqual(res.Attributes, []string{"wooden"}) {
		t.Fatalf("attributes = %v", res.Attributes)
	}
	s := res.Set()
	if !s.Wooden || s.Metal || s.Solid || s.Falls {
		t.Fatalf("set = %+v", s)
	}
	if len(model.reqs) != 3 {
		t.Fatalf("model calls = %d, want 3", len(model.reqs))
	}
	if model.reqs[2].Image != nil || !strings.Contains(model.reqs[2].Prompt, "blorp") {
		t.Fatalf("attribute request = %+v", model.reqs[2])
	}
}

func TestClassify_MapsToAndNestedAnswer(t *testing.T) {
	a, _ := newTestAnalyzer(t, map[ResponseSchema][]string{
		SchemaTypeGuess:  {`{"type":"none"}`, `{"type":"icicle"}`},
		SchemaAttributes: {`{"attributes":{"frozen":1,"ice":true,"flammable":"1","electric":0}}`},
	})
	res, err := a.Classify(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	got := map[string]bool{}
	for _, n := range res.Attributes {
		if got[n] {
			t.Fatalf("duplicate %q in %v", n, res.Attributes)
		}
		got[n] = true
	}
	if !got["ice"] || !got["wooden"] || got["lightning"] || len(got) != 2 {
		t.Fatalf("attributes = %v", res.Attributes)
	}
}

func TestClassify_Blocked(t *testing.T) {
	a, model := newTestAnalyzer(t, map[ResponseSchema][]string{
		SchemaTypeGuess: {`{"type":"none"}`, `{"type":"a gun"}`},
	})
	res, err := a.Classify(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !res.Blocked {
		t.Fatalf("blocked content not flagged: %+v", res)
	}
	if len(model.reqs) != 2 {
		t.Fatalf("attribute inference ran for blocked content")
	}
}

func TestClassify_Errors(t *testing.T) {
	cases := []struct {
		name   string
		sketch []byte
		answer string
	}{
		{"empty input", nil, `{"type":"boat"}`},
		{"not json", []byte("png"), `boat`},
		{"wrong shape", []byte("png"), `{"kind":"boat"}`},
		{"empty answer", []byte("png"), ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestAnalyzer(t, map[ResponseSchema][]string{SchemaTypeGuess: {tc.answer}})
			_, err := a.Classify(context.Background(), tc.sketch)
			var ce *ClassificationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ClassificationError", err)
			}
		})
	}
}

func TestTextToCommand(t *testing.T) {
	a, model := newTestAnalyzer(t, map[ResponseSchema][]string{
		SchemaCommand: {`{"verb":"SetFire","target":"wooden"}`},
	})
	cmd, err := a.TextToCommand(context.Background(), "burn the wood", []string{"boat"})
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if cmd != (Command{Verb: "setfire", Target: "wooden"}) {
		t.Fatalf("cmd = %+v", cmd)
	}
	p := model.reqs[0].Prompt
	if !strings.Contains(p, "LAST_CREATED") || !strings.Contains(p, "'boat'") || !strings.Contains(p, "'douse'") {
		t.Fatalf("prompt = %q", p)
	}
	if _, err := a.TextToCommand(context.Background(), "  ", nil); err == nil {
		t.Fatalf("empty command accepted")
	}
}

func TestCollapseCommand(t *testing.T) {
	cases := []struct {
		in   map[string]any
		want Command
	}{
		{map[string]any{"verb": "douse", "target": "all"}, Command{"douse", "all"}},
		{map[string]any{"destroy": "LAST_OBJECT"}, Command{"destroy", "last_object"}},
		{map[string]any{"verb": map[string]any{"magnetize": "metal"}, "target": ""}, Command{"magnetize", "metal"}},
		{map[string]any{"verb": "", "target": map[string]any{"electrify": "rusted"}}, Command{"electrify", "rusted"}},
		{map[string]any{"a": "b", "c": "d"}, Command{}},
	}
	for _, tc := range cases {
		if got := collapseCommand(tc.in); got != tc.want {
			t.Fatalf("collapse(%v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
