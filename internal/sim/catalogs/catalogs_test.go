package catalogs

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs", "ai-config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Digest == "" {
		t.Fatalf("missing digest")
	}
	if _, ok := c.MatchType("a small Boat drawing"); !ok {
		t.Fatalf("boat should match by substring")
	}
	if _, ok := c.Model(ModelImagen); !ok {
		t.Fatalf("imagen model missing")
	}
}

func TestParse_RejectsUnknownMapsTo(t *testing.T) {
	raw := `{
	  "prompts": {"analysis_initialGuess":"a","analysis_genericGuess":"b","analysis_attributesGuess":"c","analysis_textToCommand":"d"},
	  "models": {},
	  "types": [],
	  "attributes": [{"key":"shiny","mapsTo":"sparkly"}],
	  "verbs": [],
	  "visualStyles": [{"id":"x","prompt":"y"}]
	}`
	_, err := Parse([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "sparkly") {
		t.Fatalf("expected mapsTo error, got %v", err)
	}
}

func TestParse_SchemaViolation(t *testing.T) {
	if _, err := Parse([]byte(`{"prompts":{}}`)); err == nil {
		t.Fatalf("expected schema error")
	}
}

func TestRender(t *testing.T) {
	got := Render("a {{type}} in {{ visualStyle }} {{missing}}!", map[string]string{"type": "boat", "visualStyle": "pixel"})
	if got != "a boat in pixel !" {
		t.Fatalf("Render = %q", got)
	}
}

func TestQuotedListAndBlocked(t *testing.T) {
	if got := QuotedList([]string{"a", "b"}); got != " 'a', 'b'" {
		t.Fatalf("QuotedList = %q", got)
	}
	c := &Catalog{Blocked: []string{"Gun"}}
	if !c.IsBlocked("a water GUN") || c.IsBlocked("a boat") {
		t.Fatalf("IsBlocked mismatch")
	}
}

func TestAttributeField(t *testing.T) {
	if (AttributeDef{Key: "flammable", MapsTo: "wooden"}).Field() != "wooden" {
		t.Fatalf("mapsTo ignored")
	}
	if (AttributeDef{Key: "metal"}).Field() != "metal" {
		t.Fatalf("key fallback broken")
	}
}
