package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sketchcraft.ai/internal/sim/attrs"
)

//go:embed ai_config.schema.json
var schemaJSON []byte

const schemaURL = "mem://ai_config.schema.json"

// Prompt keys the server relies on.
const (
	PromptInitialGuess    = "analysis_initialGuess"
	PromptGenericGuess    = "analysis_genericGuess"
	PromptAttributesGuess = "analysis_attributesGuess"
	PromptTextToCommand   = "analysis_textToCommand"
	PromptGemini          = "gemini_generation"
	PromptImagen          = "imagen_generation"
	PromptVeo             = "veo_generation"
)

// Model keys.
const (
	ModelAnalysis = "analysis"
	ModelGemini   = "generation_gemini"
	ModelImagen   = "generation_imagen"
	ModelVeo      = "generation_veo"
)

var requiredPrompts = []string{
	PromptInitialGuess,
	PromptGenericGuess,
	PromptAttributesGuess,
	PromptTextToCommand,
}

// Catalog is the parsed ai-config.json.
type Catalog struct {
	Prompts      map[string]string `json:"prompts"`
	Models       map[string]string `json:"models"`
	Types        []TypeDef         `json:"types"`
	Attributes   []AttributeDef    `json:"attributes"`
	Verbs        []VerbDef         `json:"verbs"`
	VisualStyles []StyleDef        `json:"visualStyles"`
	Blocked      []string          `json:"blocked,omitempty"`

	Digest string `json:"-"`
}

type TypeDef struct {
	Is         string   `json:"is"`
	Attributes []string `json:"attributes"`
}

// AttributeDef is one entry of the inference vocabulary. MapsTo names the
// attribute field a truthy answer turns on; empty means Key itself.
type AttributeDef struct {
	Key    string `json:"key"`
	MapsTo string `json:"mapsTo,omitempty"`
}

// Field returns the attribute field this vocabulary entry sets.
func (a AttributeDef) Field() string {
	if a.MapsTo != "" {
		return a.MapsTo
	}
	return a.Key
}

type VerbDef struct {
	Key string `json:"key"`
}

type StyleDef struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

// Load reads and validates an ai-config.json file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse validates raw against the embedded schema, then checks that every
// attribute name resolves to a real attribute field.
func Parse(raw []byte) (*Catalog, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}

	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.Digest = sha256Hex(raw)

	for _, k := range requiredPrompts {
		if c.Prompts[k] == "" {
			return nil, fmt.Errorf("missing prompt %q", k)
		}
	}
	for _, t := range c.Types {
		for _, a := range t.Attributes {
			if !attrs.IsFlag(a) {
				return nil, fmt.Errorf("type %q: unknown attribute %q", t.Is, a)
			}
		}
	}
	for _, a := range c.Attributes {
		if !attrs.IsFlag(a.Field()) {
			return nil, fmt.Errorf("attribute %q maps to unknown field %q", a.Key, a.Field())
		}
	}
	seen := map[string]bool{}
	for _, s := range c.VisualStyles {
		id := strings.ToLower(s.ID)
		if seen[id] {
			return nil, fmt.Errorf("duplicate visual style %q", s.ID)
		}
		seen[id] = true
	}
	return &c, nil
}

var templateMatcher = regexp.MustCompile(`{{\s?([^{}\s]*)\s?}}`)

// Render substitutes {{ key }} placeholders. Unknown keys render empty.
func Render(expr string, values map[string]string) string {
	return templateMatcher.ReplaceAllStringFunc(expr, func(m string) string {
		sub := templateMatcher.FindStringSubmatch(m)
		return values[sub[1]]
	})
}

// BuildPrompt renders the named prompt, or "" when it does not exist.
func (c *Catalog) BuildPrompt(key string, values map[string]string) string {
	p, ok := c.Prompts[key]
	if !ok || p == "" {
		return ""
	}
	return Render(p, values)
}

// Model returns the configured model id for key.
func (c *Catalog) Model(key string) (string, bool) {
	m, ok := c.Models[key]
	return m, ok && m != ""
}

// MatchType returns the first known type whose name is contained in guess.
func (c *Catalog) MatchType(guess string) (TypeDef, bool) {
	g := strings.ToLower(guess)
	for _, t := range c.Types {
		if strings.Contains(g, strings.ToLower(t.Is)) {
			return t, true
		}
	}
	return TypeDef{}, false
}

// Style resolves a visual style id to its prompt text. Unknown ids are used
// verbatim so free-form styles still work.
func (c *Catalog) Style(id string) string {
	for _, s := range c.VisualStyles {
		if strings.EqualFold(s.ID, id) {
			return s.Prompt
		}
	}
	return id
}

func (c *Catalog) StyleIDs() []string {
	out := make([]string, 0, len(c.VisualStyles))
	for _, s := range c.VisualStyles {
		out = append(out, s.ID)
	}
	return out
}

func (c *Catalog) TypeNames() []string {
	out := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		out = append(out, t.Is)
	}
	return out
}

func (c *Catalog) AttributeKeys() []string {
	out := make([]string, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		out = append(out, a.Key)
	}
	return out
}

func (c *Catalog) VerbKeys() []string {
	out := make([]string, 0, len(c.Verbs))
	for _, v := range c.Verbs {
		out = append(out, v.Key)
	}
	return out
}

// IsBlocked reports whether text contains any configured blocked term.
func (c *Catalog) IsBlocked(text string) bool {
	t := strings.ToLower(text)
	for _, b := range c.Blocked {
		if strings.Contains(t, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

// QuotedList renders names as " 'a', 'b'" the way the prompts expect.
func QuotedList(names []string) string {
	var sb strings.Builder
	for i, n := range names {
		sb.WriteString(" '")
		sb.WriteString(n)
		sb.WriteString("'")
		if i < len(names)-1 {
			sb.WriteString(",")
		}
	}
	return sb.String()
}

// SortedTypes returns the type names in lexical order, used by pregen.
func (c *Catalog) SortedTypes() []string {
	out := c.TypeNames()
	sort.Strings(out)
	return out
}
