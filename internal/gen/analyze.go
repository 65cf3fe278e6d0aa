package gen

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sketchcraft.ai/internal/sim/attrs"
	"sketchcraft.ai/internal/sim/catalogs"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var errNoAnswer = errors.New("empty model answer")

// Analysis is the classifier's answer for one sketch.
type Analysis struct {
	Type       string   `json:"type"`
	Attributes []string `json:"attributes"`
	// Known is true when Type matched the configured type list.
	Known   bool `json:"-"`
	Blocked bool `json:"-"`
}

// Set derives the attribute set, starting from all-false.
func (a Analysis) Set() attrs.Set {
	s, _ := attrs.FromNames(attrs.Zeros(), a.Attributes)
	return s
}

// Command is a parsed text instruction.
type Command struct {
	Verb   string `json:"verb"`
	Target string `json:"target"`
}

// Analyzer classifies sketches in two phases: a constrained guess against
// the known types, then an open guess plus attribute inference.
type Analyzer struct {
	cat     *catalogs.Catalog
	model   TextModel
	log     *log.Logger
	schemas map[ResponseSchema]*jsonschema.Schema
}

func NewAnalyzer(cat *catalogs.Catalog, model TextModel, logger *log.Logger) (*Analyzer, error) {
	if cat == nil || model == nil {
		return nil, fmt.Errorf("analyzer needs a catalog and a text model")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[gen] ", log.LstdFlags)
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Analyzer{cat: cat, model: model, log: logger, schemas: schemas}, nil
}

func compileSchemas() (map[ResponseSchema]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	out := map[ResponseSchema]*jsonschema.Schema{}
	for _, name := range []ResponseSchema{SchemaTypeGuess, SchemaAttributes, SchemaCommand} {
		file := "schemas/" + string(name) + ".schema.json"
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		url := "mem://" + file
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// ask sends one prompt and decodes the answer after validating it against
// the named schema.
func (a *Analyzer) ask(ctx context.Context, stage string, req TextRequest) (map[string]any, error) {
	text, err := a.model.GenerateJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ClassificationError{Stage: stage, Err: errNoAnswer}
	}
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ClassificationError{Stage: stage, Err: fmt.Errorf("parse answer: %w", err)}
	}
	if s := a.schemas[req.Schema]; s != nil {
		if err := s.Validate(doc); err != nil {
			return nil, &ClassificationError{Stage: stage, Err: err}
		}
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, &ClassificationError{Stage: stage, Err: fmt.Errorf("answer is %T, want object", doc)}
	}
	return m, nil
}

// Classify maps a PNG sketch to a type and attribute names.
func (a *Analyzer) Classify(ctx context.Context, sketch []byte) (Analysis, error) {
	if len(sketch) == 0 {
		return Analysis{}, &ClassificationError{Stage: "input", Err: errors.New("no image data")}
	}

	initial, err := a.ask(ctx, "initial", TextRequest{
		Prompt: a.cat.BuildPrompt(catalogs.PromptInitialGuess, map[string]string{
			"types": catalogs.QuotedList(a.cat.TypeNames()),
		}),
		Image:  sketch,
		Schema: SchemaTypeGuess,
	})
	if err != nil {
		return Analysis{}, err
	}
	guess, _ := initial["type"].(string)
	if t, ok := a.cat.MatchType(guess); ok {
		res := Analysis{Type: t.Is, Attributes: append([]string(nil), t.Attributes...), Known: true}
		res.Blocked = a.cat.IsBlocked(res.Type)
		return res, nil
	}
	a.log.Printf("no known type in %q; asking for a generic guess", guess)

	generic, err := a.ask(ctx, "generic", TextRequest{
		Prompt: a.cat.Prompts[catalogs.PromptGenericGuess],
		Image:  sketch,
		Schema: SchemaTypeGuess,
	})
	if err != nil {
		return Analysis{}, err
	}
	typ, _ := generic["type"].(string)
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Analysis{}, &ClassificationError{Stage: "generic", Err: errNoAnswer}
	}
	res := Analysis{Type: typ}
	if a.cat.IsBlocked(typ) {
		res.Blocked = true
		return res, nil
	}

	answer, err := a.ask(ctx, "attributes", TextRequest{
		Prompt: a.cat.BuildPrompt(catalogs.PromptAttributesGuess, map[string]string{
			"type":       typ,
			"attributes": catalogs.QuotedList(a.cat.AttributeKeys()),
		}),
		Schema: SchemaAttributes,
	})
	if err != nil {
		return Analysis{}, err
	}
	res.Attributes = a.inferAttributes(answer)
	return res, nil
}

// inferAttributes keeps the vocabulary entries answered truthy, translated
// through mapsTo. Answers may be flat or nested under "attributes".
func (a *Analyzer) inferAttributes(answer map[string]any) []string {
	dict := answer
	if nested, ok := answer["attributes"].(map[string]any); ok {
		dict = nested
	}
	var out []string
	seen := map[string]bool{}
	for _, def := range a.cat.Attributes {
		if !truthy(dict[def.Key]) {
			continue
		}
		f := def.Field()
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "0" && s != "false" && s != "no"
	default:
		return true
	}
}

// TextToCommand maps a free-text instruction onto a verb and a target.
// currentTargets, when given, extends the target vocabulary with what is
// on screen.
func (a *Analyzer) TextToCommand(ctx context.Context, text string, currentTargets []string) (Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, &ClassificationError{Stage: "command", Err: errors.New("no command text")}
	}
	targets := catalogs.QuotedList(a.cat.AttributeKeys()) + ",LAST_OBJECT,LAST_CREATED"
	if len(currentTargets) > 0 {
		targets += "," + catalogs.QuotedList(currentTargets)
	}
	answer, err := a.ask(ctx, "command", TextRequest{
		Prompt: a.cat.BuildPrompt(catalogs.PromptTextToCommand, map[string]string{
			"text":    text,
			"verbs":   catalogs.QuotedList(a.cat.VerbKeys()),
			"targets": targets,
		}),
		Schema: SchemaCommand,
	})
	if err != nil {
		return Command{}, err
	}
	return collapseCommand(answer), nil
}

// collapseCommand accepts {verb, target}, a single {verb: target} pair, or
// either field holding such a pair.
func collapseCommand(m map[string]any) Command {
	verb, hasVerb := m["verb"]
	target, hasTarget := m["target"]
	if !hasVerb && !hasTarget {
		if len(m) == 1 {
			for k, v := range m {
				verb, target = k, v
			}
		}
	}
	if obj, ok := verb.(map[string]any); ok && len(obj) == 1 {
		for k, v := range obj {
			verb, target = k, v
		}
	} else if obj, ok := target.(map[string]any); ok && len(obj) == 1 {
		for k, v := range obj {
			verb, target = k, v
		}
	}
	vs, _ := verb.(string)
	ts, _ := target.(string)
	return Command{
		Verb:   strings.ToLower(strings.TrimSpace(vs)),
		Target: strings.ToLower(strings.TrimSpace(ts)),
	}
}
