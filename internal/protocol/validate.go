package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var inbound = map[string]string{
	TypeHello:   "hello",
	TypeSketch:  "sketch",
	TypeCommand: "command",
	TypeLevel:   "level",
	TypeBulk:    "bulk",
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := map[string]*jsonschema.Schema{}
		for typ, name := range inbound {
			file := "schemas/" + name + ".schema.json"
			raw, err := schemaFS.ReadFile(file)
			if err != nil {
				schemaErr = err
				return
			}
			url := "mem://" + file
			if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
				schemaErr = fmt.Errorf("schema %s: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				schemaErr = fmt.Errorf("schema %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

// Validate checks an inbound client message against the schema for its
// type. Unknown types are rejected.
func Validate(typ string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[typ]
	if !ok {
		return fmt.Errorf("unknown message type %q", typ)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
