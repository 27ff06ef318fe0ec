package data

import (
	"fmt"
	"os"

	"github.com/whalecs/ecsrt/internal/serial"
	"gopkg.in/yaml.v3"
)

var fieldKinds = map[string]bool{
	"number": true,
	"string": true,
	"bool":   true,
	"object": true,
	"array":  true,
	"any":    true,
}

// LoadComponentSchemas loads component_schemas.yaml, a list of
// {type, required, fields} entries.
func LoadComponentSchemas(path string) ([]serial.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component schemas: %w", err)
	}
	var schemas []serial.Schema
	if err := yaml.Unmarshal(raw, &schemas); err != nil {
		return nil, fmt.Errorf("parse component schemas: %w", err)
	}
	seen := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		if s.Type == "" {
			return nil, fmt.Errorf("component schemas: entry without type")
		}
		if seen[s.Type] {
			return nil, fmt.Errorf("component schemas: duplicate type %q", s.Type)
		}
		seen[s.Type] = true
		for field, kind := range s.Fields {
			if !fieldKinds[kind] {
				return nil, fmt.Errorf("component schemas: %s.%s: unknown kind %q", s.Type, field, kind)
			}
		}
	}
	return schemas, nil
}

// ApplySchemas installs schemas into r.
func ApplySchemas(r *serial.Registry, schemas []serial.Schema) {
	for _, s := range schemas {
		r.SetSchema(s)
	}
}
