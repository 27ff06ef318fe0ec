package serial

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/whalecs/ecsrt/internal/core/ecs"
)

// Decoder turns a component record's data back into a component.
type Decoder func(data json.RawMessage) (ecs.Component, error)

// Schema describes the expected shape of one component type's data. Fields
// maps a field name to its kind: "number", "string", "bool", "object",
// "array" or "any".
type Schema struct {
	Type     string            `yaml:"type"`
	Required []string          `yaml:"required"`
	Fields   map[string]string `yaml:"fields"`
}

// Registry maps component types to decoders and schemas. Types without a
// decoder are restored as ecs.Dynamic.
type Registry struct {
	decoders map[string]Decoder
	schemas  map[string]Schema
}

func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[string]Decoder),
		schemas:  make(map[string]Schema),
	}
}

// Register installs a JSON decoder for T under T's component type.
func Register[T ecs.Component](r *Registry) {
	var zero T
	r.RegisterDecoder(zero.ComponentType(), func(data json.RawMessage) (ecs.Component, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

func (r *Registry) RegisterDecoder(typ string, d Decoder) {
	r.decoders[typ] = d
}

func (r *Registry) SetSchema(s Schema) {
	r.schemas[s.Type] = s
}

func (r *Registry) Known(typ string) bool {
	_, ok := r.decoders[typ]
	return ok
}

// Types returns every type with a decoder or a schema.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.decoders)+len(r.schemas))
	for typ := range r.decoders {
		out = append(out, typ)
	}
	for typ := range r.schemas {
		if _, ok := r.decoders[typ]; !ok {
			out = append(out, typ)
		}
	}
	slices.Sort(out)
	return out
}

// Decode validates data against the type's schema, if any, and builds the
// component. known is false when the result is an ecs.Dynamic fallback.
func (r *Registry) Decode(typ string, data json.RawMessage) (c ecs.Component, known bool, err error) {
	if s, ok := r.schemas[typ]; ok {
		if err := s.Validate(data); err != nil {
			return nil, false, err
		}
	}
	if d, ok := r.decoders[typ]; ok {
		c, err := d(data)
		if err != nil {
			return nil, true, fmt.Errorf("decode %s: %w", typ, err)
		}
		return c, true, nil
	}
	d := ecs.Dynamic{Kind: typ, Fields: map[string]any{}}
	if len(data) > 0 && string(data) != "null" {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", typ, err)
		}
		if fields, ok := v.(map[string]any); ok {
			d.Fields = fields
		} else {
			d.Fields, d.Value = nil, v
		}
	}
	return d, false, nil
}

// Validate checks data against the schema.
func (s Schema) Validate(data json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%s: data is not an object: %w", s.Type, err)
	}
	for _, name := range s.Required {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%s: missing required field %q", s.Type, name)
		}
	}
	for name, kind := range s.Fields {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		if !kindMatches(kind, v) {
			return fmt.Errorf("%s: field %q is not a %s", s.Type, name, kind)
		}
	}
	return nil
}

func kindMatches(kind string, v any) bool {
	switch kind {
	case "number":
		_, ok := v.(float64)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}
