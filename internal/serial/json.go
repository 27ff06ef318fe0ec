package serial

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// JSONFormat is the human-readable snapshot encoding.
type JSONFormat struct {
	PrettyPrint bool
}

func (f *JSONFormat) Name() string      { return "json" }
func (f *JSONFormat) Extension() string { return ".json" }

func (f *JSONFormat) Serialize(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, &FormatError{Format: f.Name(), Reason: "nil snapshot"}
	}
	var (
		out []byte
		err error
	)
	if f.PrettyPrint {
		out, err = json.MarshalIndent(s, "", "  ")
	} else {
		out, err = json.Marshal(s)
	}
	if err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "encode", Err: err}
	}
	return out, nil
}

type jsonEntity struct {
	ID         *ecs.EntityID `json:"id"`
	Components []struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	} `json:"components"`
}

// Deserialize parses a document produced by Serialize. A leading UTF-8 BOM
// is accepted. Stats and componentTypes are recomputed, not trusted.
func (f *JSONFormat) Deserialize(data []byte) (*Snapshot, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "invalid text encoding", Err: err}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(decoded, &top); err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "malformed document", Err: err}
	}
	rawVersion, ok := top["version"]
	if !ok {
		return nil, &FormatError{Format: f.Name(), Reason: "missing version"}
	}
	var version string
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "version is not a string", Err: err}
	}
	rawEntities, ok := top["entities"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawEntities), []byte("null")) {
		return nil, &FormatError{Format: f.Name(), Reason: "missing entities"}
	}
	var list []jsonEntity
	if err := json.Unmarshal(rawEntities, &list); err != nil {
		return nil, &FormatError{Format: f.Name(), Reason: "entities is not an array of entities", Err: err}
	}

	entities := make([]EntityRecord, 0, len(list))
	for i, je := range list {
		if je.ID == nil {
			return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d has no id", i)}
		}
		rec := EntityRecord{ID: *je.ID, Components: make([]ComponentRecord, 0, len(je.Components))}
		for _, c := range je.Components {
			if c.Type == "" {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d has a component without type", rec.ID)}
			}
			compact, err := compactJSON(c.Data)
			if err != nil {
				return nil, &FormatError{Format: f.Name(), Reason: fmt.Sprintf("entity %d %s data", rec.ID, c.Type), Err: err}
			}
			rec.Components = append(rec.Components, ComponentRecord{Type: c.Type, Data: compact})
		}
		entities = append(entities, rec)
	}
	return newSnapshot(version, entities), nil
}

func (f *JSONFormat) Validate(data []byte) bool {
	_, err := f.Deserialize(data)
	return err == nil
}
