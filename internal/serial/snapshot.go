package serial

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/whalecs/ecsrt/internal/core/ecs"
)

// FormatVersion is written into every snapshot this package builds.
const FormatVersion = "1.0.0"

// DefaultMajor is the major version accepted when none is configured.
const DefaultMajor = 1

// Snapshot is a versioned copy of a World's entities and components. It is
// not modified after it has been built or decoded.
type Snapshot struct {
	Version        string         `json:"version"`
	Entities       []EntityRecord `json:"entities"`
	Stats          Stats          `json:"stats"`
	ComponentTypes []string       `json:"componentTypes"`
}

type EntityRecord struct {
	ID         ecs.EntityID      `json:"id"`
	Components []ComponentRecord `json:"components"`
}

// ComponentRecord holds one component as compact JSON.
type ComponentRecord struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Stats struct {
	EntityCount      int            `json:"entityCount"`
	ComponentCount   int            `json:"componentCount"`
	ComponentsByType map[string]int `json:"componentsByType"`
	EstimatedSize    int            `json:"estimatedSize"`
}

// newSnapshot builds a snapshot and derives its stats and type set.
func newSnapshot(version string, entities []EntityRecord) *Snapshot {
	if entities == nil {
		entities = []EntityRecord{}
	}
	s := &Snapshot{Version: version, Entities: entities}
	s.Stats, s.ComponentTypes = deriveStats(entities)
	return s
}

// per-record overhead used by EstimatedSize: id, counts and length prefixes
const (
	entityOverhead    = 12
	componentOverhead = 6
)

func deriveStats(entities []EntityRecord) (Stats, []string) {
	st := Stats{
		EntityCount:      len(entities),
		ComponentsByType: make(map[string]int),
	}
	for _, e := range entities {
		st.EstimatedSize += entityOverhead
		for _, c := range e.Components {
			st.ComponentCount++
			st.ComponentsByType[c.Type]++
			st.EstimatedSize += componentOverhead + len(c.Type) + len(c.Data)
		}
	}
	types := make([]string, 0, len(st.ComponentsByType))
	for typ := range st.ComponentsByType {
		types = append(types, typ)
	}
	slices.Sort(types)
	return st, types
}

// Equivalent reports whether two snapshots hold the same content up to
// entity id renumbering: the same entity and component counts, and the same
// multiset of per-entity component groupings.
func Equivalent(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Entities) != len(b.Entities) {
		return false
	}
	ka, kb := groupingKeys(a), groupingKeys(b)
	if len(ka) != len(kb) {
		return false
	}
	return slices.Equal(ka, kb)
}

func groupingKeys(s *Snapshot) []string {
	keys := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		parts := make([]string, 0, len(e.Components))
		for _, c := range e.Components {
			var buf bytes.Buffer
			if err := json.Compact(&buf, c.Data); err != nil {
				buf.Reset()
				buf.Write(c.Data)
			}
			parts = append(parts, c.Type+"="+buf.String())
		}
		slices.Sort(parts)
		keys = append(keys, strings.Join(parts, "\x1e"))
	}
	slices.Sort(keys)
	return keys
}

// ParseMajor extracts the major component of a "<major>.<minor>.<patch>"
// version string.
func ParseMajor(version string) (int, bool) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, false
	}
	for _, p := range parts {
		if !isDigits(p) {
			return 0, false
		}
	}
	major, err := strconv.Atoi(parts[0])
	return major, err == nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsVersionCompatible reports whether version has the given major version.
func IsVersionCompatible(version string, expectedMajor int) bool {
	major, ok := ParseMajor(version)
	return ok && major == expectedMajor
}
