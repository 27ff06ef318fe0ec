package ecs

import "encoding/json"

// Component is any value attached to an entity. ComponentType returns the
// discriminant that selects its storage, e.g. "position".
type Component interface {
	ComponentType() string
}

// Dynamic is a schemaless component used for types that have no registered
// Go type, such as components created from scripts or decoded from a
// snapshot without a registry entry. Object payloads live in Fields; any
// other JSON payload (number, string, array) is kept in Value.
type Dynamic struct {
	Kind   string
	Fields map[string]any
	Value  any
}

func (d Dynamic) ComponentType() string { return d.Kind }

func (d Dynamic) MarshalJSON() ([]byte, error) {
	if d.Fields == nil {
		if d.Value != nil {
			return json.Marshal(d.Value)
		}
		return []byte("{}"), nil
	}
	return json.Marshal(d.Fields)
}

// Storage maps entity ids to component values of a single type. Values are
// kept in a dense slice so iteration follows insertion order until a removal
// swaps the last element into the freed slot.
type Storage[T any] struct {
	index    map[EntityID]int
	entities []EntityID
	values   []T
}

func NewStorage[T any]() *Storage[T] {
	return &Storage[T]{
		index:    make(map[EntityID]int, 64),
		entities: make([]EntityID, 0, 64),
		values:   make([]T, 0, 64),
	}
}

// Set inserts or overwrites the value for id. Returns true if a previous
// value was replaced.
func (s *Storage[T]) Set(id EntityID, v T) bool {
	if i, ok := s.index[id]; ok {
		s.values[i] = v
		return true
	}
	s.index[id] = len(s.entities)
	s.entities = append(s.entities, id)
	s.values = append(s.values, v)
	return false
}

func (s *Storage[T]) Get(id EntityID) (T, bool) {
	i, ok := s.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.values[i], true
}

func (s *Storage[T]) Has(id EntityID) bool {
	_, ok := s.index[id]
	return ok
}

// Remove deletes the value for id. Returns false if id had no value.
func (s *Storage[T]) Remove(id EntityID) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	last := len(s.entities) - 1
	if i != last {
		moved := s.entities[last]
		s.entities[i] = moved
		s.values[i] = s.values[last]
		s.index[moved] = i
	}
	var zero T
	s.values[last] = zero
	s.entities = s.entities[:last]
	s.values = s.values[:last]
	delete(s.index, id)
	return true
}

func (s *Storage[T]) Clear() {
	clear(s.index)
	clear(s.values)
	s.entities = s.entities[:0]
	s.values = s.values[:0]
}

func (s *Storage[T]) Len() int {
	return len(s.entities)
}

// Entities returns a copy of the ids holding a value, in dense order.
func (s *Storage[T]) Entities() []EntityID {
	out := make([]EntityID, len(s.entities))
	copy(out, s.entities)
	return out
}

// Values returns a copy of the stored values, parallel to Entities.
func (s *Storage[T]) Values() []T {
	out := make([]T, len(s.values))
	copy(out, s.values)
	return out
}

// Each calls fn for every (id, value) pair over a copy of the dense ids, so
// fn may add or remove values of this storage.
func (s *Storage[T]) Each(fn func(EntityID, T)) {
	for _, id := range s.Entities() {
		if v, ok := s.Get(id); ok {
			fn(id, v)
		}
	}
}
