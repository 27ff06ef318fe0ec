package ecs

import "iter"

// Query is a restartable view over the entities holding a component type.
// Every iteration reads the live storage; within one iteration the id list
// is captured at the start, so mutating the World while iterating is safe
// and does not affect the ids visited by that iteration.
type Query struct {
	w   *World
	typ string
}

// Query returns a view over every entity holding typ.
func (w *World) Query(typ string) *Query {
	return &Query{w: w, typ: typ}
}

func (q *Query) Type() string { return q.typ }

// Entities returns the ids currently holding the type.
func (q *Query) Entities() []EntityID {
	s := q.w.registry.Storage(q.typ)
	if s == nil {
		return nil
	}
	return s.Entities()
}

func (q *Query) Len() int {
	s := q.w.registry.Storage(q.typ)
	if s == nil {
		return 0
	}
	return s.Len()
}

// All yields (id, component) pairs. Entities that lose the component during
// iteration are skipped.
func (q *Query) All() iter.Seq2[EntityID, Component] {
	return func(yield func(EntityID, Component) bool) {
		for _, id := range q.Entities() {
			s := q.w.registry.Storage(q.typ)
			if s == nil {
				return
			}
			c, ok := s.Get(id)
			if !ok {
				continue
			}
			if !yield(id, c) {
				return
			}
		}
	}
}

// Each calls fn for every (id, component) pair.
func (q *Query) Each(fn func(EntityID, Component)) {
	for id, c := range q.All() {
		fn(id, c)
	}
}

// QueryMultiple returns the entities holding every listed type. It walks the
// smallest storage and probes the others, so the result follows that
// storage's order.
func (w *World) QueryMultiple(types ...string) []EntityID {
	if len(types) == 0 {
		return nil
	}
	stores := make([]*Storage[Component], 0, len(types))
	smallest := -1
	for _, typ := range types {
		s := w.registry.Storage(typ)
		if s == nil || s.Len() == 0 {
			return nil
		}
		stores = append(stores, s)
		if smallest < 0 || s.Len() < stores[smallest].Len() {
			smallest = len(stores) - 1
		}
	}
	base := stores[smallest]
	out := make([]EntityID, 0, base.Len())
outer:
	for _, id := range base.entities {
		for i, s := range stores {
			if i == smallest {
				continue
			}
			if !s.Has(id) {
				continue outer
			}
		}
		out = append(out, id)
	}
	return out
}

// Each2 iterates over entities that have both component types.
func (w *World) Each2(a, b string, fn func(EntityID, Component, Component)) {
	sa, sb := w.registry.Storage(a), w.registry.Storage(b)
	if sa == nil || sb == nil {
		return
	}
	for _, id := range w.QueryMultiple(a, b) {
		ca, ok := sa.Get(id)
		if !ok {
			continue
		}
		cb, ok := sb.Get(id)
		if !ok {
			continue
		}
		fn(id, ca, cb)
	}
}

// QueryArchetype returns the entities whose component set is exactly types,
// answered from the archetype index.
func (w *World) QueryArchetype(types ...string) []EntityID {
	return w.archetypes.entities(types)
}
