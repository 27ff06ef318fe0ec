package ecs

import "slices"

// Registry tracks the component storage of every type seen by a World and
// supports bulk cleanup on entity destroy.
type Registry struct {
	stores map[string]*Storage[Component]
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]*Storage[Component], 16),
	}
}

// Storage returns the storage for typ, or nil if none exists yet.
func (r *Registry) Storage(typ string) *Storage[Component] {
	return r.stores[typ]
}

// Ensure returns the storage for typ, creating it on first use.
func (r *Registry) Ensure(typ string) *Storage[Component] {
	s, ok := r.stores[typ]
	if !ok {
		s = NewStorage[Component]()
		r.stores[typ] = s
	}
	return s
}

// RemoveAll clears the given entity from every storage and returns the types
// it was removed from.
func (r *Registry) RemoveAll(id EntityID) []string {
	var removed []string
	for typ, s := range r.stores {
		if s.Remove(id) {
			removed = append(removed, typ)
		}
	}
	return removed
}

// TypesOf returns the sorted component types id currently holds, read
// directly from the storages.
func (r *Registry) TypesOf(id EntityID) []string {
	var out []string
	for typ, s := range r.stores {
		if s.Has(id) {
			out = append(out, typ)
		}
	}
	slices.Sort(out)
	return out
}

// Types returns every type that currently has at least one component.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.stores))
	for typ, s := range r.stores {
		if s.Len() > 0 {
			out = append(out, typ)
		}
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Clear() {
	for _, s := range r.stores {
		s.Clear()
	}
}

func (r *Registry) Reset() {
	clear(r.stores)
}
