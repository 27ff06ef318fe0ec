package ecs

import (
	"slices"
	"strings"
)

// archetypeIndex groups entities by the exact set of component types they
// hold. It is a cache derived from the storages and can be rebuilt from them
// at any time.
type archetypeIndex struct {
	byEntity    map[EntityID]string
	bySignature map[string]map[EntityID]struct{}
}

func newArchetypeIndex() *archetypeIndex {
	return &archetypeIndex{
		byEntity:    make(map[EntityID]string, 256),
		bySignature: make(map[string]map[EntityID]struct{}, 32),
	}
}

// signature builds the canonical key for a set of component types.
func signature(types []string) string {
	sorted := slices.Clone(types)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\x1f")
}

func splitSignature(sig string) []string {
	if sig == "" {
		return nil
	}
	return strings.Split(sig, "\x1f")
}

func (a *archetypeIndex) types(id EntityID) []string {
	return splitSignature(a.byEntity[id])
}

// move re-files id under the signature derived from types.
func (a *archetypeIndex) move(id EntityID, types []string) {
	a.drop(id)
	sig := signature(types)
	a.byEntity[id] = sig
	set, ok := a.bySignature[sig]
	if !ok {
		set = make(map[EntityID]struct{}, 16)
		a.bySignature[sig] = set
	}
	set[id] = struct{}{}
}

func (a *archetypeIndex) add(id EntityID, typ string) {
	types := a.types(id)
	if slices.Contains(types, typ) {
		return
	}
	a.move(id, append(types, typ))
}

func (a *archetypeIndex) remove(id EntityID, typ string) {
	types := a.types(id)
	i := slices.Index(types, typ)
	if i < 0 {
		return
	}
	a.move(id, slices.Delete(types, i, i+1))
}

func (a *archetypeIndex) drop(id EntityID) {
	sig, ok := a.byEntity[id]
	if !ok {
		return
	}
	delete(a.byEntity, id)
	if set := a.bySignature[sig]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(a.bySignature, sig)
		}
	}
}

func (a *archetypeIndex) entities(types []string) []EntityID {
	set := a.bySignature[signature(types)]
	out := make([]EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (a *archetypeIndex) reset() {
	clear(a.byEntity)
	clear(a.bySignature)
}

func (a *archetypeIndex) len() int {
	return len(a.bySignature)
}
