package ecs

import "slices"

// DirtyStats summarises the dirty sets at a point in time.
type DirtyStats struct {
	TotalDirty int
	ByType     map[string]int
}

// dirtyTracker records, per component type, the entities whose component
// changed since the last clear. Reads never drain it.
type dirtyTracker struct {
	sets map[string]map[EntityID]struct{}
}

func newDirtyTracker() *dirtyTracker {
	return &dirtyTracker{sets: make(map[string]map[EntityID]struct{}, 16)}
}

func (d *dirtyTracker) mark(id EntityID, typ string) {
	set, ok := d.sets[typ]
	if !ok {
		set = make(map[EntityID]struct{}, 16)
		d.sets[typ] = set
	}
	set[id] = struct{}{}
}

func (d *dirtyTracker) unmark(id EntityID, typ string) {
	if set, ok := d.sets[typ]; ok {
		delete(set, id)
	}
}

func (d *dirtyTracker) unmarkAll(id EntityID) {
	for _, set := range d.sets {
		delete(set, id)
	}
}

func (d *dirtyTracker) has(id EntityID, typ string) bool {
	_, ok := d.sets[typ][id]
	return ok
}

// entities returns the dirty ids for typ in ascending order.
func (d *dirtyTracker) entities(typ string) []EntityID {
	set := d.sets[typ]
	out := make([]EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (d *dirtyTracker) stats() DirtyStats {
	st := DirtyStats{ByType: make(map[string]int, len(d.sets))}
	for typ, set := range d.sets {
		if len(set) == 0 {
			continue
		}
		st.ByType[typ] = len(set)
		st.TotalDirty += len(set)
	}
	return st
}

// clear empties the sets for types, or every set when types is empty.
func (d *dirtyTracker) clear(types ...string) {
	if len(types) == 0 {
		for _, set := range d.sets {
			clear(set)
		}
		return
	}
	for _, typ := range types {
		if set, ok := d.sets[typ]; ok {
			clear(set)
		}
	}
}
