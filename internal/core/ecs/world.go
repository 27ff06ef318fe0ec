package ecs

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/whalecs/ecsrt/internal/core/event"
	"go.uber.org/zap"
)

var (
	ErrEntityNotAlive  = errors.New("entity not alive")
	ErrNilComponent    = errors.New("nil component")
	ErrDuplicateSystem = errors.New("system already registered")
)

// World is the top-level ECS container. It owns the entity pool, the
// component storages, the derived archetype index, the dirty sets, the
// ordered systems and the event bus. A World is not safe for concurrent use;
// it is driven from a single goroutine.
type World struct {
	pool         *EntityPool
	registry     *Registry
	archetypes   *archetypeIndex
	dirty        *dirtyTracker
	systems      runner
	bus          *event.Bus
	destroyQueue []EntityID
	log          *zap.Logger
	shutdown     bool
	// bumped whenever an entity or a component slot appears or disappears
	structure uint64
}

type Option func(*World)

func WithLogger(log *zap.Logger) Option {
	return func(w *World) { w.log = log }
}

func NewWorld(opts ...Option) *World {
	w := &World{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		archetypes:   newArchetypeIndex(),
		dirty:        newDirtyTracker(),
		bus:          event.NewBus(),
		destroyQueue: make([]EntityID, 0, 64),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Pool() *EntityPool   { return w.pool }
func (w *World) Registry() *Registry { return w.registry }
func (w *World) Events() *event.Bus  { return w.bus }

func (w *World) CreateEntity() EntityID {
	id := w.pool.Create()
	w.archetypes.move(id, nil)
	w.structure++
	return id
}

// RestoreEntity brings id to life verbatim. Used when loading a snapshot
// into an empty World. Returns false if id is zero or already alive.
func (w *World) RestoreEntity(id EntityID) bool {
	if !w.pool.Restore(id) {
		return false
	}
	w.archetypes.move(id, nil)
	w.structure++
	return true
}

func (w *World) IsAlive(id EntityID) bool {
	return w.pool.Alive(id)
}

func (w *World) EntityCount() int {
	return w.pool.Len()
}

// Entities returns every live entity in ascending id order.
func (w *World) Entities() []EntityID {
	out := make([]EntityID, 0, w.pool.Len())
	w.pool.Each(func(id EntityID) {
		out = append(out, id)
	})
	slices.Sort(out)
	return out
}

// DestroyEntity removes id and all of its components. Unknown or already
// destroyed ids are ignored.
func (w *World) DestroyEntity(id EntityID) {
	if w.pool.Alive(id) {
		w.structure++
	}
	w.registry.RemoveAll(id)
	w.archetypes.drop(id)
	w.dirty.unmarkAll(id)
	w.pool.Destroy(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities. Returns how many were live.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.pool.Alive(id) {
			n++
		}
		w.DestroyEntity(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

// AddComponent stores c on id, replacing any component of the same type,
// and marks the slot dirty.
func (w *World) AddComponent(id EntityID, c Component) error {
	if c == nil {
		return ErrNilComponent
	}
	if !w.pool.Alive(id) {
		return fmt.Errorf("add %s to %d: %w", c.ComponentType(), id, ErrEntityNotAlive)
	}
	typ := c.ComponentType()
	if !w.registry.Ensure(typ).Set(id, c) {
		w.archetypes.add(id, typ)
		w.structure++
	}
	w.dirty.mark(id, typ)
	return nil
}

// GetComponent returns the component of typ on id. It does not touch the
// dirty sets.
func (w *World) GetComponent(id EntityID, typ string) (Component, bool) {
	s := w.registry.Storage(typ)
	if s == nil {
		return nil, false
	}
	return s.Get(id)
}

// Get returns the component of typ on id as T.
func Get[T Component](w *World, id EntityID, typ string) (T, bool) {
	c, ok := w.GetComponent(id, typ)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := c.(T)
	return v, ok
}

func (w *World) HasComponent(id EntityID, typ string) bool {
	s := w.registry.Storage(typ)
	return s != nil && s.Has(id)
}

// RemoveComponent deletes the component of typ from id. Returns false if
// there was none.
func (w *World) RemoveComponent(id EntityID, typ string) bool {
	s := w.registry.Storage(typ)
	if s == nil || !s.Remove(id) {
		return false
	}
	w.archetypes.remove(id, typ)
	w.dirty.unmark(id, typ)
	w.structure++
	return true
}

// StructureVersion changes whenever an entity is created or destroyed or a
// component type is added to or removed from an entity. Value overwrites do
// not change it; those show up in the dirty sets.
func (w *World) StructureVersion() uint64 {
	return w.structure
}

// ComponentTypes returns every type currently held by at least one entity.
func (w *World) ComponentTypes() []string {
	return w.registry.Types()
}

// ComponentCount returns the total number of components across all types.
func (w *World) ComponentCount() int {
	n := 0
	for _, s := range w.registry.stores {
		n += s.Len()
	}
	return n
}

// ComponentsOf returns id's components ordered by type.
func (w *World) ComponentsOf(id EntityID) []Component {
	types := w.registry.TypesOf(id)
	out := make([]Component, 0, len(types))
	for _, typ := range types {
		if c, ok := w.GetComponent(id, typ); ok {
			out = append(out, c)
		}
	}
	return out
}

// Archetype returns the sorted component types of id from the index.
func (w *World) Archetype(id EntityID) []string {
	return w.archetypes.types(id)
}

func (w *World) ArchetypeCount() int {
	return w.archetypes.len()
}

// RebuildArchetypes re-derives the archetype index from the storages.
func (w *World) RebuildArchetypes() {
	w.archetypes.reset()
	w.pool.Each(func(id EntityID) {
		w.archetypes.move(id, w.registry.TypesOf(id))
	})
}

// MarkComponentDirty flags id's component of typ as changed. Returns false
// if id does not hold that component.
func (w *World) MarkComponentDirty(id EntityID, typ string) bool {
	if !w.HasComponent(id, typ) {
		return false
	}
	w.dirty.mark(id, typ)
	return true
}

// DirtyEntities returns, in ascending order, the entities whose typ
// component changed since the last clear.
func (w *World) DirtyEntities(typ string) []EntityID {
	return w.dirty.entities(typ)
}

func (w *World) IsDirty(id EntityID, typ string) bool {
	return w.dirty.has(id, typ)
}

func (w *World) DirtyStats() DirtyStats {
	return w.dirty.stats()
}

// ClearDirty empties the dirty sets of types, or all of them.
func (w *World) ClearDirty(types ...string) {
	w.dirty.clear(types...)
}

// AddSystem registers s and runs its Init hook if it has one.
func (w *World) AddSystem(s System) error {
	for _, existing := range w.systems.systems {
		if existing.Name() == s.Name() {
			return fmt.Errorf("%s: %w", s.Name(), ErrDuplicateSystem)
		}
	}
	if in, ok := s.(Initializer); ok {
		if err := in.Init(w); err != nil {
			return fmt.Errorf("init system %s: %w", s.Name(), err)
		}
	}
	w.systems.register(s)
	w.log.Debug("system added", zap.String("system", s.Name()), zap.Int("priority", s.Priority()))
	return nil
}

// RemoveSystem unregisters the named system, running its Shutdown hook.
func (w *World) RemoveSystem(name string) bool {
	s, ok := w.systems.unregister(name)
	if !ok {
		return false
	}
	if f, ok := s.(Finalizer); ok {
		f.Shutdown(w)
	}
	return true
}

// Systems returns the registered systems in execution order.
func (w *World) Systems() []System {
	return w.systems.list()
}

// Update runs one tick: queued events are dispatched, then every system runs
// in priority order, then the dirty sets are cleared. The first failing
// system aborts the tick with a *TickError and the dirty sets are kept.
func (w *World) Update(dt time.Duration) error {
	w.bus.Flush()
	if err := w.systems.tick(w, dt); err != nil {
		return err
	}
	w.dirty.clear()
	return nil
}

// EmitEvent delivers an event to current subscribers immediately.
func (w *World) EmitEvent(typ string, payload any) {
	w.bus.Emit(typ, payload)
}

// QueueEvent defers an event to the start of the next Update.
func (w *World) QueueEvent(typ string, payload any) {
	w.bus.Queue(typ, payload)
}

func (w *World) SubscribeToEvent(typ string, fn event.Handler) *event.Subscription {
	return w.bus.Subscribe(typ, fn)
}

// Clear removes every entity and component but keeps systems and event
// subscriptions.
func (w *World) Clear() {
	w.registry.Clear()
	w.archetypes.reset()
	w.dirty.clear()
	w.pool.Reset()
	w.destroyQueue = w.destroyQueue[:0]
	w.structure++
}

// Shutdown releases all entities, components, systems and subscriptions.
// Calling it again is a no-op.
func (w *World) Shutdown() {
	if w.shutdown {
		return
	}
	w.shutdown = true
	for _, s := range w.systems.list() {
		if f, ok := s.(Finalizer); ok {
			f.Shutdown(w)
		}
	}
	w.systems = runner{}
	w.Clear()
	w.registry.Reset()
	w.bus.Reset()
}

func (w *World) IsShutdown() bool { return w.shutdown }
