package ecs

import (
	"fmt"
	"sort"
	"time"
)

// System is a unit of per-tick logic. Systems run in ascending Priority
// order; equal priorities keep registration order.
type System interface {
	Name() string
	Priority() int
	Update(w *World, dt time.Duration) error
}

// Initializer is implemented by systems that need setup when added.
type Initializer interface {
	Init(w *World) error
}

// Finalizer is implemented by systems that release resources on shutdown.
type Finalizer interface {
	Shutdown(w *World)
}

// SystemFunc adapts a function to the System interface.
type SystemFunc struct {
	name     string
	priority int
	fn       func(w *World, dt time.Duration) error
}

func NewSystem(name string, priority int, fn func(w *World, dt time.Duration) error) *SystemFunc {
	return &SystemFunc{name: name, priority: priority, fn: fn}
}

func (s *SystemFunc) Name() string  { return s.name }
func (s *SystemFunc) Priority() int { return s.priority }
func (s *SystemFunc) Update(w *World, dt time.Duration) error {
	return s.fn(w, dt)
}

// TickError reports the system that failed a tick. Systems after it in the
// same tick were skipped.
type TickError struct {
	System string
	Err    error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("system %s: %v", e.System, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }

// runner executes systems in priority order each tick.
type runner struct {
	systems []System
	sorted  bool
}

func (r *runner) register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *runner) unregister(name string) (System, bool) {
	for i, s := range r.systems {
		if s.Name() == name {
			r.systems = append(r.systems[:i], r.systems[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

func (r *runner) tick(w *World, dt time.Duration) error {
	r.ensureSorted()
	// copy so a system may add or remove systems mid-tick
	systems := make([]System, len(r.systems))
	copy(systems, r.systems)
	for _, s := range systems {
		if err := runSystem(s, w, dt); err != nil {
			return &TickError{System: s.Name(), Err: err}
		}
	}
	return nil
}

func runSystem(s System, w *World, dt time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Update(w, dt)
}

func (r *runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Priority() < r.systems[j].Priority()
		})
		r.sorted = true
	}
}

func (r *runner) list() []System {
	r.ensureSorted()
	out := make([]System, len(r.systems))
	copy(out, r.systems)
	return out
}
