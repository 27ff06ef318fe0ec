package scene

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"go.uber.org/zap"
)

// State is a scene's lifecycle position.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateActive
	StatePaused
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateUnloading:
		return "unloading"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// HookFunc is a user lifecycle callback. It may block; the scene's state
// does not advance until it returns.
type HookFunc func(ctx context.Context, s *Scene) error

type Hooks struct {
	OnLoad   HookFunc
	OnUnload HookFunc
	OnEnter  HookFunc
	OnExit   HookFunc
	OnPause  HookFunc
	OnResume HookFunc
}

type Config struct {
	Name       string
	Persistent bool
	Hooks      Hooks
	// Transition overrides the manager's default when switching to this scene.
	Transition   *TransitionConfig
	WorldOptions []ecs.Option
	Logger       *zap.Logger
}

// Scene owns one World and moves it through the lifecycle
// unloaded -> loading -> loaded -> active <-> paused, and back through
// unloading. Unloading a non-persistent scene replaces its World with an
// empty one.
type Scene struct {
	name       string
	persistent bool
	hooks      Hooks
	transition *TransitionConfig
	worldOpts  []ecs.Option
	log        *zap.Logger

	mu       sync.Mutex
	state    State
	busy     bool
	world    *ecs.World
	progress float64
	loading  chan struct{}
	loadErr  error
}

func New(cfg Config) *Scene {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scene{
		name:       cfg.Name,
		persistent: cfg.Persistent,
		hooks:      cfg.Hooks,
		transition: cfg.Transition,
		worldOpts:  cfg.WorldOptions,
		log:        log.With(zap.String("scene", cfg.Name)),
		world:      ecs.NewWorld(cfg.WorldOptions...),
	}
}

func (s *Scene) Name() string     { return s.name }
func (s *Scene) Persistent() bool { return s.persistent }

func (s *Scene) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// World returns the scene's current World. It changes after a
// non-persistent unload.
func (s *Scene) World() *ecs.World {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world
}

func (s *Scene) IsLoaded() bool {
	switch s.State() {
	case StateLoaded, StateActive, StatePaused:
		return true
	}
	return false
}

// SetProgress records load progress in [0, 1]; OnLoad hooks call it.
func (s *Scene) SetProgress(p float64) {
	p = min(max(p, 0), 1)
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

func (s *Scene) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Scene) runHook(ctx context.Context, hook string, fn HookFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return &LifecycleHookError{Scene: s.name, Hook: hook, Err: err}
	}
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &LifecycleHookError{Scene: s.name, Hook: hook, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(ctx, s); err != nil {
		s.log.Warn("lifecycle hook failed", zap.String("hook", hook), zap.Error(err))
		return &LifecycleHookError{Scene: s.name, Hook: hook, Err: err}
	}
	return nil
}

// Load runs OnLoad and moves the scene to loaded. Loading an already loaded
// scene is a no-op; a concurrent Load waits for the one in flight and
// returns its result. On failure the scene returns to unloaded with a fresh
// World.
func (s *Scene) Load(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateLoaded || s.state == StateActive || s.state == StatePaused:
		s.mu.Unlock()
		return nil
	case s.state == StateLoading:
		ch := s.loading
		s.mu.Unlock()
		select {
		case <-ch:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.loadErr
		case <-ctx.Done():
			return ctx.Err()
		}
	case s.state != StateUnloaded || s.busy:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("scene %s: load from %s: %w", s.name, st, ErrInvalidState)
	}
	s.state = StateLoading
	s.progress = 0
	s.loading = make(chan struct{})
	s.loadErr = nil
	s.mu.Unlock()

	start := time.Now()
	s.log.Debug("scene loading")
	err := s.runHook(ctx, HookLoad, s.hooks.OnLoad)

	s.mu.Lock()
	if err != nil {
		s.state = StateUnloaded
		s.progress = 0
		if !s.persistent {
			s.replaceWorldLocked()
		}
	} else {
		s.state = StateLoaded
		s.progress = 1
	}
	s.loadErr = err
	close(s.loading)
	s.mu.Unlock()

	if err == nil {
		s.log.Debug("scene loaded", zap.Duration("took", time.Since(start)))
	}
	return err
}

// step runs hook while the scene sits in one of from, then moves it to to.
// On hook failure the state is left unchanged.
func (s *Scene) step(ctx context.Context, hook string, fn HookFunc, to State, from ...State) error {
	s.mu.Lock()
	if s.busy || !slices.Contains(from, s.state) {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("scene %s: %s from %s: %w", s.name, hook, st, ErrInvalidState)
	}
	s.busy = true
	s.mu.Unlock()

	err := s.runHook(ctx, hook, fn)

	s.mu.Lock()
	s.busy = false
	if err == nil {
		s.state = to
	}
	s.mu.Unlock()
	if err == nil {
		s.log.Debug("scene state changed", zap.Stringer("state", to))
	}
	return err
}

// Enter activates a loaded scene.
func (s *Scene) Enter(ctx context.Context) error {
	return s.step(ctx, HookEnter, s.hooks.OnEnter, StateActive, StateLoaded)
}

// Exit deactivates an active or paused scene, leaving it loaded.
func (s *Scene) Exit(ctx context.Context) error {
	return s.step(ctx, HookExit, s.hooks.OnExit, StateLoaded, StateActive, StatePaused)
}

func (s *Scene) Pause(ctx context.Context) error {
	return s.step(ctx, HookPause, s.hooks.OnPause, StatePaused, StateActive)
}

func (s *Scene) Resume(ctx context.Context) error {
	return s.step(ctx, HookResume, s.hooks.OnResume, StateActive, StatePaused)
}

// Unload runs OnUnload and returns the scene to unloaded. Unless the scene
// is persistent its World is shut down and replaced with an empty one.
// Unloading an unloaded scene is a no-op.
func (s *Scene) Unload(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	if prev == StateUnloaded && !s.busy {
		s.mu.Unlock()
		return nil
	}
	if s.busy || !(prev == StateLoaded || prev == StateActive || prev == StatePaused) {
		s.mu.Unlock()
		return fmt.Errorf("scene %s: unload from %s: %w", s.name, prev, ErrInvalidState)
	}
	s.busy = true
	s.state = StateUnloading
	s.mu.Unlock()

	err := s.runHook(ctx, HookUnload, s.hooks.OnUnload)

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.state = prev
		s.mu.Unlock()
		return err
	}
	s.state = StateUnloaded
	s.progress = 0
	if !s.persistent {
		s.replaceWorldLocked()
	}
	s.mu.Unlock()
	s.log.Debug("scene unloaded", zap.Bool("persistent", s.persistent))
	return nil
}

func (s *Scene) replaceWorldLocked() {
	s.world.Shutdown()
	s.world = ecs.NewWorld(s.worldOpts...)
}

// Update ticks the World while the scene is active.
func (s *Scene) Update(dt time.Duration) error {
	s.mu.Lock()
	active := s.state == StateActive
	w := s.world
	s.mu.Unlock()
	if !active {
		return nil
	}
	return w.Update(dt)
}

// Close shuts the World down without running hooks.
func (s *Scene) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.world.Shutdown()
	s.state = StateUnloaded
}
