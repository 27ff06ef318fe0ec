package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is polled with a scene's load progress while SwitchTo waits
// for it to load.
type ProgressFunc func(scene string, progress float64)

// Manager owns a set of scenes, at most one of which is active, and runs at
// most one transition at a time.
type Manager struct {
	mu         sync.Mutex
	scenes     map[string]*Scene
	order      []string
	active     *Scene
	transition *Transition
	removing   map[string]bool

	defaults         TransitionConfig
	progressInterval time.Duration
	onProgress       ProgressFunc
	log              *zap.Logger
}

type ManagerOption func(*Manager)

func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

func WithDefaultTransition(cfg TransitionConfig) ManagerOption {
	return func(m *Manager) { m.defaults = cfg }
}

// WithProgress polls fn every interval while a scene loads during SwitchTo.
func WithProgress(interval time.Duration, fn ProgressFunc) ManagerOption {
	return func(m *Manager) {
		m.progressInterval = interval
		m.onProgress = fn
	}
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		scenes:           make(map[string]*Scene),
		removing:         make(map[string]bool),
		defaults:         DefaultTransition,
		progressInterval: 100 * time.Millisecond,
		log:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Register(s *Scene) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenes[s.Name()]; ok {
		return fmt.Errorf("%s: %w", s.Name(), ErrAlreadyRegistered)
	}
	m.scenes[s.Name()] = s
	m.order = append(m.order, s.Name())
	return nil
}

// Unregister unloads and removes a scene. The active scene and scenes taking
// part in a transition cannot be unregistered.
// A scene being unregistered cannot be switched to.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	s, err := m.inactiveLocked(name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.removing[name] = true
	m.mu.Unlock()

	if err := s.Unload(ctx); err != nil {
		m.mu.Lock()
		delete(m.removing, name)
		m.mu.Unlock()
		return err
	}
	s.Close()
	m.mu.Lock()
	delete(m.removing, name)
	delete(m.scenes, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// inactive resolves name and rejects the active scene or a scene involved
// in the running transition.
func (m *Manager) inactive(name string) (*Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inactiveLocked(name)
}

func (m *Manager) inactiveLocked(name string) (*Scene, error) {
	s, ok := m.scenes[name]
	if !ok || m.removing[name] {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if s == m.active {
		return nil, fmt.Errorf("%s: %w", name, ErrActiveScene)
	}
	if m.transition != nil && (m.transition.To == name || m.transition.From == name) {
		return nil, fmt.Errorf("%s: %w", name, ErrTransitionInProgress)
	}
	return s, nil
}

func (m *Manager) Get(name string) (*Scene, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[name]
	return s, ok
}

// Names returns registered scene names in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) Active() *Scene {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) IsTransitioning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition != nil
}

// CurrentTransition returns the running transition, or nil.
func (m *Manager) CurrentTransition() *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition
}

// SwitchTo makes name the active scene. The target is loaded first if
// needed, then the transition fades out, exits the old scene, enters the new
// one and fades in. The previous scene is unloaded unless persistent. A
// failure aborts the switch and clears the transition.
func (m *Manager) SwitchTo(ctx context.Context, name string, override *TransitionConfig) error {
	m.mu.Lock()
	target, ok := m.scenes[name]
	if !ok || m.removing[name] {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if m.active == target {
		m.mu.Unlock()
		return nil
	}
	if m.transition != nil {
		m.mu.Unlock()
		return fmt.Errorf("switch to %s: %w", name, ErrTransitionInProgress)
	}
	cfg := m.defaults
	if target.transition != nil {
		cfg = *target.transition
	}
	if override != nil {
		cfg = *override
	}
	prev := m.active
	from := ""
	if prev != nil {
		from = prev.Name()
	}
	tr := newTransition(from, name, cfg)
	m.transition = tr
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.transition = nil
		m.mu.Unlock()
	}()

	log := m.log.With(zap.String("transition", tr.ID), zap.String("from", from), zap.String("to", name))
	start := time.Now()

	if err := m.loadWithProgress(ctx, target); err != nil {
		log.Warn("scene switch aborted during load", zap.Error(err))
		return err
	}

	err := tr.Run(ctx, func(ctx context.Context) error {
		var prevState State
		if prev != nil {
			prevState = prev.State()
			if err := prev.Exit(ctx); err != nil {
				return err
			}
		}
		if err := target.Enter(ctx); err != nil {
			if prev != nil {
				rerr := prev.Enter(ctx)
				if rerr == nil && prevState == StatePaused {
					rerr = prev.Pause(ctx)
				}
				if rerr != nil {
					log.Error("failed to restore previous scene", zap.Error(rerr))
					if prev.State() != StateActive && prev.State() != StatePaused {
						m.mu.Lock()
						m.active = nil
						m.mu.Unlock()
					}
				}
			}
			return err
		}
		m.mu.Lock()
		m.active = target
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		log.Warn("scene switch aborted", zap.Stringer("phase", tr.Phase()), zap.Error(err))
		return err
	}

	if prev != nil && !prev.Persistent() {
		if err := prev.Unload(ctx); err != nil {
			log.Warn("previous scene unload failed", zap.Error(err))
			return err
		}
	}
	log.Info("scene switched", zap.Duration("took", time.Since(start)))
	return nil
}

func (m *Manager) loadWithProgress(ctx context.Context, s *Scene) error {
	if s.IsLoaded() {
		return nil
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	if m.onProgress != nil && m.progressInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(m.progressInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					m.onProgress(s.Name(), s.Progress())
				}
			}
		}()
	}
	err := s.Load(ctx)
	close(done)
	wg.Wait()
	if err == nil && m.onProgress != nil {
		m.onProgress(s.Name(), 1)
	}
	return err
}

// Update ticks the active scene.
func (m *Manager) Update(dt time.Duration) error {
	s := m.Active()
	if s == nil {
		return nil
	}
	return s.Update(dt)
}

func (m *Manager) activeForControl() (*Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transition != nil {
		return nil, ErrTransitionInProgress
	}
	if m.active == nil {
		return nil, fmt.Errorf("no active scene: %w", ErrInvalidState)
	}
	return m.active, nil
}

func (m *Manager) PauseActiveScene(ctx context.Context) error {
	s, err := m.activeForControl()
	if err != nil {
		return err
	}
	return s.Pause(ctx)
}

func (m *Manager) ResumeActiveScene(ctx context.Context) error {
	s, err := m.activeForControl()
	if err != nil {
		return err
	}
	return s.Resume(ctx)
}

// PreloadScenes loads the named scenes in parallel. The first failure
// cancels the others' context and is returned.
func (m *Manager) PreloadScenes(ctx context.Context, names ...string) error {
	scenes := make([]*Scene, 0, len(names))
	for _, name := range names {
		s, ok := m.Get(name)
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		scenes = append(scenes, s)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range scenes {
		g.Go(func() error { return s.Load(gctx) })
	}
	return g.Wait()
}

// UnloadScene unloads a scene that is neither active nor in transition.
func (m *Manager) UnloadScene(ctx context.Context, name string) error {
	s, err := m.inactive(name)
	if err != nil {
		return err
	}
	return s.Unload(ctx)
}

// UnloadInactiveScenes unloads, in parallel, every loaded scene that is not
// active and not part of the running transition. Every unload is attempted;
// the errors are joined.
func (m *Manager) UnloadInactiveScenes(ctx context.Context) (int, error) {
	m.mu.Lock()
	var targets []*Scene
	for _, name := range m.order {
		s := m.scenes[name]
		if s == m.active || m.removing[name] {
			continue
		}
		if m.transition != nil && (m.transition.To == name || m.transition.From == name) {
			continue
		}
		if s.IsLoaded() {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	// the group only joins the goroutines; every failure is kept in errs
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, s := range targets {
		g.Go(func() error {
			errs[i] = s.Unload(ctx)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, err := range errs {
		if err == nil {
			n++
		}
	}
	m.log.Debug("unloaded inactive scenes", zap.Int("count", n))
	return n, errors.Join(errs...)
}

// Shutdown exits the active scene, unloads every scene and releases their
// Worlds. Hook failures are collected, not fatal.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	active := m.active
	m.active = nil
	scenes := make([]*Scene, 0, len(m.order))
	for _, name := range m.order {
		scenes = append(scenes, m.scenes[name])
	}
	m.mu.Unlock()

	var errs []error
	if active != nil {
		if err := active.Exit(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range scenes {
		if err := s.Unload(ctx); err != nil {
			errs = append(errs, err)
		}
		s.Close()
	}
	return errors.Join(errs...)
}
