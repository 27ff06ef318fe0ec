package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/whalecs/ecsrt/internal/config"
	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/data"
	"github.com/whalecs/ecsrt/internal/scene"
	"github.com/whalecs/ecsrt/internal/scripting"
	"github.com/whalecs/ecsrt/internal/serial"
	"github.com/whalecs/ecsrt/internal/system"
	"go.uber.org/zap"
)

// sceneBuilder turns manifest entries into scenes whose hooks restore the
// snapshot, install script and built-in systems, and save on unload.
type sceneBuilder struct {
	cfg        *config.Config
	log        *zap.Logger
	store      serial.Store
	format     serial.Format
	serializer *serial.Serializer
	registry   *serial.Registry

	mu        sync.Mutex
	autosaves map[string]*system.AutosaveSystem
}

func (b *sceneBuilder) build(entry data.SceneEntry) *scene.Scene {
	var tr *scene.TransitionConfig
	if entry.Transition != nil {
		tr = &scene.TransitionConfig{
			FadeOut: entry.Transition.FadeOut,
			FadeIn:  entry.Transition.FadeIn,
			Steps:   entry.Transition.Steps,
		}
	}
	return scene.New(scene.Config{
		Name:       entry.Name,
		Persistent: entry.Persistent,
		Transition: tr,
		Logger:     b.log,
		Hooks: scene.Hooks{
			OnLoad:   func(ctx context.Context, s *scene.Scene) error { return b.load(ctx, s, entry) },
			OnUnload: func(ctx context.Context, s *scene.Scene) error { return b.unload(ctx, s, entry) },
		},
	})
}

func (b *sceneBuilder) snapshotKey(entry data.SceneEntry) string {
	return entry.Snapshot + b.format.Extension()
}

func (b *sceneBuilder) load(ctx context.Context, s *scene.Scene, entry data.SceneEntry) (err error) {
	w := s.World()
	// a persistent scene keeps its World and systems across unloads
	if len(w.Systems()) > 0 {
		return nil
	}

	// a failed load leaves no systems behind, so the next attempt starts over
	var added []string
	addSystem := func(sys ecs.System) error {
		if err := w.AddSystem(sys); err != nil {
			return err
		}
		added = append(added, sys.Name())
		return nil
	}
	defer func() {
		if err == nil {
			return
		}
		for i := len(added) - 1; i >= 0; i-- {
			w.RemoveSystem(added[i])
		}
		b.mu.Lock()
		delete(b.autosaves, entry.Name)
		b.mu.Unlock()
	}()

	steps := float64(len(entry.Scripts) + 2)
	done := 0.0
	advance := func() {
		done++
		s.SetProgress(done / steps)
	}

	if entry.Snapshot != "" {
		res := b.serializer.LoadFrom(ctx, w, b.store, b.snapshotKey(entry), b.format, serial.LoadOptions{
			ClearExisting:   true,
			ValidateVersion: true,
		})
		switch {
		case res.Success:
			b.log.Info("snapshot restored",
				zap.String("scene", entry.Name),
				zap.Int("entities", res.EntitiesLoaded),
				zap.Int("components", res.ComponentsLoaded),
			)
		case errors.Is(res.Err, serial.ErrNotFound):
			b.log.Info("no snapshot, starting empty", zap.String("scene", entry.Name))
		default:
			return fmt.Errorf("restore snapshot: %w", res.Err)
		}
	}
	advance()

	for _, script := range entry.Scripts {
		if err := ctx.Err(); err != nil {
			return err
		}
		sys, err := scripting.LoadScriptSystem(
			filepath.Join(b.cfg.Scripting.Dir, script), b.log, scripting.WithRegistry(b.registry))
		if err != nil {
			return err
		}
		if err := addSystem(sys); err != nil {
			sys.Engine().Close()
			return fmt.Errorf("add script %s: %w", script, err)
		}
		advance()
	}

	if err := addSystem(system.NewCleanupSystem()); err != nil {
		return err
	}
	if entry.Autosave && entry.Snapshot != "" && b.cfg.Snapshot.AutosaveTicks > 0 {
		auto := system.NewAutosaveSystem(system.AutosaveConfig{
			Serializer:    b.serializer,
			Store:         b.store,
			Key:           b.snapshotKey(entry),
			Format:        b.format,
			IntervalTicks: b.cfg.Snapshot.AutosaveTicks,
		}, b.log)
		if err := addSystem(auto); err != nil {
			return err
		}
		b.mu.Lock()
		if b.autosaves == nil {
			b.autosaves = make(map[string]*system.AutosaveSystem)
		}
		b.autosaves[entry.Name] = auto
		b.mu.Unlock()
	}
	advance()
	return nil
}

// unload writes a final snapshot for autosaved scenes.
func (b *sceneBuilder) unload(ctx context.Context, s *scene.Scene, entry data.SceneEntry) error {
	b.mu.Lock()
	auto := b.autosaves[entry.Name]
	b.mu.Unlock()
	if auto == nil {
		return nil
	}
	if res := auto.SaveNow(ctx, s.World()); !res.Success {
		return fmt.Errorf("final save: %w", res.Err)
	}
	if !entry.Persistent {
		b.mu.Lock()
		delete(b.autosaves, entry.Name)
		b.mu.Unlock()
	}
	return nil
}
