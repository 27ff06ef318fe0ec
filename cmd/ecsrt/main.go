package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/whalecs/ecsrt/internal/config"
	"github.com/whalecs/ecsrt/internal/data"
	"github.com/whalecs/ecsrt/internal/persist"
	"github.com/whalecs/ecsrt/internal/scene"
	"github.com/whalecs/ecsrt/internal/serial"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/ecsrt.toml"
	if p := os.Getenv("ECSRT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if p := startProfile(cfg.Profile); p != nil {
		defer p.Stop()
	}

	printBanner(cfg.Scenes.Manifest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Snapshot store
	printSection("storage")
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	printOK(fmt.Sprintf("snapshot store: %s (%s)", cfg.Snapshot.Store, cfg.Snapshot.Format))

	format, err := serial.FormatByName(cfg.Snapshot.Format, cfg.Snapshot.PrettyPrint)
	if err != nil {
		return fmt.Errorf("snapshot format: %w", err)
	}

	registry := serial.NewRegistry()
	if cfg.Snapshot.Schemas != "" {
		schemas, err := data.LoadComponentSchemas(cfg.Snapshot.Schemas)
		if err != nil {
			return fmt.Errorf("load component schemas: %w", err)
		}
		data.ApplySchemas(registry, schemas)
		printStat("component schemas", len(schemas))
	}
	serializer := serial.NewSerializer(
		serial.WithRegistry(registry),
		serial.WithExpectedMajor(cfg.Engine.ExpectedMajor),
		serial.WithLogger(log),
	)
	fmt.Println()

	// 4. Scenes
	printSection("scenes")
	manifest, err := data.LoadSceneManifest(cfg.Scenes.Manifest)
	if err != nil {
		return fmt.Errorf("load scene manifest: %w", err)
	}

	mgr := scene.NewManager(
		scene.WithLogger(log),
		scene.WithDefaultTransition(scene.TransitionConfig{
			FadeOut: cfg.Scenes.FadeOut,
			FadeIn:  cfg.Scenes.FadeIn,
			Steps:   cfg.Scenes.FadeSteps,
		}),
		scene.WithProgress(cfg.Scenes.ProgressInterval, func(name string, p float64) {
			log.Debug("scene loading", zap.String("scene", name), zap.Float64("progress", p))
		}),
	)

	b := &sceneBuilder{
		cfg:        cfg,
		log:        log,
		store:      store,
		format:     format,
		serializer: serializer,
		registry:   registry,
	}
	var preload []string
	for _, entry := range manifest.All() {
		if err := mgr.Register(b.build(entry)); err != nil {
			return fmt.Errorf("register scene: %w", err)
		}
		if entry.Preload {
			preload = append(preload, entry.Name)
		}
	}
	printStat("scenes registered", manifest.Count())

	if len(preload) > 0 {
		if err := mgr.PreloadScenes(ctx, preload...); err != nil {
			return fmt.Errorf("preload scenes: %w", err)
		}
		printStat("scenes preloaded", len(preload))
	}

	initial := manifest.Initial()
	if cfg.Scenes.Initial != "" {
		initial = cfg.Scenes.Initial
	}
	if initial == "" {
		return fmt.Errorf("no scenes declared in %s", cfg.Scenes.Manifest)
	}
	if err := mgr.SwitchTo(ctx, initial, nil); err != nil {
		return fmt.Errorf("enter initial scene %s: %w", initial, err)
	}
	printOK(fmt.Sprintf("active scene: %s", initial))
	fmt.Println()

	// 5. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()

	printSection("running")
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Engine.TickRate))
	fmt.Println()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := mgr.Update(dt); err != nil {
				log.Error("tick failed", zap.Error(err))
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			// scene unload hooks write the final snapshots
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
			err := mgr.Shutdown(shutdownCtx)
			cancelShutdown()
			if err != nil {
				log.Error("scene shutdown", zap.Error(err))
			}
			log.Info("runtime stopped")
			return nil
		}
	}
}

// openStore returns the snapshot store selected by [snapshot] store and a
// func releasing its resources.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (serial.Store, func(), error) {
	if cfg.Snapshot.Store != "postgres" {
		return serial.NewFileStore(cfg.Snapshot.Dir), func() {}, nil
	}

	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(dbCtx, cfg.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := db.Migrate(dbCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return persist.NewSnapshotRepo(db), db.Close, nil
}

func startProfile(cfg config.ProfileConfig) interface{ Stop() } {
	switch cfg.Mode {
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Path), profile.NoShutdownHook)
	case "mem":
		return profile.Start(profile.MemProfileAllocs, profile.ProfilePath(cfg.Path), profile.NoShutdownHook)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
