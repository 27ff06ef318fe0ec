package system

import (
	"context"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/serial"
	"go.uber.org/zap"
)

// AutosaveSystem periodically writes a snapshot of the World to a Store.
// A save is skipped when nothing changed since the previous one: no
// component was marked dirty and the World's structure version is unchanged.
type AutosaveSystem struct {
	serializer *serial.Serializer
	store      serial.Store
	key        string
	format     serial.Format
	opts       serial.SnapshotOptions
	log        *zap.Logger

	interval  int // save every N ticks
	timeout   time.Duration
	tickCount int
	changed   bool
	version   uint64
	saves     int
}

type AutosaveConfig struct {
	Serializer    *serial.Serializer
	Store         serial.Store
	Key           string
	Format        serial.Format
	Options       serial.SnapshotOptions
	IntervalTicks int
	Timeout       time.Duration
}

func NewAutosaveSystem(cfg AutosaveConfig, log *zap.Logger) *AutosaveSystem {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.IntervalTicks <= 0 {
		cfg.IntervalTicks = 1
	}
	return &AutosaveSystem{
		serializer: cfg.Serializer,
		store:      cfg.Store,
		key:        cfg.Key,
		format:     cfg.Format,
		opts:       cfg.Options,
		log:        log.With(zap.String("snapshot", cfg.Key)),
		interval:   cfg.IntervalTicks,
		timeout:    cfg.Timeout,
	}
}

func (s *AutosaveSystem) Name() string  { return "autosave" }
func (s *AutosaveSystem) Priority() int { return PriorityPersist }

// Init records the starting structure version so a freshly loaded World is
// not saved straight back.
func (s *AutosaveSystem) Init(w *ecs.World) error {
	s.version = w.StructureVersion()
	return nil
}

func (s *AutosaveSystem) Update(w *ecs.World, _ time.Duration) error {
	if v := w.StructureVersion(); w.DirtyStats().TotalDirty > 0 || v != s.version {
		s.changed = true
		s.version = v
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return nil
	}
	s.tickCount = 0
	if !s.changed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if res := s.save(ctx, w); !res.Success {
		// keep changed set so the next interval retries
		return nil
	}
	s.changed = false
	return nil
}

// SaveNow writes a snapshot regardless of dirty state. Called on shutdown.
func (s *AutosaveSystem) SaveNow(ctx context.Context, w *ecs.World) serial.SaveResult {
	res := s.save(ctx, w)
	if res.Success {
		s.changed = false
	}
	return res
}

// Saves returns the number of successful saves.
func (s *AutosaveSystem) Saves() int { return s.saves }

func (s *AutosaveSystem) save(ctx context.Context, w *ecs.World) serial.SaveResult {
	res := s.serializer.SaveTo(ctx, w, s.store, s.key, s.format, s.opts)
	if !res.Success {
		s.log.Error("autosave failed", zap.Error(res.Err))
		return res
	}
	s.saves++
	s.log.Info("autosave complete",
		zap.Int("entities", w.EntityCount()),
		zap.Int("bytes", res.Bytes),
		zap.Duration("took", res.Duration),
	)
	return res
}
