package scripting

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ScriptSystem runs a Lua script as an ecs.System. The script defines a
// global update(dt) taking seconds, and optionally a numeric priority and
// init()/shutdown() functions.
type ScriptSystem struct {
	name     string
	priority int
	engine   *Engine
}

// NewScriptSystem wraps an engine whose scripts are already loaded.
func NewScriptSystem(name string, engine *Engine) (*ScriptSystem, error) {
	if !engine.HasFunc("update") {
		return nil, fmt.Errorf("script %s: missing update function", name)
	}
	return &ScriptSystem{
		name:     name,
		priority: engine.GlobalInt("priority", 0),
		engine:   engine,
	}, nil
}

// LoadScriptSystem loads the script at path into a fresh engine. The system
// is named after the file.
func LoadScriptSystem(path string, log *zap.Logger, opts ...Option) (*ScriptSystem, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	engine := NewEngine(log.With(zap.String("script", name)), opts...)
	if err := engine.LoadFile(path); err != nil {
		engine.Close()
		return nil, err
	}
	s, err := NewScriptSystem(name, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return s, nil
}

func (s *ScriptSystem) Name() string    { return s.name }
func (s *ScriptSystem) Priority() int   { return s.priority }
func (s *ScriptSystem) Engine() *Engine { return s.engine }

func (s *ScriptSystem) Init(w *ecs.World) error {
	if !s.engine.HasFunc("init") {
		return nil
	}
	s.engine.Bind(w)
	defer s.engine.Bind(nil)
	_, err := s.engine.Call("init")
	return err
}

func (s *ScriptSystem) Update(w *ecs.World, dt time.Duration) error {
	s.engine.Bind(w)
	defer s.engine.Bind(nil)
	_, err := s.engine.Call("update", lua.LNumber(dt.Seconds()))
	return err
}

// Shutdown runs the script's shutdown() if present and closes the VM.
func (s *ScriptSystem) Shutdown(w *ecs.World) {
	if s.engine.HasFunc("shutdown") {
		s.engine.Bind(w)
		if _, err := s.engine.Call("shutdown"); err != nil {
			s.engine.log.Warn("script shutdown failed", zap.Error(err))
		}
		s.engine.Bind(nil)
	}
	s.engine.Close()
}
