package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/serial"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// APIVersion is exposed to scripts as the API_VERSION global.
const APIVersion = 1

// Engine wraps a single gopher-lua VM.
// Single-goroutine access only: the World tick that owns it.
type Engine struct {
	vm       *lua.LState
	log      *zap.Logger
	registry *serial.Registry
	world    *ecs.World
}

type Option func(*Engine)

// WithRegistry makes add_component validate tables against the registry's
// schemas and decode registered types into their typed components.
func WithRegistry(r *serial.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// NewEngine creates a VM with the standard libraries and the ecs API table.
func NewEngine(log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	e := &Engine{vm: vm, log: log}
	for _, opt := range opts {
		opt(e)
	}
	e.openECS()
	return e
}

// LoadDir runs every .lua file in dir in name order. A missing dir is
// not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		if err := e.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) LoadFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	e.log.Debug("loaded lua script", zap.String("file", path))
	return nil
}

// LoadString runs src as a chunk named name.
func (e *Engine) LoadString(name, src string) error {
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// Bind sets the World the ecs API operates on. Pass nil to unbind.
func (e *Engine) Bind(w *ecs.World) { e.world = w }

// HasFunc reports whether a global function called name exists.
func (e *Engine) HasFunc(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// GlobalInt reads a numeric global, returning def when it is absent.
func (e *Engine) GlobalInt(name string, def int) int {
	if n, ok := e.vm.GetGlobal(name).(lua.LNumber); ok {
		return int(n)
	}
	return def
}

// Call invokes the global function name and returns its first result.
func (e *Engine) Call(name string, args ...lua.LValue) (lua.LValue, error) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return lua.LNil, fmt.Errorf("lua function %s not found", name)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, fmt.Errorf("lua %s: %w", name, err)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return result, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
