package scripting

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/core/event"
	"github.com/whalecs/ecsrt/internal/serial"
	"go.uber.org/zap/zaptest"
)

type velocity struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (velocity) ComponentType() string { return "velocity" }

func newSystem(t *testing.T, src string, opts ...Option) *ScriptSystem {
	t.Helper()
	e := NewEngine(zaptest.NewLogger(t), opts...)
	if err := e.LoadString("test", src); err != nil {
		t.Fatal(err)
	}
	s, err := NewScriptSystem("test", e)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

const mover = `
priority = 5

function init()
  local e = ecs.create_entity()
  ecs.add_component(e, "position", {x = 0, y = 0})
  ecs.add_component(e, "velocity", {dx = 2, dy = -1})
end

function update(dt)
  for _, id in ipairs(ecs.query_all("position", "velocity")) do
    local p = ecs.get_component(id, "position")
    local v = ecs.get_component(id, "velocity")
    ecs.add_component(id, "position", {x = p.x + v.dx * dt, y = p.y + v.dy * dt})
  end
end
`

func TestScriptSystemMovesEntities(t *testing.T) {
	w := ecs.NewWorld()
	s := newSystem(t, mover)
	if s.Priority() != 5 {
		t.Errorf("priority = %d", s.Priority())
	}
	if err := w.AddSystem(s); err != nil {
		t.Fatal(err)
	}
	if err := w.Update(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	ids := w.QueryMultiple("position", "velocity")
	if len(ids) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(ids))
	}
	c, _ := w.GetComponent(ids[0], "position")
	pos, ok := c.(ecs.Dynamic)
	if !ok {
		t.Fatalf("Expected Dynamic position, got %T", c)
	}
	if pos.Fields["x"] != 4.0 || pos.Fields["y"] != -2.0 {
		t.Errorf("position = %v", pos.Fields)
	}
	w.Shutdown()
}

func TestScriptUsesRegistryDecoders(t *testing.T) {
	reg := serial.NewRegistry()
	serial.Register[velocity](reg)
	w := ecs.NewWorld()
	s := newSystem(t, mover, WithRegistry(reg))
	w.AddSystem(s)
	w.Update(time.Second)

	ids := w.Query("velocity").Entities()
	v, ok := ecs.Get[velocity](w, ids[0], "velocity")
	if !ok || v.DX != 2 || v.DY != -1 {
		t.Errorf("velocity = %+v, %v", v, ok)
	}
}

func TestScriptDirtyAndEvents(t *testing.T) {
	w := ecs.NewWorld()
	e := w.CreateEntity()
	w.AddComponent(e, ecs.Dynamic{Kind: "hp", Fields: map[string]any{"v": 3.0}})

	var got []any
	w.SubscribeToEvent("dirty_hp", func(ev event.Event) { got = append(got, ev.Payload) })

	s := newSystem(t, `
function update(dt)
  local ids = ecs.dirty("hp")
  ecs.emit("dirty_hp", {count = #ids, first = ids[1]})
end
`)
	w.AddSystem(s)
	w.Update(time.Millisecond)
	// dirty set is cleared after the first tick
	w.Update(time.Millisecond)

	if len(got) != 2 {
		t.Fatalf("events = %v", got)
	}
	first := got[0].(map[string]any)
	if first["count"] != 1.0 || first["first"] != float64(e) {
		t.Errorf("first tick payload = %v", first)
	}
	if got[1].(map[string]any)["count"] != 0.0 {
		t.Errorf("second tick payload = %v", got[1])
	}
}

func TestScriptErrorsBecomeTickErrors(t *testing.T) {
	w := ecs.NewWorld()
	w.AddSystem(newSystem(t, `function update(dt) error("kaboom") end`))
	err := w.Update(time.Millisecond)
	var te *ecs.TickError
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Expected kaboom, got %v", err)
	}
	if !errors.As(err, &te) || te.System != "test" {
		t.Errorf("Expected TickError for test, got %v", err)
	}
}

func TestScriptWithoutUpdate(t *testing.T) {
	e := NewEngine(nil)
	defer e.Close()
	e.LoadString("empty", `x = 1`)
	if _, err := NewScriptSystem("empty", e); err == nil {
		t.Error("Expected error for missing update")
	}
}

func TestEngineUnbound(t *testing.T) {
	e := NewEngine(nil)
	defer e.Close()
	e.LoadString("f", `function f() return ecs.create_entity() end`)
	if _, err := e.Call("f"); err == nil || !strings.Contains(err.Error(), "no world bound") {
		t.Errorf("Expected unbound error, got %v", err)
	}
}

func TestLoadScriptSystemFromDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spawner.lua")
	src := `function update(dt) ecs.create_entity() end`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadScriptSystem(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != "spawner" {
		t.Errorf("name = %s", s.Name())
	}
	w := ecs.NewWorld()
	w.AddSystem(s)
	w.Update(0)
	w.Update(0)
	if w.EntityCount() != 2 {
		t.Errorf("entities = %d", w.EntityCount())
	}

	e := NewEngine(nil)
	defer e.Close()
	if err := e.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	if !e.HasFunc("update") {
		t.Error("LoadDir did not run spawner.lua")
	}
	if err := e.LoadDir(filepath.Join(dir, "missing")); err != nil {
		t.Errorf("missing dir: %v", err)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	e := NewEngine(nil)
	defer e.Close()
	in := map[string]any{"name": "a", "tags": []any{"x", "y"}, "n": 1.5, "ok": true}
	out := fromLua(toLua(e.vm, in))
	a, _ := json.Marshal(in)
	b, _ := json.Marshal(out)
	if string(a) != string(b) {
		t.Errorf("round trip: %s != %s", a, b)
	}
}
