package data

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/whalecs/ecsrt/internal/serial"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSceneManifest(t *testing.T) {
	path := writeFile(t, "scenes.yaml", `
initial: level1
scenes:
  - name: menu
    scripts: [menu.lua]
  - name: level1
    persistent: true
    scripts: [movement.lua, spawner.lua]
    snapshot: saves/level1
    autosave: true
    preload: true
    transition:
      fade_out: 400ms
      fade_in: 1s
      steps: 8
`)
	tbl, err := LoadSceneManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count() != 2 || tbl.Initial() != "level1" {
		t.Fatalf("count=%d initial=%s", tbl.Count(), tbl.Initial())
	}
	l := tbl.Get("level1")
	if l == nil || !l.Persistent || !l.Autosave || !l.Preload || l.Snapshot != "saves/level1" || len(l.Scripts) != 2 {
		t.Fatalf("level1 = %+v", l)
	}
	if l.Transition == nil || l.Transition.FadeOut != 400*time.Millisecond || l.Transition.FadeIn != time.Second || l.Transition.Steps != 8 {
		t.Errorf("transition = %+v", l.Transition)
	}
	if m := tbl.Get("menu"); m == nil || m.Transition != nil {
		t.Errorf("menu = %+v", m)
	}
	if tbl.Get("nope") != nil {
		t.Error("Expected nil for unknown scene")
	}
}

func TestSceneManifestDefaultsInitial(t *testing.T) {
	tbl, err := LoadSceneManifest(writeFile(t, "s.yaml", "scenes:\n  - name: a\n  - name: b\n"))
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Initial() != "a" {
		t.Errorf("initial = %s", tbl.Initial())
	}
}

func TestSceneManifestErrors(t *testing.T) {
	cases := map[string]string{
		"duplicate": "scenes:\n  - name: a\n  - name: a\n",
		"unnamed":   "scenes:\n  - persistent: true\n",
		"initial":   "initial: x\nscenes:\n  - name: a\n",
		"syntax":    "scenes: [",
	}
	for name, body := range cases {
		if _, err := LoadSceneManifest(writeFile(t, "s.yaml", body)); err == nil {
			t.Errorf("%s: Expected error", name)
		}
	}
	if _, err := LoadSceneManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing: Expected error")
	}
}

func TestLoadComponentSchemas(t *testing.T) {
	path := writeFile(t, "schemas.yaml", `
- type: position
  required: [x, y]
  fields:
    x: number
    y: number
- type: name
  required: [value]
  fields:
    value: string
`)
	schemas, err := LoadComponentSchemas(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(schemas) != 2 || schemas[0].Type != "position" || len(schemas[0].Required) != 2 {
		t.Fatalf("schemas = %+v", schemas)
	}

	reg := serial.NewRegistry()
	ApplySchemas(reg, schemas)
	if _, _, err := reg.Decode("position", json.RawMessage(`{"x":1,"y":2}`)); err != nil {
		t.Errorf("valid position rejected: %v", err)
	}
	if _, _, err := reg.Decode("position", json.RawMessage(`{"x":1}`)); err == nil {
		t.Error("Expected missing field error")
	}
	if _, _, err := reg.Decode("name", json.RawMessage(`{"value":3}`)); err == nil {
		t.Error("Expected kind mismatch error")
	}
}

func TestComponentSchemaErrors(t *testing.T) {
	cases := map[string]string{
		"kind":      "- type: a\n  fields:\n    x: integer\n",
		"duplicate": "- type: a\n- type: a\n",
		"untyped":   "- required: [x]\n",
	}
	for name, body := range cases {
		if _, err := LoadComponentSchemas(writeFile(t, "s.yaml", body)); err == nil {
			t.Errorf("%s: Expected error", name)
		}
	}
}
