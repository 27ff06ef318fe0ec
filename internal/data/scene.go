package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SceneEntry describes one scene in the scene manifest.
type SceneEntry struct {
	Name       string           `yaml:"name"`
	Persistent bool             `yaml:"persistent"`
	Scripts    []string         `yaml:"scripts"`  // relative to the scripting dir
	Snapshot   string           `yaml:"snapshot"` // store key loaded on enter, saved by autosave
	Autosave   bool             `yaml:"autosave"`
	Preload    bool             `yaml:"preload"`
	Transition *TransitionEntry `yaml:"transition"`
}

type TransitionEntry struct {
	FadeOut time.Duration `yaml:"fade_out"`
	FadeIn  time.Duration `yaml:"fade_in"`
	Steps   int           `yaml:"steps"`
}

type sceneManifest struct {
	Initial string       `yaml:"initial"`
	Scenes  []SceneEntry `yaml:"scenes"`
}

// SceneTable is the parsed scene manifest in declaration order.
type SceneTable struct {
	initial string
	scenes  []SceneEntry
	byName  map[string]*SceneEntry
}

// LoadSceneManifest loads scenes.yaml.
func LoadSceneManifest(path string) (*SceneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene manifest: %w", err)
	}
	var m sceneManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse scene manifest: %w", err)
	}
	t := &SceneTable{
		initial: m.Initial,
		scenes:  m.Scenes,
		byName:  make(map[string]*SceneEntry, len(m.Scenes)),
	}
	for i := range t.scenes {
		e := &t.scenes[i]
		if e.Name == "" {
			return nil, fmt.Errorf("scene manifest: entry %d has no name", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("scene manifest: duplicate scene %q", e.Name)
		}
		t.byName[e.Name] = e
	}
	if t.initial == "" && len(t.scenes) > 0 {
		t.initial = t.scenes[0].Name
	}
	if t.initial != "" && t.byName[t.initial] == nil {
		return nil, fmt.Errorf("scene manifest: initial scene %q not declared", t.initial)
	}
	return t, nil
}

// Get returns the named scene, or nil.
func (t *SceneTable) Get(name string) *SceneEntry {
	return t.byName[name]
}

// Initial returns the scene to activate at startup.
func (t *SceneTable) Initial() string { return t.initial }

func (t *SceneTable) All() []SceneEntry { return t.scenes }

func (t *SceneTable) Count() int { return len(t.scenes) }
