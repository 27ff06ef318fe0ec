package serial

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"go.uber.org/zap/zaptest"
)

type position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (position) ComponentType() string { return "position" }

type health struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

func (health) ComponentType() string { return "health" }

type temporary struct {
	TTL int `json:"ttl"`
}

func (temporary) ComponentType() string { return "temporary" }

func newTestSerializer(t *testing.T) *Serializer {
	r := NewRegistry()
	Register[position](r)
	Register[health](r)
	Register[temporary](r)
	return NewSerializer(WithRegistry(r), WithLogger(zaptest.NewLogger(t)))
}

func add(t *testing.T, w *ecs.World, id ecs.EntityID, cs ...ecs.Component) {
	t.Helper()
	for _, c := range cs {
		if err := w.AddComponent(id, c); err != nil {
			t.Fatal(err)
		}
	}
}

func sampleWorld(t *testing.T) *ecs.World {
	w := ecs.NewWorld()
	a := w.CreateEntity()
	add(t, w, a, position{X: 1, Y: 2}, health{Current: 5, Max: 10}, temporary{TTL: 3})
	b := w.CreateEntity()
	add(t, w, b, position{X: -4, Y: 0.5})
	c := w.CreateEntity()
	add(t, w, c, health{Current: 1, Max: 1})
	w.CreateEntity() // no components
	return w
}

func TestVersionGate(t *testing.T) {
	s := NewSerializer()
	cases := map[string]bool{
		"1.0.0":  true,
		"1.9.42": true,
		"0.9.0":  false,
		"2.0.0":  false,
		"1.0":    false,
		"one":    false,
		"":       false,
		"+1.0.0": false,
		"1.-0.0": false,
		"1..0":   false,
		"1.0.0 ": false,
	}
	for v, want := range cases {
		if got := s.IsVersionCompatible(v); got != want {
			t.Errorf("IsVersionCompatible(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestCreateSnapshotStats(t *testing.T) {
	w := sampleWorld(t)
	s := newTestSerializer(t)
	res, err := s.CreateSnapshot(w, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}
	snap := res.Snapshot
	if snap.Version != FormatVersion {
		t.Errorf("Expected version %s, got %s", FormatVersion, snap.Version)
	}
	if snap.Stats.EntityCount != 4 || snap.Stats.ComponentCount != 5 {
		t.Errorf("unexpected stats %+v", snap.Stats)
	}
	if snap.Stats.ComponentsByType["position"] != 2 || snap.Stats.ComponentsByType["health"] != 2 {
		t.Errorf("unexpected per-type counts %v", snap.Stats.ComponentsByType)
	}
	if snap.Stats.EstimatedSize <= 0 {
		t.Error("EstimatedSize not computed")
	}
	want := []string{"health", "position", "temporary"}
	if !slices.Equal(snap.ComponentTypes, want) {
		t.Errorf("Expected types %v, got %v", want, snap.ComponentTypes)
	}
	if w.DirtyStats().TotalDirty != 5 {
		t.Error("CreateSnapshot touched the dirty sets")
	}
}

func TestFilterExcludeComponentTypes(t *testing.T) {
	w := ecs.NewWorld()
	e := w.CreateEntity()
	add(t, w, e, position{}, health{}, temporary{})

	s := newTestSerializer(t)
	res, err := s.CreateSnapshot(w, SnapshotOptions{ExcludeComponentTypes: []string{"temporary"}})
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, c := range res.Snapshot.Entities[0].Components {
		types = append(types, c.Type)
	}
	if !slices.Equal(types, []string{"health", "position"}) {
		t.Errorf("Expected [health position], got %v", types)
	}
}

func TestFilterIncludeWinsOverExclude(t *testing.T) {
	w := sampleWorld(t)
	s := newTestSerializer(t)
	res, err := s.CreateSnapshot(w, SnapshotOptions{
		IncludeComponentTypes: []string{"temporary"},
		ExcludeComponentTypes: []string{"temporary"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot.Stats.ComponentCount != 1 || res.Snapshot.ComponentTypes[0] != "temporary" {
		t.Errorf("include list did not win: %+v", res.Snapshot.Stats)
	}
}

func TestFilterIncludeEntitiesAndPredicate(t *testing.T) {
	w := sampleWorld(t)
	s := newTestSerializer(t)
	res, err := s.CreateSnapshot(w, SnapshotOptions{
		IncludeEntities: []ecs.EntityID{3, 1, 77, 1},
		EntityPredicate: func(w *ecs.World, id ecs.EntityID) bool {
			return w.HasComponent(id, "health")
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var ids []ecs.EntityID
	for _, e := range res.Snapshot.Entities {
		ids = append(ids, e.ID)
	}
	if !slices.Equal(ids, []ecs.EntityID{1, 3}) {
		t.Errorf("Expected [1 3], got %v", ids)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "77") {
		t.Errorf("Expected a warning about 77, got %v", res.Warnings)
	}
}

func TestRoundTripEquivalent(t *testing.T) {
	w := sampleWorld(t)
	s := newTestSerializer(t)
	orig, err := s.CreateSnapshot(w, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// occupy low ids so the merge has to renumber
	target := ecs.NewWorld()
	target.DestroyEntity(target.CreateEntity())
	target.DestroyEntity(target.CreateEntity())

	lr := s.LoadSnapshot(target, orig.Snapshot, LoadOptions{})
	if !lr.Success {
		t.Fatal(lr.Err)
	}
	if lr.EntitiesLoaded != 4 || lr.ComponentsLoaded != 5 {
		t.Errorf("loaded %d/%d", lr.EntitiesLoaded, lr.ComponentsLoaded)
	}
	again, err := s.CreateSnapshot(target, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !Equivalent(orig.Snapshot, again.Snapshot) {
		t.Error("round trip changed content")
	}
	if again.Snapshot.Entities[0].ID == orig.Snapshot.Entities[0].ID {
		t.Error("Expected remapped ids on merge")
	}

	newID := lr.IDMap[1]
	p, ok := ecs.Get[position](target, newID, "position")
	if !ok || p.X != 1 || p.Y != 2 {
		t.Errorf("Expected typed position {1 2}, got %+v (%v)", p, ok)
	}
}

type hitPoints float64

func (hitPoints) ComponentType() string { return "hit_points" }

type label string

func (label) ComponentType() string { return "label" }

type path []int

func (path) ComponentType() string { return "path" }

func TestRoundTripNonObjectPayloads(t *testing.T) {
	w := ecs.NewWorld()
	e := w.CreateEntity()
	add(t, w, e, hitPoints(5), label("boss"), path{1, 2, 3})

	s := NewSerializer(WithLogger(zaptest.NewLogger(t)))
	orig, err := s.CreateSnapshot(w, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}
	target := ecs.NewWorld()
	lr := s.LoadSnapshot(target, orig.Snapshot, LoadOptions{ClearExisting: true})
	if !lr.Success {
		t.Fatalf("load failed: %v", lr.Err)
	}
	if lr.ComponentsLoaded != 3 {
		t.Errorf("Expected 3 components, got %d", lr.ComponentsLoaded)
	}

	hp, ok := ecs.Get[ecs.Dynamic](target, e, "hit_points")
	if !ok || hp.Value != float64(5) || hp.Fields != nil {
		t.Errorf("Expected scalar hit_points 5, got %+v", hp)
	}
	lb, _ := ecs.Get[ecs.Dynamic](target, e, "label")
	if lb.Value != "boss" {
		t.Errorf("Expected label boss, got %+v", lb)
	}

	again, err := s.CreateSnapshot(target, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !Equivalent(orig.Snapshot, again.Snapshot) {
		t.Error("round trip changed non-object payloads")
	}
}

func TestEquivalentDetectsRegrouping(t *testing.T) {
	a := newSnapshot(FormatVersion, []EntityRecord{
		{ID: 1, Components: []ComponentRecord{{Type: "a", Data: []byte(`1`)}, {Type: "b", Data: []byte(`2`)}}},
		{ID: 2, Components: []ComponentRecord{}},
	})
	b := newSnapshot(FormatVersion, []EntityRecord{
		{ID: 7, Components: []ComponentRecord{{Type: "a", Data: []byte(`1`)}}},
		{ID: 8, Components: []ComponentRecord{{Type: "b", Data: []byte(`2`)}}},
	})
	if Equivalent(a, b) {
		t.Error("different groupings reported equivalent")
	}
}

func TestMergeVersusClear(t *testing.T) {
	s := newTestSerializer(t)
	src := ecs.NewWorld()
	add(t, src, src.CreateEntity(), position{X: 9})
	snap, err := s.CreateSnapshot(src, SnapshotOptions{})
	if err != nil {
		t.Fatal(err)
	}

	merge := ecs.NewWorld()
	add(t, merge, merge.CreateEntity(), health{Current: 1})
	if res := s.LoadSnapshot(merge, snap.Snapshot, LoadOptions{ClearExisting: false}); !res.Success {
		t.Fatal(res.Err)
	}
	if merge.EntityCount() != 2 {
		t.Errorf("merge: Expected 2 entities, got %d", merge.EntityCount())
	}

	cleared := ecs.NewWorld()
	add(t, cleared, cleared.CreateEntity(), health{Current: 1})
	cleared.AddSystem(ecs.NewSystem("keep", 0, nil))
	res := s.LoadSnapshot(cleared, snap.Snapshot, LoadOptions{ClearExisting: true})
	if !res.Success {
		t.Fatal(res.Err)
	}
	if cleared.EntityCount() != 1 {
		t.Errorf("clear: Expected 1 entity, got %d", cleared.EntityCount())
	}
	if res.IDMap[1] != 1 {
		t.Errorf("clear: Expected id 1 preserved, got %d", res.IDMap[1])
	}
	if len(cleared.Systems()) != 1 {
		t.Error("clear removed systems")
	}
}

func TestLoadVersionValidation(t *testing.T) {
	s := newTestSerializer(t)
	snap := newSnapshot("2.0.0", nil)
	w := ecs.NewWorld()
	res := s.LoadSnapshot(w, snap, LoadOptions{ValidateVersion: true})
	var ve *VersionError
	if res.Success || !errors.As(res.Err, &ve) {
		t.Fatalf("Expected VersionError, got %+v", res)
	}
	res = s.LoadSnapshot(w, snap, LoadOptions{})
	if !res.Success || res.EntitiesLoaded != 0 {
		t.Errorf("empty snapshot without validation should load, got %+v", res)
	}
}

func TestLoadDynamicAndStrict(t *testing.T) {
	s := NewSerializer()
	snap := newSnapshot(FormatVersion, []EntityRecord{
		{ID: 1, Components: []ComponentRecord{{Type: "score", Data: []byte(`{"points":4}`)}}},
	})

	w := ecs.NewWorld()
	res := s.LoadSnapshot(w, snap, LoadOptions{})
	if !res.Success || len(res.Warnings) != 1 {
		t.Fatalf("Expected success with one warning, got %+v", res)
	}
	d, ok := ecs.Get[ecs.Dynamic](w, res.IDMap[1], "score")
	if !ok || d.Fields["points"] != float64(4) {
		t.Errorf("Expected dynamic score, got %+v", d)
	}

	strict := ecs.NewWorld()
	res = s.LoadSnapshot(strict, snap, LoadOptions{Strict: true})
	if res.Success || strict.EntityCount() != 0 {
		t.Errorf("strict load should fail without touching the world, got %+v", res)
	}
}

func TestLoadSchemaValidation(t *testing.T) {
	s := NewSerializer()
	s.Registry().SetSchema(Schema{
		Type:     "score",
		Required: []string{"points"},
		Fields:   map[string]string{"points": "number"},
	})
	bad := newSnapshot(FormatVersion, []EntityRecord{
		{ID: 1, Components: []ComponentRecord{{Type: "score", Data: []byte(`{"points":"many"}`)}}},
	})
	missing := newSnapshot(FormatVersion, []EntityRecord{
		{ID: 1, Components: []ComponentRecord{{Type: "score", Data: []byte(`{}`)}}},
	})
	w := ecs.NewWorld()
	existing := w.CreateEntity()
	for _, snap := range []*Snapshot{bad, missing} {
		res := s.LoadSnapshot(w, snap, LoadOptions{ClearExisting: true})
		if res.Success {
			t.Errorf("Expected schema failure for %s", snap.Entities[0].Components[0].Data)
		}
	}
	if !w.IsAlive(existing) {
		t.Error("failed load cleared the world")
	}
}
