package system

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/serial"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
	fail error
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = data
	m.puts++
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, serial.ErrNotFound
	}
	return d, nil
}

func counter(kind string) ecs.Dynamic {
	return ecs.Dynamic{Kind: kind, Fields: map[string]any{"n": 1}}
}

func TestCleanupSystemFlushesQueue(t *testing.T) {
	w := ecs.NewWorld()
	a, b := w.CreateEntity(), w.CreateEntity()
	cleanup := NewCleanupSystem()
	w.AddSystem(cleanup)
	w.AddSystem(ecs.NewSystem("doomer", 0, func(w *ecs.World, _ time.Duration) error {
		w.MarkForDestruction(a)
		// still alive until cleanup runs
		if !w.IsAlive(a) {
			return errors.New("destroyed too early")
		}
		return nil
	}))
	if err := w.Update(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if w.IsAlive(a) || !w.IsAlive(b) {
		t.Errorf("alive a=%v b=%v", w.IsAlive(a), w.IsAlive(b))
	}
	if cleanup.Flushed() != 1 {
		t.Errorf("flushed = %d", cleanup.Flushed())
	}
}

func newAutosave(t *testing.T, store serial.Store, interval int) *AutosaveSystem {
	return NewAutosaveSystem(AutosaveConfig{
		Serializer:    serial.NewSerializer(),
		Store:         store,
		Key:           "world",
		Format:        &serial.BinaryFormat{},
		IntervalTicks: interval,
	}, zaptest.NewLogger(t))
}

func TestAutosaveOnlyWhenChanged(t *testing.T) {
	store := newMemStore()
	w := ecs.NewWorld()
	e := w.CreateEntity()
	w.AddComponent(e, counter("c"))

	auto := newAutosave(t, store, 3)
	w.AddSystem(auto)

	for i := 0; i < 3; i++ {
		w.Update(time.Millisecond)
	}
	if store.puts != 1 {
		t.Fatalf("Expected 1 save after first interval, got %d", store.puts)
	}

	// quiet interval: nothing dirty, no save
	for i := 0; i < 3; i++ {
		w.Update(time.Millisecond)
	}
	if store.puts != 1 {
		t.Errorf("Expected no save on a quiet interval, got %d", store.puts)
	}

	// a change early in the interval is still saved at its end
	w.MarkComponentDirty(e, "c")
	for i := 0; i < 3; i++ {
		w.Update(time.Millisecond)
	}
	if store.puts != 2 {
		t.Errorf("Expected 2 saves, got %d", store.puts)
	}

	// destroying an entity counts as a change
	w.DestroyEntity(e)
	for i := 0; i < 3; i++ {
		w.Update(time.Millisecond)
	}
	if store.puts != 3 || auto.Saves() != 3 {
		t.Errorf("Expected 3 saves, got %d", store.puts)
	}

	loaded := ecs.NewWorld()
	res := serial.NewSerializer().LoadFrom(context.Background(), loaded, store, "world", &serial.BinaryFormat{}, serial.LoadOptions{})
	if !res.Success || loaded.EntityCount() != 0 {
		t.Errorf("load: %+v", res)
	}
}

func TestAutosaveRetriesAfterFailure(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk full")
	w := ecs.NewWorld()
	w.AddComponent(w.CreateEntity(), counter("c"))
	auto := newAutosave(t, store, 1)
	w.AddSystem(auto)

	if err := w.Update(time.Millisecond); err != nil {
		t.Fatalf("autosave failure must not fail the tick: %v", err)
	}
	store.fail = nil
	w.Update(time.Millisecond)
	if store.puts != 1 {
		t.Errorf("Expected retry to save, got %d", store.puts)
	}
}

func TestAutosaveSaveNow(t *testing.T) {
	store := newMemStore()
	w := ecs.NewWorld()
	auto := newAutosave(t, store, 100)
	w.AddSystem(auto)
	if res := auto.SaveNow(context.Background(), w); !res.Success {
		t.Fatal(res.Err)
	}
	if _, err := store.Get(context.Background(), "world"); err != nil {
		t.Error(err)
	}
}

func TestAutosaveSavesComponentRemoval(t *testing.T) {
	store := newMemStore()
	w := ecs.NewWorld()
	e := w.CreateEntity()
	w.AddComponent(e, counter("a"))
	w.AddComponent(e, counter("b"))
	w.AddSystem(newAutosave(t, store, 1))

	w.Update(time.Millisecond)
	if store.puts != 1 {
		t.Fatalf("Expected initial save, got %d", store.puts)
	}

	// removal clears the dirty mark, so only the structure change is visible
	w.RemoveComponent(e, "b")
	w.Update(time.Millisecond)
	if store.puts != 2 {
		t.Fatalf("Expected removal to be saved, got %d puts", store.puts)
	}

	loaded := ecs.NewWorld()
	res := serial.NewSerializer().LoadFrom(context.Background(), loaded, store, "world", &serial.BinaryFormat{}, serial.LoadOptions{ClearExisting: true})
	if !res.Success {
		t.Fatal(res.Err)
	}
	if !loaded.HasComponent(e, "a") || loaded.HasComponent(e, "b") {
		t.Errorf("stored snapshot has a=%v b=%v", loaded.HasComponent(e, "a"), loaded.HasComponent(e, "b"))
	}
}
