package persist

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/whalecs/ecsrt/internal/config"
	"github.com/whalecs/ecsrt/internal/core/ecs"
	"github.com/whalecs/ecsrt/internal/serial"
	"go.uber.org/zap/zaptest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("ECSRT_TEST_DSN")
	if dsn == "" {
		t.Skip("ECSRT_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestSnapshotRepoRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()
	key := "test/" + uuid.NewString()
	t.Cleanup(func() { repo.Delete(ctx, key) })

	src := ecs.NewWorld()
	for i := 0; i < 3; i++ {
		e := src.CreateEntity()
		src.AddComponent(e, ecs.Dynamic{Kind: "tag", Fields: map[string]any{"n": i}})
	}

	s := serial.NewSerializer()
	f := &serial.BinaryFormat{}
	if res := s.SaveTo(ctx, src, repo, key, f, serial.SnapshotOptions{}); !res.Success {
		t.Fatal(res.Err)
	}
	// overwrite keeps one row and adds a log entry
	if res := s.SaveTo(ctx, src, repo, key, f, serial.SnapshotOptions{}); !res.Success {
		t.Fatal(res.Err)
	}

	dst := ecs.NewWorld()
	if res := s.LoadFrom(ctx, dst, repo, key, f, serial.LoadOptions{ClearExisting: true}); !res.Success {
		t.Fatal(res.Err)
	}
	if dst.EntityCount() != 3 {
		t.Errorf("Expected 3 entities, got %d", dst.EntityCount())
	}

	hist, err := repo.History(ctx, key, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].SnapshotID != hist[1].SnapshotID {
		t.Errorf("history = %+v", hist)
	}

	ok, err := repo.Delete(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	if _, err := repo.Get(ctx, key); !errors.Is(err, serial.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotRepoList(t *testing.T) {
	db := openTestDB(t)
	repo := NewSnapshotRepo(db)
	ctx := context.Background()
	prefix := "list/" + uuid.NewString()
	keys := []string{prefix + "/a", prefix + "/b"}
	for _, k := range keys {
		if err := repo.Put(ctx, k, []byte("x")); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { repo.Delete(ctx, k) })
	}
	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := 0
	for _, r := range rows {
		if r.Key == keys[0] || r.Key == keys[1] {
			found++
			if r.Size != 1 || r.ID == uuid.Nil {
				t.Errorf("row %+v", r)
			}
		}
	}
	if found != 2 {
		t.Errorf("found %d of our rows", found)
	}
}
