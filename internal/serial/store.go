package serial

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	"go.uber.org/zap"
)

// Store persists encoded snapshots under string keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get fails with an error wrapping ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) ([]byte, error)
}

// FileStore keeps each key as a file under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, filepath.Clean("/" + key))
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	return writeFileAtomic(s.path(key), data)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	return readSnapshotFile(s.path(key))
}

// writeFileAtomic writes through a temp file and rename so readers never see
// a partial snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func readSnapshotFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("snapshot file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return data, nil
}

type SaveResult struct {
	Success  bool
	Bytes    int
	Duration time.Duration
	Err      error
}

// Encode snapshots w through f.
func (s *Serializer) Encode(w *ecs.World, f Format, opts SnapshotOptions) ([]byte, error) {
	res, err := s.CreateSnapshot(w, opts)
	if err != nil {
		return nil, err
	}
	return f.Serialize(res.Snapshot)
}

// Save writes a snapshot of w to path.
func (s *Serializer) Save(w *ecs.World, path string, f Format, opts SnapshotOptions) SaveResult {
	start := time.Now()
	data, err := s.Encode(w, f, opts)
	if err == nil {
		err = writeFileAtomic(path, data)
	}
	return s.saveResult(start, len(data), err, zap.String("path", path))
}

// SaveTo writes a snapshot of w to store under key.
func (s *Serializer) SaveTo(ctx context.Context, w *ecs.World, store Store, key string, f Format, opts SnapshotOptions) SaveResult {
	start := time.Now()
	data, err := s.Encode(w, f, opts)
	if err == nil {
		err = store.Put(ctx, key, data)
	}
	return s.saveResult(start, len(data), err, zap.String("key", key))
}

func (s *Serializer) saveResult(start time.Time, n int, err error, where zap.Field) SaveResult {
	res := SaveResult{Duration: time.Since(start), Err: err}
	if err != nil {
		s.log.Warn("snapshot save failed", where, zap.Error(err))
		return res
	}
	res.Success = true
	res.Bytes = n
	s.log.Debug("snapshot saved", where, zap.Int("bytes", n), zap.Duration("took", res.Duration))
	return res
}

// Load reads a snapshot from path into w. A missing file yields a result
// whose error wraps ErrNotFound.
func (s *Serializer) Load(w *ecs.World, path string, f Format, opts LoadOptions) LoadResult {
	start := time.Now()
	data, err := readSnapshotFile(path)
	return s.decodeAndLoad(start, w, data, err, f, opts)
}

// LoadFrom reads the snapshot stored under key into w.
func (s *Serializer) LoadFrom(ctx context.Context, w *ecs.World, store Store, key string, f Format, opts LoadOptions) LoadResult {
	start := time.Now()
	data, err := store.Get(ctx, key)
	return s.decodeAndLoad(start, w, data, err, f, opts)
}

func (s *Serializer) decodeAndLoad(start time.Time, w *ecs.World, data []byte, err error, f Format, opts LoadOptions) LoadResult {
	if err != nil {
		return LoadResult{Err: err, Duration: time.Since(start)}
	}
	snap, err := f.Deserialize(data)
	if err != nil {
		return LoadResult{Err: err, Duration: time.Since(start)}
	}
	res := s.LoadSnapshot(w, snap, opts)
	res.Duration = time.Since(start)
	return res
}
