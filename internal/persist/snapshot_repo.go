package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/whalecs/ecsrt/internal/serial"
)

// SnapshotRow describes a stored snapshot without its payload.
type SnapshotRow struct {
	ID        uuid.UUID
	Key       string
	Size      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotLogEntry is one save recorded in snapshot_log.
type SnapshotLogEntry struct {
	Seq        int64
	SnapshotID uuid.UUID
	Key        string
	Size       int
	SavedAt    time.Time
}

// SnapshotRepo stores encoded snapshots in postgres, one row per key.
// It satisfies serial.Store.
type SnapshotRepo struct {
	db *DB
}

var _ serial.Store = (*SnapshotRepo)(nil)

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Put upserts the snapshot for key and appends a snapshot_log entry in the
// same transaction. A key keeps its row id across overwrites.
func (r *SnapshotRepo) Put(ctx context.Context, key string, data []byte) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO world_snapshots (id, key, data, size_bytes)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE
		 SET data = EXCLUDED.data, size_bytes = EXCLUDED.size_bytes, updated_at = now()
		 RETURNING id`,
		uuid.New(), key, data, len(data),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("snapshot upsert %s: %w", key, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshot_log (snapshot_id, key, size_bytes) VALUES ($1, $2, $3)`,
		id, key, len(data),
	); err != nil {
		return fmt.Errorf("snapshot log %s: %w", key, err)
	}

	return tx.Commit(ctx)
}

func (r *SnapshotRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM world_snapshots WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s: %w", key, serial.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot get %s: %w", key, err)
	}
	return data, nil
}

// List returns every stored snapshot ordered by key.
func (r *SnapshotRepo) List(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, key, size_bytes, created_at, updated_at
		 FROM world_snapshots ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.ID, &s.Key, &s.Size, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// History returns the save log for key, newest first.
func (r *SnapshotRepo) History(ctx context.Context, key string, limit int) ([]SnapshotLogEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT seq, snapshot_id, key, size_bytes, saved_at
		 FROM snapshot_log WHERE key = $1 ORDER BY seq DESC LIMIT $2`,
		key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotLogEntry
	for rows.Next() {
		var e SnapshotLogEntry
		if err := rows.Scan(&e.Seq, &e.SnapshotID, &e.Key, &e.Size, &e.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the snapshot and its log. It reports whether a row existed.
func (r *SnapshotRepo) Delete(ctx context.Context, key string) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM world_snapshots WHERE key = $1`, key)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM snapshot_log WHERE key = $1`, key); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
