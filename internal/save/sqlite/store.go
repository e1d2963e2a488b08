// Package sqlite implements save persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/fabula/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/fabula/internal/save"
	"github.com/louisbranch/fabula/internal/save/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements save.Store over a single SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a save store at path and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Put inserts or replaces the record for its slot.
func (s *Store) Put(ctx context.Context, rec save.Record) error {
	if rec.Slot == "" {
		return save.ErrSlotRequired
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO saves (slot, scene_key, state_json, saved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET
    scene_key = excluded.scene_key,
    state_json = excluded.state_json,
    saved_at = excluded.saved_at
`, rec.Slot, rec.SceneKey, rec.StateJSON, toMillis(rec.SavedAt))
	if err != nil {
		return fmt.Errorf("put save %q: %w", rec.Slot, err)
	}
	return nil
}

// Get returns the record for slot, or save.ErrNotFound.
func (s *Store) Get(ctx context.Context, slot string) (save.Record, error) {
	if slot == "" {
		return save.Record{}, save.ErrSlotRequired
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT slot, scene_key, state_json, saved_at
FROM saves
WHERE slot = ?
`, slot)

	var rec save.Record
	var savedAt int64
	if err := row.Scan(&rec.Slot, &rec.SceneKey, &rec.StateJSON, &savedAt); err != nil {
		if err == sql.ErrNoRows {
			return save.Record{}, save.ErrNotFound
		}
		return save.Record{}, fmt.Errorf("get save %q: %w", slot, err)
	}
	rec.SavedAt = fromMillis(savedAt)
	return rec, nil
}

// List returns all records ordered by most recent first.
func (s *Store) List(ctx context.Context) ([]save.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT slot, scene_key, state_json, saved_at
FROM saves
ORDER BY saved_at DESC, slot ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer rows.Close()

	var records []save.Record
	for rows.Next() {
		var rec save.Record
		var savedAt int64
		if err := rows.Scan(&rec.Slot, &rec.SceneKey, &rec.StateJSON, &savedAt); err != nil {
			return nil, fmt.Errorf("scan save row: %w", err)
		}
		rec.SavedAt = fromMillis(savedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate save rows: %w", err)
	}
	return records, nil
}

// Delete removes the record for slot. Missing slots are a no-op.
func (s *Store) Delete(ctx context.Context, slot string) error {
	if slot == "" {
		return save.ErrSlotRequired
	}
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM saves WHERE slot = ?", slot); err != nil {
		return fmt.Errorf("delete save %q: %w", slot, err)
	}
	return nil
}
