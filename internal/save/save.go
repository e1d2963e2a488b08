// Package save captures and restores game sessions through named slots.
package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/fabula/internal/game"
	"github.com/louisbranch/fabula/internal/state"
)

var (
	// ErrSlotRequired is returned when a slot name is empty.
	ErrSlotRequired = errors.New("save: slot name is required")
	// ErrNotFound is returned when no record exists for a slot.
	ErrNotFound = errors.New("save: record not found")
)

// Record is one saved session: the scene the player was at and the
// serialized game state at that moment.
type Record struct {
	Slot      string
	SceneKey  string
	StateJSON []byte
	SavedAt   time.Time
}

// Store persists save records keyed by slot.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, slot string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, slot string) error
}

// Capture snapshots the engine's current session into store under slot.
func Capture(ctx context.Context, store Store, eng *game.Engine, slot string) error {
	if slot == "" {
		return ErrSlotRequired
	}
	blob, err := eng.Store.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}
	rec := Record{
		Slot:      slot,
		SceneKey:  eng.Director.CurrentKey(),
		StateJSON: blob,
		SavedAt:   time.Now().UTC(),
	}
	return store.Put(ctx, rec)
}

// Restore loads the record under slot and resets the engine to it.
func Restore(ctx context.Context, store Store, eng *game.Engine, slot string) error {
	if slot == "" {
		return ErrSlotRequired
	}
	rec, err := store.Get(ctx, slot)
	if err != nil {
		return err
	}
	var g state.Game
	if err := g.UnmarshalJSON(rec.StateJSON); err != nil {
		return fmt.Errorf("decode saved state: %w", err)
	}
	return eng.Reset(ctx, &g, rec.SceneKey)
}
