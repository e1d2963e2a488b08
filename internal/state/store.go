package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrMutatorRequired indicates an Update call without a mutator.
var ErrMutatorRequired = errors.New("state mutator is required")

// Store holds the current game state and funnels every structural change
// through one lock, making the single-writer rule structural instead of a
// caller contract. Snapshots handed out by State are never mutated in
// place; Update clones, mutates the clone, and swaps.
type Store struct {
	mu      sync.Mutex
	current *Game
}

// NewStore creates a store seeded from the given partial state.
func NewStore(initial Game) *Store {
	return &Store{current: New(initial)}
}

// State returns the current snapshot. The value is shared and read-only
// by convention; mutations go through Update or Replace.
func (s *Store) State() *Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update opens a draft of the current state, runs the mutator against
// it, and commits the draft as the new snapshot. A mutator error
// discards the draft and leaves the held state untouched.
func (s *Store) Update(mutate func(draft *Game) error) (*Game, error) {
	if mutate == nil {
		return nil, ErrMutatorRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.current.Clone()
	if err := mutate(draft); err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}
	s.current = draft
	return draft, nil
}

// Replace swaps in a wholesale new state, bypassing drafting. Used by
// deserialization, resets, and effect-engine commits that already built
// a fresh value.
func (s *Store) Replace(g *Game) {
	if g == nil {
		g = New(Game{})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = g
}

// Snapshot serializes the current state.
func (s *Store) Snapshot() ([]byte, error) {
	return s.State().MarshalJSON()
}

// Restore replaces the current state from a serialized snapshot.
func (s *Store) Restore(blob []byte) error {
	var g Game
	if err := g.UnmarshalJSON(blob); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	s.Replace(&g)
	return nil
}
