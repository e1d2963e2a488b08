// Package state owns the single game-state value and the store that
// guards every mutation of it.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Game is the single source of truth for a running story.
//
// Vars holds the freeform value tree the default effect handlers operate
// on: scalars, []any and map[string]any, arbitrarily nested. Ext is an
// open region owned by collaborators (plugins, save subsystem); the core
// clones and round-trips it but never interprets it.
type Game struct {
	VisitedScenes map[string]struct{}
	Vars          map[string]any
	Ext           map[string]any
}

// New creates a game state from a caller-supplied partial value merged
// over defaults. The required containers are always present afterwards,
// and the input is deep-copied so the caller keeps no aliases into the
// returned value.
func New(partial Game) *Game {
	g := &Game{
		VisitedScenes: make(map[string]struct{}, len(partial.VisitedScenes)),
		Vars:          map[string]any{},
		Ext:           map[string]any{},
	}
	for key := range partial.VisitedScenes {
		g.VisitedScenes[key] = struct{}{}
	}
	if partial.Vars != nil {
		g.Vars = cloneMap(partial.Vars)
	}
	if partial.Ext != nil {
		g.Ext = cloneMap(partial.Ext)
	}
	return g
}

// Clone returns a deep copy of the game state. The copy shares no
// containers with the original, so mutating one never leaks into the
// other. Drafts opened by the store and the effect engine are clones.
func (g *Game) Clone() *Game {
	if g == nil {
		return New(Game{})
	}
	clone := &Game{
		VisitedScenes: make(map[string]struct{}, len(g.VisitedScenes)),
		Vars:          cloneMap(g.Vars),
		Ext:           cloneMap(g.Ext),
	}
	for key := range g.VisitedScenes {
		clone.VisitedScenes[key] = struct{}{}
	}
	return clone
}

// Visited reports whether the scene key has been recorded.
func (g *Game) Visited(key string) bool {
	if g == nil {
		return false
	}
	_, ok := g.VisitedScenes[key]
	return ok
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = cloneValue(value)
	}
	return dst
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		dst := make([]any, len(v))
		for i, elem := range v {
			dst[i] = cloneValue(elem)
		}
		return dst
	default:
		return v
	}
}

// snapshot is the serialized shape of a game state. VisitedScenes is
// rendered as a sorted list so snapshots are byte-stable.
type snapshot struct {
	VisitedScenes []string       `json:"visited_scenes"`
	Vars          map[string]any `json:"vars"`
	Ext           map[string]any `json:"ext,omitempty"`
}

// MarshalJSON renders the visited-scene set as an ordered string list.
func (g *Game) MarshalJSON() ([]byte, error) {
	visited := make([]string, 0, len(g.VisitedScenes))
	for key := range g.VisitedScenes {
		visited = append(visited, key)
	}
	sort.Strings(visited)
	return json.Marshal(snapshot{
		VisitedScenes: visited,
		Vars:          g.Vars,
		Ext:           g.Ext,
	})
}

// UnmarshalJSON rehydrates the visited-scene list into a set and
// guarantees the required containers exist even when the payload omits
// them.
func (g *Game) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode game state: %w", err)
	}
	g.VisitedScenes = make(map[string]struct{}, len(snap.VisitedScenes))
	for _, key := range snap.VisitedScenes {
		g.VisitedScenes[key] = struct{}{}
	}
	g.Vars = snap.Vars
	if g.Vars == nil {
		g.Vars = map[string]any{}
	}
	g.Ext = snap.Ext
	if g.Ext == nil {
		g.Ext = map[string]any{}
	}
	normalizeNumbers(g.Vars)
	normalizeNumbers(g.Ext)
	return nil
}

// normalizeNumbers rewrites whole JSON floats back to ints in place so
// integer-valued vars survive a serialization round trip unchanged.
func normalizeNumbers(m map[string]any) {
	for key, value := range m {
		m[key] = normalizedValue(value)
	}
}

func normalizedValue(value any) any {
	switch v := value.(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
		return v
	case map[string]any:
		normalizeNumbers(v)
		return v
	case []any:
		for i, elem := range v {
			v[i] = normalizedValue(elem)
		}
		return v
	default:
		return v
	}
}
