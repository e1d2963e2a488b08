// Package scene defines the narrative content model: scenes, choices,
// and the lifecycle hooks scenes expose to the runtime.
package scene

import (
	"github.com/louisbranch/fabula/internal/effect"
	"github.com/louisbranch/fabula/internal/state"
)

// Runtime is the engine handle passed to lifecycle hooks. Hooks mutate
// state exclusively through ApplyEffects so the copy-on-write boundary
// holds.
type Runtime interface {
	ApplyEffects(effects ...effect.Effect) error
	Emit(event string, payload any)
}

// Hook runs at a scene lifecycle boundary. Hook failures (panics) are
// deliberately not recovered by the transition controller; they
// propagate to the caller.
type Hook func(g *state.Game, rt Runtime)

// Scene is one immutable narrative unit. Key is injected by the content
// resolver when the scene materializes; authors never set it.
type Scene struct {
	Key     string
	Title   string
	Content string
	// ContentFunc, when set, takes precedence over Content and renders
	// the scene text from the current state.
	ContentFunc func(g *state.Game) string
	Choices     []Choice
	OnEnter     Hook
	OnExit      Hook
	Meta        map[string]any
}

// ContentFor renders the scene text for a state.
func (s *Scene) ContentFor(g *state.Game) string {
	if s.ContentFunc != nil {
		return s.ContentFunc(g)
	}
	return s.Content
}

// Choice is one selectable option within a scene.
type Choice struct {
	Label     string
	LabelFunc func(g *state.Game) string
	// Target names the scene the choice transitions to. Optional: a
	// choice may only apply effects.
	Target     string
	TargetFunc func(g *state.Game) string
	// Guard hides the choice when it returns false. Absent means always
	// available.
	Guard    func(g *state.Game) bool
	Effects  []effect.Effect
	Response string
	Meta     map[string]any
}

// LabelFor renders the choice label for a state.
func (c Choice) LabelFor(g *state.Game) string {
	if c.LabelFunc != nil {
		return c.LabelFunc(g)
	}
	return c.Label
}

// TargetFor resolves the transition target for a state. Empty means the
// choice does not transition.
func (c Choice) TargetFor(g *state.Game) string {
	if c.TargetFunc != nil {
		return c.TargetFunc(g)
	}
	return c.Target
}

// Available reports whether the choice passes its guard.
func (c Choice) Available(g *state.Game) bool {
	return c.Guard == nil || c.Guard(g)
}
