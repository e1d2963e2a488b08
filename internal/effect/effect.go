// Package effect interprets tagged effect values against a game-state
// draft, committing all-or-nothing.
package effect

import "github.com/louisbranch/fabula/internal/state"

// Built-in effect tags.
const (
	TypeSet       = "set"
	TypeIncrement = "increment"
	TypeDecrement = "decrement"
	TypeMultiply  = "multiply"
	TypeDivide    = "divide"
	TypeToggle    = "toggle"
	TypePush      = "push"
	TypeRemove    = "remove"

	TypeBatch       = "batch"
	TypeSequence    = "sequence"
	TypeConditional = "conditional"
	TypeRepeat      = "repeat"
)

// Effect is one tagged state-mutation instruction. Type selects the
// handler; the remaining fields are read by whichever handler matches.
// Registered handlers receive their open fields through Args.
type Effect struct {
	Type string

	// Target location for the built-ins: a top-level variable name, or a
	// dotted path into the Vars tree. Path wins when both are set.
	Variable string
	Path     string

	// Value is the operand: assigned by set, the delta for arithmetic,
	// the element for push/remove.
	Value any

	// Remove addressing: by index, or by the first element Equals
	// considers equal to Value. Equals defaults to structural equality.
	ByIndex bool
	Index   int
	Equals  func(a, b any) bool

	// Composition.
	Effects   []Effect                   // batch, sequence
	Condition func(g *state.Game) bool   // conditional, evaluated on the live draft
	Then      []Effect                   // conditional
	Else      []Effect                   // conditional
	Sub       *Effect                    // repeat
	Count     any                        // repeat: int or func(*state.Game) int

	// Args carries handler-defined fields for externally registered tags.
	Args map[string]any
}

// target returns the dotted path segments an effect addresses.
func (e Effect) target() []string {
	if e.Path != "" {
		return splitPath(e.Path)
	}
	if e.Variable != "" {
		return []string{e.Variable}
	}
	return nil
}
