package effect

import "github.com/louisbranch/fabula/internal/state"

// Lookup reads a value out of the Vars tree by dotted path. Registered
// handlers and guard code use it to observe state the same way the
// built-in handlers address it.
func Lookup(g *state.Game, path string) (any, bool) {
	if g == nil || path == "" {
		return nil, false
	}
	return lookup(g.Vars, splitPath(path))
}

// Truthy reports whether a value counts as true under the toggle
// handler's convention: false, nil, zero and "" are falsy.
func Truthy(value any) bool {
	return truthy(value)
}

// LooseEqual is the default equality used by remove: numeric values
// compare by magnitude across int and float, everything else
// structurally.
func LooseEqual(a, b any) bool {
	return looseEqual(a, b)
}

// Number coerces a numeric value to float64, reporting failure for
// non-numeric input.
func Number(value any) (float64, bool) {
	return toNumber(value)
}
