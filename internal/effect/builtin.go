package effect

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/louisbranch/fabula/internal/state"
)

func applySet(draft *state.Game, eff Effect) error {
	segs := eff.target()
	if segs == nil {
		return fmt.Errorf("%w: set requires a variable or path", ErrInvalidEffect)
	}
	setPathValue(draft.Vars, segs, eff.Value)
	return nil
}

// applyArithmetic builds the handler for one arithmetic tag. A
// non-numeric current value coerces to zero instead of failing; the one
// hard precondition is a zero divisor.
func applyArithmetic(op string) Handler {
	return func(draft *state.Game, eff Effect) error {
		segs := eff.target()
		if segs == nil {
			return fmt.Errorf("%w: %s requires a variable or path", ErrInvalidEffect, op)
		}
		current, _ := lookup(draft.Vars, segs)
		base, ok := toNumber(current)
		if !ok {
			base = 0
		}
		operand := 1.0
		if eff.Value != nil {
			operand, ok = toNumber(eff.Value)
			if !ok {
				return fmt.Errorf("%w: %s operand %T is not numeric", ErrInvalidEffect, op, eff.Value)
			}
		}

		var result float64
		switch op {
		case TypeIncrement:
			result = base + operand
		case TypeDecrement:
			result = base - operand
		case TypeMultiply:
			result = base * operand
		case TypeDivide:
			if operand == 0 {
				return fmt.Errorf("%w: divide by zero at %s", ErrInvalidEffect, strings.Join(segs, "."))
			}
			result = base / operand
		default:
			return fmt.Errorf("%w: unknown arithmetic op %s", ErrInvalidEffect, op)
		}
		setPathValue(draft.Vars, segs, normalizeNumber(result))
		return nil
	}
}

func applyToggle(draft *state.Game, eff Effect) error {
	segs := eff.target()
	if segs == nil {
		return fmt.Errorf("%w: toggle requires a variable or path", ErrInvalidEffect)
	}
	current, _ := lookup(draft.Vars, segs)
	setPathValue(draft.Vars, segs, !truthy(current))
	return nil
}

func applyPush(draft *state.Game, eff Effect) error {
	segs := eff.target()
	if segs == nil {
		return fmt.Errorf("%w: push requires a variable or path", ErrInvalidEffect)
	}
	current, _ := lookup(draft.Vars, segs)
	arr, ok := current.([]any)
	if !ok {
		arr = []any{}
	}
	setPathValue(draft.Vars, segs, append(arr, eff.Value))
	return nil
}

func applyRemove(draft *state.Game, eff Effect) error {
	segs := eff.target()
	if segs == nil {
		return fmt.Errorf("%w: remove requires a variable or path", ErrInvalidEffect)
	}
	current, _ := lookup(draft.Vars, segs)
	arr, ok := current.([]any)
	if !ok {
		return nil
	}

	index := -1
	if eff.ByIndex {
		if eff.Index >= 0 && eff.Index < len(arr) {
			index = eff.Index
		}
	} else {
		equals := eff.Equals
		if equals == nil {
			equals = looseEqual
		}
		for i, elem := range arr {
			if equals(elem, eff.Value) {
				index = i
				break
			}
		}
	}
	if index < 0 {
		return nil
	}
	setPathValue(draft.Vars, segs, append(arr[:index:index], arr[index+1:]...))
	return nil
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// lookup walks the dotted path through the Vars tree.
func lookup(vars map[string]any, segs []string) (any, bool) {
	var node any = vars
	for _, seg := range segs {
		switch container := node.(type) {
		case map[string]any:
			child, ok := container[seg]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			idx, ok := asIndex(seg)
			if !ok || idx >= len(container) {
				return nil, false
			}
			node = container[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// setPathValue writes into the Vars tree, creating intermediate
// containers as needed: a numeric next segment creates an indexed
// container, anything else a keyed map.
func setPathValue(vars map[string]any, segs []string, v any) {
	key := segs[0]
	if len(segs) == 1 {
		vars[key] = v
		return
	}
	vars[key] = assign(childContainer(vars[key], segs[1]), segs[1:], v)
}

func assign(node any, segs []string, v any) any {
	seg := segs[0]
	if idx, ok := asIndex(seg); ok {
		arr, _ := node.([]any)
		for len(arr) <= idx {
			arr = append(arr, nil)
		}
		if len(segs) == 1 {
			arr[idx] = v
			return arr
		}
		arr[idx] = assign(childContainer(arr[idx], segs[1]), segs[1:], v)
		return arr
	}

	m, ok := node.(map[string]any)
	if !ok || m == nil {
		m = map[string]any{}
	}
	if len(segs) == 1 {
		m[seg] = v
		return m
	}
	m[seg] = assign(childContainer(m[seg], segs[1]), segs[1:], v)
	return m
}

// childContainer keeps an existing container of the right shape for the
// next segment, or supplies a fresh one.
func childContainer(current any, nextSeg string) any {
	if _, numeric := asIndex(nextSeg); numeric {
		if arr, ok := current.([]any); ok {
			return arr
		}
		return []any{}
	}
	if m, ok := current.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asIndex(seg string) (int, bool) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// normalizeNumber stores whole results as int so the value tree stays
// integer-typed for counters.
func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && !math.IsInf(value, 0) {
		return int(value)
	}
	return value
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		if n, ok := toNumber(value); ok {
			return n != 0
		}
		return true
	}
}

// looseEqual compares numbers numerically and everything else
// structurally, so values survive a serialization round trip without
// changing equality.
func looseEqual(a, b any) bool {
	na, aok := toNumber(a)
	nb, bok := toNumber(b)
	if aok && bok {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}
