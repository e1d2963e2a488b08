// Package script turns declarative story definitions, authored in Lua
// or YAML, into runtime scenes.
//
// Conditions and effects are written as plain tables so the same
// decoder serves both front-ends. A condition table holds either a
// comparison ({var, equals/not_equals/at_least/at_most}, bare var means
// truthy), a visited check ({visited = "key"}), or a combinator
// ({all_of = {...}} / {any_of = {...}}). An effect table holds a type
// tag plus the fields that tag reads; unknown namespaced tags pass
// their remaining fields through to the registered handler.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/louisbranch/fabula/internal/bus"
	"github.com/louisbranch/fabula/internal/effect"
	"github.com/louisbranch/fabula/internal/scene"
	"github.com/louisbranch/fabula/internal/state"
)

var (
	// ErrBadCondition is returned when a condition table has no
	// recognizable shape.
	ErrBadCondition = errors.New("script: invalid condition")
	// ErrBadEffect is returned when an effect table cannot be decoded.
	ErrBadEffect = errors.New("script: invalid effect")
	// ErrBadScene is returned when a scene definition cannot be decoded.
	ErrBadScene = errors.New("script: invalid scene")
)

// CompileCondition turns a condition table into a state predicate.
func CompileCondition(def map[string]any) (func(g *state.Game) bool, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: empty table", ErrBadCondition)
	}

	if raw, ok := def["all_of"]; ok {
		preds, err := compileConditionList(raw)
		if err != nil {
			return nil, err
		}
		return func(g *state.Game) bool {
			for _, pred := range preds {
				if !pred(g) {
					return false
				}
			}
			return true
		}, nil
	}
	if raw, ok := def["any_of"]; ok {
		preds, err := compileConditionList(raw)
		if err != nil {
			return nil, err
		}
		return func(g *state.Game) bool {
			for _, pred := range preds {
				if pred(g) {
					return true
				}
			}
			return false
		}, nil
	}
	if raw, ok := def["visited"]; ok {
		key, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: visited wants a scene key", ErrBadCondition)
		}
		return func(g *state.Game) bool { return g.Visited(key) }, nil
	}

	path, ok := def["var"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: no var, visited, all_of or any_of", ErrBadCondition)
	}

	if want, ok := def["equals"]; ok {
		return func(g *state.Game) bool {
			got, _ := effect.Lookup(g, path)
			return effect.LooseEqual(got, want)
		}, nil
	}
	if want, ok := def["not_equals"]; ok {
		return func(g *state.Game) bool {
			got, _ := effect.Lookup(g, path)
			return !effect.LooseEqual(got, want)
		}, nil
	}
	if raw, ok := def["at_least"]; ok {
		bound, ok := effect.Number(raw)
		if !ok {
			return nil, fmt.Errorf("%w: at_least wants a number", ErrBadCondition)
		}
		return numericCondition(path, func(v float64) bool { return v >= bound }), nil
	}
	if raw, ok := def["at_most"]; ok {
		bound, ok := effect.Number(raw)
		if !ok {
			return nil, fmt.Errorf("%w: at_most wants a number", ErrBadCondition)
		}
		return numericCondition(path, func(v float64) bool { return v <= bound }), nil
	}

	// Bare var is a truthiness check.
	return func(g *state.Game) bool {
		got, ok := effect.Lookup(g, path)
		return ok && effect.Truthy(got)
	}, nil
}

func numericCondition(path string, cmp func(float64) bool) func(g *state.Game) bool {
	return func(g *state.Game) bool {
		raw, ok := effect.Lookup(g, path)
		if !ok {
			return false
		}
		value, ok := effect.Number(raw)
		return ok && cmp(value)
	}
}

func compileConditionList(raw any) ([]func(g *state.Game) bool, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("%w: combinator wants a list of conditions", ErrBadCondition)
	}
	preds := make([]func(g *state.Game) bool, 0, len(items))
	for _, item := range items {
		table, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: combinator entries must be tables", ErrBadCondition)
		}
		pred, err := CompileCondition(table)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// DecodeEffect turns an effect table into a runtime effect.
func DecodeEffect(def map[string]any) (effect.Effect, error) {
	tag, _ := def["type"].(string)
	if tag == "" {
		return effect.Effect{}, fmt.Errorf("%w: missing type", ErrBadEffect)
	}

	switch tag {
	case effect.TypeSet, effect.TypeIncrement, effect.TypeDecrement,
		effect.TypeMultiply, effect.TypeDivide, effect.TypeToggle:
		eff := effect.Effect{Type: tag, Value: def["value"]}
		eff.Variable, eff.Path = targetOf(def)
		return eff, nil

	case effect.TypePush, effect.TypeRemove:
		eff := effect.Effect{Type: tag, Value: def["value"]}
		eff.Variable, eff.Path = targetOf(def)
		if raw, ok := def["index"]; ok {
			idx, ok := effect.Number(raw)
			if !ok {
				return effect.Effect{}, fmt.Errorf("%w: index wants a number", ErrBadEffect)
			}
			eff.ByIndex = true
			eff.Index = int(idx)
		}
		return eff, nil

	case effect.TypeBatch, effect.TypeSequence:
		effects, err := DecodeEffects(def["effects"])
		if err != nil {
			return effect.Effect{}, err
		}
		return effect.Effect{Type: tag, Effects: effects}, nil

	case effect.TypeConditional:
		// Lua reserves "then" and "else", so the branches are named
		// effects and otherwise.
		condTable, ok := def["when"].(map[string]any)
		if !ok {
			return effect.Effect{}, fmt.Errorf("%w: conditional wants a when table", ErrBadEffect)
		}
		cond, err := CompileCondition(condTable)
		if err != nil {
			return effect.Effect{}, err
		}
		then, err := DecodeEffects(def["effects"])
		if err != nil {
			return effect.Effect{}, err
		}
		eff := effect.Effect{Type: tag, Condition: cond, Then: then}
		if raw, ok := def["otherwise"]; ok {
			alt, err := DecodeEffects(raw)
			if err != nil {
				return effect.Effect{}, err
			}
			eff.Else = alt
		}
		return eff, nil

	case effect.TypeRepeat:
		subTable, ok := def["effect"].(map[string]any)
		if !ok {
			return effect.Effect{}, fmt.Errorf("%w: repeat wants an effect table", ErrBadEffect)
		}
		sub, err := DecodeEffect(subTable)
		if err != nil {
			return effect.Effect{}, err
		}
		count, err := decodeCount(def["count"])
		if err != nil {
			return effect.Effect{}, err
		}
		return effect.Effect{Type: tag, Sub: &sub, Count: count}, nil
	}

	// Namespaced tags belong to registered handlers: everything except
	// the tag itself travels as open args.
	if strings.Contains(tag, ":") {
		args := make(map[string]any, len(def))
		for key, value := range def {
			if key != "type" {
				args[key] = value
			}
		}
		eff := effect.Effect{Type: tag, Value: def["value"], Args: args}
		eff.Variable, eff.Path = targetOf(def)
		return eff, nil
	}

	return effect.Effect{}, fmt.Errorf("%w: unknown type %q", ErrBadEffect, tag)
}

// DecodeEffects decodes a list of effect tables.
func DecodeEffects(raw any) ([]effect.Effect, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: missing effects list", ErrBadEffect)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: effects must be a list", ErrBadEffect)
	}
	effects := make([]effect.Effect, 0, len(items))
	for _, item := range items {
		table, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: effects entries must be tables", ErrBadEffect)
		}
		eff, err := DecodeEffect(table)
		if err != nil {
			return nil, err
		}
		effects = append(effects, eff)
	}
	return effects, nil
}

// targetOf reads the addressed location. array is an alias for var that
// reads better on push and remove.
func targetOf(def map[string]any) (variable, path string) {
	if p, ok := def["path"].(string); ok {
		return "", p
	}
	if v, ok := def["var"].(string); ok {
		return v, ""
	}
	if v, ok := def["array"].(string); ok {
		return v, ""
	}
	return "", ""
}

func decodeCount(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("%w: repeat wants a count", ErrBadEffect)
	case map[string]any:
		path, ok := v["var"].(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: count table wants a var", ErrBadEffect)
		}
		return func(g *state.Game) int {
			value, ok := effect.Lookup(g, path)
			if !ok {
				return 0
			}
			n, ok := effect.Number(value)
			if !ok {
				return 0
			}
			return int(n)
		}, nil
	default:
		n, ok := effect.Number(v)
		if !ok {
			return nil, fmt.Errorf("%w: count wants a number or a var table", ErrBadEffect)
		}
		return int(n), nil
	}
}

// DecodeScene turns a scene definition table into a runtime scene.
//
// Recognized keys: title, content, choices, on_enter, on_exit, meta.
// Content containing template actions is rendered against the Vars
// tree on every view.
func DecodeScene(key string, def map[string]any) (*scene.Scene, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrBadScene)
	}
	s := &scene.Scene{Key: key}
	if title, ok := def["title"].(string); ok {
		s.Title = title
	}
	if content, ok := def["content"].(string); ok {
		s.Content = content
		if strings.Contains(content, "{{") {
			fn, err := compileContent(key, content)
			if err != nil {
				return nil, err
			}
			s.ContentFunc = fn
		}
	}
	if meta, ok := def["meta"].(map[string]any); ok {
		s.Meta = meta
	}

	if raw, ok := def["on_enter"]; ok {
		hook, err := decodeHook(raw)
		if err != nil {
			return nil, fmt.Errorf("scene %q on_enter: %w", key, err)
		}
		s.OnEnter = hook
	}
	if raw, ok := def["on_exit"]; ok {
		hook, err := decodeHook(raw)
		if err != nil {
			return nil, fmt.Errorf("scene %q on_exit: %w", key, err)
		}
		s.OnExit = hook
	}

	if raw, ok := def["choices"]; ok {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: choices must be a list", ErrBadScene)
		}
		for i, item := range items {
			table, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: choice %d must be a table", ErrBadScene, i)
			}
			choice, err := decodeChoice(table)
			if err != nil {
				return nil, fmt.Errorf("scene %q choice %d: %w", key, i, err)
			}
			s.Choices = append(s.Choices, choice)
		}
	}
	return s, nil
}

func decodeChoice(def map[string]any) (scene.Choice, error) {
	c := scene.Choice{}
	label, ok := def["label"].(string)
	if !ok || label == "" {
		return scene.Choice{}, fmt.Errorf("%w: choice wants a label", ErrBadScene)
	}
	c.Label = label
	if target, ok := def["target"].(string); ok {
		c.Target = target
	}
	if response, ok := def["response"].(string); ok {
		c.Response = response
	}
	if meta, ok := def["meta"].(map[string]any); ok {
		c.Meta = meta
	}
	if raw, ok := def["when"]; ok {
		table, ok := raw.(map[string]any)
		if !ok {
			return scene.Choice{}, fmt.Errorf("%w: when must be a table", ErrBadScene)
		}
		guard, err := CompileCondition(table)
		if err != nil {
			return scene.Choice{}, err
		}
		c.Guard = guard
	}
	if raw, ok := def["effects"]; ok {
		effects, err := DecodeEffects(raw)
		if err != nil {
			return scene.Choice{}, err
		}
		c.Effects = effects
	}
	return c, nil
}

// decodeHook compiles an effect list into a lifecycle hook that applies
// it through the runtime.
func decodeHook(raw any) (scene.Hook, error) {
	effects, err := DecodeEffects(raw)
	if err != nil {
		return nil, err
	}
	return func(_ *state.Game, rt scene.Runtime) {
		if err := rt.ApplyEffects(effects...); err != nil {
			rt.Emit(bus.EventHookError, err)
		}
	}, nil
}

func compileContent(key, content string) (func(g *state.Game) string, error) {
	tmpl, err := template.New(key).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: content template: %v", ErrBadScene, err)
	}
	return func(g *state.Game) string {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, g.Vars); err != nil {
			return content
		}
		return buf.String()
	}, nil
}
