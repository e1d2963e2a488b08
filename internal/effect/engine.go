package effect

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/louisbranch/fabula/internal/state"
)

var (
	// ErrInvalidEffect indicates a structurally invalid effect: a missing
	// required field, an unusable count, or a divide-by-zero.
	ErrInvalidEffect = errors.New("invalid effect")
	// ErrTagRequired indicates a handler registration without a tag.
	ErrTagRequired = errors.New("effect tag is required")
	// ErrHandlerRequired indicates a nil handler registration.
	ErrHandlerRequired = errors.New("effect handler is required")
	// ErrHandlerExists indicates a duplicate handler registration.
	ErrHandlerExists = errors.New("effect handler already registered")
	// ErrHandlerNotFound indicates an unregistration for an unknown tag.
	ErrHandlerNotFound = errors.New("effect handler is not registered")
)

// Handler mutates the draft according to one effect. Handler bodies are
// written as direct mutation; the engine guarantees they only ever see a
// draft, never a committed snapshot.
type Handler func(draft *state.Game, eff Effect) error

// Engine maps effect tags to handlers and applies effects copy-on-write.
type Engine struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	namespaces map[string][]string
	fallback   Handler
}

// NewEngine creates an engine with the built-in handlers registered.
func NewEngine() *Engine {
	e := &Engine{
		handlers:   make(map[string]Handler),
		namespaces: make(map[string][]string),
	}
	for tag, h := range map[string]Handler{
		TypeSet:       applySet,
		TypeIncrement: applyArithmetic(TypeIncrement),
		TypeDecrement: applyArithmetic(TypeDecrement),
		TypeMultiply:  applyArithmetic(TypeMultiply),
		TypeDivide:    applyArithmetic(TypeDivide),
		TypeToggle:    applyToggle,
		TypePush:      applyPush,
		TypeRemove:    applyRemove,
	} {
		e.handlers[tag] = h
	}
	e.handlers[TypeBatch] = e.applyList
	e.handlers[TypeSequence] = e.applyList
	e.handlers[TypeConditional] = e.applyConditional
	e.handlers[TypeRepeat] = e.applyRepeat
	return e
}

// QualifyTag returns the registry key for a namespaced tag.
func QualifyTag(namespace, tag string) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return tag
	}
	return namespace + ":" + tag
}

// RegisterHandler registers a handler for a tag.
func (e *Engine) RegisterHandler(tag string, h Handler) error {
	return e.RegisterHandlerNS("", tag, h)
}

// RegisterHandlerNS registers a handler under a namespace-qualified tag.
// Effects address it with the qualified form, "namespace:tag".
func (e *Engine) RegisterHandlerNS(namespace, tag string, h Handler) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ErrTagRequired
	}
	if h == nil {
		return ErrHandlerRequired
	}
	qualified := QualifyTag(namespace, tag)
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.handlers[qualified]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, qualified)
	}
	e.handlers[qualified] = h
	if ns := strings.TrimSpace(namespace); ns != "" {
		e.namespaces[ns] = append(e.namespaces[ns], qualified)
	}
	return nil
}

// UnregisterHandler removes the handler for a qualified tag.
func (e *Engine) UnregisterHandler(tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.handlers[tag]; !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, tag)
	}
	delete(e.handlers, tag)
	return nil
}

// UnregisterNamespace removes every handler registered under a
// namespace. Unknown namespaces are a no-op so plugin teardown stays
// idempotent.
func (e *Engine) UnregisterNamespace(namespace string) {
	namespace = strings.TrimSpace(namespace)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, qualified := range e.namespaces[namespace] {
		delete(e.handlers, qualified)
	}
	delete(e.namespaces, namespace)
}

// SetFallbackHandler installs the handler used when no tag matches.
// Pass nil to restore the default behavior: log and no-op.
func (e *Engine) SetFallbackHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = h
}

// Apply applies one effect to the state, returning a new state and
// leaving the input untouched. A handler error discards the whole
// draft.
func (e *Engine) Apply(eff Effect, g *state.Game) (*state.Game, error) {
	return e.ApplyAll([]Effect{eff}, g)
}

// ApplyAll applies effects in order against one shared draft and
// commits it as the returned state. An empty list is an identity no-op.
func (e *Engine) ApplyAll(effects []Effect, g *state.Game) (*state.Game, error) {
	draft := g.Clone()
	for _, eff := range effects {
		if err := e.dispatch(draft, eff); err != nil {
			return nil, err
		}
	}
	return draft, nil
}

// dispatch routes one effect through the registry. Composition handlers
// recurse through dispatch, so registered tags nest inside batches the
// same way built-ins do.
func (e *Engine) dispatch(draft *state.Game, eff Effect) error {
	e.mu.RLock()
	h, ok := e.handlers[eff.Type]
	fallback := e.fallback
	e.mu.RUnlock()

	if ok {
		return h(draft, eff)
	}
	if fallback != nil {
		return fallback(draft, eff)
	}
	log.Printf("effect: no handler for tag %q, skipping", eff.Type)
	return nil
}

func (e *Engine) applyList(draft *state.Game, eff Effect) error {
	if eff.Effects == nil {
		return fmt.Errorf("%w: %s requires an effects list", ErrInvalidEffect, eff.Type)
	}
	for _, sub := range eff.Effects {
		if err := e.dispatch(draft, sub); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyConditional(draft *state.Game, eff Effect) error {
	if eff.Condition == nil {
		return fmt.Errorf("%w: conditional requires a condition", ErrInvalidEffect)
	}
	branch := eff.Else
	if eff.Condition(draft) {
		if eff.Then == nil {
			return fmt.Errorf("%w: conditional requires then effects", ErrInvalidEffect)
		}
		branch = eff.Then
	}
	for _, sub := range branch {
		if err := e.dispatch(draft, sub); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyRepeat(draft *state.Game, eff Effect) error {
	if eff.Sub == nil {
		return fmt.Errorf("%w: repeat requires a sub-effect", ErrInvalidEffect)
	}
	count, err := repeatCount(draft, eff.Count)
	if err != nil {
		return err
	}
	for range count {
		if err := e.dispatch(draft, *eff.Sub); err != nil {
			return err
		}
	}
	return nil
}

// repeatCount resolves a repeat count from a literal or a draft-derived
// function. Negative or non-integer counts are invalid.
func repeatCount(draft *state.Game, count any) (int, error) {
	var n int
	switch v := count.(type) {
	case int:
		n = v
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: repeat count %v is not an integer", ErrInvalidEffect, v)
		}
		n = int(v)
	case func(*state.Game) int:
		n = v(draft)
	default:
		return 0, fmt.Errorf("%w: repeat count %T is not usable", ErrInvalidEffect, count)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: repeat count %d is negative", ErrInvalidEffect, n)
	}
	return n, nil
}
