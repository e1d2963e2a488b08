// Package game wires the runtime pieces into one engine: the state
// store, the scene resolver, the effect engine, the transition
// director, and the notification bus.
package game

import (
	"context"
	"fmt"

	"github.com/louisbranch/fabula/internal/bus"
	"github.com/louisbranch/fabula/internal/content"
	"github.com/louisbranch/fabula/internal/director"
	"github.com/louisbranch/fabula/internal/effect"
	"github.com/louisbranch/fabula/internal/scene"
	"github.com/louisbranch/fabula/internal/state"
)

// Engine is the assembled runtime. It is the handle scene hooks and
// plugins receive: all state mutation funnels through ApplyEffects or
// the store so the copy-on-write boundary holds everywhere.
type Engine struct {
	Store    *state.Store
	Scenes   *content.Resolver[*scene.Scene]
	Effects  *effect.Engine
	Director *director.Director
	Bus      *bus.Bus
}

// New assembles an engine around an initial partial state.
func New(initial state.Game) *Engine {
	e := &Engine{
		Store: state.NewStore(initial),
		Scenes: content.NewResolver(content.WithKeyFunc(func(s *scene.Scene, key string) *scene.Scene {
			s.Key = key
			return s
		})),
		Effects: effect.NewEngine(),
		Bus:     bus.New(),
	}
	e.Director = director.New(e.Scenes, e.Store, e)
	return e
}

// ApplyEffects applies effects against the current state and commits
// the result. Implements scene.Runtime.
func (e *Engine) ApplyEffects(effects ...effect.Effect) error {
	if len(effects) == 0 {
		return nil
	}
	next, err := e.Effects.ApplyAll(effects, e.Store.State())
	if err != nil {
		return fmt.Errorf("apply effects: %w", err)
	}
	e.Store.Replace(next)
	e.Bus.Emit(bus.EventStateChanged, next)
	return nil
}

// Emit forwards a notification to the bus. Implements scene.Runtime.
func (e *Engine) Emit(event string, payload any) {
	e.Bus.Emit(event, payload)
}

// Start begins the story at the given scene key.
func (e *Engine) Start(ctx context.Context, key string) bool {
	e.Bus.Emit(bus.EventGameStarted, key)
	return e.Director.GoTo(ctx, key)
}

// Reset replaces the state wholesale and returns the director to the
// given scene, used by the save subsystem after a restore.
func (e *Engine) Reset(ctx context.Context, g *state.Game, sceneKey string) error {
	e.Store.Replace(g)
	if sceneKey != "" && !e.Director.GoTo(ctx, sceneKey) {
		return fmt.Errorf("restore scene %q: %w", sceneKey, director.ErrTransitionFailed)
	}
	e.Bus.Emit(bus.EventGameLoaded, sceneKey)
	return nil
}
