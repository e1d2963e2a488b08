// Package director sequences scene transitions: content resolution,
// lifecycle hooks, and visited-scene bookkeeping in one consistent step.
package director

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/louisbranch/fabula/internal/content"
	"github.com/louisbranch/fabula/internal/scene"
	"github.com/louisbranch/fabula/internal/state"
)

var (
	// ErrNoScene indicates a choice operation while no scene is current.
	ErrNoScene = errors.New("no current scene")
	// ErrChoiceIndex indicates a choice index outside the current scene.
	ErrChoiceIndex = errors.New("choice index out of range")
	// ErrChoiceGuarded indicates a choice whose guard rejected the
	// current state.
	ErrChoiceGuarded = errors.New("choice is not available")
	// ErrTransitionFailed indicates the follow-up transition of a choice
	// did not complete.
	ErrTransitionFailed = errors.New("scene transition failed")
)

// EventSceneChanged is emitted after a transition commits.
const EventSceneChanged = "sceneChanged"

// SceneChange is the sceneChanged payload.
type SceneChange struct {
	From string
	To   string
}

// Director moves the single current-scene pointer. It has two
// observable states: idle (no current scene) and active.
//
// GoTo suspends only while the resolver loads the target; a caller must
// let one transition settle before starting the next, or the current
// pointer races.
type Director struct {
	scenes     *content.Resolver[*scene.Scene]
	store      *state.Store
	runtime    scene.Runtime
	current    *scene.Scene
	currentKey string
}

// New creates an idle director. The runtime handle is what lifecycle
// hooks receive; it is nil-safe for scenes without hooks.
func New(scenes *content.Resolver[*scene.Scene], store *state.Store, rt scene.Runtime) *Director {
	return &Director{scenes: scenes, store: store, runtime: rt}
}

// Active reports whether a scene is current.
func (d *Director) Active() bool {
	return d.current != nil
}

// Current returns the current scene, or nil when idle.
func (d *Director) Current() *scene.Scene {
	return d.current
}

// CurrentKey returns the current scene key, empty when idle.
func (d *Director) CurrentKey() string {
	return d.currentKey
}

// GoTo transitions to the scene registered under key.
//
// Resolution failure aborts the transition with no observable change;
// the failure is reported as false plus a logged diagnostic rather than
// an error, matching the boundary contract. Hook failures are not
// recovered here and propagate to the caller.
func (d *Director) GoTo(ctx context.Context, key string) bool {
	ctx, span := otel.Tracer("fabula/director").Start(ctx, "scene.transition")
	span.SetAttributes(attribute.String("scene.key", key))
	defer span.End()

	target, err := d.scenes.Resolve(ctx, key)
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		log.Printf("director: transition to %q aborted: %v", key, err)
		return false
	}

	from := d.currentKey
	if d.current != nil && d.current.OnExit != nil {
		d.current.OnExit(d.store.State(), d.runtime)
	}

	// Visited bookkeeping commits before the pointer swap, so an
	// OnEnter hook already observes its own key as visited.
	if _, err := d.store.Update(func(draft *state.Game) error {
		draft.VisitedScenes[key] = struct{}{}
		return nil
	}); err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		log.Printf("director: transition to %q aborted: %v", key, err)
		return false
	}

	d.current = target
	d.currentKey = key

	if target.OnEnter != nil {
		target.OnEnter(d.store.State(), d.runtime)
	}
	if d.runtime != nil {
		d.runtime.Emit(EventSceneChanged, SceneChange{From: from, To: key})
	}
	return true
}

// AvailableChoices returns the current scene's choices whose guards
// accept the current state. Idle directors have no choices.
func (d *Director) AvailableChoices() []scene.Choice {
	if d.current == nil {
		return nil
	}
	g := d.store.State()
	available := make([]scene.Choice, 0, len(d.current.Choices))
	for _, choice := range d.current.Choices {
		if choice.Available(g) {
			available = append(available, choice)
		}
	}
	return available
}

// Choose processes the indexed choice of the current scene: effects
// commit through the runtime first, then the transition runs. The
// returned text is the choice's response, possibly empty.
func (d *Director) Choose(ctx context.Context, index int) (string, error) {
	if d.current == nil {
		return "", ErrNoScene
	}
	if index < 0 || index >= len(d.current.Choices) {
		return "", fmt.Errorf("%w: %d of %d", ErrChoiceIndex, index, len(d.current.Choices))
	}
	choice := d.current.Choices[index]
	if !choice.Available(d.store.State()) {
		return "", fmt.Errorf("%w: %q", ErrChoiceGuarded, choice.Label)
	}

	if len(choice.Effects) > 0 {
		if d.runtime == nil {
			return "", fmt.Errorf("choice %q has effects but no runtime is wired", choice.Label)
		}
		if err := d.runtime.ApplyEffects(choice.Effects...); err != nil {
			return "", fmt.Errorf("apply choice effects: %w", err)
		}
	}

	if target := choice.TargetFor(d.store.State()); target != "" {
		if !d.GoTo(ctx, target) {
			return "", fmt.Errorf("%w: %q", ErrTransitionFailed, target)
		}
	}
	return choice.Response, nil
}
