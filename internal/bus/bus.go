// Package bus carries one-way named notifications between the runtime
// and its collaborators. Emission is fire-and-forget: no return values,
// no delivery guarantee beyond emission order.
package bus

import "sync"

// Well-known notification names emitted by the runtime.
const (
	EventGameStarted  = "gameStarted"
	EventGameLoaded   = "gameLoaded"
	EventSceneChanged = "sceneChanged"
	EventStateChanged = "stateChanged"
	EventHookError    = "hookError"
)

// HandlerFunc receives one notification.
type HandlerFunc func(event string, payload any)

// Bus is a minimal synchronous publish/subscribe hub. A nil Bus is
// valid and drops every emission.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]HandlerFunc
	all  []HandlerFunc
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]HandlerFunc)}
}

// Subscribe registers a handler for one event name.
func (b *Bus) Subscribe(event string, fn HandlerFunc) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], fn)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(fn HandlerFunc) {
	if b == nil || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Emit delivers the event to subscribers in registration order.
func (b *Bus) Emit(event string, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append(append([]HandlerFunc(nil), b.subs[event]...), b.all...)
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(event, payload)
	}
}
