// Package plugin manages the lifecycle of runtime extensions: they
// register namespaced effect handlers and content entries at init and
// must release them at teardown.
package plugin

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/fabula/internal/game"
)

var (
	// ErrNameRequired indicates a plugin without a name.
	ErrNameRequired = errors.New("plugin name is required")
	// ErrAlreadyRegistered indicates a duplicate plugin registration.
	ErrAlreadyRegistered = errors.New("plugin already registered")
	// ErrNotRegistered indicates a teardown for an unknown plugin.
	ErrNotRegistered = errors.New("plugin is not registered")
)

// Plugin is one runtime extension. Name doubles as the effect-handler
// namespace the plugin registers under.
type Plugin interface {
	Name() string
	Init(rt *game.Engine) error
	Teardown(rt *game.Engine) error
}

// Manager tracks registered plugins for one engine.
type Manager struct {
	mu      sync.Mutex
	engine  *game.Engine
	plugins map[string]Plugin
}

// NewManager creates a manager bound to an engine.
func NewManager(engine *game.Engine) *Manager {
	return &Manager{engine: engine, plugins: make(map[string]Plugin)}
}

// Register initializes the plugin against the engine. An Init failure
// releases the plugin's namespace so a partial init cannot leak
// handlers.
func (m *Manager) Register(p Plugin) error {
	if p == nil {
		return errors.New("plugin is required")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return ErrNameRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	if err := p.Init(m.engine); err != nil {
		m.engine.Effects.UnregisterNamespace(name)
		return fmt.Errorf("init plugin %s: %w", name, err)
	}
	m.plugins[name] = p
	return nil
}

// Teardown runs the plugin's teardown and releases its effect-handler
// namespace, leaving core handlers untouched.
func (m *Manager) Teardown(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plugins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(m.plugins, name)
	m.engine.Effects.UnregisterNamespace(name)
	if err := p.Teardown(m.engine); err != nil {
		return fmt.Errorf("teardown plugin %s: %w", name, err)
	}
	return nil
}

// TeardownAll releases every registered plugin, continuing past
// individual failures and returning the first one.
func (m *Manager) TeardownAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.Unlock()

	var first error
	for _, name := range names {
		if err := m.Teardown(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}
