package input

import (
	"time"

	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
)

const (
	// DefaultDebounce is the minimum time between debounced events
	DefaultDebounce = 300 * time.Millisecond
)

// Manager handles input actions and their associated callbacks
type Manager struct {
	handlers      map[action.Action]map[event.Type][]func()
	lastTriggered map[action.Action]map[event.Type]time.Time
	debounce      time.Duration
	now           func() time.Time
}

// NewManager creates a manager that drops repeated Press/Release events of
// the same action arriving within debounce of each other. A zero debounce
// disables debouncing.
func NewManager(debounce time.Duration) *Manager {
	return &Manager{
		handlers:      make(map[action.Action]map[event.Type][]func()),
		lastTriggered: make(map[action.Action]map[event.Type]time.Time),
		debounce:      debounce,
		now:           time.Now,
	}
}

// On registers a callback for a specific action and event type
func (m *Manager) On(act action.Action, evt event.Type, callback func()) {
	if m.handlers[act] == nil {
		m.handlers[act] = make(map[event.Type][]func())
	}
	m.handlers[act][evt] = append(m.handlers[act][evt], callback)
}

// Trigger handles the given action and event type.
// Returns false if the event was debounced or has no handlers.
func (m *Manager) Trigger(act action.Action, evt event.Type) bool {
	if m.debounce > 0 && (evt == event.Press || evt == event.Release) {
		now := m.now()
		if m.lastTriggered[act] == nil {
			m.lastTriggered[act] = make(map[event.Type]time.Time)
		}
		if last, ok := m.lastTriggered[act][evt]; ok && now.Sub(last) < m.debounce {
			return false
		}
		m.lastTriggered[act][evt] = now
	}

	callbacks := m.handlers[act][evt]
	for _, callback := range callbacks {
		callback()
	}
	return len(callbacks) > 0
}
