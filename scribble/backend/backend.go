package backend

import (
	"image"

	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
)

// Backend is a platform adapter (headless, terminal, SDL window).
// Backends are responsible for:
// - Rendering the composed canvas image to their output
// - Translating platform input into InputEvents
// - Reporting the size of the area the canvas is laid out in
type Backend interface {
	// Init configures the backend. This is a required step before Update.
	Init(config Config) error

	// Update renders the frame and returns the input collected since the
	// previous call. Pointer coordinates are relative to the canvas origin
	// in display pixels.
	Update(frame Frame) ([]InputEvent, error)

	// Cleanup releases resources when shutting down
	Cleanup() error
}

// Config holds configuration for backends
type Config struct {
	Title      string
	ShowStatus bool // Backends may ignore unsupported features
}

// Frame is what a backend shows on each update
type Frame struct {
	// Image is the canvas at display size
	Image image.Image
	// Status is a one-line recording and brush summary
	Status string
	// Recording is true while a recording runs
	Recording bool
}

// Viewport is the size of the area the canvas is laid out in, with the
// height of a visible status panel when there is one.
type Viewport struct {
	Width, Height float64
	Reserved      float64
}

// InputEvent is one unit of input. Exactly one of an action, a pointer or a
// viewport change is set.
type InputEvent struct {
	Action   action.Action
	Type     event.Type
	Pointer  *event.Pointer
	Viewport *Viewport
}

// ActionEvent creates a key-style input event
func ActionEvent(act action.Action, typ event.Type) InputEvent {
	return InputEvent{Action: act, Type: typ}
}

// PointerEvent creates a pointer input event
func PointerEvent(p event.Pointer) InputEvent {
	return InputEvent{Pointer: &p}
}

// ViewportEvent creates a layout change event
func ViewportEvent(v Viewport) InputEvent {
	return InputEvent{Viewport: &v}
}
