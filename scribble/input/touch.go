package input

import "github.com/valerio/go-scribble/scribble/input/event"

// TouchPhase is the phase of a touch event
type TouchPhase int

const (
	TouchStart TouchPhase = iota
	TouchMove
	TouchEnd
	TouchCancel
)

// TouchPoint is one active contact, in display coordinates
type TouchPoint struct {
	X, Y float64
}

// TouchEvent is a raw multi-touch event as delivered by a backend
type TouchEvent struct {
	Phase   TouchPhase
	Touches []TouchPoint
}

// NormalizeTouch maps a touch event onto the pointer model used for mouse
// input. Only the first contact drives the stroke. The second return value
// is false when a start or move event carries no contacts.
func NormalizeTouch(te TouchEvent) (event.Pointer, bool) {
	switch te.Phase {
	case TouchEnd, TouchCancel:
		return event.Pointer{Kind: event.PointerUp, Source: event.Touch}, true
	}

	if len(te.Touches) == 0 {
		return event.Pointer{}, false
	}

	kind := event.PointerMove
	if te.Phase == TouchStart {
		kind = event.PointerDown
	}
	first := te.Touches[0]
	return event.Pointer{Kind: kind, Source: event.Touch, X: first.X, Y: first.Y}, true
}
