package event

// Type represents the type of input event
type Type int

const (
	Press   Type = iota // Button pressed down (debounced)
	Release             // Button released (debounced)
	Hold                // Continuous while pressed (not debounced)
)

// PointerKind is the phase of a pointer interaction
type PointerKind int

const (
	PointerDown PointerKind = iota
	PointerMove
	PointerUp
)

// Source identifies the device a pointer event came from
type Source int

const (
	Mouse Source = iota
	Touch
)

// Pointer is a normalized pointer event in display coordinates, relative to
// the top-left corner of the displayed canvas.
type Pointer struct {
	Kind   PointerKind
	Source Source
	X, Y   float64
}
