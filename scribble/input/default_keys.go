package input

import "github.com/valerio/go-scribble/scribble/input/action"

// DefaultKeyMap provides default key mappings that work across backends.
// Backends can use these mappings as a base and override/extend as needed.
var DefaultKeyMap = map[string]action.Action{
	// Canvas controls
	"d":         action.ModeDraw,
	"e":         action.ModeErase,
	"c":         action.ClearDrawing,
	"b":         action.ToggleBackground,
	"+":         action.BrushGrow,
	"=":         action.BrushGrow, // Alternative without shift
	"]":         action.BrushGrow,
	"-":         action.BrushShrink,
	"_":         action.BrushShrink,
	"[":         action.BrushShrink,
	"Backspace": action.ClearDrawing,

	// Recording controls
	"r":     action.RecordToggle,
	"Space": action.RecordToggle,
	"v":     action.ExportVideo,
	"f":     action.ExportFrame,
	"F12":   action.ExportFrame,
	"x":     action.ClearRecording,

	// Application
	"Escape": action.Quit,
	"q":      action.Quit,
}

// GetDefaultMapping returns the default action for a key, if one exists
func GetDefaultMapping(key string) (action.Action, bool) {
	act, ok := DefaultKeyMap[key]
	return act, ok
}
