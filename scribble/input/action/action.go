package action

// Action represents input actions that can be performed in the sketcher
type Action int

const (
	// Canvas controls
	ModeDraw Action = iota
	ModeErase
	ClearDrawing
	ToggleBackground
	BrushGrow
	BrushShrink

	// Recording controls
	RecordToggle
	ExportVideo
	ExportFrame
	ClearRecording

	// Application
	Quit
)

// Category groups actions for logging and backend routing
type Category int

const (
	CategoryCanvas Category = iota
	CategoryRecording
	CategoryApp
)

// Info describes an action
type Info struct {
	Description string
	Category    Category
}

var infos = map[Action]Info{
	ModeDraw:         {"Draw mode", CategoryCanvas},
	ModeErase:        {"Erase mode", CategoryCanvas},
	ClearDrawing:     {"Clear drawing", CategoryCanvas},
	ToggleBackground: {"Toggle background", CategoryCanvas},
	BrushGrow:        {"Grow brush", CategoryCanvas},
	BrushShrink:      {"Shrink brush", CategoryCanvas},
	RecordToggle:     {"Start/stop recording", CategoryRecording},
	ExportVideo:      {"Export video", CategoryRecording},
	ExportFrame:      {"Export frame", CategoryRecording},
	ClearRecording:   {"Clear recording", CategoryRecording},
	Quit:             {"Quit", CategoryApp},
}

// GetInfo returns the description and category of an action
func GetInfo(a Action) Info {
	if info, ok := infos[a]; ok {
		return info
	}
	return Info{Description: "Unknown", Category: CategoryApp}
}

func (a Action) String() string {
	return GetInfo(a).Description
}
