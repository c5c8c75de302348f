// Package script replays drawing and recording scenarios described in YAML,
// for headless runs and reproducible captures.
//
//	steps:
//	  - resize: {width: 1024, height: 768}
//	  - brush: {size: 8, color: "#ff3040"}
//	  - record-start: {fps: 30, opacity: 0.5}
//	  - stroke: [{x: 10, y: 10}, {x: 300, y: 200}]
//	  - wait: 2s
//	  - record-stop
//	  - export-video
package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Step actions
const (
	ActionResize           = "resize"
	ActionViewport         = "viewport"
	ActionBrush            = "brush"
	ActionBackground       = "background"
	ActionStroke           = "stroke"
	ActionClear            = "clear"
	ActionToggleBackground = "toggle-background"
	ActionRecordStart      = "record-start"
	ActionWait             = "wait"
	ActionRecordStop       = "record-stop"
	ActionExportVideo      = "export-video"
	ActionExportFrame      = "export-frame"
	ActionClearRecording   = "clear-recording"
)

// ErrInvalidStep is returned for steps that cannot be parsed
var ErrInvalidStep = errors.New("invalid script step")

// Script is a parsed scenario
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`

	// Dir resolves relative background paths, usually the script's directory
	Dir string `yaml:"-"`
}

// Size is the argument of a resize step
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Viewport is the argument of a viewport step
type Viewport struct {
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
	Reserved float64 `yaml:"reserved"`
}

// Brush is the argument of a brush step. Empty fields are left unchanged.
type Brush struct {
	Size  int    `yaml:"size"`
	Color string `yaml:"color"`
	Mode  string `yaml:"mode"`
}

// Record is the argument of a record-start step. Zero fields keep the
// recorder's current settings.
type Record struct {
	FPS     int      `yaml:"fps"`
	Opacity *float64 `yaml:"opacity"`
}

// Point is a display-space position
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Step is one action with its argument. In YAML a step is either a bare
// action name or a single-key mapping from the action to its argument.
type Step struct {
	Action string

	Size     *Size
	Viewport *Viewport
	Brush    *Brush
	Path     string
	Points   []Point
	Record   *Record
	Wait     time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Action = node.Value
		return s.checkBare(node)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("%w at line %d: a step has exactly one action", ErrInvalidStep, node.Line)
		}
		s.Action = node.Content[0].Value
		return s.decodeArg(node.Content[1])
	default:
		return fmt.Errorf("%w at line %d: expected an action name or mapping", ErrInvalidStep, node.Line)
	}
}

func (s *Step) checkBare(node *yaml.Node) error {
	switch s.Action {
	case ActionClear, ActionToggleBackground, ActionRecordStart, ActionRecordStop,
		ActionExportVideo, ActionExportFrame, ActionClearRecording:
		if s.Action == ActionRecordStart {
			s.Record = &Record{}
		}
		return nil
	case ActionResize, ActionViewport, ActionBrush, ActionBackground, ActionStroke, ActionWait:
		return fmt.Errorf("%w at line %d: %s needs an argument", ErrInvalidStep, node.Line, s.Action)
	default:
		return fmt.Errorf("%w at line %d: unknown action %q", ErrInvalidStep, node.Line, s.Action)
	}
}

func (s *Step) decodeArg(arg *yaml.Node) error {
	var err error
	switch s.Action {
	case ActionResize:
		s.Size = &Size{}
		err = arg.Decode(s.Size)
		if err == nil && (s.Size.Width <= 0 || s.Size.Height <= 0) {
			err = fmt.Errorf("size must be positive, got %dx%d", s.Size.Width, s.Size.Height)
		}
	case ActionViewport:
		s.Viewport = &Viewport{}
		err = arg.Decode(s.Viewport)
	case ActionBrush:
		s.Brush = &Brush{}
		err = arg.Decode(s.Brush)
	case ActionBackground:
		err = arg.Decode(&s.Path)
		if err == nil && s.Path == "" {
			err = errors.New("empty background path")
		}
	case ActionStroke:
		err = arg.Decode(&s.Points)
		if err == nil && len(s.Points) == 0 {
			err = errors.New("a stroke needs at least one point")
		}
	case ActionRecordStart:
		s.Record = &Record{}
		err = arg.Decode(s.Record)
	case ActionWait:
		err = arg.Decode(&s.Wait)
		if err == nil && s.Wait < 0 {
			err = fmt.Errorf("negative wait %s", s.Wait)
		}
	case ActionClear, ActionToggleBackground, ActionRecordStop,
		ActionExportVideo, ActionExportFrame, ActionClearRecording:
		// Arguments such as `clear: true` are accepted and ignored
	default:
		err = fmt.Errorf("unknown action %q", s.Action)
	}
	if err != nil {
		return fmt.Errorf("%w at line %d: %s: %w", ErrInvalidStep, arg.Line, s.Action, err)
	}
	return nil
}

func (s Step) String() string {
	return s.Action
}

// Parse decodes a script
func Parse(r io.Reader) (*Script, error) {
	var sc Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return &sc, nil
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	return &sc, nil
}

// Load reads a script file. Relative background paths in it are resolved
// against the file's directory.
func Load(path string) (*Script, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand script path %s: %w", path, err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}
	sc.Dir = filepath.Dir(expanded)
	if sc.Name == "" {
		sc.Name = filepath.Base(expanded)
	}
	return sc, nil
}

// resolve maps a script-relative path to one usable from the process
func (sc *Script) resolve(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		expanded = path
	}
	if filepath.IsAbs(expanded) || sc.Dir == "" {
		return expanded
	}
	return filepath.Join(sc.Dir, expanded)
}
