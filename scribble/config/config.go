// Package config holds the settings of a scribble session. Values start from
// Default, may be overlaid by a TOML file and finally by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/valerio/go-scribble/scribble/canvas"
	"github.com/valerio/go-scribble/scribble/display"
)

// Encoder choices for recordings
const (
	EncoderAuto   = "auto"
	EncoderFFmpeg = "ffmpeg"
	EncoderGIF    = "gif"
	EncoderNone   = "none"
)

type Config struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`

	Brush      BrushConfig      `toml:"brush"`
	Recording  RecordingConfig  `toml:"recording"`
	Output     OutputConfig     `toml:"output"`
	Background BackgroundConfig `toml:"background"`
	UI         UIConfig         `toml:"ui"`
}

type BrushConfig struct {
	Size  int    `toml:"size"`
	Color string `toml:"color"`
	Mode  string `toml:"mode"`
}

type RecordingConfig struct {
	FPS             int     `toml:"fps"`
	BackdropOpacity float64 `toml:"backdrop_opacity"`
	Encoder         string  `toml:"encoder"`
	FFmpeg          string  `toml:"ffmpeg"`
	Bitrate         int     `toml:"bitrate"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
}

type BackgroundConfig struct {
	Path   string `toml:"path"`
	Hidden bool   `toml:"hidden"`
	Watch  bool   `toml:"watch"`
}

type UIConfig struct {
	ShowStatus bool `toml:"show_status"`
	DebounceMS int  `toml:"debounce_ms"`
}

// Default returns the settings of a fresh session
func Default() Config {
	return Config{
		Width:  display.DefaultSurfaceWidth,
		Height: display.DefaultSurfaceHeight,
		Brush: BrushConfig{
			Size:  display.DefaultBrushSize,
			Color: display.DefaultBrushColor,
			Mode:  canvas.Draw.String(),
		},
		Recording: RecordingConfig{
			FPS:             display.DefaultFPS,
			BackdropOpacity: display.DefaultBackdropOpacity,
			Encoder:         EncoderAuto,
			Bitrate:         display.DefaultVideoBitrate,
		},
		UI: UIConfig{
			ShowStatus: true,
			DebounceMS: 300,
		},
	}
}

// Load reads a TOML file over Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to expand config path %s: %w", path, err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config %s: %w", expanded, err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", expanded, err)
	}
	return cfg, nil
}

// Read decodes TOML from r over Default and validates the result
func Read(r io.Reader) (Config, error) {
	cfg := Default()

	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("unknown settings:\n%s", strict.String())
		}
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func (c Config) String() string {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// Validate checks every value is in range
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("%w: %dx%d", canvas.ErrInvalidSize, c.Width, c.Height))
	}
	if _, err := c.BrushState(); err != nil {
		errs = append(errs, err)
	}
	if c.Recording.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.Recording.FPS))
	}
	if c.Recording.BackdropOpacity < 0 || c.Recording.BackdropOpacity > 1 {
		errs = append(errs, fmt.Errorf("backdrop opacity must be within 0.0-1.0, got %g", c.Recording.BackdropOpacity))
	}
	switch strings.ToLower(c.Recording.Encoder) {
	case EncoderAuto, EncoderFFmpeg, EncoderGIF, EncoderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown encoder %q", c.Recording.Encoder))
	}
	if c.UI.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative, got %d", c.UI.DebounceMS))
	}
	return errors.Join(errs...)
}

// BrushState converts the brush settings
func (c Config) BrushState() (canvas.Brush, error) {
	if c.Brush.Size <= 0 || c.Brush.Size > display.MaxBrushSize {
		return canvas.Brush{}, fmt.Errorf("%w: %d", canvas.ErrInvalidBrush, c.Brush.Size)
	}
	col, err := canvas.ParseColor(c.Brush.Color)
	if err != nil {
		return canvas.Brush{}, err
	}
	mode, err := canvas.ParseMode(c.Brush.Mode)
	if err != nil {
		return canvas.Brush{}, err
	}
	return canvas.Brush{Size: c.Brush.Size, Color: col, Mode: mode}, nil
}

// Debounce is the input debounce window
func (c Config) Debounce() time.Duration {
	return time.Duration(c.UI.DebounceMS) * time.Millisecond
}
