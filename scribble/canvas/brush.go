package canvas

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Mode selects how stroke segments are composited onto the surface
type Mode int

const (
	// Draw paints with the brush color (source-over)
	Draw Mode = iota
	// Erase removes existing pixels (destination-out)
	Erase
)

func (m Mode) String() string {
	switch m {
	case Draw:
		return "draw"
	case Erase:
		return "erase"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "draw" or "erase", case-insensitively
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draw":
		return Draw, nil
	case "erase":
		return Erase, nil
	}
	return Draw, fmt.Errorf("unknown brush mode %q", s)
}

// Brush is the stroke state read on every segment. Size is in display pixels.
type Brush struct {
	Size  int
	Color color.NRGBA
	Mode  Mode
}

// ParseColor parses a "#rrggbb" or "#rgb" color into an opaque RGB value
func ParseColor(s string) (color.NRGBA, error) {
	c, err := colorful.Hex(strings.TrimSpace(s))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid brush color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// FormatColor renders an RGB color as "#rrggbb"
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
