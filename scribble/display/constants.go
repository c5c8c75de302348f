package display

// RGBA pixel format constants
const (
	// RGBABytesPerPixel is the number of bytes per pixel in RGBA format
	RGBABytesPerPixel = 4
	// FullAlpha is the alpha value for fully opaque pixels
	FullAlpha = 255
)

// Surface defaults, matching a fresh session
const (
	// DefaultSurfaceWidth is the logical width of a new drawing surface
	DefaultSurfaceWidth = 800
	// DefaultSurfaceHeight is the logical height of a new drawing surface
	DefaultSurfaceHeight = 600
)

// Viewport layout constants used to derive the space available to the canvas
const (
	// ViewportMarginX is subtracted from the canvas area width
	ViewportMarginX = 80
	// ViewportPaddingY is subtracted from the canvas area height
	ViewportPaddingY = 80
	// StatusPanelGap is added below a visible recording status panel
	StatusPanelGap = 20
	// MinAvailableSpace is the floor applied to each available dimension
	MinAvailableSpace = 400
)

// Brush defaults
const (
	// DefaultBrushSize is the brush diameter in display pixels
	DefaultBrushSize = 5
	// DefaultBrushColor is the default brush color
	DefaultBrushColor = "#ffffff"
	// MaxBrushSize bounds the brush grow action
	MaxBrushSize = 100
)

// Capture defaults
const (
	// DefaultFPS is the default capture rate
	DefaultFPS = 30
	// DefaultBackdropOpacity is the alpha of the black backdrop behind captured frames
	DefaultBackdropOpacity = 0.3
	// DefaultVideoBitrate is the target encoder bitrate in bits per second
	DefaultVideoBitrate = 2_500_000
)

// UI loop constants
const (
	// UIRefreshRate is how often backends are redrawn and polled
	UIRefreshRate = 60
	// StatusRefreshRate is how often recording status is refreshed for display
	StatusRefreshRate = 10
)
