package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/gogpu/gg"
	"github.com/mitchellh/go-homedir"
	"github.com/nfnt/resize"
	"github.com/valerio/go-scribble/scribble/display"
	"github.com/valerio/go-scribble/scribble/imageio"
)

var (
	// ErrInvalidSize is returned for non-positive surface dimensions
	ErrInvalidSize = errors.New("invalid surface size")
	// ErrInvalidBrush is returned for non-positive brush sizes
	ErrInvalidBrush = errors.New("invalid brush size")
)

// Point is a position in display or logical pixels
type Point struct {
	X, Y float64
}

// Controller owns the drawing surface, the background layer, the brush and
// the display scale, and turns pointer input into surface mutations.
//
// All methods are safe for concurrent use. The capture engine only takes the
// read side of the lock, through DrawOnto and Snapshot.
type Controller struct {
	mu sync.RWMutex

	surface *gg.Context
	width   int
	height  int

	availW float64
	availH float64
	scale  float64

	brush Brush

	background        *image.RGBA
	backgroundVisible bool

	stroking bool
	last     Point
}

// New creates a controller with a blank width×height surface. Until the
// available space is known the surface is displayed unscaled.
func New(width, height int) (*Controller, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}

	c := &Controller{
		surface: gg.NewContext(width, height),
		width:   width,
		height:  height,
		availW:  math.Inf(1),
		availH:  math.Inf(1),
		scale:   1,
		brush: Brush{
			Size:  display.DefaultBrushSize,
			Color: mustParseColor(display.DefaultBrushColor),
			Mode:  Draw,
		},
		backgroundVisible: true,
	}
	c.applyDisplaySize()
	return c, nil
}

// Resize sets the logical resolution. Existing drawing content and the
// background layer are discarded, and any stroke in progress ends.
func (c *Controller) Resize(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.resizeLocked(width, height); err != nil {
		return err
	}
	c.background = nil
	c.applyDisplaySize()
	return nil
}

func (c *Controller) resizeLocked(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if err := c.surface.Resize(width, height); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSize, err)
	}
	// gg keeps the pixels when the size is unchanged; a resize always starts blank
	c.surface.Clear()
	c.width = width
	c.height = height
	c.resetStroke()
	return nil
}

// UpdateAvailableSpace recomputes the display scale for a new amount of
// on-screen space. Each dimension is floored at display.MinAvailableSpace.
func (c *Controller) UpdateAvailableSpace(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.availW = clampAvailable(width)
	c.availH = clampAvailable(height)
	c.applyDisplaySize()
}

// Viewport updates the available space from the size of the area the canvas
// is laid out in. reservedH is the height of a visible status panel, or zero.
func (c *Controller) Viewport(areaW, areaH, reservedH float64) {
	w, h := ViewportSpace(areaW, areaH, reservedH)
	c.UpdateAvailableSpace(w, h)
}

// applyDisplaySize recomputes the scale. Callers hold the write lock.
func (c *Controller) applyDisplaySize() {
	c.scale = ComputeScale(c.width, c.height, c.availW, c.availH)
	slog.Debug("Canvas display size",
		"resolution", fmt.Sprintf("%dx%d", c.width, c.height),
		"display", fmt.Sprintf("%.0fx%.0f", float64(c.width)*c.scale, float64(c.height)*c.scale),
		"scale", fmt.Sprintf("%.2f", c.scale))
}

// Scale returns the current display scale, always in (0, 1]
func (c *Controller) Scale() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scale
}

// Size returns the logical resolution of the surface
func (c *Controller) Size() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

// Bounds returns the logical surface rectangle, anchored at the origin
func (c *Controller) Bounds() image.Rectangle {
	w, h := c.Size()
	return image.Rect(0, 0, w, h)
}

// DisplaySize returns the on-screen size of the surface
func (c *Controller) DisplaySize() (float64, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return float64(c.width) * c.scale, float64(c.height) * c.scale
}

// ToLogical maps a display-space point onto the logical surface
func (c *Controller) ToLogical(p Point) Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.toLogical(p)
}

func (c *Controller) toLogical(p Point) Point {
	return Point{X: p.X / c.scale, Y: p.Y / c.scale}
}

// SetBrush replaces the brush; it takes effect on the next segment
func (c *Controller) SetBrush(b Brush) error {
	if b.Size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBrush, b.Size)
	}
	b.Color.A = 0xff

	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush = b
	return nil
}

// SetBrushSize changes only the brush size
func (c *Controller) SetBrushSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBrush, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush.Size = size
	return nil
}

// SetBrushColor changes only the brush color. Colors are always opaque.
func (c *Controller) SetBrushColor(col color.NRGBA) {
	col.A = 0xff

	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush.Color = col
}

// SetMode switches between drawing and erasing
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush.Mode = m
}

// Brush returns the current brush
func (c *Controller) Brush() Brush {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.brush
}

// Stroking reports whether a stroke is in progress
func (c *Controller) Stroking() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stroking
}

// BeginStroke starts a stroke at a display-space point and paints a dot there
func (c *Controller) BeginStroke(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stroking = true
	lp := c.toLogical(p)
	c.paintSegment(lp, lp)
	c.last = lp
}

// ContinueStroke extends the current stroke to a display-space point.
// It does nothing when no stroke is in progress.
func (c *Controller) ContinueStroke(p Point) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stroking {
		return
	}
	lp := c.toLogical(p)
	c.paintSegment(c.last, lp)
	c.last = lp
}

// EndStroke finishes the current stroke so the next one starts fresh
func (c *Controller) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetStroke()
}

func (c *Controller) resetStroke() {
	c.stroking = false
	c.last = Point{}
	c.surface.ClearPath()
}

// Clear erases the drawing; the background layer is untouched
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface.Clear()
}

// LoadBackgroundFile loads a background image from disk, see LoadBackground
func (c *Controller) LoadBackgroundFile(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand background path %s: %w", path, err)
	}

	f, err := os.Open(expanded)
	if err != nil {
		return fmt.Errorf("failed to open background %s: %w", expanded, err)
	}
	defer f.Close()

	if err := c.LoadBackground(f); err != nil {
		return fmt.Errorf("failed to load background %s: %w", expanded, err)
	}
	return nil
}

// LoadBackground decodes an image and makes it the background layer. The
// surface is resized to the image's native dimensions and the existing
// drawing is restored at the origin, unscaled. On a decode error nothing
// changes.
func (c *Controller) LoadBackground(r io.Reader) error {
	img, format, err := imageio.Decode(r)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	bg := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(bg, bg.Bounds(), img, bounds.Min, draw.Src)

	c.mu.Lock()
	defer c.mu.Unlock()

	oldW, oldH := c.width, c.height
	saved := append([]uint8(nil), c.surface.ResizeTarget().Data()...)

	if err := c.resizeLocked(bg.Rect.Dx(), bg.Rect.Dy()); err != nil {
		return err
	}
	copyRegion(c.surface.ResizeTarget().Data(), c.width, saved, oldW, oldH)

	c.background = bg
	c.applyDisplaySize()

	slog.Info("Background loaded",
		"format", format,
		"size", fmt.Sprintf("%dx%d", c.width, c.height),
		"previous", fmt.Sprintf("%dx%d", oldW, oldH))
	return nil
}

// copyRegion copies the top-left overlap of a srcW×srcH RGBA buffer into a
// dstW-wide buffer, byte for byte.
func copyRegion(dst []uint8, dstW int, src []uint8, srcW, srcH int) {
	dstH := len(dst) / (dstW * display.RGBABytesPerPixel)
	rowBytes := min(srcW, dstW) * display.RGBABytesPerPixel
	for y := 0; y < min(srcH, dstH); y++ {
		d := y * dstW * display.RGBABytesPerPixel
		s := y * srcW * display.RGBABytesPerPixel
		copy(dst[d:d+rowBytes], src[s:s+rowBytes])
	}
}

// HasBackground reports whether a background layer is loaded
func (c *Controller) HasBackground() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.background != nil
}

// ToggleBackgroundVisibility shows or hides the background layer without
// discarding it. Returns the new visibility.
func (c *Controller) ToggleBackgroundVisibility() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backgroundVisible = !c.backgroundVisible
	return c.backgroundVisible
}

// BackgroundVisible reports the background visibility flag
func (c *Controller) BackgroundVisible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backgroundVisible
}

// Snapshot returns a straight-alpha copy of the drawing surface
func (c *Controller) Snapshot() *image.NRGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := PixmapView(c.surface.ResizeTarget())
	img := image.NewNRGBA(view.Rect)
	draw.Draw(img, img.Rect, view, image.Point{}, draw.Src)
	return img
}

// DrawOnto composites the live drawing over dst at the origin, unscaled
func (c *Controller) DrawOnto(dst *gg.Context) {
	target := PixmapView(dst.ResizeTarget())

	c.mu.RLock()
	defer c.mu.RUnlock()
	draw.Draw(target, target.Rect, PixmapView(c.surface.ResizeTarget()), image.Point{}, draw.Over)
}

// DisplayImage renders what the user sees: the background, when visible,
// under the drawing, shrunk to the display size.
func (c *Controller) DisplayImage() image.Image {
	c.mu.RLock()
	width, height, scale := c.width, c.height, c.scale
	composed := image.NewRGBA(image.Rect(0, 0, width, height))
	if c.background != nil && c.backgroundVisible {
		draw.Draw(composed, composed.Rect, c.background, image.Point{}, draw.Src)
	}
	draw.Draw(composed, composed.Rect, PixmapView(c.surface.ResizeTarget()), image.Point{}, draw.Over)
	c.mu.RUnlock()

	if scale >= 1 {
		return composed
	}
	dw := uint(math.Max(1, math.Round(float64(width)*scale)))
	dh := uint(math.Max(1, math.Round(float64(height)*scale)))
	return resize.Resize(dw, dh, composed, resize.Bilinear)
}

// PixmapView wraps the premultiplied pixels of pm without copying; writes
// through the view land in pm.
func PixmapView(pm *gg.Pixmap) *image.RGBA {
	return &image.RGBA{
		Pix:    pm.Data(),
		Stride: pm.Width() * display.RGBABytesPerPixel,
		Rect:   image.Rect(0, 0, pm.Width(), pm.Height()),
	}
}

func mustParseColor(s string) color.NRGBA {
	col, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return col
}
