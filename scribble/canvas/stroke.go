package canvas

import (
	"log/slog"
	"math"

	"github.com/gogpu/gg"
	"github.com/valerio/go-scribble/scribble/display"
)

// paintSegment draws a round-capped segment between two logical points using
// the current brush. A zero-length segment paints a single dot. The brush
// size is divided by the display scale so strokes keep the same on-screen
// width at any zoom. Callers hold the write lock.
func (c *Controller) paintSegment(from, to Point) {
	width := float64(c.brush.Size) / c.scale

	switch c.brush.Mode {
	case Erase:
		c.eraseSegment(from, to, width)
	default:
		c.surface.SetColor(c.brush.Color)
		if err := traceSegment(c.surface, from, to, width); err != nil {
			slog.Warn("Failed to paint stroke segment", "error", err)
		}
	}
}

// traceSegment strokes (or, for a zero-length segment, fills a dot) on dc
// with the color already set.
func traceSegment(dc *gg.Context, from, to Point, width float64) error {
	if from == to {
		dc.DrawCircle(to.X, to.Y, width/2)
		return dc.Fill()
	}
	dc.SetLineWidth(width)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.MoveTo(from.X, from.Y)
	dc.LineTo(to.X, to.Y)
	return dc.Stroke()
}

// eraseSegment removes surface coverage under the segment (destination-out).
// The segment is rasterized into a scratch mask covering only its bounding
// box, and each covered surface pixel is scaled down by the mask coverage.
// The surface is premultiplied, so color and alpha scale together.
func (c *Controller) eraseSegment(from, to Point, width float64) {
	pad := width/2 + 1
	minX := max(0, int(math.Floor(math.Min(from.X, to.X)-pad)))
	minY := max(0, int(math.Floor(math.Min(from.Y, to.Y)-pad)))
	maxX := min(c.width, int(math.Ceil(math.Max(from.X, to.X)+pad)))
	maxY := min(c.height, int(math.Ceil(math.Max(from.Y, to.Y)+pad)))
	if minX >= maxX || minY >= maxY {
		return
	}

	bw, bh := maxX-minX, maxY-minY
	mask := gg.NewContext(bw, bh)
	defer mask.Close()

	mask.Translate(-float64(minX), -float64(minY))
	mask.SetRGB(1, 1, 1)
	if err := traceSegment(mask, from, to, width); err != nil {
		slog.Warn("Failed to rasterize erase segment", "error", err)
		return
	}

	const bpp = display.RGBABytesPerPixel
	dst := c.surface.ResizeTarget().Data()
	coverage := mask.ResizeTarget().Data()
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			m := uint32(coverage[(y*bw+x)*bpp+3])
			if m == 0 {
				continue
			}
			i := ((minY+y)*c.width + minX + x) * bpp
			for ch := i; ch < i+bpp; ch++ {
				dst[ch] = uint8(uint32(dst[ch]) * (255 - m) / 255)
			}
		}
	}
}
