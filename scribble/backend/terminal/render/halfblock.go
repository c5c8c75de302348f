package render

import (
	"image"
	"image/color"
)

// Block characters used to draw two vertical pixels per terminal cell
const (
	FullBlock      = '█'
	UpperHalfBlock = '▀'
)

// Sample reads the pixel of img at (x, y) relative to its bounds, flattened
// over black. Points outside the image are black.
func Sample(img image.Image, x, y int) color.RGBA {
	b := img.Bounds()
	p := image.Pt(b.Min.X+x, b.Min.Y+y)
	if !p.In(b) {
		return color.RGBA{A: 0xff}
	}
	// RGBA is alpha-premultiplied, which is exactly the value over black
	r, g, bl, _ := img.At(p.X, p.Y).RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 0xff}
}

// HalfBlock returns the glyph with its foreground and background colors for
// a cell whose top half is top and bottom half is bottom.
func HalfBlock(top, bottom color.RGBA) (rune, color.RGBA, color.RGBA) {
	if top == bottom {
		return FullBlock, top, top
	}
	return UpperHalfBlock, top, bottom
}

// CellGrid is the number of terminal cells needed to show a w×h image when
// each cell covers cellW×cellH pixels.
func CellGrid(w, h, cellW, cellH int) (cols, rows int) {
	if cellW <= 0 || cellH <= 0 {
		return 0, 0
	}
	return (w + cellW - 1) / cellW, (h + cellH - 1) / cellH
}
