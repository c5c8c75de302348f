package canvas

import (
	"math"

	"github.com/valerio/go-scribble/scribble/display"
)

// ComputeScale returns the factor that fits a surfaceW×surfaceH surface into
// availW×availH without ever scaling it up.
func ComputeScale(surfaceW, surfaceH int, availW, availH float64) float64 {
	if surfaceW <= 0 || surfaceH <= 0 {
		return 1
	}
	return math.Min(1, math.Min(availW/float64(surfaceW), availH/float64(surfaceH)))
}

// ViewportSpace derives the space available to the canvas from the size of the
// area it is laid out in. reservedH is the height taken by a visible status
// panel below the canvas, zero when hidden. Both dimensions are floored at
// display.MinAvailableSpace.
func ViewportSpace(areaW, areaH, reservedH float64) (float64, float64) {
	usedH := float64(display.ViewportPaddingY)
	if reservedH > 0 {
		usedH += reservedH + display.StatusPanelGap
	}
	return clampAvailable(areaW - display.ViewportMarginX), clampAvailable(areaH - usedH)
}

func clampAvailable(v float64) float64 {
	return math.Max(v, display.MinAvailableSpace)
}
