package canvas

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeScale(t *testing.T) {
	tests := []struct {
		name     string
		w, h     int
		vw, vh   float64
		expected float64
	}{
		{name: "fits without scaling", w: 800, h: 600, vw: 1000, vh: 800, expected: 1},
		{name: "width bound", w: 2000, h: 1500, vw: 900, vh: 700, expected: 0.45},
		{name: "height bound", w: 1000, h: 2000, vw: 900, vh: 500, expected: 0.25},
		{name: "exact fit", w: 640, h: 480, vw: 640, vh: 480, expected: 1},
		{name: "never upscales tiny surfaces", w: 10, h: 10, vw: 4000, vh: 4000, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ComputeScale(tt.w, tt.h, tt.vw, tt.vh), 1e-9)
		})
	}
}

func TestComputeScale_NeverExceedsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		w := 1 + rng.Intn(5000)
		h := 1 + rng.Intn(5000)
		vw := 1 + rng.Float64()*5000
		vh := 1 + rng.Float64()*5000

		scale := ComputeScale(w, h, vw, vh)
		assert.LessOrEqual(t, scale, 1.0)
		assert.Greater(t, scale, 0.0)
		assert.LessOrEqual(t, float64(w)*scale, vw+1e-9, "display width must fit")
		assert.LessOrEqual(t, float64(h)*scale, vh+1e-9, "display height must fit")
	}
}

func TestViewportSpace(t *testing.T) {
	tests := []struct {
		name         string
		areaW, areaH float64
		reserved     float64
		expectW      float64
		expectH      float64
	}{
		{name: "margins applied", areaW: 1280, areaH: 900, expectW: 1200, expectH: 820},
		{name: "status panel reserves height", areaW: 1280, areaH: 900, reserved: 60, expectW: 1200, expectH: 740},
		{name: "floored at minimum", areaW: 300, areaH: 200, expectW: 400, expectH: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := ViewportSpace(tt.areaW, tt.areaH, tt.reserved)
			assert.Equal(t, tt.expectW, w)
			assert.Equal(t, tt.expectH, h)
		})
	}
}
