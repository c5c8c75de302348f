package terminal

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/backend/terminal/render"
	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
)

func newSimBackend(t *testing.T, showStatus bool) (*Backend, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	b := New(WithScreen(sim))
	require.NoError(t, b.Init(backend.Config{Title: "Test", ShowStatus: showStatus}))
	t.Cleanup(func() { _ = b.Cleanup() })
	return b, sim
}

func redFrame(w, h int) backend.Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	return backend.Frame{Image: img, Status: "idle | draw 5px #ffffff"}
}

func pointers(events []backend.InputEvent) []event.Pointer {
	var out []event.Pointer
	for _, ev := range events {
		if ev.Pointer != nil {
			out = append(out, *ev.Pointer)
		}
	}
	return out
}

func TestTerminal_ReportsViewportOnce(t *testing.T) {
	b, sim := newSimBackend(t, true)
	sim.SetSize(80, 25)

	events, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Viewport)
	assert.Equal(t, backend.Viewport{Width: 80 * cellW, Height: 23 * cellH, Reserved: cellH}, *events[0].Viewport)

	events, err = b.Update(redFrame(64, 48))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTerminal_KeysMapToActions(t *testing.T) {
	b, sim := newSimBackend(t, false)
	_, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)

	sim.InjectKey(tcell.KeyRune, 'e', tcell.ModNone)
	sim.InjectKey(tcell.KeyRune, '+', tcell.ModNone)
	sim.InjectKey(tcell.KeyRune, '+', tcell.ModNone)
	sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	sim.InjectKey(tcell.KeyRune, 'z', tcell.ModNone)

	events, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, backend.ActionEvent(action.ModeErase, event.Press), events[0])
	assert.Equal(t, backend.ActionEvent(action.BrushGrow, event.Press), events[1])
	assert.Equal(t, backend.ActionEvent(action.BrushGrow, event.Hold), events[2], "repeat becomes hold")
	assert.Equal(t, backend.ActionEvent(action.Quit, event.Press), events[3])
}

func TestTerminal_MouseStroke(t *testing.T) {
	b, sim := newSimBackend(t, false)
	_, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)

	sim.InjectMouse(2, 2, tcell.Button1, tcell.ModNone)
	sim.InjectMouse(5, 3, tcell.Button1, tcell.ModNone)
	sim.InjectMouse(5, 3, tcell.ButtonNone, tcell.ModNone)
	sim.InjectMouse(6, 3, tcell.ButtonNone, tcell.ModNone)

	events, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)
	ps := pointers(events)
	require.Len(t, ps, 3)

	assert.Equal(t, event.PointerDown, ps[0].Kind)
	assert.Equal(t, 2.5*cellW, ps[0].X)
	assert.Equal(t, 1.5*cellH, ps[0].Y)
	assert.Equal(t, event.PointerMove, ps[1].Kind)
	assert.Equal(t, 5.5*cellW, ps[1].X)
	assert.Equal(t, event.PointerUp, ps[2].Kind)
}

func TestTerminal_DragOffCanvasEndsStroke(t *testing.T) {
	b, sim := newSimBackend(t, false)
	_, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)

	sim.InjectMouse(1, 1, tcell.Button1, tcell.ModNone)
	sim.InjectMouse(40, 20, tcell.Button1, tcell.ModNone)
	sim.InjectMouse(41, 20, tcell.Button1, tcell.ModNone)

	events, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)
	ps := pointers(events)
	require.Len(t, ps, 2)
	assert.Equal(t, event.PointerDown, ps[0].Kind)
	assert.Equal(t, event.PointerUp, ps[1].Kind)
}

func TestTerminal_RendersHalfBlocks(t *testing.T) {
	b, sim := newSimBackend(t, true)
	_, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)

	mainc, _, style, _ := sim.GetContent(0, canvasTop)
	assert.Equal(t, render.FullBlock, mainc)
	fg, _, _ := style.Decompose()
	assert.Equal(t, tcell.NewRGBColor(255, 0, 0), fg)

	// The status line sits right below the 3 canvas rows
	mainc, _, _, _ = sim.GetContent(0, canvasTop+3)
	assert.Equal(t, 'i', mainc)
}

func TestTerminal_TooSmall(t *testing.T) {
	b, sim := newSimBackend(t, false)
	sim.SetSize(20, 5)

	_, err := b.Update(redFrame(64, 48))
	require.NoError(t, err)
	assert.Zero(t, b.imageCols)
}

func TestTerminalImplementsBackend(t *testing.T) {
	var _ backend.Backend = (*Backend)(nil)
}
