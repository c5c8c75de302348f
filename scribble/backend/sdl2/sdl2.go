//go:build sdl2

package sdl2

import (
	"fmt"
	"image"
	"log/slog"
	"unsafe"

	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/display"
	"github.com/valerio/go-scribble/scribble/input"
	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	windowWidth  = 1280
	windowHeight = 900
)

// Backend implements the Backend interface using SDL2 bindings
// Note: building this requires SDL2 development libraries installed.
// Default builds skip this and use a stubbed renderer, see build tags (sdl2)
type Backend struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int
	texH     int
	pixels   []byte
	config   backend.Config
	title    string

	keyMapping map[sdl.Keycode]action.Action
	events     []backend.InputEvent

	// Where the canvas was drawn last frame, in window pixels
	canvasX, canvasY int32
	mouseDown        bool
}

// New creates a new SDL2 backend
func New() *Backend {
	return &Backend{}
}

// Init opens a resizable window with a streaming texture for the canvas
func (s *Backend) Init(config backend.Config) error {
	s.config = config

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to initialize SDL2: %w", err)
	}

	window, err := sdl.CreateWindow(
		config.Title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		windowWidth,
		windowHeight,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("failed to create window: %w", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create renderer: %w", err)
	}
	s.renderer = renderer

	s.keyMapping = buildKeyMapping()

	// Report the initial layout; later changes arrive as window events
	s.events = append(s.events, s.viewportEvent(windowWidth, windowHeight))

	slog.Info("SDL2 backend initialized")
	return nil
}

// buildKeyMapping resolves the default key names to SDL keycodes
func buildKeyMapping() map[sdl.Keycode]action.Action {
	mapping := make(map[sdl.Keycode]action.Action)
	for name, act := range input.DefaultKeyMap {
		if key := sdl.GetKeyFromName(name); key != sdl.K_UNKNOWN {
			mapping[key] = act
		}
	}
	return mapping
}

// Update renders a frame and processes events
func (s *Backend) Update(frame backend.Frame) ([]backend.InputEvent, error) {
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		s.handleEvent(ev)
	}

	events := s.events
	s.events = nil

	if err := s.renderFrame(frame); err != nil {
		return events, err
	}
	return events, nil
}

// Cleanup cleans up SDL2 resources
func (s *Backend) Cleanup() error {
	slog.Info("Cleaning up SDL2 backend")

	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()

	return nil
}

func (s *Backend) viewportEvent(w, h int32) backend.InputEvent {
	// The status is shown in the title bar, so nothing is reserved below the canvas
	return backend.ViewportEvent(backend.Viewport{Width: float64(w), Height: float64(h)})
}

func (s *Backend) handleEvent(ev sdl.Event) {
	switch e := ev.(type) {
	case *sdl.QuitEvent:
		s.events = append(s.events, backend.ActionEvent(action.Quit, event.Press))

	case *sdl.KeyboardEvent:
		act, ok := s.keyMapping[e.Keysym.Sym]
		if !ok {
			return
		}
		switch {
		case e.Type == sdl.KEYDOWN && e.Repeat != 0:
			s.events = append(s.events, backend.ActionEvent(act, event.Hold))
		case e.Type == sdl.KEYDOWN:
			s.events = append(s.events, backend.ActionEvent(act, event.Press))
		case e.Type == sdl.KEYUP:
			s.events = append(s.events, backend.ActionEvent(act, event.Release))
		}

	case *sdl.MouseButtonEvent:
		// Touches are handled from finger events
		if e.Which == sdl.TOUCH_MOUSEID || e.Button != sdl.BUTTON_LEFT {
			return
		}
		kind := event.PointerUp
		if e.Type == sdl.MOUSEBUTTONDOWN {
			kind = event.PointerDown
		}
		s.mouseDown = kind == event.PointerDown
		s.pushPointer(kind, event.Mouse, float64(e.X), float64(e.Y))

	case *sdl.MouseMotionEvent:
		if e.Which == sdl.TOUCH_MOUSEID || !s.mouseDown {
			return
		}
		s.pushPointer(event.PointerMove, event.Mouse, float64(e.X), float64(e.Y))

	case *sdl.TouchFingerEvent:
		s.handleTouch(e)

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			s.events = append(s.events, s.viewportEvent(e.Data1, e.Data2))
		}
	}
}

// handleTouch converts normalized finger coordinates to window pixels and
// feeds them through the shared touch normalization.
func (s *Backend) handleTouch(e *sdl.TouchFingerEvent) {
	w, h := s.window.GetSize()
	te := input.TouchEvent{
		Touches: []input.TouchPoint{{X: float64(e.X) * float64(w), Y: float64(e.Y) * float64(h)}},
	}
	switch e.Type {
	case sdl.FINGERDOWN:
		te.Phase = input.TouchStart
	case sdl.FINGERMOTION:
		te.Phase = input.TouchMove
	default:
		te.Phase = input.TouchEnd
	}

	p, ok := input.NormalizeTouch(te)
	if !ok {
		return
	}
	if p.Kind != event.PointerUp {
		p.X -= float64(s.canvasX)
		p.Y -= float64(s.canvasY)
	}
	s.events = append(s.events, backend.PointerEvent(p))
}

// pushPointer queues a pointer event in canvas-relative display pixels
func (s *Backend) pushPointer(kind event.PointerKind, src event.Source, x, y float64) {
	s.events = append(s.events, backend.PointerEvent(event.Pointer{
		Kind:   kind,
		Source: src,
		X:      x - float64(s.canvasX),
		Y:      y - float64(s.canvasY),
	}))
}

func (s *Backend) renderFrame(frame backend.Frame) error {
	title := s.config.Title
	if s.config.ShowStatus && frame.Status != "" {
		title += " | " + frame.Status
	}
	if title != s.title {
		s.window.SetTitle(title)
		s.title = title
	}

	s.renderer.SetDrawColor(0x20, 0x20, 0x20, display.FullAlpha)
	s.renderer.Clear()

	if frame.Image != nil {
		if err := s.uploadImage(frame.Image); err != nil {
			return err
		}
		winW, winH := s.window.GetSize()
		dst := sdl.Rect{
			X: (winW - int32(s.texW)) / 2,
			Y: (winH - int32(s.texH)) / 2,
			W: int32(s.texW),
			H: int32(s.texH),
		}
		s.canvasX, s.canvasY = dst.X, dst.Y
		s.renderer.Copy(s.texture, nil, &dst)

		if frame.Recording {
			s.renderer.SetDrawColor(0xff, 0x30, 0x30, display.FullAlpha)
			s.renderer.DrawRect(&sdl.Rect{X: dst.X - 2, Y: dst.Y - 2, W: dst.W + 4, H: dst.H + 4})
		}
	}

	s.renderer.Present()
	return nil
}

// uploadImage flattens img over black into the streaming texture,
// recreating it when the display size changes.
func (s *Backend) uploadImage(img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if s.texture == nil || w != s.texW || h != s.texH {
		if s.texture != nil {
			s.texture.Destroy()
		}
		// ABGR8888 is R,G,B,A in memory on little-endian machines
		texture, err := s.renderer.CreateTexture(
			sdl.PIXELFORMAT_ABGR8888,
			sdl.TEXTUREACCESS_STREAMING,
			int32(w),
			int32(h),
		)
		if err != nil {
			return fmt.Errorf("failed to create texture: %w", err)
		}
		s.texture = texture
		s.texW, s.texH = w, h
		s.pixels = make([]byte, w*h*display.RGBABytesPerPixel)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * display.RGBABytesPerPixel
			s.pixels[i] = byte(r >> 8)
			s.pixels[i+1] = byte(g >> 8)
			s.pixels[i+2] = byte(bl >> 8)
			s.pixels[i+3] = display.FullAlpha
		}
	}

	return s.texture.Update(nil, unsafe.Pointer(&s.pixels[0]), w*display.RGBABytesPerPixel)
}
