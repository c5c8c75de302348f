package terminal

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/backend/terminal/render"
	"github.com/valerio/go-scribble/scribble/input"
	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
)

const (
	// Display pixels covered by one terminal cell. Each cell shows two
	// vertically stacked samples, so the effective pixel is cellW×cellH/2.
	cellW = 8
	cellH = 16

	canvasTop     = 1 // row 0 holds the title
	logPanelWidth = 40
	minLogTermW   = 120
	minTermWidth  = 40
	minTermHeight = 12
	logBufferSize = 200

	// Terminals repeat a held key; repeats within this window become Hold events
	keyRepeatWindow = 600 * time.Millisecond
)

// Backend implements the Backend interface using tcell for terminal rendering
type Backend struct {
	screen     tcell.Screen
	config     backend.Config
	logBuffer  *render.LogBuffer
	logLevel   *slog.LevelVar
	prevLogger *slog.Logger
	eventQueue []backend.InputEvent

	keyStates map[action.Action]time.Time // Last time each key was seen

	signals chan os.Signal

	// Canvas geometry from the last render, used to map mouse cells
	imageCols, imageRows int
	areaCols, areaRows   int
	pointerDown          bool
}

// Option configures a Backend
type Option func(*Backend)

// WithScreen uses an existing screen instead of the process terminal
func WithScreen(screen tcell.Screen) Option {
	return func(t *Backend) { t.screen = screen }
}

// New creates a new terminal backend
func New(opts ...Option) *Backend {
	t := &Backend{
		logLevel: new(slog.LevelVar),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init initializes the terminal and captures logging into the log panel
func (t *Backend) Init(config backend.Config) error {
	t.config = config
	t.keyStates = make(map[action.Action]time.Time)

	if t.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("failed to initialize terminal: %w", err)
		}
		t.screen = screen
	}
	if err := t.screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	t.screen.EnableMouse(tcell.MouseButtonEvents | tcell.MouseDragEvents)

	t.logBuffer = render.NewLogBuffer(logBufferSize)
	t.prevLogger = slog.Default()
	slog.SetDefault(slog.New(render.NewLogBufferHandler(t.logBuffer, slog.LevelDebug)))
	slog.Info("Terminal backend initialized")

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	t.signals = make(chan os.Signal, 1)
	signal.Notify(t.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	return nil
}

// Update renders a frame and returns the input collected since the last call
func (t *Backend) Update(frame backend.Frame) ([]backend.InputEvent, error) {
	now := time.Now()

	termW, termH := t.screen.Size()
	areaCols, areaRows := t.canvasArea(termW, termH)
	if areaCols != t.areaCols || areaRows != t.areaRows {
		t.areaCols, t.areaRows = areaCols, areaRows
		t.eventQueue = append(t.eventQueue, backend.ViewportEvent(t.viewport()))
	}

	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			t.processKeyEvent(ev, now)
		case *tcell.EventMouse:
			t.processMouseEvent(ev)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}

	select {
	case sig := <-t.signals:
		slog.Info("Received signal", "signal", sig)
		t.eventQueue = append(t.eventQueue, backend.ActionEvent(action.Quit, event.Press))
	default:
	}

	events := t.eventQueue
	t.eventQueue = nil

	t.render(frame)
	t.screen.Show()

	return events, nil
}

// Cleanup restores the terminal and the previous logger
func (t *Backend) Cleanup() error {
	if t.signals != nil {
		signal.Stop(t.signals)
	}
	if t.screen != nil {
		slog.Info("Cleaning up terminal backend")
		t.screen.Fini()
	}
	if t.prevLogger != nil {
		slog.SetDefault(t.prevLogger)
	}
	return nil
}

// canvasArea is the cell area left for the canvas once the title, help line
// and the optional log panel are laid out.
func (t *Backend) canvasArea(termW, termH int) (cols, rows int) {
	cols = termW
	if termW >= minLogTermW {
		cols -= logPanelWidth + 1
	}
	rows = termH - canvasTop - 1
	return max(cols, 0), max(rows, 0)
}

// viewport reports the canvas area in display pixels
func (t *Backend) viewport() backend.Viewport {
	v := backend.Viewport{
		Width:  float64(t.areaCols * cellW),
		Height: float64(t.areaRows * cellH),
	}
	if t.config.ShowStatus {
		v.Reserved = cellH
	}
	return v
}

// tcellKeyNameMap converts tcell keys to key names used in default mappings
var tcellKeyNameMap = map[tcell.Key]string{
	tcell.KeyEscape:     "Escape",
	tcell.KeyBackspace:  "Backspace",
	tcell.KeyBackspace2: "Backspace",
	tcell.KeyF12:        "F12",
}

// buildKeyMapping creates the key mapping from default mappings
func buildKeyMapping() map[tcell.Key]action.Action {
	mapping := make(map[tcell.Key]action.Action)
	for key, keyName := range tcellKeyNameMap {
		if act, ok := input.GetDefaultMapping(keyName); ok {
			mapping[key] = act
		}
	}
	mapping[tcell.KeyCtrlC] = action.Quit
	return mapping
}

// buildRuneMapping maps every single-character default key, plus space
func buildRuneMapping() map[rune]action.Action {
	mapping := make(map[rune]action.Action)
	for keyName, act := range input.DefaultKeyMap {
		if r := []rune(keyName); len(r) == 1 {
			mapping[r[0]] = act
		}
	}
	if act, ok := input.GetDefaultMapping("Space"); ok {
		mapping[' '] = act
	}
	return mapping
}

var (
	keyMapping  = buildKeyMapping()
	runeMapping = buildRuneMapping()
)

func (t *Backend) processKeyEvent(ev *tcell.EventKey, now time.Time) {
	act, ok := keyMapping[ev.Key()]
	if !ok && ev.Key() == tcell.KeyRune {
		act, ok = runeMapping[ev.Rune()]
	}
	if !ok {
		return
	}

	typ := event.Press
	if last, seen := t.keyStates[act]; seen && now.Sub(last) < keyRepeatWindow {
		typ = event.Hold
	}
	t.keyStates[act] = now

	slog.Debug("Key event", "action", act, "type", typ)
	t.eventQueue = append(t.eventQueue, backend.ActionEvent(act, typ))
}

// processMouseEvent turns button-1 state changes into pointer events. A drag
// that leaves the canvas ends the stroke.
func (t *Backend) processMouseEvent(ev *tcell.EventMouse) {
	x, y := ev.Position()
	pressed := ev.Buttons()&tcell.Button1 != 0
	inside := x >= 0 && x < t.imageCols && y >= canvasTop && y < canvasTop+t.imageRows
	p := event.Pointer{
		Source: event.Mouse,
		X:      (float64(x) + 0.5) * cellW,
		Y:      (float64(y-canvasTop) + 0.5) * cellH,
	}

	switch {
	case pressed && inside && !t.pointerDown:
		t.pointerDown = true
		p.Kind = event.PointerDown
	case pressed && inside:
		p.Kind = event.PointerMove
	case t.pointerDown:
		t.pointerDown = false
		p.Kind = event.PointerUp
	default:
		return
	}
	t.eventQueue = append(t.eventQueue, backend.PointerEvent(p))
}

func (t *Backend) render(frame backend.Frame) {
	termW, termH := t.screen.Size()
	t.screen.Clear()

	if termW < minTermWidth || termH < minTermHeight {
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		t.drawText(0, termH/2, termW, msg, style)
		t.imageCols, t.imageRows = 0, 0
		return
	}

	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	title := " Scribble "
	if t.config.Title != "" {
		title = " " + t.config.Title + " "
	}
	if frame.Recording {
		title += "● REC "
	}
	t.drawText(1, 0, t.areaCols, title, titleStyle)

	t.drawCanvas(frame.Image)

	if t.config.ShowStatus && frame.Status != "" {
		statusY := canvasTop + t.imageRows
		statusStyle := tcell.StyleDefault.Foreground(tcell.ColorSilver)
		if frame.Recording {
			statusStyle = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
		}
		if statusY < termH-1 {
			t.drawText(0, statusY, t.areaCols, frame.Status, statusStyle)
		}
	}

	if termW >= minLogTermW {
		dividerX := t.areaCols
		borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
		for y := 0; y < termH-1; y++ {
			t.screen.SetContent(dividerX, y, '│', nil, borderStyle)
		}
		t.drawText(dividerX+2, 0, logPanelWidth-2, " Logs ", titleStyle)
		t.drawLogs(dividerX+1, 1, logPanelWidth, termH)
	}

	help := " mouse=draw d/e=draw/erase +/-=brush c=clear b=bg r=record v=video f=frame x=discard q=quit "
	t.drawText(0, termH-1, termW, help, tcell.StyleDefault.Foreground(tcell.ColorGray))
}

func (t *Backend) drawCanvas(img image.Image) {
	if img == nil {
		t.imageCols, t.imageRows = 0, 0
		return
	}
	b := img.Bounds()
	cols, rows := render.CellGrid(b.Dx(), b.Dy(), cellW, cellH)
	cols, rows = min(cols, t.areaCols), min(rows, t.areaRows)
	t.imageCols, t.imageRows = cols, rows

	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			px := cx*cellW + cellW/2
			top := render.Sample(img, px, cy*cellH+cellH/4)
			bottom := render.Sample(img, px, cy*cellH+3*cellH/4)

			ch, fg, bg := render.HalfBlock(top, bottom)
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(fg.R), int32(fg.G), int32(fg.B))).
				Background(tcell.NewRGBColor(int32(bg.R), int32(bg.G), int32(bg.B)))
			t.screen.SetContent(cx, canvasTop+cy, ch, nil, style)
		}
	}
}

func (t *Backend) drawLogs(startX, startY, width, termHeight int) {
	availableHeight := termHeight - startY - 1
	if width <= 0 || availableHeight <= 0 {
		return
	}

	debugStyle := tcell.StyleDefault.Foreground(tcell.ColorGray)
	infoStyle := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	warnStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)

	logs := t.logBuffer.GetRecent(availableHeight, t.logLevel.Level())
	for i, logEntry := range logs {
		style := infoStyle
		switch logEntry.Level {
		case slog.LevelDebug:
			style = debugStyle
		case slog.LevelWarn:
			style = warnStyle
		case slog.LevelError:
			style = errStyle
		}

		logText := render.FormatLogEntry(logEntry)
		if len(logText) > width && width > 3 {
			logText = logText[:width-3] + "..."
		}
		t.drawText(startX, startY+i, width, logText, style)
	}
}

func (t *Backend) drawText(x, y, width int, text string, style tcell.Style) {
	i := 0
	for _, ch := range text {
		if i >= width {
			break
		}
		t.screen.SetContent(x+i, y, ch, nil, style)
		i++
	}
}
