// Package scribble wires the drawing canvas, the recorder and the input
// manager into one application driven by a backend.
package scribble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/canvas"
	"github.com/valerio/go-scribble/scribble/capture"
	"github.com/valerio/go-scribble/scribble/capture/ffmpeg"
	"github.com/valerio/go-scribble/scribble/capture/gifenc"
	"github.com/valerio/go-scribble/scribble/config"
	"github.com/valerio/go-scribble/scribble/display"
	"github.com/valerio/go-scribble/scribble/export"
	"github.com/valerio/go-scribble/scribble/input"
	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
	"github.com/valerio/go-scribble/scribble/timing"
	"github.com/valerio/go-scribble/scribble/watch"
)

// shutdownTimeout bounds the final encoder flush when the app exits
const shutdownTimeout = 10 * time.Second

// App is the state of one scribble session
type App struct {
	cfg      config.Config
	canvas   *canvas.Controller
	recorder *capture.Recorder
	input    *input.Manager
	sink     export.Sink
	limiter  timing.Limiter

	recorderOpts []capture.Option

	// ctx is the context of the running loop, used by actions that start or
	// stop recordings from manager callbacks.
	ctx      context.Context
	running  bool
	viewport *backend.Viewport
	notice   string
}

// Option configures an App
type Option func(*App)

// WithSink overrides the output directory sink
func WithSink(sink export.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// WithLimiter sets the pacing of the UI loop
func WithLimiter(l timing.Limiter) Option {
	return func(a *App) { a.limiter = l }
}

// WithRecorderOptions passes extra options to the recorder, after the ones
// derived from the config.
func WithRecorderOptions(opts ...capture.Option) Option {
	return func(a *App) { a.recorderOpts = append(a.recorderOpts, opts...) }
}

// New builds a session from cfg
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		cfg: cfg,
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.limiter == nil {
		a.limiter = timing.NewTickerLimiter(display.UIRefreshRate)
	}

	c, err := canvas.New(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	brush, err := cfg.BrushState()
	if err != nil {
		return nil, err
	}
	if err := c.SetBrush(brush); err != nil {
		return nil, err
	}
	if cfg.Background.Path != "" {
		if err := c.LoadBackgroundFile(cfg.Background.Path); err != nil {
			return nil, err
		}
	}
	if cfg.Background.Hidden {
		c.ToggleBackgroundVisibility()
	}
	a.canvas = c

	if a.sink == nil {
		sink, err := export.NewDirSink(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		a.sink = sink
	}

	recOpts := []capture.Option{
		capture.WithSink(a.sink),
		capture.WithBitrate(cfg.Recording.Bitrate),
	}
	recOpts = append(recOpts, encoderOptions(cfg.Recording)...)
	recOpts = append(recOpts, a.recorderOpts...)
	a.recorder = capture.New(c, recOpts...)
	if err := a.recorder.SetFPS(cfg.Recording.FPS); err != nil {
		return nil, err
	}
	a.recorder.SetBackgroundOpacity(cfg.Recording.BackdropOpacity)

	a.input = input.NewManager(cfg.Debounce())
	a.bindActions()

	return a, nil
}

// encoderOptions selects the encoder and codec order for a config
func encoderOptions(cfg config.RecordingConfig) []capture.Option {
	switch strings.ToLower(cfg.Encoder) {
	case config.EncoderFFmpeg:
		return []capture.Option{
			capture.WithEncoder(ffmpeg.New(cfg.FFmpeg)),
			capture.WithCodecs(capture.DefaultCodecs...),
		}
	case config.EncoderGIF:
		return []capture.Option{
			capture.WithEncoder(gifenc.New()),
			capture.WithCodecs(capture.GIF),
		}
	case config.EncoderNone:
		return nil
	default:
		return []capture.Option{
			capture.WithEncoder(capture.Chain(ffmpeg.New(cfg.FFmpeg), gifenc.New())),
			capture.WithCodecs(capture.VP9, capture.VP8, capture.GIF),
		}
	}
}

func (a *App) bindActions() {
	a.input.On(action.ModeDraw, event.Press, func() {
		a.canvas.SetMode(canvas.Draw)
		slog.Info("Mode changed", "mode", canvas.Draw)
	})
	a.input.On(action.ModeErase, event.Press, func() {
		a.canvas.SetMode(canvas.Erase)
		slog.Info("Mode changed", "mode", canvas.Erase)
	})
	a.input.On(action.ClearDrawing, event.Press, a.canvas.Clear)
	a.input.On(action.ToggleBackground, event.Press, func() {
		visible := a.canvas.ToggleBackgroundVisibility()
		slog.Info("Background visibility changed", "visible", visible)
	})
	a.input.On(action.BrushGrow, event.Press, func() { a.adjustBrush(1) })
	a.input.On(action.BrushGrow, event.Hold, func() { a.adjustBrush(1) })
	a.input.On(action.BrushShrink, event.Press, func() { a.adjustBrush(-1) })
	a.input.On(action.BrushShrink, event.Hold, func() { a.adjustBrush(-1) })

	a.input.On(action.RecordToggle, event.Press, func() {
		if err := a.ToggleRecording(a.ctx); err != nil {
			a.report("Recording failed", err)
		}
	})
	a.input.On(action.ExportVideo, event.Press, func() {
		if _, err := a.recorder.ExportVideo(); err != nil {
			a.report("Video export failed", err)
		}
	})
	a.input.On(action.ExportFrame, event.Press, func() {
		if _, err := a.recorder.ExportCurrentFrame(); err != nil {
			a.report("Frame export failed", err)
		}
	})
	a.input.On(action.ClearRecording, event.Press, func() {
		a.recorder.ClearRecording()
		a.notice = "Recording cleared"
	})
	a.input.On(action.Quit, event.Press, func() {
		a.running = false
	})
}

func (a *App) adjustBrush(delta int) {
	size := a.canvas.Brush().Size + delta
	size = max(1, min(display.MaxBrushSize, size))
	if err := a.canvas.SetBrushSize(size); err != nil {
		slog.Warn("Failed to change brush size", "error", err)
	}
}

// report logs err and keeps it as the status notice. An empty export is a
// user mistake rather than a failure, so it is only a warning.
func (a *App) report(msg string, err error) {
	a.notice = err.Error()
	if errors.Is(err, capture.ErrNothingToExport) {
		slog.Warn(msg, "error", err)
		return
	}
	slog.Error(msg, "error", err)
}

// Canvas returns the drawing controller
func (a *App) Canvas() *canvas.Controller {
	return a.canvas
}

// Recorder returns the capture engine
func (a *App) Recorder() *capture.Recorder {
	return a.recorder
}

// Input returns the action manager, for backends registering extra handlers
func (a *App) Input() *input.Manager {
	return a.input
}

// Running reports whether the loop should keep going
func (a *App) Running() bool {
	return a.running
}

// ToggleRecording starts a recording with the configured rate and opacity,
// or stops the running one.
func (a *App) ToggleRecording(ctx context.Context) error {
	if a.recorder.Status().IsRecording {
		_, err := a.StopRecording(ctx)
		return err
	}
	return a.StartRecording(ctx)
}

// StartRecording begins a recording. It is a no-op while recording.
func (a *App) StartRecording(ctx context.Context) error {
	started, err := a.recorder.Start(ctx, a.recorder.FPS(), a.recorder.BackgroundOpacity())
	if err != nil {
		return err
	}
	if started {
		a.notice = ""
		a.applyViewport()
	}
	return nil
}

// StopRecording ends the running recording, nil summary when idle
func (a *App) StopRecording(ctx context.Context) (*capture.Summary, error) {
	summary, err := a.recorder.Stop(ctx)
	if summary != nil {
		a.notice = fmt.Sprintf("Recorded %.2fs, press v to export", summary.Duration.Seconds())
		a.applyViewport()
	}
	return summary, err
}

// HandleEvent routes one backend event: pointers drive strokes, viewport
// changes rescale the canvas and everything else goes through the manager.
func (a *App) HandleEvent(ev backend.InputEvent) {
	switch {
	case ev.Viewport != nil:
		v := *ev.Viewport
		a.viewport = &v
		a.applyViewport()
	case ev.Pointer != nil:
		a.handlePointer(*ev.Pointer)
	default:
		a.input.Trigger(ev.Action, ev.Type)
	}
}

func (a *App) handlePointer(p event.Pointer) {
	pt := canvas.Point{X: p.X, Y: p.Y}
	switch p.Kind {
	case event.PointerDown:
		a.canvas.BeginStroke(pt)
	case event.PointerMove:
		a.canvas.ContinueStroke(pt)
	case event.PointerUp:
		a.canvas.EndStroke()
	}
}

// applyViewport recomputes the display scale. The status panel only takes
// room while a recording runs.
func (a *App) applyViewport() {
	if a.viewport == nil {
		return
	}
	reserved := 0.0
	if a.recorder.Status().IsRecording {
		reserved = a.viewport.Reserved
	}
	a.canvas.Viewport(a.viewport.Width, a.viewport.Height, reserved)
}

// Frame is what backends render on the next update
func (a *App) Frame() backend.Frame {
	return backend.Frame{
		Image:     a.canvas.DisplayImage(),
		Status:    a.StatusLine(),
		Recording: a.recorder.Status().IsRecording,
	}
}

// StatusLine summarizes recording, brush and canvas state on one line
func (a *App) StatusLine() string {
	var parts []string

	status := a.recorder.Status()
	switch {
	case status.IsRecording:
		parts = append(parts, fmt.Sprintf("REC %s  Frames: %d", FormatDuration(status.Duration), status.FrameCount))
	case a.recorder.HasRecording():
		parts = append(parts, "recorded")
	default:
		parts = append(parts, "idle")
	}

	brush := a.canvas.Brush()
	parts = append(parts, fmt.Sprintf("%s %dpx %s", brush.Mode, brush.Size, canvas.FormatColor(brush.Color)))

	w, h := a.canvas.Size()
	size := fmt.Sprintf("%dx%d", w, h)
	if scale := a.canvas.Scale(); scale < 1 {
		size += fmt.Sprintf("  Scale: %d%%", int(scale*100+0.5))
	}
	parts = append(parts, size)

	if a.canvas.HasBackground() {
		if a.canvas.BackgroundVisible() {
			parts = append(parts, "bg on")
		} else {
			parts = append(parts, "bg off")
		}
	}
	if a.notice != "" {
		parts = append(parts, a.notice)
	}
	return strings.Join(parts, " | ")
}

// FormatDuration renders a duration as MM:SS
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Run drives the backend until a quit action or ctx ends. A running
// recording is stopped and flushed before returning.
func (a *App) Run(ctx context.Context, b backend.Backend) error {
	if err := b.Init(backend.Config{Title: "Scribble", ShowStatus: a.cfg.UI.ShowStatus}); err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			slog.Warn("Backend cleanup failed", "error", err)
		}
	}()

	if s, ok := a.limiter.(interface{ Stop() }); ok {
		defer s.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.ctx = ctx
	a.running = true

	if a.cfg.Background.Watch && a.cfg.Background.Path != "" {
		a.watchBackground(ctx)
	}

	var loopErr error
	for a.running {
		if ctx.Err() != nil {
			break
		}

		events, err := b.Update(a.Frame())
		if err != nil {
			loopErr = fmt.Errorf("backend update failed: %w", err)
			break
		}
		for _, ev := range events {
			a.HandleEvent(ev)
		}
		a.limiter.WaitForNextFrame()
	}
	a.running = false

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer flushCancel()
	if summary, err := a.StopRecording(flushCtx); err != nil {
		slog.Error("Failed to stop recording on exit", "error", err)
	} else if summary != nil {
		slog.Info("Recording stopped on exit", "frames", summary.FrameCount)
	}

	return loopErr
}

// watchBackground reloads the background file whenever it is rewritten
func (a *App) watchBackground(ctx context.Context) {
	w, err := watch.New(a.cfg.Background.Path, watch.DefaultSettle)
	if err != nil {
		slog.Warn("Background watch disabled", "error", err)
		return
	}
	slog.Info("Watching background", "path", w.Path())

	go func() {
		err := w.Run(ctx, func(path string) {
			if err := a.canvas.LoadBackgroundFile(path); err != nil {
				slog.Warn("Failed to reload background", "error", err)
			}
		})
		if err != nil {
			slog.Warn("Background watch stopped", "error", err)
		}
	}()
}
