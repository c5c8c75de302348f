package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valerio/go-scribble/scribble"
	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/canvas"
	"github.com/valerio/go-scribble/scribble/input/event"
)

// stopTimeout bounds the encoder flush of a recording left running
const stopTimeout = 10 * time.Second

// Result lists what a run produced
type Result struct {
	Exports []string
	Summary []string
}

// Runner executes scripts against an App
type Runner struct {
	// Sleep waits for a wait step; it defaults to a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run executes the script with a default Runner
func Run(ctx context.Context, app *scribble.App, sc *Script) (Result, error) {
	return (&Runner{}).Run(ctx, app, sc)
}

// Run executes every step in order and stops at the first failure. A
// recording still running when the run ends, for any reason, is stopped and
// flushed.
func (r *Runner) Run(ctx context.Context, app *scribble.App, sc *Script) (res Result, err error) {
	slog.Info("Running script", "name", sc.Name, "steps", len(sc.Steps))
	defer func() {
		if stopErr := stopLeftover(ctx, app); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		slog.Debug("Script step", "index", i, "action", step.Action)
		if err := r.exec(ctx, app, sc, step, &res); err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return res, nil
}

// stopLeftover stops a running recording on a context detached from ctx, so a
// cancelled run still flushes the encoder.
func stopLeftover(ctx context.Context, app *scribble.App) error {
	if !app.Recorder().Status().IsRecording {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if _, err := app.StopRecording(stopCtx); err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, app *scribble.App, sc *Script, step Step, res *Result) error {
	c := app.Canvas()

	switch step.Action {
	case ActionResize:
		return c.Resize(step.Size.Width, step.Size.Height)
	case ActionViewport:
		app.HandleEvent(backend.ViewportEvent(backend.Viewport{
			Width:    step.Viewport.Width,
			Height:   step.Viewport.Height,
			Reserved: step.Viewport.Reserved,
		}))
	case ActionBrush:
		return applyBrush(c, step.Brush)
	case ActionBackground:
		return c.LoadBackgroundFile(sc.resolve(step.Path))
	case ActionStroke:
		for i, p := range step.Points {
			kind := event.PointerMove
			if i == 0 {
				kind = event.PointerDown
			}
			app.HandleEvent(backend.PointerEvent(event.Pointer{Kind: kind, X: p.X, Y: p.Y}))
		}
		app.HandleEvent(backend.PointerEvent(event.Pointer{Kind: event.PointerUp}))
	case ActionClear:
		c.Clear()
	case ActionToggleBackground:
		c.ToggleBackgroundVisibility()
	case ActionRecordStart:
		rec := app.Recorder()
		if step.Record.FPS > 0 {
			if err := rec.SetFPS(step.Record.FPS); err != nil {
				return err
			}
		}
		if step.Record.Opacity != nil {
			rec.SetBackgroundOpacity(*step.Record.Opacity)
		}
		return app.StartRecording(ctx)
	case ActionWait:
		return r.sleep(ctx, step.Wait)
	case ActionRecordStop:
		summary, err := app.StopRecording(ctx)
		if err != nil {
			return err
		}
		if summary != nil {
			res.Summary = append(res.Summary, fmt.Sprintf("%d frames in %s", summary.FrameCount, scribble.FormatDuration(summary.Duration)))
		}
	case ActionExportVideo:
		path, err := app.Recorder().ExportVideo()
		if err != nil {
			return err
		}
		res.Exports = append(res.Exports, path)
	case ActionExportFrame:
		path, err := app.Recorder().ExportCurrentFrame()
		if err != nil {
			return err
		}
		res.Exports = append(res.Exports, path)
	case ActionClearRecording:
		app.Recorder().ClearRecording()
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidStep, step.Action)
	}
	return nil
}

func applyBrush(c *canvas.Controller, b *Brush) error {
	if b.Size != 0 {
		if err := c.SetBrushSize(b.Size); err != nil {
			return err
		}
	}
	if b.Color != "" {
		col, err := canvas.ParseColor(b.Color)
		if err != nil {
			return err
		}
		c.SetBrushColor(col)
	}
	if b.Mode != "" {
		mode, err := canvas.ParseMode(b.Mode)
		if err != nil {
			return err
		}
		c.SetMode(mode)
	}
	return nil
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
