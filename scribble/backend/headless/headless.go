package headless

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"os"

	"github.com/valerio/go-scribble/scribble/backend"
	"github.com/valerio/go-scribble/scribble/export"
	"github.com/valerio/go-scribble/scribble/input/action"
	"github.com/valerio/go-scribble/scribble/input/event"
)

// Backend implements the Backend interface for automated runs and batch
// processing. It renders nothing and quits after a fixed number of frames.
type Backend struct {
	config         backend.Config
	frameCount     int
	maxFrames      int
	snapshotConfig SnapshotConfig
	viewport       *backend.Viewport
	queued         [][]backend.InputEvent
}

// SnapshotConfig holds configuration for frame snapshots
type SnapshotConfig struct {
	Enabled  bool
	Interval int         // Save snapshot every N frames
	Sink     export.Sink // Where snapshots are written
}

// New creates a backend that quits after maxFrames updates. A non-positive
// maxFrames runs until the context of the app loop ends.
func New(maxFrames int, snapshotConfig SnapshotConfig) *Backend {
	return &Backend{
		maxFrames:      maxFrames,
		snapshotConfig: snapshotConfig,
	}
}

// SetViewport makes the first update report a layout of the given size, as a
// window of that size would.
func (h *Backend) SetViewport(v backend.Viewport) {
	h.viewport = &v
}

// Queue schedules events to be returned by the next update. Each call is
// delivered by its own update, in order.
func (h *Backend) Queue(events ...backend.InputEvent) {
	h.queued = append(h.queued, events)
}

// FrameCount is the number of updates processed so far
func (h *Backend) FrameCount() int {
	return h.frameCount
}

func (h *Backend) Init(config backend.Config) error {
	h.config = config

	slog.Info("Running headless mode",
		"frames", h.maxFrames,
		"snapshot_interval", h.snapshotConfig.Interval)
	return nil
}

// Update counts a frame, saves snapshots and returns queued input
func (h *Backend) Update(frame backend.Frame) ([]backend.InputEvent, error) {
	var events []backend.InputEvent

	if h.frameCount == 0 && h.viewport != nil {
		events = append(events, backend.ViewportEvent(*h.viewport))
	}
	if len(h.queued) > 0 {
		events = append(events, h.queued[0]...)
		h.queued = h.queued[1:]
	}

	h.frameCount++

	if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval == 0 {
		h.saveSnapshot(frame)
	}

	if h.frameCount%100 == 0 {
		slog.Debug("Frame progress", "completed", h.frameCount, "total", h.maxFrames, "status", frame.Status)
	}

	if h.maxFrames > 0 && h.frameCount >= h.maxFrames {
		// Save final snapshot if enabled and we haven't just saved one
		if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval != 0 {
			h.saveSnapshot(frame)
		}
		slog.Info("Headless execution completed", "frames", h.frameCount)

		// Signal completion via quit event
		events = append(events, backend.ActionEvent(action.Quit, event.Press))
	}

	return events, nil
}

func (h *Backend) Cleanup() error {
	return nil
}

// CreateSnapshotConfig creates a snapshot configuration from CLI parameters.
// An empty directory means a fresh temporary one.
func CreateSnapshotConfig(interval int, directory string) (SnapshotConfig, error) {
	config := SnapshotConfig{
		Enabled:  interval > 0,
		Interval: interval,
	}

	if !config.Enabled {
		return config, nil
	}

	if directory == "" {
		tempDir, err := os.MkdirTemp("", "scribble-snapshots-*")
		if err != nil {
			return config, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		directory = tempDir
	}

	sink, err := export.NewDirSink(directory)
	if err != nil {
		return config, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	config.Sink = sink
	return config, nil
}

// saveSnapshot saves the displayed image of the current frame as PNG
func (h *Backend) saveSnapshot(frame backend.Frame) {
	if frame.Image == nil || h.snapshotConfig.Sink == nil {
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image); err != nil {
		slog.Error("Failed to encode PNG snapshot", "frame", h.frameCount, "error", err)
		return
	}
	name := fmt.Sprintf("snapshot_%05d.png", h.frameCount)
	if _, err := h.snapshotConfig.Sink.Save(name, &buf); err != nil {
		slog.Error("Failed to save PNG snapshot", "frame", h.frameCount, "error", err)
	}
}
