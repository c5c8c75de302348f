// Package watch reports changes to a single file, such as a background image
// being re-exported by an editor.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
)

// DefaultSettle coalesces the burst of events a single save produces
const DefaultSettle = 100 * time.Millisecond

// Watcher watches one file. The parent directory is watched so files
// replaced by rename are still seen.
type Watcher struct {
	path    string
	settle  time.Duration
	watcher *fsnotify.Watcher
}

// New starts watching path. Changes are delivered by Run.
func New(path string, settle time.Duration) (*Watcher, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand watch path %s: %w", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path %s: %w", expanded, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{path: abs, settle: settle, watcher: w}, nil
}

// Path is the absolute path being watched
func (w *Watcher) Path() string {
	return w.path
}

// Run calls onChange once per settled burst of writes to the file, until ctx
// is done. The underlying watcher is closed on return.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		settled <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			slog.Debug("Watched file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			settled = timer.C

		case <-settled:
			settled = nil
			onChange(w.path)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", "path", w.path, "error", err)
		}
	}
}
