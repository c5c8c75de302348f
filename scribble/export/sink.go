package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
)

const (
	videoPrefix = "scribble-video"
	framePrefix = "scribble-frame"
)

// Sink stores an exported artifact under the given name and returns where it
// ended up.
type Sink interface {
	Save(name string, r io.Reader) (string, error)
}

// VideoFilename names a finished recording, e.g. scribble-video-1700000000000.webm
func VideoFilename(ext string, t time.Time) string {
	return fmt.Sprintf("%s-%d.%s", videoPrefix, t.UnixMilli(), ext)
}

// FrameFilename names a still frame, e.g. scribble-frame-1700000000000.png
func FrameFilename(t time.Time) string {
	return fmt.Sprintf("%s-%d.png", framePrefix, t.UnixMilli())
}

// DirSink writes artifacts as files in a directory
type DirSink struct {
	dir string
}

// NewDirSink returns a sink writing into directory. An empty directory means
// the current working directory; a leading ~ is expanded. The directory is
// created if missing.
func NewDirSink(directory string) (*DirSink, error) {
	if directory == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		directory = cwd
	}

	expanded, err := homedir.Expand(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output directory %s: %w", directory, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &DirSink{dir: expanded}, nil
}

// Dir returns the resolved output directory
func (s *DirSink) Dir() string {
	return s.dir
}

// Save writes r to a new file. A partially written file is removed on error.
func (s *DirSink) Save(name string, r io.Reader) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid export name %q", name)
	}

	path := filepath.Join(s.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", path, err)
	}

	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}

	slog.Info("Export saved", "path", path, "bytes", n)
	return path, nil
}
