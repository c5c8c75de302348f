// Package ffmpeg encodes recordings to WebM by piping raw frames through an
// ffmpeg subprocess.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/valerio/go-scribble/scribble/capture"
	"github.com/valerio/go-scribble/scribble/display"
)

// DefaultBinary is looked up in PATH when no explicit path is configured
const DefaultBinary = "ffmpeg"

const readChunkSize = 64 * 1024

// libvpx encoder names per codec
var codecEncoders = map[string]string{
	capture.VP9.Name: "libvpx-vp9",
	capture.VP8.Name: "libvpx",
}

// Encoder implements capture.Encoder on top of the ffmpeg binary
type Encoder struct {
	binary string

	probeOnce sync.Once
	probe     func() ([]byte, error)
	available map[string]bool
}

// New returns an encoder running binary, or DefaultBinary when empty
func New(binary string) *Encoder {
	if binary == "" {
		binary = DefaultBinary
	}
	e := &Encoder{binary: binary}
	e.probe = func() ([]byte, error) {
		return exec.Command(e.binary, "-hide_banner", "-encoders").Output()
	}
	return e
}

// Supports reports whether the installed ffmpeg has the libvpx encoder for
// codec. The encoder list is probed once.
func (e *Encoder) Supports(codec capture.Codec) bool {
	name, ok := codecEncoders[codec.Name]
	if !ok {
		return false
	}

	e.probeOnce.Do(func() {
		out, err := e.probe()
		if err != nil {
			slog.Warn("Failed to probe ffmpeg encoders", "binary", e.binary, "error", err)
			e.available = map[string]bool{}
			return
		}
		e.available = parseEncoders(out)
		slog.Debug("Probed ffmpeg encoders", "binary", e.binary, "count", len(e.available))
	})
	return e.available[name]
}

// parseEncoders extracts encoder names from `ffmpeg -encoders` output. Entries
// follow the legend separator line and look like " V....D libvpx-vp9  ...".
func parseEncoders(out []byte) map[string]bool {
	names := map[string]bool{}
	inList := false

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

// Args builds the ffmpeg command line for a stream: raw RGBA frames on stdin,
// WebM on stdout.
func Args(cfg capture.StreamConfig) ([]string, error) {
	encoder, ok := codecEncoders[cfg.Codec.Name]
	if !ok {
		return nil, fmt.Errorf("ffmpeg: unsupported codec %q", cfg.Codec.Name)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid stream %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
	bitrate := cfg.Bitrate
	if bitrate <= 0 {
		bitrate = display.DefaultVideoBitrate
	}

	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
		"-an",
		"-c:v", encoder,
		"-b:v", strconv.Itoa(bitrate),
		"-pix_fmt", "yuva420p",
		"-auto-alt-ref", "0",
		"-deadline", "realtime",
		"-f", "webm",
		"pipe:1",
	}, nil
}

// Open starts ffmpeg for one recording. The process is killed if ctx ends
// before Finalize.
func (e *Encoder) Open(ctx context.Context, cfg capture.StreamConfig) (capture.Session, error) {
	args, err := Args(cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	s := &session{
		cfg:      cfg,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		ready:    make(chan struct{}),
		readDone: make(chan struct{}),
		frame:    image.NewNRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.binary, err)
	}
	go s.readLoop()

	slog.Debug("ffmpeg session started", "args", strings.Join(args, " "), "pid", cmd.Process.Pid)
	return s, nil
}

type session struct {
	cfg    capture.StreamConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr bytes.Buffer

	readyOnce sync.Once
	ready     chan struct{}
	onData    func([]byte)

	readDone chan struct{}
	readErr  error

	frame *image.NRGBA
}

func (s *session) OnData(fn func([]byte)) {
	s.readyOnce.Do(func() {
		s.onData = fn
		close(s.ready)
	})
}

func (s *session) readLoop() {
	defer close(s.readDone)
	<-s.ready

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 && s.onData != nil {
			s.onData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.readErr = err
			}
			return
		}
	}
}

// WriteFrame sends one frame as raw RGBA. Frames of another size are drawn
// at the origin of a stream-sized buffer.
func (s *session) WriteFrame(frame image.Image) error {
	if _, err := s.stdin.Write(s.frameBytes(frame)); err != nil {
		return fmt.Errorf("ffmpeg: write frame: %w", err)
	}
	return nil
}

func (s *session) frameBytes(frame image.Image) []byte {
	if img, ok := frame.(*image.NRGBA); ok && img.Rect == s.frame.Rect && img.Stride == s.frame.Stride {
		return img.Pix
	}
	draw.Draw(s.frame, s.frame.Rect, image.Transparent, image.Point{}, draw.Src)
	draw.Draw(s.frame, s.frame.Rect, frame, frame.Bounds().Min, draw.Src)
	return s.frame.Pix
}

// Finalize closes stdin, waits for every output chunk to be delivered and for
// ffmpeg to exit.
func (s *session) Finalize(ctx context.Context) error {
	s.OnData(nil)
	if err := s.stdin.Close(); err != nil {
		slog.Debug("ffmpeg stdin close", "error", err)
	}

	select {
	case <-s.readDone:
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-s.readDone
		_ = s.cmd.Wait()
		return ctx.Err()
	}

	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	if s.readErr != nil {
		return fmt.Errorf("ffmpeg: read output: %w", s.readErr)
	}
	return nil
}
