// Package gifenc is an in-process capture.Encoder producing animated GIFs,
// for machines without ffmpeg.
package gifenc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"sync"

	"github.com/valerio/go-scribble/scribble/capture"
)

const chunkSize = 64 * 1024

// Encoder implements capture.Encoder for capture.GIF
type Encoder struct{}

// New returns a GIF encoder
func New() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Supports(codec capture.Codec) bool {
	return codec.Name == capture.GIF.Name
}

// Open starts collecting frames. GIF has no alpha channel beyond a single
// transparent index, so frames are flattened onto black.
func (e *Encoder) Open(_ context.Context, cfg capture.StreamConfig) (capture.Session, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, fmt.Errorf("gifenc: invalid stream %dx%d@%d", cfg.Width, cfg.Height, cfg.FPS)
	}
	return &session{
		bounds: image.Rect(0, 0, cfg.Width, cfg.Height),
		delay:  frameDelay(cfg.FPS),
	}, nil
}

// frameDelay converts a frame rate to GIF delay units of 1/100 s
func frameDelay(fps int) int {
	return max(1, (100+fps/2)/fps)
}

type session struct {
	bounds image.Rectangle
	delay  int

	mu     sync.Mutex
	onData func([]byte)
	anim   gif.GIF
	done   bool
}

func (s *session) OnData(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = fn
}

func (s *session) WriteFrame(frame image.Image) error {
	flat := image.NewRGBA(s.bounds)
	draw.Draw(flat, s.bounds, image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(flat, s.bounds, frame, frame.Bounds().Min, draw.Over)

	paletted := image.NewPaletted(s.bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(paletted, s.bounds, flat, image.Point{})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("gifenc: session finalized")
	}
	s.anim.Image = append(s.anim.Image, paletted)
	s.anim.Delay = append(s.anim.Delay, s.delay)
	return nil
}

// Finalize encodes every collected frame and delivers the file in chunks.
// A session without frames produces no data.
func (s *session) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	if len(s.anim.Image) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &s.anim); err != nil {
		return fmt.Errorf("gifenc: %w", err)
	}
	s.anim = gif.GIF{}

	if s.onData == nil {
		return nil
	}
	data := buf.Bytes()
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		s.onData(append([]byte(nil), data[:n]...))
		data = data[n:]
	}
	return nil
}
