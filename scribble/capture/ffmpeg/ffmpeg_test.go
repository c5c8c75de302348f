package ffmpeg

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os/exec"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-scribble/scribble/capture"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libvpx               libvpx VP8 (codec vp8)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 V....D png                  PNG (Portable Network Graphics) image
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestParseEncoders(t *testing.T) {
	names := parseEncoders([]byte(encodersOutput))

	assert.True(t, names["libvpx"])
	assert.True(t, names["libvpx-vp9"])
	assert.True(t, names["aac"])
	assert.False(t, names["="], "legend lines are skipped")
	assert.Len(t, names, 4)
}

func TestSupports(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		vp9    bool
		vp8    bool
	}{
		{"both", encodersOutput, nil, true, true},
		{"vp8 only", " ------\n V....D libvpx  libvpx VP8\n", nil, false, true},
		{"probe fails", "", errors.New("not found"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			e := New("")
			e.probe = func() ([]byte, error) {
				calls++
				return []byte(tt.output), tt.err
			}

			assert.Equal(t, tt.vp9, e.Supports(capture.VP9))
			assert.Equal(t, tt.vp8, e.Supports(capture.VP8))
			assert.False(t, e.Supports(capture.GIF))
			assert.Equal(t, 1, calls, "encoders are probed once")
		})
	}
}

func TestArgs(t *testing.T) {
	args, err := Args(capture.StreamConfig{Width: 800, Height: 600, FPS: 30, Bitrate: 2_500_000, Codec: capture.VP9})
	require.NoError(t, err)

	joined := map[string]string{}
	for i := 0; i+1 < len(args); i++ {
		joined[args[i]] = args[i+1]
	}
	assert.Equal(t, "800x600", joined["-s"])
	assert.Equal(t, "30", joined["-framerate"])
	assert.Equal(t, "libvpx-vp9", joined["-c:v"])
	assert.Equal(t, "2500000", joined["-b:v"])
	assert.Equal(t, "pipe:0", joined["-i"])
	assert.Equal(t, "pipe:1", args[len(args)-1])

	args, err = Args(capture.StreamConfig{Width: 10, Height: 10, FPS: 5, Codec: capture.VP8})
	require.NoError(t, err)
	assert.Contains(t, args, "libvpx")
	assert.Contains(t, args, "2500000", "bitrate defaults")
}

func TestArgs_Invalid(t *testing.T) {
	_, err := Args(capture.StreamConfig{Width: 10, Height: 10, FPS: 5, Codec: capture.GIF})
	assert.Error(t, err)

	_, err = Args(capture.StreamConfig{Width: 0, Height: 10, FPS: 5, Codec: capture.VP9})
	assert.Error(t, err)

	_, err = Args(capture.StreamConfig{Width: 10, Height: 10, FPS: 0, Codec: capture.VP9})
	assert.Error(t, err)
}

func TestFrameBytes(t *testing.T) {
	s := &session{frame: image.NewNRGBA(image.Rect(0, 0, 4, 3))}

	exact := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	exact.SetNRGBA(1, 1, color.NRGBA{R: 9, A: 255})
	assert.Equal(t, exact.Pix, s.frameBytes(exact))

	small := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	small.SetNRGBA(1, 1, color.NRGBA{G: 200, A: 255})
	data := s.frameBytes(small)
	require.Len(t, data, 4*3*4)
	px := (1*4 + 1) * 4
	assert.Equal(t, []byte{0, 200, 0, 255}, data[px:px+4])
	assert.Equal(t, []byte{0, 0, 0, 0}, data[len(data)-4:])
}

func TestEncodeWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath(DefaultBinary); err != nil {
		t.Skip("ffmpeg not installed")
	}

	e := New("")
	codec, err := capture.Negotiate(e, capture.DefaultCodecs)
	if err != nil {
		t.Skip("ffmpeg has no libvpx encoder")
	}

	ctx := context.Background()
	session, err := e.Open(ctx, capture.StreamConfig{Width: 32, Height: 32, FPS: 10, Codec: codec})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		data []byte
	)
	session.OnData(func(b []byte) {
		mu.Lock()
		data = append(data, b...)
		mu.Unlock()
	})

	frame := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < 10; i++ {
		frame.SetNRGBA(i, i, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		require.NoError(t, session.WriteFrame(frame))
	}
	require.NoError(t, session.Finalize(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, len(data), 4)
	// EBML magic
	assert.Equal(t, []byte{0x1a, 0x45, 0xdf, 0xa3}, data[:4])
}
