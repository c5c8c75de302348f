package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-scribble/scribble/canvas"
	"github.com/valerio/go-scribble/scribble/export"
	"github.com/valerio/go-scribble/scribble/timing"
)

type fakeEncoder struct {
	supported map[string]bool
	openErr   error
	capture   bool
	openCtx   context.Context

	mu       sync.Mutex
	sessions []*fakeSession
}

func newFakeEncoder(codecs ...Codec) *fakeEncoder {
	e := &fakeEncoder{supported: map[string]bool{}}
	for _, c := range codecs {
		e.supported[c.Name] = true
	}
	return e
}

func (e *fakeEncoder) Supports(c Codec) bool { return e.supported[c.Name] }

func (e *fakeEncoder) Open(ctx context.Context, cfg StreamConfig) (Session, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.openCtx = ctx
	s := &fakeSession{cfg: cfg, capture: e.capture}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

func (e *fakeEncoder) last() *fakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[len(e.sessions)-1]
}

// fakeSession emits one chunk per frame and a trailer on Finalize
type fakeSession struct {
	cfg       StreamConfig
	onData    func([]byte)
	frames    int
	finalized bool

	cornerAlpha []uint8
	capture     bool
	captured    []image.Image
}

func (s *fakeSession) OnData(fn func([]byte)) { s.onData = fn }

func (s *fakeSession) WriteFrame(frame image.Image) error {
	s.frames++
	if img, ok := frame.(*image.RGBA); ok {
		s.cornerAlpha = append(s.cornerAlpha, img.RGBAAt(0, 0).A)
	}
	if s.capture {
		s.captured = append(s.captured, frame)
	}
	s.onData([]byte("f"))
	return nil
}

func (s *fakeSession) Finalize(context.Context) error {
	s.finalized = true
	s.onData([]byte("end"))
	return nil
}

type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemorySink() *memorySink {
	return &memorySink{files: map[string][]byte{}}
}

func (m *memorySink) Save(name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return "mem://" + name, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	surface *canvas.Controller
	encoder *fakeEncoder
	sink    *memorySink
	ticker  *timing.ManualTicker
	clock   *fakeClock
	rec     *Recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	surface, err := canvas.New(64, 48)
	require.NoError(t, err)

	f := &fixture{
		surface: surface,
		encoder: newFakeEncoder(VP9, VP8),
		sink:    newMemorySink(),
		ticker:  timing.NewManualTicker(),
		clock:   &fakeClock{now: time.UnixMilli(1700000000000)},
	}
	base := []Option{
		WithEncoder(f.encoder),
		WithSink(f.sink),
		WithTicker(f.ticker.Factory()),
		WithClock(f.clock.Now),
	}
	f.rec = New(surface, append(base, opts...)...)
	return f
}

func (f *fixture) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, f.ticker.Tick(), "tick %d not delivered", i)
	}
}

func TestRecorder_HundredTicksAt30FPS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, time.Second/30, f.ticker.Interval())
	assert.Equal(t, Recording, f.rec.State())

	f.tick(t, 100)
	f.clock.Advance(3333 * time.Millisecond)

	summary, err := f.rec.Stop(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 100, summary.FrameCount)
	assert.Equal(t, 30, summary.FPS)
	assert.Equal(t, 3333*time.Millisecond, summary.Duration)

	session := f.encoder.last()
	assert.Equal(t, 100, session.frames)
	assert.True(t, session.finalized)
	assert.Equal(t, Idle, f.rec.State())
	assert.False(t, f.rec.Status().IsRecording)
}

func TestRecorder_StartWhileRecordingIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 5)
	f.clock.Advance(2 * time.Second)

	started, err := f.rec.Start(ctx, 60, 1)
	require.NoError(t, err)
	assert.False(t, started)

	status := f.rec.Status()
	assert.True(t, status.IsRecording)
	assert.Equal(t, 5, status.FrameCount)
	assert.Equal(t, 2*time.Second, status.Duration, "start time kept from the first start")
	assert.Equal(t, 30, f.rec.FPS())
	assert.Equal(t, 0.3, f.rec.BackgroundOpacity())
	assert.Len(t, f.encoder.sessions, 1)

	f.clock.Advance(time.Second)
	summary, err := f.rec.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.FrameCount)
	assert.Equal(t, 3*time.Second, summary.Duration)
}

func TestRecorder_SessionOutlivesStartContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 2)
	cancel()

	require.NotNil(t, f.encoder.openCtx)
	assert.NoError(t, f.encoder.openCtx.Err(), "cancelling the caller must not kill the encoder")

	summary, err := f.rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FrameCount)
	assert.True(t, f.encoder.last().finalized)
}

func TestRecorder_StopWhileIdle(t *testing.T) {
	f := newFixture(t)

	summary, err := f.rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, summary)
	assert.Equal(t, Idle, f.rec.State())
}

func TestRecorder_ExportVideoWithNothingRecorded(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.ExportVideo()
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Empty(t, f.sink.files)
	assert.False(t, f.rec.HasRecording())
}

func TestRecorder_ExportVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 3)
	_, err = f.rec.Stop(ctx)
	require.NoError(t, err)
	require.True(t, f.rec.HasRecording())

	path, err := f.rec.ExportVideo()
	require.NoError(t, err)
	assert.Equal(t, "mem://scribble-video-1700000000000.webm", path)
	assert.Equal(t, "fffend", string(f.sink.files["scribble-video-1700000000000.webm"]))
	assert.True(t, f.rec.HasRecording(), "export keeps the buffer")
}

func TestRecorder_CodecFallback(t *testing.T) {
	t.Run("prefers vp9", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Start(context.Background(), 30, 0)
		require.NoError(t, err)
		assert.Equal(t, VP9, f.rec.Codec())
		assert.Equal(t, VP9, f.encoder.last().cfg.Codec)
		assert.Equal(t, 2_500_000, f.encoder.last().cfg.Bitrate)
		_, _ = f.rec.Stop(context.Background())
	})

	t.Run("falls back to vp8", func(t *testing.T) {
		f := newFixture(t)
		f.encoder.supported = map[string]bool{"vp8": true}
		_, err := f.rec.Start(context.Background(), 30, 0)
		require.NoError(t, err)
		assert.Equal(t, VP8, f.rec.Codec())
		_, _ = f.rec.Stop(context.Background())
	})

	t.Run("nothing supported", func(t *testing.T) {
		f := newFixture(t)
		f.encoder.supported = map[string]bool{}
		started, err := f.rec.Start(context.Background(), 30, 0)
		assert.ErrorIs(t, err, ErrNoEncoder)
		assert.False(t, started)
		assert.Equal(t, Idle, f.rec.State())
	})
}

func TestRecorder_OpenFailureLeavesIdle(t *testing.T) {
	f := newFixture(t)
	f.encoder.openErr = errors.New("ffmpeg missing")

	started, err := f.rec.Start(context.Background(), 30, 0.3)
	require.Error(t, err)
	assert.False(t, started)
	assert.Equal(t, Idle, f.rec.State())
	assert.Zero(t, f.rec.Status().FrameCount)
}

func TestRecorder_WithoutEncoder(t *testing.T) {
	surface, err := canvas.New(16, 16)
	require.NoError(t, err)
	ticker := timing.NewManualTicker()
	rec := New(surface, WithTicker(ticker.Factory()), WithSink(newMemorySink()))

	_, err = rec.Start(context.Background(), 10, 0.5)
	require.NoError(t, err)
	require.True(t, ticker.Tick())
	require.True(t, ticker.Tick())

	summary, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FrameCount)
	assert.True(t, rec.Codec().IsZero())

	_, err = rec.ExportVideo()
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestRecorder_InvalidFPS(t *testing.T) {
	f := newFixture(t)

	_, err := f.rec.Start(context.Background(), 0, 0.3)
	assert.ErrorIs(t, err, ErrInvalidFPS)
	assert.ErrorIs(t, f.rec.SetFPS(-1), ErrInvalidFPS)
	assert.Equal(t, 30, f.rec.FPS())
}

func TestRecorder_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status := f.rec.Status()
	assert.False(t, status.IsRecording)
	assert.Zero(t, status.Duration)

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 7)
	f.clock.Advance(1500 * time.Millisecond)

	status = f.rec.Status()
	assert.True(t, status.IsRecording)
	assert.Equal(t, 7, status.FrameCount)
	assert.Equal(t, 1500*time.Millisecond, status.Duration)

	_, err = f.rec.Stop(ctx)
	require.NoError(t, err)
}

func TestRecorder_ClearRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 4)
	_, err = f.rec.Stop(ctx)
	require.NoError(t, err)

	f.rec.ClearRecording()
	assert.False(t, f.rec.HasRecording())
	status := f.rec.Status()
	assert.Zero(t, status.FrameCount)
	assert.Zero(t, status.Duration)

	_, err = f.rec.ExportVideo()
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestRecorder_ClearWhileRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Start(ctx, 30, 0.3)
	require.NoError(t, err)
	f.tick(t, 10)

	f.rec.ClearRecording()
	f.tick(t, 3)

	summary, err := f.rec.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.FrameCount, "counter restarts from zero mid-session")
	assert.Zero(t, summary.Duration, "start time was cleared")
	assert.Equal(t, 13, f.encoder.last().frames, "encoder saw every tick")
}

func TestRecorder_ExportCurrentFrame(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.surface.SetBrushSize(6))
	f.surface.BeginStroke(canvas.Point{X: 10, Y: 24})
	f.surface.ContinueStroke(canvas.Point{X: 54, Y: 24})
	f.surface.EndStroke()

	path, err := f.rec.ExportCurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, "mem://scribble-frame-1700000000000.png", path)
	assert.Equal(t, Idle, f.rec.State())
	assert.Zero(t, f.rec.Status().FrameCount)

	img, err := png.Decode(strings.NewReader(string(f.sink.files["scribble-frame-1700000000000.png"])))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	nrgba, ok := img.(*image.NRGBA)
	require.True(t, ok)

	stroke := nrgba.NRGBAAt(32, 24)
	assert.Greater(t, stroke.A, uint8(200))
	assert.Greater(t, stroke.R, uint8(200))

	backdrop := nrgba.NRGBAAt(2, 2)
	assert.InDelta(t, 0.3*255, float64(backdrop.A), 1.5)
	assert.Zero(t, backdrop.R)
}

func TestRecorder_ExportCurrentFrameEdgeOverBackdrop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.surface.SetBrushSize(1))
	f.surface.BeginStroke(canvas.Point{X: 10, Y: 24})
	f.surface.ContinueStroke(canvas.Point{X: 54, Y: 24})
	f.surface.EndStroke()

	edge := f.surface.Snapshot().NRGBAAt(32, 23)
	require.Greater(t, edge.A, uint8(0))
	require.Less(t, edge.A, uint8(255))
	require.GreaterOrEqual(t, edge.R, uint8(250), "stroke edges keep the brush color")

	_, err := f.rec.ExportCurrentFrame()
	require.NoError(t, err)
	img, err := png.Decode(strings.NewReader(string(f.sink.files["scribble-frame-1700000000000.png"])))
	require.NoError(t, err)
	got := color.NRGBAModel.Convert(img.At(32, 23)).(color.NRGBA)

	// white at the edge coverage, source-over black at 0.3
	sa := float64(edge.A) / 255
	outA := sa + 0.3*(1-sa)
	assert.InDelta(t, outA*255, float64(got.A), 2)
	assert.InDelta(t, sa/outA*255, float64(got.R), 3)
	assert.Equal(t, got.R, got.G)
	assert.Equal(t, got.R, got.B)
}

func TestRecorder_FramesArePremultiplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.surface.SetBrushSize(1))
	f.surface.BeginStroke(canvas.Point{X: 10, Y: 24})
	f.surface.ContinueStroke(canvas.Point{X: 54, Y: 24})
	f.surface.EndStroke()

	f.encoder.capture = true
	_, err := f.rec.Start(ctx, 30, 0)
	require.NoError(t, err)
	f.tick(t, 1)
	_, err = f.rec.Stop(ctx)
	require.NoError(t, err)

	frames := f.encoder.last().captured
	require.Len(t, frames, 1)
	want := f.surface.Snapshot().NRGBAAt(32, 23)
	got := color.NRGBAModel.Convert(frames[0].At(32, 23)).(color.NRGBA)
	assert.Equal(t, want, got)
	assert.GreaterOrEqual(t, got.R, uint8(250))
}

func TestRecorder_ExportCurrentFrameToDir(t *testing.T) {
	dir := t.TempDir()
	sink, err := export.NewDirSink(dir)
	require.NoError(t, err)
	f := newFixture(t, WithSink(sink))

	path, err := f.rec.ExportCurrentFrame()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scribble-frame-1700000000000.png"), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRecorder_NoSink(t *testing.T) {
	surface, err := canvas.New(8, 8)
	require.NoError(t, err)
	rec := New(surface)

	_, err = rec.ExportCurrentFrame()
	assert.ErrorIs(t, err, ErrNoSink)
	_, err = rec.ExportVideo()
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestRecorder_BackgroundOpacity(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 0.3, f.rec.BackgroundOpacity())
	f.rec.SetBackgroundOpacity(1.7)
	assert.Equal(t, 1.0, f.rec.BackgroundOpacity())
	f.rec.SetBackgroundOpacity(-0.2)
	assert.Equal(t, 0.0, f.rec.BackgroundOpacity())
}

func TestRecorder_FramesAccumulateBackdrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Start(ctx, 30, 0.5)
	require.NoError(t, err)
	f.tick(t, 3)
	_, err = f.rec.Stop(ctx)
	require.NoError(t, err)

	alphas := f.encoder.last().cornerAlpha
	require.Len(t, alphas, 3)
	assert.InDelta(t, 128, float64(alphas[0]), 2)
	assert.InDelta(t, 191, float64(alphas[1]), 2)
	assert.InDelta(t, 223, float64(alphas[2]), 2)
}
