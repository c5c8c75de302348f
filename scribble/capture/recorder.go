package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/valerio/go-scribble/scribble/display"
	"github.com/valerio/go-scribble/scribble/export"
	"github.com/valerio/go-scribble/scribble/timing"
)

// Source is the read-only view of the drawing the recorder composites
type Source interface {
	Bounds() image.Rectangle
	DrawOnto(dst *gg.Context)
}

// State of the recording state machine
type State int

const (
	Idle State = iota
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Summary describes a finished recording
type Summary struct {
	FPS        int
	Duration   time.Duration
	FrameCount int
}

// Status is a point-in-time view of the recorder
type Status struct {
	IsRecording bool
	FrameCount  int
	Duration    time.Duration
}

// Option configures a Recorder
type Option func(*Recorder)

// WithEncoder sets the encoder used for recordings. Without one, recordings
// only count frames and produce nothing to export.
func WithEncoder(enc Encoder) Option {
	return func(r *Recorder) { r.encoder = enc }
}

// WithCodecs sets the codec negotiation order
func WithCodecs(codecs ...Codec) Option {
	return func(r *Recorder) { r.codecs = codecs }
}

// WithSink sets where exports are written
func WithSink(sink export.Sink) Option {
	return func(r *Recorder) { r.sink = sink }
}

// WithTicker replaces the tick source, mainly for tests
func WithTicker(fn timing.TickerFunc) Option {
	return func(r *Recorder) { r.newTicker = fn }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithBitrate sets the target video bitrate in bits per second
func WithBitrate(bps int) Option {
	return func(r *Recorder) { r.bitrate = bps }
}

// Recorder periodically composites a Source onto an offscreen surface, feeds
// the frames to an encoder session and buffers the encoded output until it is
// exported or cleared.
type Recorder struct {
	source    Source
	encoder   Encoder
	codecs    []Codec
	sink      export.Sink
	newTicker timing.TickerFunc
	now       func() time.Time
	bitrate   int

	mu         sync.Mutex
	state      State
	fps        int
	opacity    float64
	frameCount int
	startTime  time.Time
	codec      Codec
	session    Session
	offscreen  *gg.Context
	ticker     timing.Ticker
	stop       chan struct{}
	done       chan struct{}

	// chunks has its own lock: sessions deliver data from their own
	// goroutines, including while Stop waits in Finalize.
	dataMu sync.Mutex
	chunks [][]byte
}

// New creates an idle recorder reading from source
func New(source Source, opts ...Option) *Recorder {
	r := &Recorder{
		source:    source,
		codecs:    DefaultCodecs,
		newTicker: timing.NewTicker,
		now:       time.Now,
		bitrate:   display.DefaultVideoBitrate,
		fps:       display.DefaultFPS,
		opacity:   display.DefaultBackdropOpacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetFPS sets the frame rate used by the next Start
func (r *Recorder) SetFPS(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFPS, fps)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fps = fps
	return nil
}

// FPS returns the configured frame rate
func (r *Recorder) FPS() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fps
}

// SetBackgroundOpacity sets the alpha of the black backdrop painted under
// each frame, clamped to [0, 1]. It applies from the next tick.
func (r *Recorder) SetBackgroundOpacity(opacity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opacity = clampOpacity(opacity)
}

// BackgroundOpacity returns the backdrop alpha
func (r *Recorder) BackgroundOpacity() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opacity
}

// State returns the current recording state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Codec returns the codec negotiated by the most recent Start, or the zero
// Codec if no session was ever opened.
func (r *Recorder) Codec() Codec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codec
}

// Start begins a recording at fps with the given backdrop opacity. It returns
// false without touching any state when a recording is already running.
func (r *Recorder) Start(ctx context.Context, fps int, opacity float64) (bool, error) {
	if fps <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidFPS, fps)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Idle {
		slog.Debug("Recording already in progress, ignoring start")
		return false, nil
	}

	bounds := r.source.Bounds()
	var (
		session Session
		codec   Codec
	)
	if r.encoder != nil {
		var err error
		codec, err = Negotiate(r.encoder, r.codecs)
		if err != nil {
			return false, err
		}
		// the session outlives ctx; Stop bounds its flush
		session, err = r.encoder.Open(context.WithoutCancel(ctx), StreamConfig{
			Width:   bounds.Dx(),
			Height:  bounds.Dy(),
			FPS:     fps,
			Bitrate: r.bitrate,
			Codec:   codec,
		})
		if err != nil {
			return false, fmt.Errorf("failed to open %s encoder: %w", codec.Name, err)
		}
		session.OnData(r.appendChunk)
	}

	r.dataMu.Lock()
	r.chunks = nil
	r.dataMu.Unlock()

	r.fps = fps
	r.opacity = clampOpacity(opacity)
	r.frameCount = 0
	r.startTime = r.now()
	r.codec = codec
	r.session = session
	r.offscreen = gg.NewContext(bounds.Dx(), bounds.Dy())
	r.ticker = r.newTicker(timing.Interval(fps))
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.state = Recording

	go r.loop(r.ticker, r.stop, r.done, r.offscreen, r.session)

	slog.Info("Recording started",
		"fps", fps,
		"codec", codec.Name,
		"size", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()))
	return true, nil
}

// loop runs every tick of one recording on a single goroutine
func (r *Recorder) loop(ticker timing.Ticker, stop, done chan struct{}, offscreen *gg.Context, session Session) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			r.tick(offscreen, session)
		}
	}
}

func (r *Recorder) tick(offscreen *gg.Context, session Session) {
	r.mu.Lock()
	opacity := r.opacity
	r.mu.Unlock()

	if err := composite(offscreen, r.source, opacity); err != nil {
		slog.Warn("Failed to composite recording frame", "error", err)
	}
	if session != nil {
		if err := session.WriteFrame(frameImage(offscreen)); err != nil {
			slog.Warn("Failed to encode recording frame", "error", err)
		}
	}

	r.mu.Lock()
	r.frameCount++
	r.mu.Unlock()
}

// Stop ends the running recording and waits for the encoder to flush. It
// returns nil when nothing is recording. The ticker is stopped and its
// goroutine drained before finalizing, so FrameCount matches completed ticks.
func (r *Recorder) Stop(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return nil, nil
	}
	r.state = Stopping
	ticker, stop, done := r.ticker, r.stop, r.done
	r.mu.Unlock()

	ticker.Stop()
	close(stop)
	<-done

	r.mu.Lock()
	summary := &Summary{
		FPS:        r.fps,
		Duration:   r.elapsed(),
		FrameCount: r.frameCount,
	}
	session := r.session
	r.mu.Unlock()

	var err error
	if session != nil {
		if ferr := session.Finalize(ctx); ferr != nil {
			err = fmt.Errorf("failed to finalize recording: %w", ferr)
		}
	}

	r.mu.Lock()
	r.state = Idle
	r.session = nil
	r.ticker = nil
	if r.offscreen != nil {
		r.offscreen.Close()
		r.offscreen = nil
	}
	r.mu.Unlock()

	if err != nil {
		return summary, err
	}
	slog.Info("Recording stopped",
		"duration", fmt.Sprintf("%.2fs", summary.Duration.Seconds()),
		"frames", summary.FrameCount)
	return summary, nil
}

// Status reports whether a recording is running, the number of completed
// ticks and the time since start (zero when there is no start time).
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		IsRecording: r.state == Recording,
		FrameCount:  r.frameCount,
		Duration:    r.elapsed(),
	}
}

func (r *Recorder) elapsed() time.Duration {
	if r.startTime.IsZero() {
		return 0
	}
	return r.now().Sub(r.startTime)
}

// HasRecording reports whether encoded data is buffered
func (r *Recorder) HasRecording() bool {
	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	return len(r.chunks) > 0
}

// ClearRecording drops buffered data and resets the frame counter and start
// time. While recording the ticker keeps running, so the counters restart
// from zero mid-session.
func (r *Recorder) ClearRecording() {
	r.mu.Lock()
	if r.state != Idle {
		slog.Warn("Clearing recording while it is still running")
	}
	r.frameCount = 0
	r.startTime = time.Time{}
	r.mu.Unlock()

	r.dataMu.Lock()
	r.chunks = nil
	r.dataMu.Unlock()

	slog.Info("Recording cleared")
}

func (r *Recorder) appendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	r.dataMu.Lock()
	r.chunks = append(r.chunks, data)
	r.dataMu.Unlock()
}

// ExportVideo writes every buffered chunk, in order, as one file and returns
// its location. The buffer itself is kept.
func (r *Recorder) ExportVideo() (string, error) {
	if r.sink == nil {
		return "", ErrNoSink
	}

	r.dataMu.Lock()
	chunks := append([][]byte(nil), r.chunks...)
	r.dataMu.Unlock()
	if len(chunks) == 0 {
		return "", ErrNothingToExport
	}

	codec := r.Codec()
	if codec.IsZero() {
		codec = DefaultCodecs[0]
	}

	readers := make([]io.Reader, len(chunks))
	for i, c := range chunks {
		readers[i] = bytes.NewReader(c)
	}

	path, err := r.sink.Save(export.VideoFilename(codec.Ext, r.now()), io.MultiReader(readers...))
	if err != nil {
		return "", fmt.Errorf("failed to export video: %w", err)
	}
	slog.Info("Video exported", "path", path, "codec", codec.Name, "chunks", len(chunks))
	return path, nil
}

// ExportCurrentFrame composites the current drawing over the backdrop on a
// fresh surface and writes it as PNG. Recording state is not touched.
func (r *Recorder) ExportCurrentFrame() (string, error) {
	if r.sink == nil {
		return "", ErrNoSink
	}

	bounds := r.source.Bounds()
	dc := gg.NewContext(bounds.Dx(), bounds.Dy())
	defer dc.Close()

	if err := composite(dc, r.source, r.BackgroundOpacity()); err != nil {
		return "", fmt.Errorf("failed to composite frame: %w", err)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}

	path, err := r.sink.Save(export.FrameFilename(r.now()), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to export frame: %w", err)
	}
	slog.Info("Frame exported", "path", path, "size", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()))
	return path, nil
}

// composite paints the translucent black backdrop over dst, then the drawing
// at the origin. dst is not cleared first, so recording frames accumulate.
func composite(dst *gg.Context, src Source, opacity float64) error {
	if opacity > 0 {
		dst.SetRGBA(0, 0, 0, opacity)
		dst.DrawRectangle(0, 0, float64(dst.Width()), float64(dst.Height()))
		if err := dst.Fill(); err != nil {
			return err
		}
	}
	src.DrawOnto(dst)
	return nil
}

// frameImage copies the premultiplied pixels of dc
func frameImage(dc *gg.Context) *image.RGBA {
	return dc.ResizeTarget().ToImage()
}

func clampOpacity(v float64) float64 {
	return min(1, max(0, v))
}
