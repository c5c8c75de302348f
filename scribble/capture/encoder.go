package capture

import (
	"context"
	"fmt"
	"image"
	"strings"
)

// Codec identifies an output format an Encoder may produce
type Codec struct {
	Name string
	MIME string
	Ext  string
}

func (c Codec) String() string {
	return c.MIME
}

// IsZero reports whether no codec has been negotiated
func (c Codec) IsZero() bool {
	return c.Name == ""
}

var (
	VP9 = Codec{Name: "vp9", MIME: "video/webm;codecs=vp9", Ext: "webm"}
	VP8 = Codec{Name: "vp8", MIME: "video/webm;codecs=vp8", Ext: "webm"}
	GIF = Codec{Name: "gif", MIME: "image/gif", Ext: "gif"}
)

// DefaultCodecs is the negotiation order for video: VP9, falling back to VP8
var DefaultCodecs = []Codec{VP9, VP8}

// ParseCodec looks up a codec by name
func ParseCodec(name string) (Codec, error) {
	for _, c := range []Codec{VP9, VP8, GIF} {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return Codec{}, fmt.Errorf("unknown codec %q", name)
}

// StreamConfig describes the frames a Session will receive
type StreamConfig struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int
	Codec   Codec
}

// Encoder turns a stream of frames into an encoded container
type Encoder interface {
	// Supports reports whether the encoder can produce the codec
	Supports(codec Codec) bool
	// Open starts a session; ctx bounds the session's lifetime
	Open(ctx context.Context, cfg StreamConfig) (Session, error)
}

// Session is one encoding run. Encoded output is delivered asynchronously
// through the OnData callback, in order.
type Session interface {
	OnData(fn func([]byte))
	WriteFrame(frame image.Image) error
	// Finalize flushes pending output and returns once every chunk has been
	// delivered to OnData.
	Finalize(ctx context.Context) error
}

// Negotiate returns the first codec in order the encoder supports
func Negotiate(enc Encoder, order []Codec) (Codec, error) {
	for _, c := range order {
		if enc.Supports(c) {
			return c, nil
		}
	}
	return Codec{}, ErrNoEncoder
}

// Chain combines encoders; each codec is served by the first encoder
// supporting it.
func Chain(encoders ...Encoder) Encoder {
	return chain(encoders)
}

type chain []Encoder

func (c chain) Supports(codec Codec) bool {
	for _, e := range c {
		if e.Supports(codec) {
			return true
		}
	}
	return false
}

func (c chain) Open(ctx context.Context, cfg StreamConfig) (Session, error) {
	for _, e := range c {
		if e.Supports(cfg.Codec) {
			return e.Open(ctx, cfg)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEncoder, cfg.Codec.Name)
}
